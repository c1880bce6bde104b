package grid

import (
	"errors"
	"fmt"
)

// ErrStructuralMismatch matches every MismatchError via errors.Is.
var ErrStructuralMismatch = errors.New("structural mismatch")

// MismatchError reports an artifact whose line count disagrees with the grid.
// The artifact is unusable but left in place.
type MismatchError struct {
	Artifact string
	Want     int
	Got      int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s is incompatible with the surface energy grid and/or the slant depths: %d lines, want %d", e.Artifact, e.Got, e.Want)
}

// Is lets errors.Is(err, ErrStructuralMismatch) match.
func (e *MismatchError) Is(target error) bool {
	return target == ErrStructuralMismatch
}
