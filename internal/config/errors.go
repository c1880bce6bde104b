package config

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every configuration error via errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// Error reports a violated configuration constraint.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalid) match.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}
