package config

import (
	"fmt"
	"path"

	"mute/internal/grid"
)

// Artifact directories below the base directory.
const (
	ShardDir  = "underground_energies"
	TensorDir = "survival_probabilities"
)

// Key identifies which on-disk artifacts are compatible with a configuration.
type Key struct {
	Medium    Medium
	Density   float64
	MuonCount int
}

// Prefix renders the file name prefix shared by all artifacts of the key,
// e.g. "rock_2.65_1000".
func (k Key) Prefix() string {
	return fmt.Sprintf("%s_%s_%d", k.Medium, grid.FormatValue(k.Density), k.MuonCount)
}

// ShardName returns the blob key of the shard written by job.
func (k Key) ShardName(job int) string {
	return path.Join(ShardDir, fmt.Sprintf("%s_Underground_Energies_%d.txt", k.Prefix(), job))
}

// TensorName returns the blob key of the survival probability file.
func (k Key) TensorName() string {
	return path.Join(TensorDir, k.Prefix()+"_Survival_Probabilities.txt")
}

func (k Key) String() string {
	return k.Prefix()
}
