package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableExtendAndMerge(t *testing.T) {
	a := NewTable(2, 3)
	a.Extend(1, 2, 5, 6)
	b := NewTable(2, 3)
	b.Extend(1, 2, 7)
	b.Extend(0, 0, 1)

	require.NoError(t, a.Merge(b))
	assert.Equal(t, []float64{5, 6, 7}, a.Cell(1, 2))
	assert.Equal(t, []float64{1}, a.Cell(0, 0))
	assert.Equal(t, 4, a.Total())
	assert.Equal(t, 5, a.Index(1, 2))
	assert.Equal(t, []float64{}, a.Cell(0, 1))
}

func TestTableMergeShapeMismatch(t *testing.T) {
	require.Error(t, NewTable(2, 2).Merge(NewTable(2, 3)))
}

func TestTableCloneIsDeep(t *testing.T) {
	a := NewTable(1, 1)
	a.Extend(0, 0, 1)
	c := a.Clone()
	c.Extend(0, 0, 2)
	assert.Equal(t, 1, a.Len(0, 0))
	assert.Equal(t, 2, c.Len(0, 0))
}

func TestTableIndexOutOfRangePanics(t *testing.T) {
	assert.Panics(t, func() { NewTable(1, 1).Cell(1, 0) })
}

func TestMismatchErrorIs(t *testing.T) {
	err := error(&MismatchError{Artifact: "shard 0", Want: 4, Got: 5})
	assert.True(t, errors.Is(err, ErrStructuralMismatch))
	assert.Contains(t, err.Error(), "5 lines, want 4")
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{
		2.65:              "2.65",
		1:                 "1.0",
		0:                 "0.0",
		6935594.383751289: "6935594.383751289",
		1e16:              "1e+16",
		1.5e-5:            "1.5e-05",
		0.0001:            "0.0001",
		123456789012345.6: "123456789012345.6",
	}
	for v, want := range cases {
		assert.Equal(t, want, FormatValue(v), "value %v", v)
	}
}
