package survival

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"mute/internal/grid"
)

// ErrMalformed reports a tensor row that is not four real columns.
var ErrMalformed = errors.New("malformed survival probability row")

// RowError locates a malformed row.
type RowError struct {
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s %d: %s", ErrMalformed, e.Row, e.Reason)
}

func (e *RowError) Is(target error) bool { return target == ErrMalformed }

// Write serializes t as "surface_energy slant_depth underground_energy
// probability" rows, u innermost. energies labels both the surface energy
// axis and the bins; depths labels the slant depth axis.
func Write(w io.Writer, t *Tensor, energies, depths []float64) error {
	if len(energies) != t.ne || len(depths) != t.nx || len(energies) != t.nu {
		return fmt.Errorf("survival: grids %dx%d do not label a %dx%dx%d tensor", len(energies), len(depths), t.ne, t.nx, t.nu)
	}
	bw := bufio.NewWriterSize(w, 1<<16)
	for i := 0; i < t.ne; i++ {
		for x := 0; x < t.nx; x++ {
			for u := 0; u < t.nu; u++ {
				if _, err := fmt.Fprintf(bw, "%.14f %.5f %.14f %.14e\n", energies[i], depths[x], energies[u], t.At(i, x, u)); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// Parse reads a tensor file for ne surface energies and nx slant depths, with
// one bin per surface energy. The row count is checked before any parse error
// is reported.
func Parse(r io.Reader, ne, nx int) (*Tensor, error) {
	want := ne * nx * ne
	t := NewTensor(ne, nx, ne)
	rows, err := scanRows(r, func(k int, cols [4]float64) {
		if k < want {
			t.p[k] = cols[3]
		}
	})
	if rows != want {
		return nil, &grid.MismatchError{Artifact: "survival probability file", Want: want, Got: rows}
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Grids lists the distinct values found in each axis column of a tensor file.
type Grids struct {
	SurfaceEnergies     []float64
	SlantDepths         []float64
	UndergroundEnergies []float64
}

// ReadGrids reads a tensor file and returns the sorted distinct surface
// energies, slant depths and underground energies it covers.
func ReadGrids(r io.Reader) (Grids, error) {
	var sets [3]map[float64]struct{}
	for c := range sets {
		sets[c] = make(map[float64]struct{})
	}
	_, err := scanRows(r, func(_ int, cols [4]float64) {
		for c := range sets {
			sets[c][cols[c]] = struct{}{}
		}
	})
	if err != nil {
		return Grids{}, err
	}
	return Grids{
		SurfaceEnergies:     sortedKeys(sets[0]),
		SlantDepths:         sortedKeys(sets[1]),
		UndergroundEnergies: sortedKeys(sets[2]),
	}, nil
}

// scanRows feeds every well-formed row to fn until the first malformed one and
// keeps counting lines to the end of r. It returns the line count and the
// first row error.
func scanRows(r io.Reader, fn func(k int, cols [4]float64)) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<20)
	rows := 0
	var rowErr error
	for sc.Scan() {
		if rowErr == nil {
			cols, err := parseRow(sc.Text())
			if err != nil {
				rowErr = &RowError{Row: rows + 1, Reason: err.Error()}
			} else {
				fn(rows, cols)
			}
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return rows, err
	}
	return rows, rowErr
}

func parseRow(line string) ([4]float64, error) {
	var cols [4]float64
	fields := strings.Fields(line)
	if len(fields) != len(cols) {
		return cols, fmt.Errorf("want %d columns, got %d", len(cols), len(fields))
	}
	for c, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return cols, fmt.Errorf("column %d: bad number %q", c+1, f)
		}
		cols[c] = v
	}
	return cols, nil
}

func sortedKeys(m map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
