// Package grid models the raw result table of a sweep: one list of underground
// energies per (surface energy, slant depth) cell, stored row-major.
package grid

import "fmt"

// Table holds the surviving underground energies of every cell. Cells only grow;
// existing entries are never rewritten.
type Table struct {
	energies int
	depths   int
	cells    [][]float64
}

// NewTable returns an empty table with energies x depths cells.
func NewTable(energies, depths int) *Table {
	if energies < 0 || depths < 0 {
		panic(fmt.Sprintf("grid: negative table shape %dx%d", energies, depths))
	}
	cells := make([][]float64, energies*depths)
	for k := range cells {
		cells[k] = []float64{}
	}
	return &Table{energies: energies, depths: depths, cells: cells}
}

// Shape returns the number of surface energies and slant depths.
func (t *Table) Shape() (energies, depths int) {
	return t.energies, t.depths
}

// Cells returns the number of cells.
func (t *Table) Cells() int {
	return len(t.cells)
}

// Index maps (i, x) to the row-major position used by shard files.
func (t *Table) Index(i, x int) int {
	if i < 0 || i >= t.energies || x < 0 || x >= t.depths {
		panic(fmt.Sprintf("grid: cell (%d, %d) outside %dx%d table", i, x, t.energies, t.depths))
	}
	return i*t.depths + x
}

// Cell returns the energies recorded for (i, x). The slice must not be modified.
func (t *Table) Cell(i, x int) []float64 {
	return t.cells[t.Index(i, x)]
}

// At returns the cell at row-major position k.
func (t *Table) At(k int) []float64 {
	return t.cells[k]
}

// Extend appends values to cell (i, x).
func (t *Table) Extend(i, x int, values ...float64) {
	k := t.Index(i, x)
	t.cells[k] = append(t.cells[k], values...)
}

// Len returns the number of survivors recorded in (i, x).
func (t *Table) Len(i, x int) int {
	return len(t.Cell(i, x))
}

// Total returns the number of survivors across all cells.
func (t *Table) Total() int {
	n := 0
	for _, c := range t.cells {
		n += len(c)
	}
	return n
}

// Merge concatenates every cell of o onto the matching cell of t. Shapes must agree.
func (t *Table) Merge(o *Table) error {
	if o.energies != t.energies || o.depths != t.depths {
		return fmt.Errorf("grid: cannot merge %dx%d table into %dx%d", o.energies, o.depths, t.energies, t.depths)
	}
	for k, c := range o.cells {
		t.cells[k] = append(t.cells[k], c...)
	}
	return nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{energies: t.energies, depths: t.depths, cells: make([][]float64, len(t.cells))}
	for k, c := range t.cells {
		out.cells[k] = append([]float64{}, c...)
	}
	return out
}
