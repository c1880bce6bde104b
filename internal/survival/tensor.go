// Package survival turns pooled underground energies into survival
// probabilities indexed by surface energy, slant depth and underground energy
// bin, and reads and writes the flat text form of that tensor.
package survival

import (
	"fmt"
	"math"
	"sort"

	"mute/internal/config"
	"mute/internal/grid"
)

// Tensor holds P(i, x, u) in row-major order with u innermost. It is not
// modified after Build or Parse returns it.
type Tensor struct {
	ne, nx, nu int
	p          []float64
}

// NewTensor returns a zero tensor.
func NewTensor(ne, nx, nu int) *Tensor {
	return &Tensor{ne: ne, nx: nx, nu: nu, p: make([]float64, ne*nx*nu)}
}

// Shape returns the surface energy, slant depth and bin counts.
func (t *Tensor) Shape() (ne, nx, nu int) { return t.ne, t.nx, t.nu }

// Len returns the number of entries, which is also the row count of the file form.
func (t *Tensor) Len() int { return len(t.p) }

func (t *Tensor) index(i, x, u int) int {
	if i < 0 || i >= t.ne || x < 0 || x >= t.nx || u < 0 || u >= t.nu {
		panic(fmt.Sprintf("survival: entry (%d, %d, %d) outside %dx%dx%d tensor", i, x, u, t.ne, t.nx, t.nu))
	}
	return (i*t.nx+x)*t.nu + u
}

// At returns P(i, x, u).
func (t *Tensor) At(i, x, u int) float64 { return t.p[t.index(i, x, u)] }

// Row returns the probabilities of cell (i, x) over all bins.
func (t *Tensor) Row(i, x int) []float64 {
	k := t.index(i, x, 0)
	return append([]float64(nil), t.p[k:k+t.nu]...)
}

// Sum returns the total survival probability of cell (i, x).
func (t *Tensor) Sum(i, x int) float64 {
	s := 0.0
	for _, v := range t.p[t.index(i, x, 0) : t.index(i, x, 0)+t.nu] {
		s += v
	}
	return s
}

// Build histograms every cell of tbl against edges and divides the counts by
// muonCount. The last bin is closed on the right; values outside the edges
// and NaNs fall in no bin.
func Build(tbl *grid.Table, edges []float64, muonCount int) (*Tensor, error) {
	if len(edges) < 2 {
		return nil, &config.Error{Field: "energy_bins", Reason: "need at least two edges"}
	}
	for k := 1; k < len(edges); k++ {
		if !(edges[k] > edges[k-1]) {
			return nil, &config.Error{Field: "energy_bins", Reason: "edges must be strictly increasing"}
		}
	}
	if muonCount < 1 {
		return nil, &config.Error{Field: "muon_count", Reason: "must be at least 1"}
	}
	ne, nx := tbl.Shape()
	nu := len(edges) - 1
	out := NewTensor(ne, nx, nu)
	n := float64(muonCount)
	counts := make([]int, nu)
	for i := 0; i < ne; i++ {
		for x := 0; x < nx; x++ {
			for u := range counts {
				counts[u] = 0
			}
			for _, v := range tbl.Cell(i, x) {
				if u, ok := bin(edges, v); ok {
					counts[u]++
				}
			}
			base := out.index(i, x, 0)
			for u, c := range counts {
				out.p[base+u] = float64(c) / n
			}
		}
	}
	return out, nil
}

func bin(edges []float64, v float64) (int, bool) {
	last := len(edges) - 1
	if math.IsNaN(v) || v < edges[0] || v > edges[last] {
		return 0, false
	}
	if v == edges[last] {
		return last - 1, true
	}
	return sort.Search(len(edges), func(j int) bool { return edges[j] > v }) - 1, true
}
