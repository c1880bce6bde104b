package config

import "math"

// Reference grids: 91 surface energies from 1e3 to 1e12 MeV, bin edges offset
// by half a step in log10, and 28 slant depths from 0.5 to 14 km.w.e.
const (
	defaultEnergyCount = 91
	defaultDepthCount  = 28
)

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Medium:      MediumRock,
		Density:     DefaultDensity(MediumRock),
		MuonCount:   1000000,
		Energies:    Logspace(3, 12, defaultEnergyCount),
		SlantDepths: Linspace(0.5, 14, defaultDepthCount),
		EnergyBins:  Logspace(2.95, 12.05, defaultEnergyCount+1),
		Output:      true,
		Verbose:     2,
		Directory:   "data",
		Workers:     1,
		Blob:        BlobConfig{Driver: "fs"},
		Catalog:     CatalogConfig{Driver: "sqlite"},
	}
}

// Linspace returns n evenly spaced values over [start, stop].
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// Logspace returns n values spaced evenly in log10 over [10^start, 10^stop].
func Logspace(start, stop float64, n int) []float64 {
	exps := Linspace(start, stop, n)
	for i, e := range exps {
		exps[i] = math.Pow(10, e)
	}
	return exps
}
