package spectral

// Flux computes streaming spectral flux between consecutive magnitude
// spectra: the sum of positive bin-to-bin increases, which serves as an
// onset-strength proxy. Bins in the upper half of the spectrum can be
// weighted more heavily to emphasize percussive transients.
type Flux struct {
	highBandWeight float64
}

// NewFlux creates a flux calculator. highBandWeight multiplies increases in
// the upper half of the spectrum; 1.0 disables the emphasis.
func NewFlux(highBandWeight float64) *Flux {
	if highBandWeight <= 0 {
		highBandWeight = 1.0
	}
	return &Flux{highBandWeight: highBandWeight}
}

// Compute returns the weighted positive spectral flux from prev to cur.
// Returns 0 if either spectrum is empty.
func (f *Flux) Compute(prev, cur []float64) float64 {
	n := len(prev)
	if len(cur) < n {
		n = len(cur)
	}
	if n == 0 {
		return 0.0
	}

	half := n / 2
	flux := 0.0
	for i := 0; i < n; i++ {
		diff := cur[i] - prev[i]
		if diff <= 0 { // Only energy increases
			continue
		}
		if i >= half {
			flux += diff * f.highBandWeight
		} else {
			flux += diff
		}
	}

	return flux
}
