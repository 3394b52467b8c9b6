package windowing

import (
	"fmt"
	"math"
)

// Hann represents a Hann window function, the standard smooth taper for
// overlapped spectral analysis frames.
type Hann struct {
	size         int
	coefficients []float64
}

// NewHann creates a new periodic Hann window of the given size.
func NewHann(size int) *Hann {
	h := &Hann{size: size}
	h.generate()
	return h
}

// generate creates Hann window coefficients
func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)

	denominator := float64(h.size)
	for i := 0; i < h.size; i++ {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// Apply applies the window to a signal (creates new array)
func (h *Hann) Apply(signal []float64) []float64 {
	if len(signal) != h.size {
		return nil
	}

	windowed := make([]float64, h.size)
	for i := range signal {
		windowed[i] = signal[i] * h.coefficients[i]
	}

	return windowed
}

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := range signal {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// ApplyTo writes the windowed signal into dst, leaving signal untouched.
// dst and signal must both have the window size.
func (h *Hann) ApplyTo(dst, signal []float64) error {
	if len(signal) != h.size || len(dst) != h.size {
		return fmt.Errorf("buffer length mismatch: dst %d, signal %d, window %d", len(dst), len(signal), h.size)
	}

	for i := range signal {
		dst[i] = signal[i] * h.coefficients[i]
	}

	return nil
}

// GetCoefficients returns a copy of the window coefficients
func (h *Hann) GetCoefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// GetSize returns the window size
func (h *Hann) GetSize() int {
	return h.size
}
