package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality backed by mjibson/go-dsp.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real signal and returns the complex spectrum.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// go-dsp handles all sizes efficiently, including non-power-of-2
	return fft.FFTReal(x)
}

// Magnitude computes the magnitude spectrum of a real signal, keeping only
// the positive-frequency bins (DC through Nyquist).
func (f *FFT) Magnitude(x []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	spectrum := fft.FFTReal(x)
	bins := len(x)/2 + 1
	if bins > len(spectrum) {
		bins = len(spectrum)
	}

	magnitude := make([]float64, bins)
	for i := 0; i < bins; i++ {
		magnitude[i] = cmplx.Abs(spectrum[i])
	}

	return magnitude
}

// MagnitudeTo computes the positive-frequency magnitude spectrum into dst,
// which must have len(x)/2+1 elements. Reusing dst avoids per-frame
// allocation on the real-time path.
func (f *FFT) MagnitudeTo(dst, x []float64) []float64 {
	if len(x) == 0 {
		return dst[:0]
	}

	spectrum := fft.FFTReal(x)
	bins := len(x)/2 + 1
	if bins > len(spectrum) {
		bins = len(spectrum)
	}
	if bins > len(dst) {
		bins = len(dst)
	}

	for i := 0; i < bins; i++ {
		dst[i] = cmplx.Abs(spectrum[i])
	}

	return dst[:bins]
}
