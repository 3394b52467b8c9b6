package spectral

// Descriptors computes scalar spectral descriptors (centroid, rolloff) from
// a magnitude spectrum. Frequency bins are pre-calculated once per spectrum
// size so per-frame computation stays allocation-free.
type Descriptors struct {
	sampleRate int
	freqBins   []float64
}

// NewDescriptors creates a descriptor calculator for the given sample rate.
func NewDescriptors(sampleRate int) *Descriptors {
	return &Descriptors{sampleRate: sampleRate}
}

// Centroid calculates the spectral centroid (energy-weighted mean frequency)
// of a magnitude spectrum. Returns 0 for empty or silent spectra.
func (d *Descriptors) Centroid(spectrum []float64) float64 {
	if len(spectrum) == 0 {
		return 0.0
	}
	d.ensureFreqBins(len(spectrum))

	numerator := 0.0
	denominator := 0.0
	for i, mag := range spectrum {
		numerator += d.freqBins[i] * mag
		denominator += mag
	}

	if denominator == 0 {
		return 0.0
	}
	return numerator / denominator
}

// Rolloff calculates the frequency below which the given fraction of the
// cumulative spectral energy lies. threshold is typically 0.85.
func (d *Descriptors) Rolloff(spectrum []float64, threshold float64) float64 {
	if len(spectrum) == 0 {
		return 0.0
	}
	d.ensureFreqBins(len(spectrum))

	totalEnergy := 0.0
	for _, mag := range spectrum {
		totalEnergy += mag * mag
	}
	if totalEnergy == 0 {
		return 0.0
	}

	targetEnergy := threshold * totalEnergy
	cumulativeEnergy := 0.0
	for i, mag := range spectrum {
		cumulativeEnergy += mag * mag
		if cumulativeEnergy >= targetEnergy {
			return d.freqBins[i]
		}
	}

	return d.freqBins[len(d.freqBins)-1]
}

// FrequencyBins returns a copy of the frequency axis for the last spectrum size.
func (d *Descriptors) FrequencyBins() []float64 {
	bins := make([]float64, len(d.freqBins))
	copy(bins, d.freqBins)
	return bins
}

func (d *Descriptors) ensureFreqBins(numBins int) {
	if len(d.freqBins) == numBins {
		return
	}

	d.freqBins = make([]float64, numBins)
	for i := 0; i < numBins; i++ {
		d.freqBins[i] = float64(i) * float64(d.sampleRate) / float64((numBins-1)*2)
	}
}
