package chroma

import (
	"math"
)

// NumBins is the number of pitch classes in a chroma vector.
const NumBins = 12

// pitchClassNames are the chroma bin labels, C first.
var pitchClassNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClassName returns the name of pitch class pc (0=C ... 11=B).
func PitchClassName(pc int) string {
	if pc < 0 || pc >= NumBins {
		return "?"
	}
	return pitchClassNames[pc]
}

// Folding folds a magnitude spectrum into a 12-bin pitch-class energy
// distribution using a logarithmic frequency-to-pitch mapping anchored to a
// reference tuning frequency. Lower octaves are weighted more heavily than
// higher ones so that fundamentals dominate their harmonics.
//
// The resulting chroma vector is normalized to unit sum, or left all-zero
// for silent input.
type Folding struct {
	sampleRate int
	tuningFreq float64 // A4 frequency
	minFreq    float64
	maxFreq    float64

	// Per-bin mapping, pre-calculated per spectrum size.
	binClass  []int     // pitch class per FFT bin, -1 outside [minFreq, maxFreq]
	binWeight []float64 // octave weight per FFT bin
}

// NewFolding creates a chroma folder for the given sample rate and A4 tuning.
func NewFolding(sampleRate int, tuningFreq, minFreq, maxFreq float64) *Folding {
	if tuningFreq <= 0 {
		tuningFreq = 440.0
	}
	return &Folding{
		sampleRate: sampleRate,
		tuningFreq: tuningFreq,
		minFreq:    minFreq,
		maxFreq:    maxFreq,
	}
}

// Fold computes the normalized chroma vector for a magnitude spectrum into
// dst, which must have NumBins elements. windowSize is the FFT size the
// spectrum came from. Returns dst.
func (f *Folding) Fold(dst, spectrum []float64, windowSize int) []float64 {
	for i := range dst {
		dst[i] = 0.0
	}
	if len(spectrum) == 0 || windowSize <= 0 {
		return dst
	}

	f.ensureMapping(len(spectrum), windowSize)

	for i, mag := range spectrum {
		pc := f.binClass[i]
		if pc < 0 {
			continue
		}
		// Energy, not amplitude, weighted by octave position.
		dst[pc] += mag * mag * f.binWeight[i]
	}

	total := 0.0
	for _, e := range dst {
		total += e
	}
	if total > 1e-10 {
		for i := range dst {
			dst[i] /= total
		}
	} else {
		// Silence stays all-zero rather than being normalized into noise.
		for i := range dst {
			dst[i] = 0.0
		}
	}

	return dst
}

// ensureMapping pre-calculates the bin-to-pitch-class map and octave weights.
func (f *Folding) ensureMapping(numBins, windowSize int) {
	if len(f.binClass) == numBins {
		return
	}

	f.binClass = make([]int, numBins)
	f.binWeight = make([]float64, numBins)

	freqResolution := float64(f.sampleRate) / float64(windowSize)
	minOctave := int(math.Floor(f.midiNote(f.minFreq) / NumBins))

	for i := 0; i < numBins; i++ {
		frequency := float64(i) * freqResolution
		if frequency < f.minFreq || frequency > f.maxFreq {
			f.binClass[i] = -1
			continue
		}

		note := f.midiNote(frequency)
		f.binClass[i] = ((int(math.Round(note)) % NumBins) + NumBins) % NumBins

		// Octaves above the lowest folded octave decay in weight, so a
		// fundamental outweighs its upper harmonics.
		octave := int(math.Floor(note/NumBins)) - minOctave
		if octave < 0 {
			octave = 0
		}
		f.binWeight[i] = 1.0 / (1.0 + float64(octave))
	}
}

// midiNote converts frequency to a MIDI note number (A4 = 69).
func (f *Folding) midiNote(frequency float64) float64 {
	if frequency <= 0 {
		return 0
	}
	return 69.0 + 12.0*math.Log2(frequency/f.tuningFreq)
}
