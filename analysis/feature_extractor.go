package analysis

import (
	"github.com/auricle-audio/auricle/algorithms/chroma"
	"github.com/auricle-audio/auricle/algorithms/common"
	"github.com/auricle-audio/auricle/algorithms/spectral"
	"github.com/auricle-audio/auricle/algorithms/windowing"
	"github.com/auricle-audio/auricle/config"
)

// FeatureExtractor turns streaming mono samples into per-window feature
// vectors. Samples accumulate in an overlapping frame buffer; each complete
// window is tapered, transformed, and folded into chroma plus spectral
// descriptors.
//
// The extractor keeps no cross-window musical state and allocates only the
// per-vector spectrum copy, so Append is safe to drive from a capture
// callback.
type FeatureExtractor struct {
	cfg config.FeatureConfig

	frames      *common.FrameBuffer
	window      *windowing.Hann
	fft         *spectral.FFT
	descriptors *spectral.Descriptors
	folding     *chroma.Folding

	windowed  []float64 // scratch, window size
	magnitude []float64 // scratch, window/2+1 bins
}

// NewFeatureExtractor creates an extractor for the given feature parameters.
func NewFeatureExtractor(cfg config.FeatureConfig) *FeatureExtractor {
	return &FeatureExtractor{
		cfg:         cfg,
		frames:      common.NewFrameBuffer(cfg.WindowSize, cfg.HopSize),
		window:      windowing.NewHann(cfg.WindowSize),
		fft:         spectral.NewFFT(),
		descriptors: spectral.NewDescriptors(cfg.SampleRate),
		folding:     chroma.NewFolding(cfg.SampleRate, cfg.TuningFreq, cfg.MinFreq, cfg.MaxFreq),
		windowed:    make([]float64, cfg.WindowSize),
		magnitude:   make([]float64, cfg.WindowSize/2+1),
	}
}

// Append feeds mono samples in and invokes emit once per completed analysis
// window. The FeatureVector handed to emit owns its spectrum copy and is safe
// to retain.
func (fe *FeatureExtractor) Append(frame AudioFrame, emit func(FeatureVector)) {
	samples := monoSamples(frame)
	if len(samples) == 0 {
		return
	}

	fe.frames.Append(samples, func(windowFrame []float64) {
		emit(fe.extract(windowFrame, frame))
	})
}

// extract computes one feature vector from a complete window.
func (fe *FeatureExtractor) extract(windowFrame []float64, frame AudioFrame) FeatureVector {
	fv := FeatureVector{Timestamp: frame.Timestamp}

	if err := fe.window.ApplyTo(fe.windowed, windowFrame); err != nil {
		return fv
	}

	magnitude := fe.fft.MagnitudeTo(fe.magnitude, fe.windowed)
	common.SanitizeSlice(magnitude)

	chromaVec := fe.folding.Fold(fv.Chroma[:], magnitude, fe.cfg.WindowSize)
	common.SanitizeSlice(chromaVec)

	fv.Centroid = common.Sanitize(fe.descriptors.Centroid(magnitude))
	fv.Rolloff = common.Sanitize(fe.descriptors.Rolloff(magnitude, fe.cfg.Rolloff))

	fv.Spectrum = make([]float64, len(magnitude))
	copy(fv.Spectrum, magnitude)

	return fv
}

// Buffered returns the number of samples awaiting a complete window.
func (fe *FeatureExtractor) Buffered() int {
	return fe.frames.Buffered()
}

// Reset discards accumulated samples.
func (fe *FeatureExtractor) Reset() {
	fe.frames.Reset()
}

// monoSamples returns the frame's samples downmixed to mono. Single-channel
// frames pass through without copying.
func monoSamples(frame AudioFrame) []float64 {
	if frame.Channels <= 1 {
		return frame.Samples
	}

	ch := frame.Channels
	mono := make([]float64, len(frame.Samples)/ch)
	for i := range mono {
		sum := 0.0
		for c := 0; c < ch; c++ {
			sum += frame.Samples[i*ch+c]
		}
		mono[i] = sum / float64(ch)
	}
	return mono
}
