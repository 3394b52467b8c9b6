package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/auricle-audio/auricle/config"
)

func sineSamples(freq float64, sampleRate, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return samples
}

func TestFeatureExtractorSineTone(t *testing.T) {
	cfg := config.Default().Feature
	fe := NewFeatureExtractor(cfg)

	frame := AudioFrame{
		Samples:    sineSamples(440.0, cfg.SampleRate, 2*cfg.WindowSize),
		SampleRate: cfg.SampleRate,
		Channels:   1,
	}

	var vectors []FeatureVector
	fe.Append(frame, func(fv FeatureVector) {
		vectors = append(vectors, fv)
	})

	wantVectors := (2*cfg.WindowSize-cfg.WindowSize)/cfg.HopSize + 1
	if len(vectors) != wantVectors {
		t.Fatalf("got %d feature vectors, want %d", len(vectors), wantVectors)
	}

	for _, fv := range vectors {
		peak := 0
		sum := 0.0
		for pc, v := range fv.Chroma {
			if v < 0 {
				t.Errorf("negative chroma value %v", v)
			}
			sum += v
			if v > fv.Chroma[peak] {
				peak = pc
			}
		}

		// 440 Hz is pitch class A (9); allow the neighboring class.
		diff := (peak - 9 + 12) % 12
		if diff != 0 && diff != 1 && diff != 11 {
			t.Errorf("chroma peak at pitch class %d, want 9 +/- 1", peak)
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("chroma sum = %v, want 1", sum)
		}

		if fv.Centroid < 200 || fv.Centroid > 2000 {
			t.Errorf("centroid = %v Hz, want near 440", fv.Centroid)
		}
		if fv.Rolloff <= 0 {
			t.Errorf("rolloff = %v, want > 0", fv.Rolloff)
		}
		if len(fv.Spectrum) != cfg.WindowSize/2+1 {
			t.Errorf("spectrum has %d bins, want %d", len(fv.Spectrum), cfg.WindowSize/2+1)
		}
	}
}

func TestFeatureExtractorSilence(t *testing.T) {
	cfg := config.Default().Feature
	fe := NewFeatureExtractor(cfg)

	frame := AudioFrame{
		Samples:    make([]float64, cfg.WindowSize),
		SampleRate: cfg.SampleRate,
		Channels:   1,
	}

	var vectors []FeatureVector
	fe.Append(frame, func(fv FeatureVector) {
		vectors = append(vectors, fv)
	})

	if len(vectors) != 1 {
		t.Fatalf("got %d feature vectors, want 1", len(vectors))
	}
	for pc, v := range vectors[0].Chroma {
		if v != 0 {
			t.Errorf("chroma[%d] = %v for silence, want 0", pc, v)
		}
	}
	if vectors[0].Centroid != 0 {
		t.Errorf("centroid = %v for silence, want 0", vectors[0].Centroid)
	}
}

func TestFeatureExtractorDownmix(t *testing.T) {
	cfg := config.Default().Feature
	fe := NewFeatureExtractor(cfg)

	// Interleave the same sine on both channels; downmix must reproduce it.
	mono := sineSamples(440.0, cfg.SampleRate, cfg.WindowSize)
	stereo := make([]float64, 2*len(mono))
	for i, v := range mono {
		stereo[2*i] = v
		stereo[2*i+1] = v
	}

	var vectors []FeatureVector
	fe.Append(AudioFrame{
		Samples:    stereo,
		SampleRate: cfg.SampleRate,
		Channels:   2,
		Timestamp:  50 * time.Millisecond,
	}, func(fv FeatureVector) {
		vectors = append(vectors, fv)
	})

	if len(vectors) != 1 {
		t.Fatalf("got %d feature vectors, want 1", len(vectors))
	}
	if vectors[0].Timestamp != 50*time.Millisecond {
		t.Errorf("timestamp = %v, want 50ms", vectors[0].Timestamp)
	}

	peak := 0
	for pc, v := range vectors[0].Chroma {
		if v > vectors[0].Chroma[peak] {
			peak = pc
		}
	}
	diff := (peak - 9 + 12) % 12
	if diff != 0 && diff != 1 && diff != 11 {
		t.Errorf("chroma peak at pitch class %d after downmix, want 9 +/- 1", peak)
	}
}

func TestFeatureExtractorAccumulatesAcrossAppends(t *testing.T) {
	cfg := config.Default().Feature
	fe := NewFeatureExtractor(cfg)

	samples := sineSamples(440.0, cfg.SampleRate, cfg.WindowSize)
	emitted := 0

	// Half a window at a time: the first append must not emit.
	fe.Append(AudioFrame{Samples: samples[:cfg.WindowSize/2], Channels: 1}, func(FeatureVector) { emitted++ })
	if emitted != 0 {
		t.Fatalf("emitted %d vectors from a partial window", emitted)
	}
	fe.Append(AudioFrame{Samples: samples[cfg.WindowSize/2:], Channels: 1}, func(FeatureVector) { emitted++ })
	if emitted != 1 {
		t.Fatalf("emitted %d vectors after completing the window, want 1", emitted)
	}
}
