package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/auricle-audio/auricle/config"
)

const testFrameRate = 44100.0 / 1024.0

// clickTrainVectors synthesizes feature vectors whose spectra spike at the
// given BPM: silence everywhere except one-frame broadband bursts.
func clickTrainVectors(bpm float64, numFrames int) []FeatureVector {
	period := testFrameRate * 60.0 / bpm
	clicks := map[int]bool{}
	for k := 0; ; k++ {
		frame := 5 + int(math.Round(float64(k)*period))
		if frame >= numFrames {
			break
		}
		clicks[frame] = true
	}

	vectors := make([]FeatureVector, numFrames)
	for i := range vectors {
		spectrum := make([]float64, 32)
		if clicks[i] {
			for b := range spectrum {
				spectrum[b] = 10.0
			}
		}
		vectors[i] = FeatureVector{
			Spectrum:  spectrum,
			Timestamp: time.Duration(float64(i) / testFrameRate * float64(time.Second)),
		}
	}
	return vectors
}

func newTestTracker() *BeatTracker {
	cfg := config.Default().Beat
	// A longer onset window keeps several beats in view at the test frame rate.
	cfg.OnsetHistorySize = 100
	return NewBeatTracker(cfg, testFrameRate)
}

func TestBeatTrackerConvergesOnClickTrain(t *testing.T) {
	bt := newTestTracker()

	for i, fv := range clickTrainVectors(120.0, 240) {
		bt.ProcessFrame(fv)
		if (i+1)%tempoSearchInterval == 0 {
			bt.ApplyTempo(bt.SearchTempo(bt.OnsetSnapshot()))
		}
	}

	est := bt.Estimate()
	if est.Tempo < 115 || est.Tempo > 125 {
		t.Errorf("tempo = %v BPM, want 120 +/- 5", est.Tempo)
	}
	if est.Confidence <= 0.3 {
		t.Errorf("confidence = %v, want > 0.3", est.Confidence)
	}
	if est.State != TrackerEstimating && est.State != TrackerStable {
		t.Errorf("state = %v, want estimating or stable", est.State)
	}
	if est.BeatsPerMeasure != 4 {
		t.Errorf("beats per measure = %d, want 4", est.BeatsPerMeasure)
	}
}

func TestBeatTrackerSilenceGivesNoEstimate(t *testing.T) {
	bt := newTestTracker()

	for i := 0; i < 100; i++ {
		bt.ProcessFrame(FeatureVector{
			Spectrum:  make([]float64, 32),
			Timestamp: time.Duration(i) * 23 * time.Millisecond,
		})
	}

	est := bt.Estimate()
	if est.Tempo != 0 {
		t.Errorf("tempo for silence = %v, want 0", est.Tempo)
	}
	if result := bt.SearchTempo(bt.OnsetSnapshot()); result.Valid {
		t.Errorf("tempo search on silence = %+v, want invalid", result)
	}
}

func TestBeatTrackerStates(t *testing.T) {
	bt := newTestTracker()

	if got := bt.Estimate().State; got != TrackerIdle {
		t.Fatalf("initial state = %v, want idle", got)
	}

	bt.ProcessFrame(FeatureVector{Spectrum: make([]float64, 32)})
	if got := bt.Estimate().State; got != TrackerAccumulating {
		t.Fatalf("state after first frame = %v, want accumulating", got)
	}

	for _, fv := range clickTrainVectors(120.0, 120) {
		bt.ProcessFrame(fv)
	}
	if got := bt.Estimate().State; got != TrackerEstimating {
		t.Fatalf("state with onsets but no confidence = %v, want estimating", got)
	}

	bt.Reset()
	if got := bt.Estimate().State; got != TrackerIdle {
		t.Fatalf("state after reset = %v, want idle", got)
	}
	if bt.Estimate().Tempo != 0 {
		t.Fatal("tempo should clear on reset")
	}
}

func TestBeatTrackerPhaseAndMeasure(t *testing.T) {
	bt := newTestTracker()
	bt.tempo = 120.0
	bt.lastTimestamp = 1250 * time.Millisecond // 2.5 beats at 120 BPM

	est := bt.Estimate()
	if math.Abs(est.Phase-0.5) > 1e-9 {
		t.Errorf("phase = %v, want 0.5", est.Phase)
	}
	if math.Abs(est.MeasurePosition-2.5) > 1e-9 {
		t.Errorf("measure position = %v, want 2.5", est.MeasurePosition)
	}
}

func TestBeatTrackerConfidenceDecaysWithoutOnsets(t *testing.T) {
	bt := newTestTracker()
	bt.confidence = 1.0

	for j := 0; j < 20; j++ {
		bt.ProcessFrame(FeatureVector{Spectrum: make([]float64, 32)})
	}

	want := math.Pow(noOnsetDecay, 20)
	if math.Abs(bt.confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", bt.confidence, want)
	}
}

func TestBeatTrackerBlending(t *testing.T) {
	bt := newTestTracker()

	// First valid result is adopted outright.
	bt.ApplyTempo(TempoSearchResult{BPM: 100, Correlation: 0.9, Valid: true})
	if bt.tempo != 100 {
		t.Fatalf("tempo = %v, want 100 adopted outright", bt.tempo)
	}

	// Later results blend instead of replacing.
	bt.ApplyTempo(TempoSearchResult{BPM: 140, Correlation: 0.9, Valid: true})
	if bt.tempo <= 100 || bt.tempo >= 140 {
		t.Errorf("tempo = %v, want blended between 100 and 140", bt.tempo)
	}

	// Invalid results are ignored.
	before := bt.tempo
	bt.ApplyTempo(TempoSearchResult{})
	if bt.tempo != before {
		t.Errorf("tempo changed on invalid result: %v -> %v", before, bt.tempo)
	}
}
