package analysis

import (
	"testing"

	"github.com/auricle-audio/auricle/remote"
)

func TestFuseRemoteTempoOverride(t *testing.T) {
	local := AnalysisResult{
		Beat: BeatEstimate{Tempo: 118, Confidence: 0.4, Phase: 0.25, MeasurePosition: 1.25},
	}
	rem := &remote.Result{Tempo: 124, TempoConfidence: 0.9}

	fused := FuseRemote(local, rem, 0.6)
	if fused.Beat.Tempo != 124 || !fused.TempoFromRemote {
		t.Errorf("tempo = %v (remote=%v), want remote 124", fused.Beat.Tempo, fused.TempoFromRemote)
	}
	if fused.Beat.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", fused.Beat.Confidence)
	}
	// Phase and measure tracking stay local.
	if fused.Beat.Phase != 0.25 || fused.Beat.MeasurePosition != 1.25 {
		t.Errorf("phase/measure changed: %v/%v", fused.Beat.Phase, fused.Beat.MeasurePosition)
	}
}

func TestFuseRemoteTempoKeptLocal(t *testing.T) {
	local := AnalysisResult{Beat: BeatEstimate{Tempo: 118, Confidence: 0.8}}
	rem := &remote.Result{Tempo: 124, TempoConfidence: 0.5}

	fused := FuseRemote(local, rem, 0.6)
	if fused.Beat.Tempo != 118 || fused.TempoFromRemote {
		t.Errorf("tempo = %v (remote=%v), want local 118", fused.Beat.Tempo, fused.TempoFromRemote)
	}
}

func TestFuseRemoteKeyQualityGate(t *testing.T) {
	local := AnalysisResult{Key: &MusicalKey{Root: 0, Mode: ModeMajor, Confidence: 0.5}}

	// Above the quality threshold: remote key wins.
	strong := &remote.Result{Key: "F#", Scale: "minor", KeyStrength: 0.82}
	fused := FuseRemote(local, strong, 0.6)
	if fused.Key == nil || fused.Key.Root != 6 || fused.Key.Mode != ModeMinor || !fused.KeyFromRemote {
		t.Errorf("fused key = %+v, want F# minor from remote", fused.Key)
	}

	// Below the threshold: local key retained.
	weak := &remote.Result{Key: "F#", Scale: "minor", KeyStrength: 0.4}
	fused = FuseRemote(local, weak, 0.6)
	if fused.Key == nil || fused.Key.Root != 0 || fused.KeyFromRemote {
		t.Errorf("fused key = %+v, want local C major", fused.Key)
	}
}

func TestFuseRemoteUnparseableKey(t *testing.T) {
	local := AnalysisResult{Key: &MusicalKey{Root: 0, Mode: ModeMajor}}
	rem := &remote.Result{Key: "??", KeyStrength: 0.95}

	fused := FuseRemote(local, rem, 0.6)
	if fused.KeyFromRemote || fused.Key.Root != 0 {
		t.Errorf("fused key = %+v, want local retained for unparseable remote key", fused.Key)
	}
}

func TestFuseRemoteChordAlwaysLocal(t *testing.T) {
	chord := &ChordEvent{Root: 7, Quality: ChordMajor, Degree: "V"}
	local := AnalysisResult{Chord: chord}
	rem := &remote.Result{Key: "C", KeyStrength: 0.9, Tempo: 120, TempoConfidence: 0.9}

	fused := FuseRemote(local, rem, 0.6)
	if fused.Chord != chord {
		t.Error("chord must always stay local")
	}
}

func TestFuseRemoteNil(t *testing.T) {
	local := AnalysisResult{Beat: BeatEstimate{Tempo: 100}}
	if fused := FuseRemote(local, nil, 0.6); fused.Beat.Tempo != 100 || fused.TempoFromRemote {
		t.Errorf("fusing nil remote changed the result: %+v", fused)
	}
}
