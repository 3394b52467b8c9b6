package analysis

import (
	"github.com/auricle-audio/auricle/remote"
)

// FuseRemote merges a remote high-precision result into a locally assembled
// result under a quality-gated policy:
//
//   - the remote key replaces the local key only when its reported strength
//     exceeds the quality threshold and its key name parses
//   - the remote tempo replaces the local tempo only when the remote
//     confidence exceeds the local tempo confidence
//   - chord detection and beat phase/measure tracking always stay local;
//     the remote path cannot supply per-frame timing
//
// The two producers run at independent paces; this function is the single
// place their outputs meet.
func FuseRemote(local AnalysisResult, rem *remote.Result, qualityThreshold float64) AnalysisResult {
	if rem == nil {
		return local
	}

	if rem.KeyStrength > qualityThreshold {
		if root := rem.RootPitchClass(); root >= 0 {
			mode := ModeMajor
			if rem.IsMinor() {
				mode = ModeMinor
			}
			local.Key = &MusicalKey{
				Root:       root,
				Mode:       mode,
				Confidence: clampUnit(rem.KeyStrength),
			}
			local.KeyFromRemote = true
		}
	}

	if rem.TempoConfidence > local.Beat.Confidence && rem.Tempo > 0 {
		local.Beat.Tempo = rem.Tempo
		local.Beat.Confidence = clampUnit(rem.TempoConfidence)
		local.TempoFromRemote = true
	}

	return local
}
