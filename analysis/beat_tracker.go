package analysis

import (
	"math"
	"time"

	"github.com/auricle-audio/auricle/algorithms/common"
	"github.com/auricle-audio/auricle/algorithms/spectral"
	"github.com/auricle-audio/auricle/config"
)

// highBandWeight is the extra emphasis flux gives to the upper half of the
// spectrum, where percussive transients live.
const highBandWeight = 1.5

// Tempo blending weights: responsive while still converging, smooth once the
// tracker reports a stable estimate.
const (
	blendConverging = 0.6
	blendStable     = 0.2
)

// stableConfidence is the confidence above which the tracker enters the
// Stable state.
const stableConfidence = 0.5

// noOnsetDecay shrinks confidence each frame in which no onset registers.
const noOnsetDecay = 0.95

// gridTolerance is the fraction of a beat period within which an onset peak
// counts as aligned to the beat grid.
const gridTolerance = 0.15

// bpmSearchStep is the coarse tempo-search resolution in BPM.
const bpmSearchStep = 2.0

// TempoSearchResult is the outcome of one autocorrelation tempo search.
type TempoSearchResult struct {
	BPM         float64 `json:"bpm"`
	Correlation float64 `json:"correlation"`
	Valid       bool    `json:"valid"`
}

// BeatTracker derives onset strengths from consecutive feature vectors and
// maintains a blended tempo estimate with beat phase and measure position.
//
// The autocorrelation search itself ([BeatTracker.SearchTempo]) is a pure
// function over an onset-history snapshot so it can run on a background
// worker; everything else mutates tracker state and must stay on the
// coordinator's processing context.
type BeatTracker struct {
	cfg       config.BeatConfig
	frameRate float64

	flux         *spectral.Flux
	prevSpectrum []float64
	rawFlux      []float64 // bounded raw flux history, background level source
	onsets       []float64 // bounded onset-strength history, oldest first

	tempo      float64
	confidence float64
	state      TrackerState

	lastTimestamp time.Duration
}

// NewBeatTracker creates a beat tracker. frameRate is the feature frame rate
// in frames per second (sample rate / hop size).
func NewBeatTracker(cfg config.BeatConfig, frameRate float64) *BeatTracker {
	return &BeatTracker{
		cfg:       cfg,
		frameRate: frameRate,
		flux:      spectral.NewFlux(highBandWeight),
		onsets:    make([]float64, 0, cfg.OnsetHistorySize),
		state:     TrackerIdle,
	}
}

// ProcessFrame ingests one feature vector: computes its onset strength
// against the adaptive background level, appends it to the bounded history,
// and advances the state machine.
func (bt *BeatTracker) ProcessFrame(fv FeatureVector) {
	bt.lastTimestamp = fv.Timestamp

	strength := 0.0
	if bt.prevSpectrum != nil {
		raw := bt.flux.Compute(bt.prevSpectrum, fv.Spectrum)
		background := common.Mean(bt.rawFlux) * bt.cfg.Sensitivity
		if raw > background {
			strength = raw - background
		}

		if len(bt.rawFlux) >= bt.cfg.OnsetHistorySize {
			bt.rawFlux = bt.rawFlux[:copy(bt.rawFlux, bt.rawFlux[1:])]
		}
		bt.rawFlux = append(bt.rawFlux, raw)
	}

	if cap(bt.prevSpectrum) < len(fv.Spectrum) {
		bt.prevSpectrum = make([]float64, len(fv.Spectrum))
	}
	bt.prevSpectrum = bt.prevSpectrum[:len(fv.Spectrum)]
	copy(bt.prevSpectrum, fv.Spectrum)

	if len(bt.onsets) >= bt.cfg.OnsetHistorySize {
		bt.onsets = bt.onsets[:copy(bt.onsets, bt.onsets[1:])]
	}
	bt.onsets = append(bt.onsets, strength)

	if strength == 0 {
		bt.confidence *= noOnsetDecay
	}

	bt.advanceState()
}

// OnsetSnapshot copies the current onset history for a background tempo
// search.
func (bt *BeatTracker) OnsetSnapshot() []float64 {
	snapshot := make([]float64, len(bt.onsets))
	copy(snapshot, bt.onsets)
	return snapshot
}

// SearchTempo runs the autocorrelation tempo search over an onset-history
// snapshot. It is a pure function of its input and safe to call off the
// processing context. The result is invalid when fewer than the minimum
// onset samples registered or no lag correlates above the floor.
func (bt *BeatTracker) SearchTempo(onsets []float64) TempoSearchResult {
	peaks := 0
	for _, v := range onsets {
		if v > 0 {
			peaks++
		}
	}
	if peaks < bt.cfg.MinOnsetCount {
		return TempoSearchResult{}
	}

	const correlationFloor = 0.1

	// A 3-point moving average makes the correlation tolerant of onsets
	// landing one frame off the exact lag multiple.
	smoothed := smooth3(onsets)

	best := TempoSearchResult{}
	bestLag := 0
	lastLag := -1
	for bpm := bt.cfg.MinBPM; bpm <= bt.cfg.MaxBPM; bpm += bpmSearchStep {
		lag := int(math.Round(bt.frameRate * 60.0 / bpm))
		if lag == lastLag || lag < 1 || lag >= len(smoothed) {
			continue
		}
		lastLag = lag

		r := common.Correlation(smoothed[:len(smoothed)-lag], smoothed[lag:])
		if r > best.Correlation {
			best = TempoSearchResult{BPM: bpm, Correlation: r, Valid: true}
			bestLag = lag
		}
	}

	if best.Correlation < correlationFloor {
		return TempoSearchResult{}
	}

	// Autocorrelation favors the double period on strongly periodic input.
	// When the half lag correlates nearly as well, take the faster tempo.
	if half := bestLag / 2; half >= 1 {
		doubled := bt.frameRate * 60.0 / float64(half)
		r := common.Correlation(smoothed[:len(smoothed)-half], smoothed[half:])
		if doubled <= bt.cfg.MaxBPM && r >= 0.75*best.Correlation {
			best = TempoSearchResult{BPM: doubled, Correlation: r, Valid: true}
		}
	}

	return best
}

// smooth3 returns a 3-point moving average of x.
func smooth3(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		sum, n := x[i], 1.0
		if i > 0 {
			sum += x[i-1]
			n++
		}
		if i < len(x)-1 {
			sum += x[i+1]
			n++
		}
		out[i] = sum / n
	}
	return out
}

// ApplyTempo blends a completed search into the running estimate: adopted
// outright when no estimate exists, otherwise a weighted moving average that
// smooths harder once the tracker is stable. Invalid results are ignored.
func (bt *BeatTracker) ApplyTempo(result TempoSearchResult) {
	if !result.Valid {
		return
	}

	bpm := common.Clamp(result.BPM, bt.cfg.MinBPM, bt.cfg.MaxBPM)
	weight := blendConverging
	if bt.state == TrackerStable {
		weight = blendStable
	}

	if bt.tempo == 0 {
		bt.tempo = bpm
	} else {
		bt.tempo = (1-weight)*bt.tempo + weight*bpm
	}

	alignment := bt.gridAlignment()
	bt.confidence = (1-weight)*bt.confidence + weight*alignment
	bt.advanceState()
}

// gridAlignment returns the fraction of onset peaks that land within the
// tolerance of the beat grid implied by the current tempo, anchored at the
// first peak in the history.
func (bt *BeatTracker) gridAlignment() float64 {
	if bt.tempo <= 0 {
		return 0
	}
	period := bt.frameRate * 60.0 / bt.tempo
	if period <= 0 {
		return 0
	}

	anchor := -1
	total, aligned := 0, 0
	for i, v := range bt.onsets {
		if v <= 0 {
			continue
		}
		if anchor < 0 {
			anchor = i
		}
		total++

		offset := math.Mod(float64(i-anchor), period)
		dist := math.Min(offset, period-offset)
		if dist <= gridTolerance*period {
			aligned++
		}
	}

	if total == 0 {
		return 0
	}
	return float64(aligned) / float64(total)
}

// Estimate returns the current beat estimate. Phase and measure position are
// derived from the last frame timestamp and the current tempo.
func (bt *BeatTracker) Estimate() BeatEstimate {
	est := BeatEstimate{
		Tempo:           bt.tempo,
		Confidence:      common.Clamp(bt.confidence, 0, 1),
		BeatsPerMeasure: bt.cfg.BeatsPerMeasure,
		State:           bt.state,
	}

	if bt.tempo > 0 {
		beats := bt.lastTimestamp.Seconds() * bt.tempo / 60.0
		est.Phase = beats - math.Floor(beats)
		if bt.cfg.BeatsPerMeasure > 0 {
			est.MeasurePosition = math.Mod(beats, float64(bt.cfg.BeatsPerMeasure))
		}
	}

	return est
}

// Reset returns the tracker to Idle with empty history.
func (bt *BeatTracker) Reset() {
	bt.prevSpectrum = nil
	bt.rawFlux = bt.rawFlux[:0]
	bt.onsets = bt.onsets[:0]
	bt.tempo = 0
	bt.confidence = 0
	bt.state = TrackerIdle
	bt.lastTimestamp = 0
}

// advanceState moves the tracker through Idle → Accumulating → Estimating →
// Stable as history and confidence grow.
func (bt *BeatTracker) advanceState() {
	peaks := 0
	for _, v := range bt.onsets {
		if v > 0 {
			peaks++
		}
	}

	switch {
	case len(bt.onsets) == 0:
		bt.state = TrackerIdle
	case peaks < bt.cfg.MinOnsetCount:
		bt.state = TrackerAccumulating
	case bt.confidence > stableConfidence:
		bt.state = TrackerStable
	default:
		bt.state = TrackerEstimating
	}
}
