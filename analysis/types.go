// Package analysis implements the real-time music analysis core: feature
// extraction from streaming audio, key/chord/beat estimation with rolling
// state and hysteresis, and fusion of the local estimates with an optional
// remote high-precision result.
package analysis

import (
	"time"

	"github.com/auricle-audio/auricle/algorithms/chroma"
)

// AudioFrame is one block of PCM samples handed to the analysis pipeline.
// Frames are ephemeral: produced and consumed once.
type AudioFrame struct {
	// Samples are normalized to [-1, 1]. Multi-channel audio is interleaved.
	Samples    []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Timestamp  time.Duration `json:"timestamp"` // monotonic, from session start
}

// FeatureVector is the per-window feature set extracted from audio.
type FeatureVector struct {
	// Chroma is the 12-bin pitch-class energy distribution. Values are
	// non-negative and sum to 1, or are all zero for silence.
	Chroma [chroma.NumBins]float64 `json:"chroma"`

	Centroid float64 `json:"centroid"` // Hz
	Rolloff  float64 `json:"rolloff"`  // Hz

	// Spectrum is the magnitude spectrum the vector was derived from; the
	// beat tracker consumes it for frame-to-frame flux.
	Spectrum []float64 `json:"-"`

	Timestamp time.Duration `json:"timestamp"`
}

// Mode distinguishes major from minor keys.
type Mode int

const (
	ModeMajor Mode = iota
	ModeMinor
)

func (m Mode) String() string {
	if m == ModeMinor {
		return "minor"
	}
	return "major"
}

// MusicalKey is an estimated key with its confidence.
type MusicalKey struct {
	Root       int     `json:"root"` // pitch class, 0=C
	Mode       Mode    `json:"mode"`
	Confidence float64 `json:"confidence"` // [0, 1]
}

// Name returns a display name such as "C major" or "F# minor".
func (k MusicalKey) Name() string {
	return chroma.PitchClassName(k.Root) + " " + k.Mode.String()
}

// ChordQuality enumerates the chord types the estimator matches.
type ChordQuality int

const (
	ChordMajor ChordQuality = iota
	ChordMinor
	ChordDiminished
	ChordAugmented
	ChordMajorSeventh
	ChordMinorSeventh
	ChordDominantSeventh
)

func (q ChordQuality) String() string {
	switch q {
	case ChordMajor:
		return "major"
	case ChordMinor:
		return "minor"
	case ChordDiminished:
		return "diminished"
	case ChordAugmented:
		return "augmented"
	case ChordMajorSeventh:
		return "major7"
	case ChordMinorSeventh:
		return "minor7"
	case ChordDominantSeventh:
		return "dominant7"
	default:
		return "unknown"
	}
}

// ChordEvent is one accepted chord detection.
type ChordEvent struct {
	Root       int          `json:"root"` // pitch class, 0=C
	Quality    ChordQuality `json:"quality"`
	Confidence float64      `json:"confidence"`

	// Degree is the scale-degree (Roman numeral) label relative to the key
	// estimate current at detection time, or an absolute name when no key
	// was known.
	Degree string `json:"degree"`

	Timestamp time.Duration `json:"timestamp"`
}

// TrackerState is the beat tracker's lifecycle state within a session.
type TrackerState int

const (
	TrackerIdle TrackerState = iota
	TrackerAccumulating
	TrackerEstimating
	TrackerStable
)

func (s TrackerState) String() string {
	switch s {
	case TrackerIdle:
		return "idle"
	case TrackerAccumulating:
		return "accumulating"
	case TrackerEstimating:
		return "estimating"
	case TrackerStable:
		return "stable"
	default:
		return "unknown"
	}
}

// BeatEstimate is the tracker's current tempo and beat-grid position.
type BeatEstimate struct {
	Tempo      float64 `json:"tempo"`      // BPM, 0 when no estimate
	Confidence float64 `json:"confidence"` // [0, 1]

	Phase           float64 `json:"phase"`            // 0..1 through the current beat
	MeasurePosition float64 `json:"measure_position"` // 0..BeatsPerMeasure
	BeatsPerMeasure int     `json:"beats_per_measure"`

	State TrackerState `json:"state"`
}

// AnalysisResult is the composite snapshot emitted once per processed frame.
type AnalysisResult struct {
	Timestamp time.Duration `json:"timestamp"`

	Key   *MusicalKey  `json:"key,omitempty"`
	Chord *ChordEvent  `json:"chord,omitempty"`
	Beat  BeatEstimate `json:"beat"`

	// ChordHistory is the bounded progression history, most recent last.
	ChordHistory []ChordEvent `json:"chord_history,omitempty"`

	// KeyFromRemote and TempoFromRemote report whether fusion replaced the
	// corresponding local estimate.
	KeyFromRemote   bool `json:"key_from_remote,omitempty"`
	TempoFromRemote bool `json:"tempo_from_remote,omitempty"`
}
