// Package remote implements the client side of the high-precision analysis
// service: the gateway contract, an HTTP implementation against the
// upload-then-poll API, and a bounded cache of fetched results keyed by
// source identity.
package remote

import (
	"strings"
	"time"
)

// KeyCandidate is one key estimate from a single remote algorithm.
type KeyCandidate struct {
	Algorithm string  `json:"algorithm"` // e.g. "edma", "traditional", "temperley"
	Key       string  `json:"key"`       // note name, e.g. "C", "F#"
	Scale     string  `json:"scale"`     // "major" or "minor"
	Strength  float64 `json:"strength"`
}

// Result is a remote analysis result for one audio source. It is slower but
// higher precision than the local estimators and is merged into the local
// result by the fusion policy.
type Result struct {
	SourceID string `json:"source_id"`

	// Rhythm
	Tempo           float64 `json:"tempo"`
	TempoConfidence float64 `json:"tempo_confidence"`

	// Key
	Key          string         `json:"key"`
	Scale        string         `json:"scale"`
	KeyStrength  float64        `json:"key_strength"`
	Alternatives []KeyCandidate `json:"alternatives,omitempty"`

	// Overall analysis quality reported by the service.
	QualityScore float64 `json:"quality_score"`

	FetchedAt time.Time `json:"fetched_at"`
}

// noteOffsets maps note letters to pitch classes (C=0).
var noteOffsets = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// RootPitchClass parses the result's key name into a pitch class (0=C ...
// 11=B). Returns -1 if the name is not a recognizable note.
func (r *Result) RootPitchClass() int {
	return ParseNoteName(r.Key)
}

// IsMinor reports whether the remote scale is minor.
func (r *Result) IsMinor() bool {
	return strings.EqualFold(r.Scale, "minor")
}

// ParseNoteName converts a note name such as "C", "F#" or "Bb" to a pitch
// class, or -1 if it cannot be parsed.
func ParseNoteName(name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1
	}

	pc, ok := noteOffsets[name[0]&^0x20] // uppercase the letter
	if !ok {
		return -1
	}

	for _, accidental := range name[1:] {
		switch accidental {
		case '#', '♯':
			pc++
		case 'b', '♭':
			pc--
		default:
			return -1
		}
	}

	return ((pc % 12) + 12) % 12
}
