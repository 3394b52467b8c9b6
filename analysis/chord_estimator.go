package analysis

import (
	"github.com/auricle-audio/auricle/algorithms/chroma"
	"github.com/auricle-audio/auricle/config"
)

// chordTemplate defines one chord quality as intervals above the root with
// per-tone weights. The root and lower chord tones carry more weight than
// sevenths so inversions and voicing noise do not dominate the match.
type chordTemplate struct {
	quality   ChordQuality
	intervals []int
	weights   []float64
}

var chordTemplates = []chordTemplate{
	{ChordMajor, []int{0, 4, 7}, []float64{1.0, 0.8, 0.8}},
	{ChordMinor, []int{0, 3, 7}, []float64{1.0, 0.8, 0.8}},
	{ChordDiminished, []int{0, 3, 6}, []float64{1.0, 0.8, 0.8}},
	{ChordAugmented, []int{0, 4, 8}, []float64{1.0, 0.8, 0.8}},
	{ChordMajorSeventh, []int{0, 4, 7, 11}, []float64{1.0, 0.8, 0.8, 0.6}},
	{ChordMinorSeventh, []int{0, 3, 7, 10}, []float64{1.0, 0.8, 0.8, 0.6}},
	{ChordDominantSeventh, []int{0, 4, 7, 10}, []float64{1.0, 0.8, 0.8, 0.6}},
}

// outOfChordPenalty scales the energy found outside the chord tones that is
// subtracted from a candidate's score.
const outOfChordPenalty = 0.3

// seventhPresenceFloor is the minimum chroma share the seventh degree itself
// must carry for a seventh template to be eligible. Weaker energy there is
// leakage from the parent triad, not a voiced chord tone.
const seventhPresenceFloor = 0.1

// majorScaleSteps are the diatonic pitch-class offsets of the major scale,
// used for scale-degree labeling.
var majorScaleSteps = [7]int{0, 2, 4, 5, 7, 9, 11}

var romanNumerals = [7]string{"I", "II", "III", "IV", "V", "VI", "VII"}

// ChordEstimator matches single feature vectors against chord templates.
// Chords change faster than keys, so no rolling window is used. The
// estimator is stateless; the progression history is owned by the
// coordinator.
type ChordEstimator struct {
	cfg config.ChordConfig
}

// NewChordEstimator creates a chord estimator with the given threshold.
func NewChordEstimator(cfg config.ChordConfig) *ChordEstimator {
	return &ChordEstimator{cfg: cfg}
}

// Estimate matches fv's chroma against every root and quality and returns
// the best match above the confidence threshold, labeled relative to key
// (which may be nil), or nil when nothing qualifies.
func (ce *ChordEstimator) Estimate(fv FeatureVector, key *MusicalKey) *ChordEvent {
	bestRoot, bestScore := 0, -1.0
	var bestTemplate *chordTemplate

	for root := 0; root < chroma.NumBins; root++ {
		for i := range chordTemplates {
			tpl := &chordTemplates[i]
			if score := chordScore(fv.Chroma, tpl, root); score > bestScore {
				bestRoot, bestScore, bestTemplate = root, score, tpl
			}
		}
	}

	if bestTemplate == nil || bestScore < ce.cfg.ConfidenceThreshold {
		return nil
	}

	event := &ChordEvent{
		Root:       bestRoot,
		Quality:    bestTemplate.quality,
		Confidence: clampUnit(bestScore),
		Timestamp:  fv.Timestamp,
	}
	event.Degree = DegreeLabel(bestRoot, bestTemplate.quality, key)
	return event
}

// chordScore scores a chroma vector against a template at the given root:
// weighted in-chord energy minus a penalty for energy in pitch classes
// outside the chord. Chroma is unit-sum, so scores land in [-penalty, 1].
// Seventh templates whose seventh tone falls below the presence floor score
// -1 and never beat a triad.
func chordScore(chromaVec [chroma.NumBins]float64, tpl *chordTemplate, root int) float64 {
	if len(tpl.intervals) > 3 {
		seventh := (root + tpl.intervals[3]) % chroma.NumBins
		if chromaVec[seventh] < seventhPresenceFloor {
			return -1
		}
	}

	var inChord [chroma.NumBins]bool

	score := 0.0
	for i, interval := range tpl.intervals {
		pc := (root + interval) % chroma.NumBins
		inChord[pc] = true
		score += chromaVec[pc] * tpl.weights[i]
	}

	outEnergy := 0.0
	for pc, v := range chromaVec {
		if !inChord[pc] {
			outEnergy += v
		}
	}

	return score - outOfChordPenalty*outEnergy
}

// DegreeLabel renders a chord as a scale-degree (Roman numeral) label
// relative to key: nearest diatonic step against the major-scale table,
// lower case for minor and diminished qualities, suffixes for sevenths and
// altered triads. Without a key the label falls back to the absolute pitch
// name.
func DegreeLabel(root int, quality ChordQuality, key *MusicalKey) string {
	if key == nil {
		suffix := qualitySuffix(quality)
		if quality == ChordMinor || quality == ChordMinorSeventh {
			suffix = "m" + suffix
		}
		return chroma.PitchClassName(root) + suffix
	}

	offset := (root - key.Root + chroma.NumBins) % chroma.NumBins

	// Nearest diatonic step. The major-scale table is used for both modes;
	// minor-key numerals therefore follow the parallel major, not
	// natural-minor convention.
	step := 0
	bestDist := chroma.NumBins
	for i, stepOffset := range majorScaleSteps {
		dist := offset - stepOffset
		if dist < 0 {
			dist = -dist
		}
		if chroma.NumBins-dist < dist {
			dist = chroma.NumBins - dist
		}
		if dist < bestDist {
			step, bestDist = i, dist
		}
	}

	numeral := romanNumerals[step]
	if quality == ChordMinor || quality == ChordDiminished || quality == ChordMinorSeventh {
		numeral = lowerRoman(numeral)
	}
	return numeral + qualitySuffix(quality)
}

func qualitySuffix(quality ChordQuality) string {
	switch quality {
	case ChordDiminished:
		return "°"
	case ChordAugmented:
		return "+"
	case ChordMajorSeventh:
		return "maj7"
	case ChordMinorSeventh, ChordDominantSeventh:
		return "7"
	default:
		return ""
	}
}

func lowerRoman(numeral string) string {
	out := make([]byte, len(numeral))
	for i := 0; i < len(numeral); i++ {
		out[i] = numeral[i] | 0x20
	}
	return string(out)
}
