package analysis

import (
	"github.com/auricle-audio/auricle/algorithms/chroma"
	"github.com/auricle-audio/auricle/algorithms/common"
	"github.com/auricle-audio/auricle/config"
)

// Krumhansl-Schmuckler tonal profiles: expected pitch-class prominence for a
// key rooted at index 0. The tonic, third, and fifth dominate; the minor
// profile additionally raises the lowered seventh.
var (
	majorProfile = [chroma.NumBins]float64{
		6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88,
	}
	minorProfile = [chroma.NumBins]float64{
		6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17,
	}
)

// tonicBonusWeight adds score proportional to the candidate tonic's own
// chroma energy, breaking ties between profiles with similar shapes.
const tonicBonusWeight = 0.2

// discountFactor scales the confidence of a below-threshold key accepted
// once enough history has accumulated.
const discountFactor = 0.8

// KeyEstimator aggregates recent chroma vectors into a key estimate with
// hysteresis against flicker. It reads the coordinator's feature history but
// owns only its previously accepted key.
type KeyEstimator struct {
	cfg      config.KeyConfig
	previous *MusicalKey

	weighted [chroma.NumBins]float64 // scratch
}

// NewKeyEstimator creates a key estimator with the given acceptance policy.
func NewKeyEstimator(cfg config.KeyConfig) *KeyEstimator {
	return &KeyEstimator{cfg: cfg}
}

// Estimate returns the current key estimate from the feature history, or nil
// when no candidate clears the acceptance policy. history is most-recent-last.
func (ke *KeyEstimator) Estimate(history []FeatureVector) *MusicalKey {
	aggregate, ok := ke.aggregateChroma(history)
	if !ok {
		return ke.previous
	}

	bestRoot, bestMode, bestScore := 0, ModeMajor, -1.0
	for root := 0; root < chroma.NumBins; root++ {
		if score := profileScore(aggregate, majorProfile, root); score > bestScore {
			bestRoot, bestMode, bestScore = root, ModeMajor, score
		}
		if score := profileScore(aggregate, minorProfile, root); score > bestScore {
			bestRoot, bestMode, bestScore = root, ModeMinor, score
		}
	}

	candidate := ke.accept(bestRoot, bestMode, bestScore, len(history))
	if candidate == nil {
		return ke.previous
	}

	if ke.previous != nil && (candidate.Root != ke.previous.Root || candidate.Mode != ke.previous.Mode) {
		stability := keyStability(*candidate, *ke.previous)
		if stability < 0.5 && bestScore < 2*ke.cfg.ConfidenceThreshold {
			// Weak, unrelated challenger: hold the established key.
			return ke.previous
		}
	}

	ke.previous = candidate
	return candidate
}

// Previous returns the last accepted key, or nil.
func (ke *KeyEstimator) Previous() *MusicalKey {
	return ke.previous
}

// Reset clears the accepted key so hysteresis starts fresh.
func (ke *KeyEstimator) Reset() {
	ke.previous = nil
}

// aggregateChroma sums the most recent window of chroma vectors with linear
// recency weights and normalizes to unit sum. Returns false for an empty or
// silent window.
func (ke *KeyEstimator) aggregateChroma(history []FeatureVector) ([chroma.NumBins]float64, bool) {
	for i := range ke.weighted {
		ke.weighted[i] = 0.0
	}

	window := ke.cfg.WindowFrames
	if window <= 0 || window > len(history) {
		window = len(history)
	}
	if window == 0 {
		return ke.weighted, false
	}

	recent := history[len(history)-window:]
	for i := range recent {
		weight := float64(i+1) / float64(window)
		for pc, v := range recent[i].Chroma {
			ke.weighted[pc] += v * weight
		}
	}

	total := 0.0
	for _, v := range ke.weighted {
		total += v
	}
	if total <= 1e-10 {
		return ke.weighted, false
	}
	for i := range ke.weighted {
		ke.weighted[i] /= total
	}

	return ke.weighted, true
}

// accept applies the acceptance policy: outright above the threshold,
// discounted once history is long enough, otherwise no key.
func (ke *KeyEstimator) accept(root int, mode Mode, score float64, historyLen int) *MusicalKey {
	switch {
	case score >= ke.cfg.ConfidenceThreshold:
		return &MusicalKey{Root: root, Mode: mode, Confidence: clampUnit(score)}
	case historyLen > ke.cfg.MinHistoryDiscount && score > ke.cfg.ConfidenceThreshold/2:
		return &MusicalKey{Root: root, Mode: mode, Confidence: clampUnit(score * discountFactor)}
	default:
		return nil
	}
}

// profileScore is the Pearson correlation between the chroma vector and the
// tonal profile rotated to the candidate root, plus the tonic bonus. A
// flat, keyless chroma correlates near zero with every rotation, which is
// what makes the acceptance threshold meaningful.
func profileScore(chromaVec, profile [chroma.NumBins]float64, root int) float64 {
	var rotated [chroma.NumBins]float64
	for i := 0; i < chroma.NumBins; i++ {
		rotated[i] = profile[(i-root+chroma.NumBins)%chroma.NumBins]
	}

	score := common.Correlation(chromaVec[:], rotated[:])
	return score + tonicBonusWeight*chromaVec[root]
}

// keyStability scores how musically close a candidate key is to the
// established one, for hysteresis:
//
//	1.0  identical
//	0.8  relative major/minor pair
//	0.7  fifth neighbor, same mode
//	0.5  fifth neighbor across modes, or the parallel key
//	0.3  otherwise
func keyStability(candidate, current MusicalKey) float64 {
	if candidate.Root == current.Root && candidate.Mode == current.Mode {
		return 1.0
	}

	if candidate.Mode != current.Mode {
		if isRelativePair(candidate, current) {
			return 0.8
		}
		if candidate.Root == current.Root {
			return 0.5 // parallel key
		}
		if fifthApart(candidate.Root, current.Root) {
			return 0.5
		}
		return 0.3
	}

	if fifthApart(candidate.Root, current.Root) {
		return 0.7
	}
	return 0.3
}

// isRelativePair reports whether the two keys are a relative major/minor
// pair (the minor root three semitones below the major root).
func isRelativePair(a, b MusicalKey) bool {
	major, minor := a, b
	if major.Mode == ModeMinor {
		major, minor = b, a
	}
	if major.Mode != ModeMajor || minor.Mode != ModeMinor {
		return false
	}
	return minor.Root == (major.Root+9)%chroma.NumBins
}

// fifthApart reports whether two roots are neighbors on the circle of fifths.
func fifthApart(a, b int) bool {
	diff := (a - b + chroma.NumBins) % chroma.NumBins
	return diff == 5 || diff == 7
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
