package analysis

import (
	"context"

	"github.com/auricle-audio/auricle/config"
	"github.com/auricle-audio/auricle/logging"
	"github.com/auricle-audio/auricle/observe"
	"github.com/auricle-audio/auricle/remote"
)

// tempoSearchInterval is how many processed frames pass between tempo-search
// snapshots offered to the background worker.
const tempoSearchInterval = 4

// Coordinator owns every piece of rolling analysis state: the feature
// history, the chord progression, the estimators, and the remote result
// cache. All of its methods must be called from a single processing context;
// the Session provides that context, and heavier work (tempo search, remote
// fetches) reaches the coordinator only through value snapshots and message
// passing.
type Coordinator struct {
	cfg *config.Config

	extractor *FeatureExtractor
	key       *KeyEstimator
	chord     *ChordEstimator
	beat      *BeatTracker

	features     []FeatureVector
	chordHistory []ChordEvent

	cache    *remote.Cache
	sourceID string

	frameCount int64

	metrics *observe.Metrics
	logger  logging.Logger
}

// NewCoordinator creates a coordinator and its estimators from cfg.
func NewCoordinator(cfg *config.Config) *Coordinator {
	return &Coordinator{
		cfg:          cfg,
		extractor:    NewFeatureExtractor(cfg.Feature),
		key:          NewKeyEstimator(cfg.Key),
		chord:        NewChordEstimator(cfg.Chord),
		beat:         NewBeatTracker(cfg.Beat, cfg.FrameRate()),
		features:     make([]FeatureVector, 0, cfg.FeatureHistorySize),
		chordHistory: make([]ChordEvent, 0, cfg.Chord.HistorySize),
		cache:        remote.NewCache(cfg.Fusion.CacheCapacity),
		metrics:      observe.DefaultMetrics(),
		logger:       logging.WithFields(logging.Fields{"component": "coordinator"}),
	}
}

// SetSource associates a source identity with the session for remote fusion.
func (c *Coordinator) SetSource(sourceID string) {
	c.sourceID = sourceID
}

// Source returns the current source identity, or "".
func (c *Coordinator) Source() string {
	return c.sourceID
}

// ProcessFrame runs one audio frame through the pipeline and returns one
// AnalysisResult per feature vector the frame completed (zero or more,
// depending on how the hop boundary falls). Malformed frames are skipped and
// counted, never fatal.
func (c *Coordinator) ProcessFrame(ctx context.Context, frame AudioFrame) []AnalysisResult {
	if len(frame.Samples) == 0 {
		c.metrics.RecordFrameSkipped(ctx, "empty")
		return nil
	}
	if frame.SampleRate > 0 && frame.SampleRate != c.cfg.Feature.SampleRate {
		c.metrics.RecordFrameSkipped(ctx, "sample_rate_mismatch")
		c.logger.Warn("dropping frame with unexpected sample rate", logging.Fields{
			"got":  frame.SampleRate,
			"want": c.cfg.Feature.SampleRate,
		})
		return nil
	}

	c.frameCount++
	c.metrics.FramesProcessed.Add(ctx, 1)

	var results []AnalysisResult
	c.extractor.Append(frame, func(fv FeatureVector) {
		results = append(results, c.analyze(fv))
	})
	return results
}

// analyze drives the estimators for one feature vector and assembles the
// fused result.
func (c *Coordinator) analyze(fv FeatureVector) AnalysisResult {
	c.pushFeature(fv)

	key := c.key.Estimate(c.features)

	chordEvent := c.chord.Estimate(fv, key)
	if chordEvent != nil {
		c.pushChord(*chordEvent)
	}

	c.beat.ProcessFrame(fv)

	// The history buffer is mutated in place on eviction, so results carry
	// their own copy.
	result := AnalysisResult{
		Timestamp:    fv.Timestamp,
		Key:          key,
		Chord:        chordEvent,
		Beat:         c.beat.Estimate(),
		ChordHistory: append([]ChordEvent(nil), c.chordHistory...),
	}

	if c.cfg.Fusion.Enabled && c.sourceID != "" {
		result = FuseRemote(result, c.cache.Get(c.sourceID), c.cfg.Fusion.QualityThreshold)
	}

	return result
}

// TempoSnapshotDue reports whether this cycle should hand the onset history
// to the tempo worker, and returns the snapshot if so.
func (c *Coordinator) TempoSnapshotDue() ([]float64, bool) {
	if c.frameCount == 0 || c.frameCount%tempoSearchInterval != 0 {
		return nil, false
	}
	return c.beat.OnsetSnapshot(), true
}

// SearchTempo exposes the pure tempo search for the background worker.
func (c *Coordinator) SearchTempo(onsets []float64) TempoSearchResult {
	return c.beat.SearchTempo(onsets)
}

// ApplyTempo folds a completed background search into the tracker.
func (c *Coordinator) ApplyTempo(result TempoSearchResult) {
	c.beat.ApplyTempo(result)
}

// NeedsRemote reports whether a remote fetch should be started for the
// current source: fusion enabled, a source associated, and no cached result.
func (c *Coordinator) NeedsRemote() bool {
	return c.cfg.Fusion.Enabled && c.sourceID != "" && c.cache.Get(c.sourceID) == nil
}

// StoreRemote caches a fetched remote result. Results for a source other
// than the current one are discarded as stale.
func (c *Coordinator) StoreRemote(ctx context.Context, result *remote.Result) {
	if result == nil {
		return
	}
	if result.SourceID != c.sourceID {
		c.metrics.RecordRemoteFetch(ctx, "stale")
		c.logger.Debug("discarding stale remote result", logging.Fields{
			"result_source":  result.SourceID,
			"current_source": c.sourceID,
		})
		return
	}

	c.cache.Put(result)
	c.metrics.RecordRemoteFetch(ctx, "cached")
	c.logger.Info("remote analysis cached", logging.Fields{
		"source_id": result.SourceID,
		"tempo":     result.Tempo,
		"key":       result.Key + " " + result.Scale,
		"quality":   result.QualityScore,
	})
}

// ClearCache drops all cached remote results.
func (c *Coordinator) ClearCache() {
	c.cache.Clear()
}

// Reset returns the coordinator to a fresh-session state: empty histories,
// idle tracker, no accepted key. The remote cache survives a reset only if
// keep is true.
func (c *Coordinator) Reset(keepCache bool) {
	c.extractor.Reset()
	c.key.Reset()
	c.beat.Reset()
	c.features = c.features[:0]
	c.chordHistory = c.chordHistory[:0]
	c.frameCount = 0
	if !keepCache {
		c.cache.Clear()
	}
}

// pushFeature appends to the bounded feature history, evicting oldest first.
func (c *Coordinator) pushFeature(fv FeatureVector) {
	if len(c.features) >= c.cfg.FeatureHistorySize {
		c.features = c.features[:copy(c.features, c.features[1:])]
	}
	c.features = append(c.features, fv)
}

// pushChord appends to the bounded progression history, evicting oldest first.
func (c *Coordinator) pushChord(event ChordEvent) {
	if len(c.chordHistory) >= c.cfg.Chord.HistorySize {
		c.chordHistory = c.chordHistory[:copy(c.chordHistory, c.chordHistory[1:])]
	}
	c.chordHistory = append(c.chordHistory, event)
}
