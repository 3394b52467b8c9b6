package analysis

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/auricle-audio/auricle/config"
	"github.com/auricle-audio/auricle/logging"
	"github.com/auricle-audio/auricle/observe"
	"github.com/auricle-audio/auricle/remote"
)

const (
	frameQueueSize  = 64
	resultQueueSize = 64
)

// ErrSessionClosed is returned by Feed after Stop.
var ErrSessionClosed = errors.New("analysis: session closed")

// sourceRequest associates a source identity (and the path the remote
// service can analyze) with the session.
type sourceRequest struct {
	id   string
	path string
}

// Session is the concurrency shell around a [Coordinator]. It owns three
// kinds of goroutines under one errgroup:
//
//   - the processing loop, sole owner of all coordinator state
//   - the tempo worker, running autocorrelation searches over onset
//     snapshots handed across capacity-1 channels
//   - fire-and-forget remote fetches, whose results re-enter through a
//     channel and are applied on a later cycle
//
// Audio enters through Feed without blocking the caller; results stream out
// of Results. Concurrent sessions share no mutable state.
type Session struct {
	coord   *Coordinator
	gateway remote.Gateway

	frames  chan AudioFrame
	results chan AnalysisResult
	sources chan sourceRequest

	tempoRequests chan []float64
	tempoResults  chan TempoSearchResult
	remoteResults chan *remote.Result

	// Owned by the processing loop.
	sourcePath   string
	fetchPending bool
	fetchFailed  bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	metrics *observe.Metrics
	logger  logging.Logger
}

// NewSession starts a session with the given configuration. gateway may be
// nil when fusion is disabled.
func NewSession(parent context.Context, cfg *config.Config, gateway remote.Gateway) *Session {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)

	s := &Session{
		coord:         NewCoordinator(cfg),
		gateway:       gateway,
		frames:        make(chan AudioFrame, frameQueueSize),
		results:       make(chan AnalysisResult, resultQueueSize),
		sources:       make(chan sourceRequest, 1),
		tempoRequests: make(chan []float64, 1),
		tempoResults:  make(chan TempoSearchResult, 1),
		remoteResults: make(chan *remote.Result, 4),
		ctx:           ctx,
		cancel:        cancel,
		group:         group,
		metrics:       observe.DefaultMetrics(),
		logger:        logging.WithFields(logging.Fields{"component": "session"}),
	}

	s.metrics.ActiveSessions.Add(ctx, 1)
	group.Go(s.processLoop)
	group.Go(s.tempoWorker)

	return s
}

// Feed offers an audio frame to the session without blocking: a full queue
// drops the frame and counts it as skipped. Returns ErrSessionClosed once
// the session has stopped.
func (s *Session) Feed(frame AudioFrame) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}

	select {
	case s.frames <- frame:
		return nil
	default:
		s.metrics.RecordFrameSkipped(s.ctx, "queue_full")
		return nil
	}
}

// FeedSync queues an audio frame, waiting for space instead of dropping.
// Offline callers (file analysis) use this to get lossless processing; live
// capture paths should use Feed.
func (s *Session) FeedSync(ctx context.Context, frame AudioFrame) error {
	select {
	case s.frames <- frame:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the output stream, one AnalysisResult per processed
// feature frame. The channel closes when the session stops.
func (s *Session) Results() <-chan AnalysisResult {
	return s.results
}

// AnalyzeSource associates sourceID with the session. When fusion is enabled
// the processing loop launches a fire-and-forget remote fetch for the audio
// at sourcePath, and again whenever the cached result has been evicted. The
// local pipeline never waits on a fetch.
func (s *Session) AnalyzeSource(sourceID, sourcePath string) {
	select {
	case s.sources <- sourceRequest{id: sourceID, path: sourcePath}:
	case <-s.ctx.Done():
	}
}

// Stop cancels the session and waits for all goroutines, including any
// in-flight remote fetch, which is released by context cancellation.
func (s *Session) Stop() error {
	s.cancel()
	err := s.group.Wait()
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	return err
}

// processLoop is the single owner of coordinator state.
func (s *Session) processLoop() error {
	defer close(s.results)

	for {
		select {
		case <-s.ctx.Done():
			return nil

		case req := <-s.sources:
			s.coord.SetSource(req.id)
			s.sourcePath = req.path
			s.fetchFailed = false
			s.maybeFetchRemote()

		case result := <-s.tempoResults:
			s.coord.ApplyTempo(result)

		case rem := <-s.remoteResults:
			s.fetchPending = false
			if rem == nil {
				// Failed fetch: hold off until a new source association
				// instead of hammering the service once per frame.
				s.fetchFailed = true
				continue
			}
			s.coord.StoreRemote(s.ctx, rem)

		case frame := <-s.frames:
			for _, result := range s.coord.ProcessFrame(s.ctx, frame) {
				s.emit(result)
			}
			if snapshot, due := s.coord.TempoSnapshotDue(); due {
				select {
				case s.tempoRequests <- snapshot:
				default: // worker busy, skip this snapshot
				}
			}
			// Refetch when the cached result was evicted under pressure.
			s.maybeFetchRemote()
		}
	}
}

// maybeFetchRemote launches a background fetch when fusion wants a result
// the cache cannot supply and none is already in flight.
func (s *Session) maybeFetchRemote() {
	if s.gateway == nil || s.fetchPending || s.fetchFailed || s.sourcePath == "" || !s.coord.NeedsRemote() {
		return
	}

	s.fetchPending = true
	sourceID, sourcePath := s.coord.Source(), s.sourcePath

	s.group.Go(func() error {
		result, err := s.gateway.Analyze(s.ctx, sourceID, sourcePath)
		if err != nil {
			if s.ctx.Err() == nil {
				s.metrics.RemoteFailures.Add(s.ctx, 1)
				s.metrics.RecordRemoteFetch(s.ctx, "failed")
				s.logger.Warn("remote analysis failed", logging.Fields{
					"source_id": sourceID,
					"error":     err.Error(),
				})
			}
			select {
			case s.remoteResults <- nil: // clear fetchPending on the loop
			case <-s.ctx.Done():
			}
			return nil // remote failures never tear the session down
		}

		select {
		case s.remoteResults <- result:
		case <-s.ctx.Done():
		}
		return nil
	})
}

// tempoWorker runs the autocorrelation searches off the processing context.
func (s *Session) tempoWorker() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case snapshot := <-s.tempoRequests:
			result := s.coord.SearchTempo(snapshot)
			if !result.Valid {
				continue
			}
			select {
			case s.tempoResults <- result:
			default: // previous result not yet applied, drop this one
			}
		}
	}
}

// emit delivers a result without stalling the pipeline: when the consumer
// lags, the oldest queued result is discarded in favor of the new one.
func (s *Session) emit(result AnalysisResult) {
	for {
		select {
		case s.results <- result:
			return
		case <-s.ctx.Done():
			return
		default:
		}

		select {
		case <-s.results: // shed the oldest
		default:
		}
	}
}
