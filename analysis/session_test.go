package analysis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/auricle-audio/auricle/config"
	"github.com/auricle-audio/auricle/remote"
)

// fakeGateway returns a canned result and counts calls.
type fakeGateway struct {
	calls  atomic.Int64
	result remote.Result
}

func (g *fakeGateway) Analyze(ctx context.Context, sourceID, sourcePath string) (*remote.Result, error) {
	g.calls.Add(1)
	out := g.result
	out.SourceID = sourceID
	return &out, nil
}

func collectResults(t *testing.T, s *Session, n int, timeout time.Duration) []AnalysisResult {
	t.Helper()
	deadline := time.After(timeout)
	var results []AnalysisResult
	for len(results) < n {
		select {
		case r, ok := <-s.Results():
			if !ok {
				t.Fatalf("results channel closed after %d of %d results", len(results), n)
			}
			results = append(results, r)
		case <-deadline:
			t.Fatalf("timed out with %d of %d results", len(results), n)
		}
	}
	return results
}

func TestSessionStreamsResults(t *testing.T) {
	cfg := config.Default()
	s := NewSession(context.Background(), cfg, nil)
	defer s.Stop()

	samples := sineSamples(440, cfg.Feature.SampleRate, 8*cfg.Feature.WindowSize)
	go func() {
		for off := 0; off+cfg.Feature.HopSize <= len(samples); off += cfg.Feature.HopSize {
			_ = s.Feed(AudioFrame{
				Samples:    samples[off : off+cfg.Feature.HopSize],
				SampleRate: cfg.Feature.SampleRate,
				Channels:   1,
			})
			time.Sleep(time.Millisecond)
		}
	}()

	results := collectResults(t, s, 4, 5*time.Second)
	for _, r := range results {
		if r.Beat.BeatsPerMeasure != cfg.Beat.BeatsPerMeasure {
			t.Errorf("beats per measure = %d, want %d", r.Beat.BeatsPerMeasure, cfg.Beat.BeatsPerMeasure)
		}
	}
}

func TestSessionRemoteFusion(t *testing.T) {
	cfg := config.Default()
	cfg.Fusion.Enabled = true

	gw := &fakeGateway{result: remote.Result{
		Tempo: 128, TempoConfidence: 0.95,
		Key: "G", Scale: "major", KeyStrength: 0.9,
	}}
	s := NewSession(context.Background(), cfg, gw)
	defer s.Stop()

	s.AnalyzeSource("song-a", "/tmp/song-a.wav")

	samples := sineSamples(440, cfg.Feature.SampleRate, 16*cfg.Feature.WindowSize)
	go func() {
		for off := 0; off+cfg.Feature.HopSize <= len(samples); off += cfg.Feature.HopSize {
			if err := s.Feed(AudioFrame{
				Samples:    samples[off : off+cfg.Feature.HopSize],
				SampleRate: cfg.Feature.SampleRate,
				Channels:   1,
			}); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-s.Results():
			if !ok {
				t.Fatal("results channel closed before a fused result arrived")
			}
			if r.TempoFromRemote {
				if r.Beat.Tempo != 128 {
					t.Errorf("fused tempo = %v, want 128", r.Beat.Tempo)
				}
				if got := gw.calls.Load(); got != 1 {
					t.Errorf("gateway calls = %d, want 1", got)
				}
				return
			}
		case <-deadline:
			t.Fatal("no fused result within the deadline")
		}
	}
}

func TestSessionFeedAfterStop(t *testing.T) {
	s := NewSession(context.Background(), config.Default(), nil)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Feed(AudioFrame{Samples: []float64{0.1}}); err != ErrSessionClosed {
		t.Errorf("Feed after Stop = %v, want ErrSessionClosed", err)
	}
}

func TestSessionStopReleasesSlowRemote(t *testing.T) {
	cfg := config.Default()
	cfg.Fusion.Enabled = true

	s := NewSession(context.Background(), cfg, blockingGateway{})
	s.AnalyzeSource("song-a", "/tmp/song-a.wav")

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an in-flight remote fetch")
	}
}

// blockingGateway hangs until the context is cancelled.
type blockingGateway struct{}

func (blockingGateway) Analyze(ctx context.Context, sourceID, sourcePath string) (*remote.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSessionsAreIndependent(t *testing.T) {
	cfg := config.Default()
	a := NewSession(context.Background(), cfg, nil)
	b := NewSession(context.Background(), cfg, nil)
	defer a.Stop()
	defer b.Stop()

	samples := sineSamples(440, cfg.Feature.SampleRate, 2*cfg.Feature.WindowSize)
	go func() {
		for off := 0; off+cfg.Feature.HopSize <= len(samples); off += cfg.Feature.HopSize {
			_ = a.Feed(AudioFrame{Samples: samples[off : off+cfg.Feature.HopSize], Channels: 1})
			time.Sleep(time.Millisecond)
		}
	}()

	collectResults(t, a, 2, 5*time.Second)

	// The idle session saw nothing.
	select {
	case r := <-b.Results():
		t.Errorf("idle session emitted %+v", r)
	default:
	}
}
