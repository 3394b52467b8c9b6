package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHTTPGatewayAnalyze(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload-audio":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("upload is not multipart: %v", err)
			}
			if _, _, err := r.FormFile("file"); err != nil {
				t.Errorf("missing file part: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]string{
				"task_id": "task-1",
				"status":  "processing",
				"message": "accepted",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/analysis-status/task-1":
			polls++
			if polls < 2 {
				json.NewEncoder(w).Encode(map[string]any{
					"status":   "processing",
					"progress": 40,
				})
				return
			}
			fmt.Fprint(w, `{
				"status": "completed",
				"progress": 100,
				"result": {
					"rhythm_analysis": {"bpm": 128.4, "confidence": 0.91, "quality_score": 0.88},
					"key_analysis": {
						"key": "F#", "scale": "minor", "strength": 0.82,
						"alternatives": {
							"temperley": {"key": "A", "scale": "major", "strength": 0.74}
						}
					},
					"overall_quality": 0.85
				}
			}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, 5*time.Second, 10*time.Millisecond)
	result, err := g.Analyze(context.Background(), "source-1", writeTempAudio(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if result.SourceID != "source-1" {
		t.Errorf("SourceID = %q, want source-1", result.SourceID)
	}
	if result.Tempo != 128.4 || result.TempoConfidence != 0.91 {
		t.Errorf("tempo = %v/%v, want 128.4/0.91", result.Tempo, result.TempoConfidence)
	}
	if result.Key != "F#" || !result.IsMinor() || result.KeyStrength != 0.82 {
		t.Errorf("key = %s %s %v, want F# minor 0.82", result.Key, result.Scale, result.KeyStrength)
	}
	if result.RootPitchClass() != 6 {
		t.Errorf("RootPitchClass = %d, want 6", result.RootPitchClass())
	}
	if result.QualityScore != 0.85 {
		t.Errorf("QualityScore = %v, want 0.85", result.QualityScore)
	}
	if len(result.Alternatives) != 1 || result.Alternatives[0].Algorithm != "temperley" {
		t.Errorf("unexpected alternatives: %+v", result.Alternatives)
	}
	if polls < 2 {
		t.Errorf("expected at least 2 polls, got %d", polls)
	}
}

func TestHTTPGatewayAnalysisFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/upload-audio" {
			json.NewEncoder(w).Encode(map[string]string{"task_id": "task-2"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "failed",
			"error":  "unsupported codec",
		})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, 5*time.Second, 10*time.Millisecond)
	_, err := g.Analyze(context.Background(), "source-2", writeTempAudio(t))
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
}

func TestHTTPGatewayCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/upload-audio" {
			json.NewEncoder(w).Encode(map[string]string{"task_id": "task-3"})
			return
		}
		// Never completes.
		json.NewEncoder(w).Encode(map[string]any{"status": "processing", "progress": 10})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	g := NewHTTPGateway(srv.URL, 5*time.Second, 10*time.Millisecond)
	_, err := g.Analyze(ctx, "source-3", writeTempAudio(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Put(&Result{SourceID: "a"})
	c.Put(&Result{SourceID: "b"})
	c.Put(&Result{SourceID: "c"}) // evicts "a"

	if c.Get("a") != nil {
		t.Error("oldest entry should have been evicted")
	}
	if c.Get("b") == nil || c.Get("c") == nil {
		t.Error("newer entries should survive eviction")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCacheRefreshKeepsPosition(t *testing.T) {
	c := NewCache(2)
	c.Put(&Result{SourceID: "a", Tempo: 100})
	c.Put(&Result{SourceID: "b"})
	c.Put(&Result{SourceID: "a", Tempo: 120}) // refresh, no eviction

	if got := c.Get("a"); got == nil || got.Tempo != 120 {
		t.Errorf("refreshed entry = %+v, want Tempo 120", got)
	}

	c.Put(&Result{SourceID: "c"}) // "a" is still oldest
	if c.Get("a") != nil {
		t.Error("refreshed entry keeps original eviction position")
	}
}

func TestCacheIgnoresInvalid(t *testing.T) {
	c := NewCache(2)
	c.Put(nil)
	c.Put(&Result{})
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestParseNoteName(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"C", 0},
		{"c", 0},
		{"F#", 6},
		{"F♯", 6},
		{"Bb", 10},
		{"B♭", 10},
		{"Cb", 11},
		{"B#", 0},
		{"A", 9},
		{"", -1},
		{"H", -1},
		{"C minor", -1},
	}
	for _, c := range cases {
		if got := ParseNoteName(c.name); got != c.want {
			t.Errorf("ParseNoteName(%q) = %d, want %d", c.name, got, c.want)
		}
	}
}
