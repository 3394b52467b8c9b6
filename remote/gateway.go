package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/auricle-audio/auricle/logging"
)

// ErrAnalysisFailed indicates the remote service accepted the request but
// could not produce a result. It is a distinct failure status: callers keep
// local-only estimation going and must not treat it as fatal.
var ErrAnalysisFailed = errors.New("remote: analysis failed")

// Gateway supplies a slower, higher-precision analysis for a complete audio
// source. Implementations must honor ctx cancellation and must not block
// callers beyond it.
type Gateway interface {
	// Analyze submits the audio source at sourcePath and blocks until the
	// service produces a result, the analysis fails, or ctx is done. The
	// returned result carries sourceID.
	Analyze(ctx context.Context, sourceID, sourcePath string) (*Result, error)
}

// HTTPGateway talks to the analysis service's upload-then-poll HTTP API.
type HTTPGateway struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	logger       logging.Logger
}

// NewHTTPGateway creates a gateway for the service at baseURL. timeout bounds
// each HTTP request; pollInterval spaces the status polls.
func NewHTTPGateway(baseURL string, timeout, pollInterval time.Duration) *HTTPGateway {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &HTTPGateway{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		pollInterval: pollInterval,
		logger:       logging.WithFields(logging.Fields{"component": "remote_gateway"}),
	}
}

// uploadResponse is the service's answer to POST /upload-audio.
type uploadResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// statusResponse is the service's answer to GET /analysis-status/{task_id}.
type statusResponse struct {
	Status   string           `json:"status"`
	Progress int              `json:"progress"`
	Result   *analysisPayload `json:"result"`
	Error    string           `json:"error"`
}

// analysisPayload mirrors the service's comprehensive analysis result.
type analysisPayload struct {
	RhythmAnalysis struct {
		BPM          float64 `json:"bpm"`
		Confidence   float64 `json:"confidence"`
		QualityScore float64 `json:"quality_score"`
	} `json:"rhythm_analysis"`
	KeyAnalysis struct {
		Key          string                  `json:"key"`
		Scale        string                  `json:"scale"`
		Strength     float64                 `json:"strength"`
		Alternatives map[string]keyAlternate `json:"alternatives"`
	} `json:"key_analysis"`
	OverallQuality float64 `json:"overall_quality"`
}

type keyAlternate struct {
	Key      string  `json:"key"`
	Scale    string  `json:"scale"`
	Strength float64 `json:"strength"`
}

// Analyze implements Gateway.
func (g *HTTPGateway) Analyze(ctx context.Context, sourceID, sourcePath string) (*Result, error) {
	taskID, err := g.upload(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("remote analysis submitted", logging.Fields{
		"source_id": sourceID,
		"task_id":   taskID,
	})

	payload, err := g.poll(ctx, taskID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SourceID:        sourceID,
		Tempo:           payload.RhythmAnalysis.BPM,
		TempoConfidence: payload.RhythmAnalysis.Confidence,
		Key:             payload.KeyAnalysis.Key,
		Scale:           payload.KeyAnalysis.Scale,
		KeyStrength:     payload.KeyAnalysis.Strength,
		QualityScore:    payload.OverallQuality,
		FetchedAt:       time.Now(),
	}
	for algorithm, alt := range payload.KeyAnalysis.Alternatives {
		result.Alternatives = append(result.Alternatives, KeyCandidate{
			Algorithm: algorithm,
			Key:       alt.Key,
			Scale:     alt.Scale,
			Strength:  alt.Strength,
		})
	}

	return result, nil
}

// upload posts the audio file and returns the service task ID.
func (g *HTTPGateway) upload(ctx context.Context, sourcePath string) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("remote: open source %q: %w", sourcePath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(sourcePath))
	if err != nil {
		return "", fmt.Errorf("remote: build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("remote: read source: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("remote: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/upload-audio", &body)
	if err != nil {
		return "", fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote: upload returned status %d", resp.StatusCode)
	}

	var up uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return "", fmt.Errorf("remote: decode upload response: %w", err)
	}
	if up.TaskID == "" {
		return "", fmt.Errorf("remote: upload response missing task_id")
	}

	return up.TaskID, nil
}

// poll repeatedly queries the task status until completion, failure, or ctx
// cancellation.
func (g *HTTPGateway) poll(ctx context.Context, taskID string) (*analysisPayload, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		status, err := g.fetchStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case "completed":
			if status.Result == nil {
				return nil, fmt.Errorf("%w: completed without result", ErrAnalysisFailed)
			}
			return status.Result, nil
		case "failed":
			return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, status.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *HTTPGateway) fetchStatus(ctx context.Context, taskID string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/analysis-status/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build status request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote: status returned %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("remote: decode status response: %w", err)
	}

	return &status, nil
}
