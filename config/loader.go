package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Load reads the YAML configuration file at path, applies defaults for
// omitted sections, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Feature.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("feature.sample_rate %d must be positive", cfg.Feature.SampleRate))
	}
	if cfg.Feature.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("feature.window_size %d must be positive", cfg.Feature.WindowSize))
	}
	if cfg.Feature.HopSize <= 0 {
		errs = append(errs, fmt.Errorf("feature.hop_size %d must be positive", cfg.Feature.HopSize))
	}
	if cfg.Feature.HopSize > cfg.Feature.WindowSize {
		errs = append(errs, fmt.Errorf("feature.hop_size %d exceeds feature.window_size %d; windows must overlap or abut",
			cfg.Feature.HopSize, cfg.Feature.WindowSize))
	}
	if cfg.Feature.TuningFreq <= 0 {
		errs = append(errs, fmt.Errorf("feature.tuning_freq %.1f must be positive", cfg.Feature.TuningFreq))
	}
	if cfg.Feature.Rolloff <= 0 || cfg.Feature.Rolloff > 1 {
		errs = append(errs, fmt.Errorf("feature.rolloff %.2f is out of range (0, 1]", cfg.Feature.Rolloff))
	}

	if cfg.Key.ConfidenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("key.confidence_threshold %.3f must be positive", cfg.Key.ConfidenceThreshold))
	}
	if cfg.Key.WindowFrames <= 0 {
		errs = append(errs, fmt.Errorf("key.window_frames %d must be positive", cfg.Key.WindowFrames))
	}

	if cfg.Chord.ConfidenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("chord.confidence_threshold %.3f must be positive", cfg.Chord.ConfidenceThreshold))
	}
	if cfg.Chord.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("chord.history_size %d must be positive", cfg.Chord.HistorySize))
	}

	if cfg.Beat.MinBPM <= 0 || cfg.Beat.MaxBPM <= cfg.Beat.MinBPM {
		errs = append(errs, fmt.Errorf("beat tempo range [%.0f, %.0f] is invalid", cfg.Beat.MinBPM, cfg.Beat.MaxBPM))
	}
	if cfg.Beat.MinOnsetCount < 2 {
		errs = append(errs, fmt.Errorf("beat.min_onset_count %d must be at least 2", cfg.Beat.MinOnsetCount))
	}
	if cfg.Beat.OnsetHistorySize < cfg.Beat.MinOnsetCount {
		errs = append(errs, fmt.Errorf("beat.onset_history_size %d is smaller than beat.min_onset_count %d",
			cfg.Beat.OnsetHistorySize, cfg.Beat.MinOnsetCount))
	}
	if cfg.Beat.BeatsPerMeasure <= 0 {
		errs = append(errs, fmt.Errorf("beat.beats_per_measure %d must be positive", cfg.Beat.BeatsPerMeasure))
	}

	if cfg.Fusion.Enabled {
		if cfg.Fusion.CacheCapacity <= 0 {
			errs = append(errs, fmt.Errorf("fusion.cache_capacity %d must be positive when fusion is enabled", cfg.Fusion.CacheCapacity))
		}
		if cfg.Remote.BaseURL == "" {
			errs = append(errs, fmt.Errorf("remote.base_url is required when fusion is enabled"))
		}
	}

	if cfg.FeatureHistorySize < cfg.Key.WindowFrames {
		errs = append(errs, fmt.Errorf("feature_history_size %d is smaller than key.window_frames %d",
			cfg.FeatureHistorySize, cfg.Key.WindowFrames))
	}

	if cfg.LogLevel != "" && !slices.Contains(validLogLevels, cfg.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	return errors.Join(errs...)
}
