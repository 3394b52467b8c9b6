// Package config holds the tunable parameters of the analysis core and the
// YAML loader for them. Every knob the estimators consume lives here so that
// a session is fully described by one Config value.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "500ms" or "2m", or from plain nanosecond integers.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// FeatureConfig controls the per-frame feature extraction stage.
type FeatureConfig struct {
	SampleRate int     `yaml:"sample_rate"` // Hz
	WindowSize int     `yaml:"window_size"` // samples per analysis window
	HopSize    int     `yaml:"hop_size"`    // samples advanced between windows
	TuningFreq float64 `yaml:"tuning_freq"` // A4 reference frequency in Hz
	MinFreq    float64 `yaml:"min_freq"`    // lowest frequency folded into chroma
	MaxFreq    float64 `yaml:"max_freq"`    // highest frequency folded into chroma
	Rolloff    float64 `yaml:"rolloff"`     // cumulative-energy fraction for rolloff
}

// KeyConfig controls the key estimator.
type KeyConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // minimum score for outright acceptance
	WindowFrames        int     `yaml:"window_frames"`        // recent feature vectors considered
	MinHistoryDiscount  int     `yaml:"min_history_discount"` // history length enabling discounted acceptance
}

// ChordConfig controls the chord estimator.
type ChordConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	HistorySize         int     `yaml:"history_size"` // chord progression history capacity
}

// BeatConfig controls the beat tracker.
type BeatConfig struct {
	MinBPM           float64 `yaml:"min_bpm"`
	MaxBPM           float64 `yaml:"max_bpm"`
	OnsetHistorySize int     `yaml:"onset_history_size"`
	MinOnsetCount    int     `yaml:"min_onset_count"` // onset samples required before estimating
	Sensitivity      float64 `yaml:"sensitivity"`     // adaptive onset threshold factor
	BeatsPerMeasure  int     `yaml:"beats_per_measure"`
}

// FusionConfig controls merging of local and remote results.
type FusionConfig struct {
	Enabled          bool    `yaml:"enabled"`
	QualityThreshold float64 `yaml:"quality_threshold"` // remote key strength required to override
	CacheCapacity    int     `yaml:"cache_capacity"`    // remote result cache entries
}

// RemoteConfig describes the high-precision analysis service.
type RemoteConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	PollInterval Duration `yaml:"poll_interval"`
}

// Config is the complete configuration for one analysis session.
type Config struct {
	Feature  FeatureConfig `yaml:"feature"`
	Key      KeyConfig     `yaml:"key"`
	Chord    ChordConfig   `yaml:"chord"`
	Beat     BeatConfig    `yaml:"beat"`
	Fusion   FusionConfig  `yaml:"fusion"`
	Remote   RemoteConfig  `yaml:"remote"`
	LogLevel string        `yaml:"log_level"`

	// FeatureHistorySize bounds the rolling feature vector history owned by
	// the coordinator.
	FeatureHistorySize int `yaml:"feature_history_size"`
}

// Default returns the configuration matching the original real-time engine.
func Default() *Config {
	return &Config{
		Feature: FeatureConfig{
			SampleRate: 44100,
			WindowSize: 4096,
			HopSize:    1024,
			TuningFreq: 440.0,
			MinFreq:    80.0,
			MaxFreq:    8000.0,
			Rolloff:    0.85,
		},
		Key: KeyConfig{
			ConfidenceThreshold: 0.05,
			WindowFrames:        20,
			MinHistoryDiscount:  15,
		},
		Chord: ChordConfig{
			ConfidenceThreshold: 0.26,
			HistorySize:         32,
		},
		Beat: BeatConfig{
			MinBPM:           60,
			MaxBPM:           200,
			OnsetHistorySize: 50,
			MinOnsetCount:    3,
			Sensitivity:      1.0,
			BeatsPerMeasure:  4,
		},
		Fusion: FusionConfig{
			Enabled:          false,
			QualityThreshold: 0.6,
			CacheCapacity:    16,
		},
		Remote: RemoteConfig{
			Timeout:      Duration(2 * time.Minute),
			PollInterval: Duration(time.Second),
		},
		LogLevel:           "info",
		FeatureHistorySize: 100,
	}
}

// FrameRate returns the feature frame rate in frames per second.
func (c *Config) FrameRate() float64 {
	if c.Feature.HopSize <= 0 || c.Feature.SampleRate <= 0 {
		return 0
	}
	return float64(c.Feature.SampleRate) / float64(c.Feature.HopSize)
}
