// Command auricle streams a WAV file through an analysis session and prints
// the evolving key, chord, and tempo estimates. With fusion enabled in the
// configuration it also submits the file to the remote high-precision
// service and overlays its result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/auricle-audio/auricle/analysis"
	"github.com/auricle-audio/auricle/config"
	"github.com/auricle-audio/auricle/logging"
	"github.com/auricle-audio/auricle/remote"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults apply when omitted)")
	remoteURL := flag.String("remote", "", "remote analysis service URL (enables fusion)")
	realtime := flag.Bool("realtime", false, "pace playback at the audio's real duration")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.wav>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*configPath, *remoteURL, flag.Arg(0), *realtime); err != nil {
		logging.Fatal(err, "analysis failed")
	}
}

func run(configPath, remoteURL, wavPath string, realtime bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if remoteURL != "" {
		cfg.Fusion.Enabled = true
		cfg.Remote.BaseURL = remoteURL
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	f, err := os.Open(wavPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", wavPath, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return fmt.Errorf("%q is not a valid WAV file", wavPath)
	}

	// The session analyzes at the file's native rate.
	cfg.Feature.SampleRate = int(dec.SampleRate)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	var gateway remote.Gateway
	if cfg.Fusion.Enabled {
		gateway = remote.NewHTTPGateway(cfg.Remote.BaseURL, cfg.Remote.Timeout.Std(), cfg.Remote.PollInterval.Std())
	}

	ctx := context.Background()
	session := analysis.NewSession(ctx, cfg, gateway)

	sourceID := uuid.NewString()
	session.AnalyzeSource(sourceID, wavPath)
	logging.Info("analyzing", logging.Fields{
		"file":        wavPath,
		"source_id":   sourceID,
		"sample_rate": cfg.Feature.SampleRate,
		"channels":    int(dec.NumChans),
		"fusion":      cfg.Fusion.Enabled,
	})

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := feedAudio(ctx, session, dec, cfg, realtime)
		// Give queued frames a moment to finish before tearing down.
		time.Sleep(500 * time.Millisecond)
		if stopErr := session.Stop(); err == nil {
			err = stopErr
		}
		return err
	})
	group.Go(func() error {
		printResults(session.Results())
		return nil
	})

	return group.Wait()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// feedAudio decodes the WAV in hop-sized chunks and feeds them as frames.
func feedAudio(ctx context.Context, session *analysis.Session, dec *wav.Decoder, cfg *config.Config, realtime bool) error {
	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := dec.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int(1)<<(bitDepth-1))
	chunk := cfg.Feature.HopSize * channels

	buf := &audio.IntBuffer{
		Data:   make([]int, chunk),
		Format: &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
	}

	var fed int64
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("decode wav: %w", err)
		}
		if n == 0 {
			return nil
		}

		samples := make([]float64, n)
		for i, v := range buf.Data[:n] {
			samples[i] = float64(v) * scale
		}

		timestamp := time.Duration(fed) * time.Second / time.Duration(cfg.Feature.SampleRate)
		fed += int64(n / channels)

		if err := session.FeedSync(ctx, analysis.AudioFrame{
			Samples:    samples,
			SampleRate: cfg.Feature.SampleRate,
			Channels:   channels,
			Timestamp:  timestamp,
		}); err != nil {
			return err
		}

		if realtime {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(n/channels) * time.Second / time.Duration(cfg.Feature.SampleRate)):
			}
		}
	}
}

// printResults renders the result stream, reporting only when an estimate
// changes so the output stays readable.
func printResults(results <-chan analysis.AnalysisResult) {
	var lastKey, lastChord string
	var lastTempo float64

	for r := range results {
		key := "-"
		if r.Key != nil {
			key = r.Key.Name()
			if r.KeyFromRemote {
				key += " (remote)"
			}
		}
		chord := "-"
		if r.Chord != nil {
			chord = r.Chord.Degree
		}

		tempoMoved := r.Beat.Tempo != 0 &&
			(lastTempo == 0 || r.Beat.Tempo < lastTempo-2 || r.Beat.Tempo > lastTempo+2)
		if key == lastKey && chord == lastChord && !tempoMoved {
			continue
		}
		lastKey, lastChord, lastTempo = key, chord, r.Beat.Tempo

		fmt.Printf("[%8s] key=%-18s chord=%-8s tempo=%6.1f bpm (conf %.2f, %s)\n",
			r.Timestamp.Truncate(10*time.Millisecond), key, chord,
			r.Beat.Tempo, r.Beat.Confidence, r.Beat.State)
	}
}
