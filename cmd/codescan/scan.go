package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/codescan/internal/app"
	"github.com/ayusman/codescan/internal/cue"
	"github.com/ayusman/codescan/internal/decoder"
	"github.com/ayusman/codescan/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan codes from a camera and print each new one as a JSON line",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideInt(cmd, "camera", &cfg.CameraID)
		overrideString(cmd, "db", &cfg.DSN)
		overrideBool(cmd, "beep", &cfg.Beep)
		overrideFloat(cmd, "motion-threshold", &cfg.MotionThreshold)
		if formats, _ := cmd.Flags().GetStringSlice("formats"); len(formats) > 0 {
			cfg.Formats = formats
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		count, _ := cmd.Flags().GetInt("count")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return runScan(cmd.Context(), cmd.OutOrStdout(), count, timeout)
	},
}

func init() {
	scanCmd.Flags().Int("camera", 0, "camera device index")
	scanCmd.Flags().Float64("motion-threshold", 0, "percent of pixels that must change before a still frame is decoded again (0 decodes every frame)")
	scanCmd.Flags().String("db", "", "also record scans to this sqlite file or postgres:// URL")
	scanCmd.Flags().Bool("beep", false, "ring the terminal bell on each new scan")
	scanCmd.Flags().StringSlice("formats", nil, "barcode formats to look for (default all)")
	scanCmd.Flags().Int("count", 0, "exit after this many scans (0 = unlimited)")
	scanCmd.Flags().Duration("timeout", 0, "exit after this long (0 = until interrupted)")
	rootCmd.AddCommand(scanCmd)
}

// scanLine is one line of scan output.
type scanLine struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Device    int       `json:"device"`
	SessionID string    `json:"session_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

// lineWriter prints scans as JSON lines and counts them.
type lineWriter struct {
	mu      sync.Mutex
	enc     *json.Encoder
	n       int
	limit   int
	reached chan struct{}
}

func newLineWriter(w io.Writer, limit int) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w), limit: limit, reached: make(chan struct{})}
}

// Signal writes one line. Signals past the limit are ignored.
func (l *lineWriter) Signal(s cue.Scan) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && l.n >= l.limit {
		return
	}

	if err := l.enc.Encode(scanLine{
		Type:      s.Type,
		Content:   s.Content,
		Device:    s.Device,
		SessionID: s.SessionID,
		ScannedAt: s.At,
	}); err != nil {
		logger.Warn("failed to write scan", "error", err)
	}

	l.n++
	if l.limit > 0 && l.n == l.limit {
		close(l.reached)
	}
}

func runScan(ctx context.Context, out io.Writer, count int, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lines := newLineWriter(out, count)
	cues := cue.Multi{lines}
	if cfg.Beep {
		cues = append(cues, cue.NewBell(os.Stderr, logger))
	}

	if cfg.DSN != "" {
		st, err := store.New(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close()
		cues = append(cues, cue.NewRecorder(st.Scans(), logger))
	}

	signals := cue.NewAsync(cues, cfg.CueBuffer, logger)
	defer signals.Close()

	dec, err := decoder.NewZXing(cfg.DecoderConfig())
	if err != nil {
		return err
	}

	failed := make(chan error, 1)
	a, err := app.New(app.Config{
		CameraID:        cfg.CameraID,
		OpenTimeout:     cfg.OpenTimeoutDuration(),
		Settings:        captureSettings(),
		Decoder:         dec,
		MotionThreshold: cfg.MotionThreshold,
		Cue:             signals,
		Logger:          logger,
		OnEvent: func(ev app.Event) {
			if ev.Kind != app.EventOpenFailed {
				return
			}
			select {
			case failed <- ev.Err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	a.StartCapture(cfg.CameraID)

	select {
	case err := <-failed:
		return fmt.Errorf("failed to open camera %d: %w", cfg.CameraID, err)
	case <-lines.reached:
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Info("interrupted")
		}
	}

	a.StopCapture()
	return nil
}
