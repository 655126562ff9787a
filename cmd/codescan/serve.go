package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/codescan/internal/app"
	"github.com/ayusman/codescan/internal/capture"
	"github.com/ayusman/codescan/internal/cue"
	"github.com/ayusman/codescan/internal/decoder"
	"github.com/ayusman/codescan/internal/server"
	"github.com/ayusman/codescan/internal/store"
	"github.com/ayusman/codescan/internal/tray"
)

// trayProbeDevices is the range of device indices offered in the tray menu.
const trayProbeDevices = 4

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control and preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideString(cmd, "addr", &cfg.Addr)
		overrideInt(cmd, "camera", &cfg.CameraID)
		overrideString(cmd, "db", &cfg.DSN)
		overrideString(cmd, "static", &cfg.StaticDir)
		overrideBool(cmd, "autostart", &cfg.AutoStart)
		overrideBool(cmd, "beep", &cfg.Beep)
		overrideBool(cmd, "stop-unwatched", &cfg.StopWhenUnwatched)
		overrideFloat(cmd, "motion-threshold", &cfg.MotionThreshold)
		if err := cfg.Validate(); err != nil {
			return err
		}

		withTray, _ := cmd.Flags().GetBool("tray")
		return runServe(cmd.Context(), withTray)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	serveCmd.Flags().Int("camera", 0, "camera device index")
	serveCmd.Flags().Float64("motion-threshold", 0, "percent of pixels that must change before a still frame is decoded again (0 decodes every frame)")
	serveCmd.Flags().String("db", "", "scan history: sqlite file or postgres:// URL; empty disables")
	serveCmd.Flags().String("static", "", "directory of static files to serve")
	serveCmd.Flags().Bool("autostart", false, "start capturing at launch")
	serveCmd.Flags().Bool("beep", true, "ring the terminal bell on each new scan")
	serveCmd.Flags().Bool("stop-unwatched", false, "stop capture when the last preview viewer leaves")
	serveCmd.Flags().Bool("tray", false, "show a system tray menu")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, withTray bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var st *store.Store
	if cfg.DSN != "" {
		var err error
		st, err = store.New(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close()
		logger.Info("recording scan history", "backend", st.Dialect())
	}

	dec, err := decoder.NewZXing(cfg.DecoderConfig())
	if err != nil {
		return err
	}

	var cues cue.Multi
	if cfg.Beep {
		cues = append(cues, cue.NewBell(os.Stderr, logger))
	}
	if st != nil {
		cues = append(cues, cue.NewRecorder(st.Scans(), logger))
	}

	var tr *tray.Tray
	if withTray {
		tr = tray.New(trayCameras(ctx), cfg.CameraID)
		cues = append(cues, tr)
	}

	signals := cue.NewAsync(cues, cfg.CueBuffer, logger)
	defer signals.Close()

	a, err := app.New(app.Config{
		CameraID:        cfg.CameraID,
		OpenTimeout:     cfg.OpenTimeoutDuration(),
		Settings:        captureSettings(),
		Decoder:         dec,
		MotionThreshold: cfg.MotionThreshold,
		Cue:             signals,
		Logger:          logger,
		OnEvent: func(ev app.Event) {
			if tr != nil {
				tr.SetRunning(ev.Kind == app.EventOpening || ev.Kind == app.EventStarted)
			}
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		StaticDir:         cfg.StaticDir,
		Store:             st,
		Camera:            a,
		StopWhenUnwatched: cfg.StopWhenUnwatched,
		Logger:            logger,
	})

	if cfg.AutoStart {
		a.StartCapture(cfg.CameraID)
	}

	if tr == nil {
		return listen(ctx, srv)
	}

	tr.OnToggle(a.ToggleCapture)
	tr.OnSelectCamera(a.SwitchDevice)
	tr.OnPreview(func() {
		if err := openBrowser(previewURL(cfg.Addr)); err != nil {
			logger.Warn("failed to open preview", "error", err)
		}
	})
	tr.OnQuit(cancel)

	errc := make(chan error, 1)
	go func() {
		errc <- listen(ctx, srv)
		tr.Quit()
	}()

	// The tray owns the main goroutine until it quits.
	tr.Run()
	cancel()
	return <-errc
}

func listen(ctx context.Context, srv *server.Server) error {
	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// trayCameras lists the devices to offer in the tray. The configured device
// is always included.
func trayCameras(ctx context.Context) []int {
	ids := make([]int, trayProbeDevices)
	for i := range ids {
		ids[i] = i
	}

	opener := capture.NewOpener(capture.GoCVFactory(captureSettings()), logger)
	var found []int
	hasSelected := false
	for _, r := range capture.Probe(ctx, opener, ids, 2*time.Second) {
		if r.Available || r.Device == cfg.CameraID {
			found = append(found, r.Device)
			hasSelected = hasSelected || r.Device == cfg.CameraID
		}
	}
	if !hasSelected {
		found = append(found, cfg.CameraID)
	}
	return found
}

func previewURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
