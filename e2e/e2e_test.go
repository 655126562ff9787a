package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/makiuchi-d/gozxing"
	"gocv.io/x/gocv"

	"github.com/ayusman/codescan/internal/app"
	"github.com/ayusman/codescan/internal/capture"
	"github.com/ayusman/codescan/internal/cue"
	"github.com/ayusman/codescan/internal/fixtures"
	"github.com/ayusman/codescan/internal/server"
	"github.com/ayusman/codescan/internal/store"
)

// rig is a complete scanner: simulated camera, real decoder, sqlite history
// and the HTTP API.
type rig struct {
	frames  chan *gocv.Mat
	started chan string
	bus     *capture.MockBus
	store   *store.Store
	app     *app.App
	srv     *server.Server
	ts      *httptest.Server
}

func newRig(t *testing.T) *rig {
	t.Helper()

	s, err := store.New(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	frames := make(chan *gocv.Mat)
	started := make(chan string, 4)
	bus := capture.NewMockBus()
	bus.Add(0, &capture.MockDevice{Frames: frames})

	recorder := cue.NewRecorder(s.Scans(), nil)
	signals := cue.NewAsync(recorder, 16, nil)
	t.Cleanup(signals.Close)

	a, err := app.New(app.Config{
		Camera: bus.Factory(),
		Cue:    signals,
		OnEvent: func(ev app.Event) {
			if ev.Kind == app.EventStarted {
				started <- ev.SessionID
			}
		},
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	srv := server.New(server.Config{Store: s, Camera: a})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &rig{frames: frames, started: started, bus: bus, store: s, app: a, srv: srv, ts: ts}
}

// awaitStart returns the ID of the next session.
func (r *rig) awaitStart(t *testing.T) string {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatalf("capture did not start, state = %v", r.app.State())
		return ""
	}
}

func (r *rig) post(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := r.ts.Client().Post(r.ts.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	return resp
}

// feed hands n copies of a QR code frame to the camera.
func (r *rig) feed(t *testing.T, content string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		frame, err := fixtures.BarcodeMat(gozxing.BarcodeFormat_QR_CODE, content, 240, 240)
		if err != nil {
			t.Fatalf("fixtures.BarcodeMat() error = %v", err)
		}
		select {
		case r.frames <- frame:
		case <-time.After(2 * time.Second):
			frame.Close()
			t.Fatal("camera stopped reading frames")
		}
	}
}

func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

type listScans struct {
	Scans []store.Scan `json:"scans"`
	Total int          `json:"total"`
}

func (r *rig) scans(t *testing.T) listScans {
	t.Helper()
	resp, err := r.ts.Client().Get(r.ts.URL + "/api/scans")
	if err != nil {
		t.Fatalf("GET /api/scans error = %v", err)
	}
	defer resp.Body.Close()

	var out listScans
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode scans: %v", err)
	}
	return out
}

func TestE2E_ScanWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	r := newRig(t)

	wsURL := "ws" + strings.TrimPrefix(r.ts.URL, "http") + "/api/results"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	if !waitUntil(time.Second, func() bool { return r.srv.Hub().Clients() == 1 }) {
		t.Fatal("websocket client never subscribed")
	}

	var sessionID string
	t.Run("StartCapture", func(t *testing.T) {
		resp := r.post(t, "/api/camera/start")
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusAccepted)
		}
		sessionID = r.awaitStart(t)
		if got := r.app.State(); got != app.StateRunning {
			t.Fatalf("state = %v, want running", got)
		}
	})

	t.Run("DetectionReachesFeed", func(t *testing.T) {
		r.feed(t, "e2e-hello", 3)

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			var msg struct {
				HasDetection bool   `json:"has_detection"`
				Type         string `json:"type"`
				Content      string `json:"content"`
				SessionID    string `json:"session_id"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("ReadJSON() error = %v", err)
			}
			if !msg.HasDetection {
				continue
			}
			if msg.Type != "QR" || msg.Content != "e2e-hello" {
				t.Fatalf("detection = %s:%s, want QR:e2e-hello", msg.Type, msg.Content)
			}
			if msg.SessionID != sessionID {
				t.Errorf("result session = %q, want %q", msg.SessionID, sessionID)
			}
			break
		}
	})

	t.Run("ScanRecordedOnce", func(t *testing.T) {
		var got listScans
		if !waitUntil(2*time.Second, func() bool {
			got = r.scans(t)
			return got.Total > 0
		}) {
			t.Fatal("scan never reached the history")
		}
		if got.Total != 1 || len(got.Scans) != 1 {
			t.Fatalf("history = %+v, want one scan for three identical frames", got)
		}
		sc := got.Scans[0]
		if sc.Type != "QR" || sc.Content != "e2e-hello" {
			t.Errorf("scan = %s:%s, want QR:e2e-hello", sc.Type, sc.Content)
		}
		if sc.SessionID != sessionID {
			t.Errorf("scan session = %q, want %q", sc.SessionID, sessionID)
		}
	})

	t.Run("StopReleasesCamera", func(t *testing.T) {
		resp := r.post(t, "/api/camera/stop")
		var status struct {
			State string `json:"state"`
		}
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if status.State != "idle" {
			t.Errorf("state after stop = %q, want idle", status.State)
		}
		if got := r.bus.OpenHandles(0); got != 0 {
			t.Errorf("device still held after stop: %d handles", got)
		}
	})

	t.Run("ClearHistory", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, r.ts.URL+"/api/scans", nil)
		resp, err := r.ts.Client().Do(req)
		if err != nil {
			t.Fatalf("DELETE /api/scans error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("delete status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if got := r.scans(t); got.Total != 0 {
			t.Errorf("history after clear = %d scans, want 0", got.Total)
		}
	})
}

func TestE2E_NewSessionCuesAgain(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	r := newRig(t)

	for i := 0; i < 2; i++ {
		r.app.StartCapture(0)
		r.awaitStart(t)
		r.feed(t, "same-code", 2)
		r.app.StopCapture()
	}

	var got listScans
	if !waitUntil(2*time.Second, func() bool {
		got = r.scans(t)
		return got.Total >= 2
	}) {
		t.Fatalf("history = %d scans, want one per session", got.Total)
	}
	if got.Scans[0].SessionID == got.Scans[1].SessionID {
		t.Error("both scans carry the same session id")
	}
}
