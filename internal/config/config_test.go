package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ayusman/codescan/internal/decoder"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != Default().Addr {
		t.Errorf("Addr = %q, want default", cfg.Addr)
	}
}

func TestLoad_OverridesAndClamps(t *testing.T) {
	path := writeConfig(t, `{
		"camera_id": 2,
		"width": -1,
		"fps": 1000,
		"open_timeout": "250ms",
		"formats": ["qr", " ean13 "],
		"dsn": "postgres://localhost/scans"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CameraID != 2 {
		t.Errorf("CameraID = %d, want 2", cfg.CameraID)
	}
	if cfg.Width != 1280 {
		t.Errorf("Width = %d, want clamped 1280", cfg.Width)
	}
	if cfg.FPS != 30 {
		t.Errorf("FPS = %d, want clamped 30", cfg.FPS)
	}
	if got := cfg.OpenTimeoutDuration(); got != 250*time.Millisecond {
		t.Errorf("OpenTimeoutDuration() = %v, want 250ms", got)
	}
	if len(cfg.Formats) != 2 || cfg.Formats[0] != "QR" || cfg.Formats[1] != "EAN13" {
		t.Errorf("Formats = %v, want [QR EAN13]", cfg.Formats)
	}
	if cfg.DSN != "postgres://localhost/scans" {
		t.Errorf("DSN = %q", cfg.DSN)
	}
	// Unset fields keep their defaults
	if cfg.Height != 720 {
		t.Errorf("Height = %d, want default 720", cfg.Height)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"camera_id": `},
		{name: "unknown field", body: `{"colour": "blue"}`},
		{name: "unknown format", body: `{"formats": ["PDF417"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if cfg == nil || cfg.Addr != Default().Addr {
				t.Errorf("Load() should return defaults alongside the error, got %+v", cfg)
			}
		})
	}
}

func TestValidate_BadTimeout(t *testing.T) {
	cfg := Default()
	cfg.OpenTimeout = "soon"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.OpenTimeout != "5s" {
		t.Errorf("OpenTimeout = %q, want 5s", cfg.OpenTimeout)
	}
}

func TestDecoderConfig(t *testing.T) {
	cfg := Default()
	cfg.Formats = []string{"QR", "CODE128"}
	cfg.TryHarder = false

	got := cfg.DecoderConfig()
	if got.TryHarder {
		t.Error("TryHarder = true, want false")
	}
	want := []decoder.Format{decoder.FormatQR, decoder.FormatCode128}
	if len(got.Formats) != len(want) {
		t.Fatalf("Formats = %v, want %v", got.Formats, want)
	}
	for i := range want {
		if got.Formats[i] != want[i] {
			t.Errorf("Formats[%d] = %q, want %q", i, got.Formats[i], want[i])
		}
	}

	if _, err := decoder.NewZXing(got); err != nil {
		t.Errorf("NewZXing(DecoderConfig()) error = %v", err)
	}
}

func TestValidate_MotionThreshold(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "disabled", in: 0, want: 0},
		{name: "in range", in: 2.5, want: 2.5},
		{name: "negative", in: -1, want: 0},
		{name: "above 100", in: 150, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.MotionThreshold = tt.in
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if cfg.MotionThreshold != tt.want {
				t.Errorf("MotionThreshold = %v, want %v", cfg.MotionThreshold, tt.want)
			}
		})
	}
}
