package decoder

import (
	"image"
	"image/color"
	"testing"

	"github.com/makiuchi-d/gozxing"

	"github.com/ayusman/codescan/internal/fixtures"
)

func TestNewZXing_DefaultFormats(t *testing.T) {
	z, err := NewZXing(DefaultConfig())
	if err != nil {
		t.Fatalf("NewZXing() error = %v", err)
	}
	defer z.Close()

	if got, want := len(z.readers), len(AllFormats()); got != want {
		t.Errorf("readers = %d, want %d", got, want)
	}
	if z.hints[gozxing.DecodeHintType_TRY_HARDER] != true {
		t.Error("TRY_HARDER hint should be set by default")
	}
}

func TestNewZXing_UnsupportedFormat(t *testing.T) {
	_, err := NewZXing(Config{Formats: []Format{"PDF417"}})
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestZXing_Decode(t *testing.T) {
	tests := []struct {
		name        string
		format      gozxing.BarcodeFormat
		content     string
		width       int
		height      int
		wantFormat  Format
		wantContent string
	}{
		{
			name:        "qr code",
			format:      gozxing.BarcodeFormat_QR_CODE,
			content:     "hello",
			width:       200,
			height:      200,
			wantFormat:  FormatQR,
			wantContent: "hello",
		},
		{
			name:        "qr code with url",
			format:      gozxing.BarcodeFormat_QR_CODE,
			content:     "https://example.com/item/42",
			width:       240,
			height:      240,
			wantFormat:  FormatQR,
			wantContent: "https://example.com/item/42",
		},
		{
			name:        "ean-13",
			format:      gozxing.BarcodeFormat_EAN_13,
			content:     "5901234123457",
			width:       300,
			height:      120,
			wantFormat:  FormatEAN13,
			wantContent: "5901234123457",
		},
	}

	z, err := NewZXing(DefaultConfig())
	if err != nil {
		t.Fatalf("NewZXing() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := fixtures.Barcode(tt.format, tt.content, tt.width, tt.height)
			if err != nil {
				t.Fatalf("fixtures.Barcode() error = %v", err)
			}

			detections, err := z.Decode(img)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(detections) != 1 {
				t.Fatalf("Decode() returned %d detections, want 1", len(detections))
			}

			d := detections[0]
			if d.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", d.Format, tt.wantFormat)
			}
			if d.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", d.Content, tt.wantContent)
			}
			if len(d.Points) == 0 {
				t.Error("expected result points")
			}
		})
	}
}

func TestZXing_Decode_NothingFound(t *testing.T) {
	z, _ := NewZXing(DefaultConfig())

	blank := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}

	detections, err := z.Decode(blank)
	if err != nil {
		t.Errorf("Decode() on blank image error = %v, want nil", err)
	}
	if len(detections) != 0 {
		t.Errorf("Decode() on blank image = %v, want none", detections)
	}
}

func TestZXing_Decode_DegenerateImages(t *testing.T) {
	z, _ := NewZXing(DefaultConfig())

	tests := []struct {
		name string
		img  image.Image
	}{
		{name: "nil image", img: nil},
		{name: "zero size", img: image.NewRGBA(image.Rect(0, 0, 0, 0))},
		{name: "single pixel", img: singlePixel(color.Black)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Must not panic; an error is acceptable
			detections, _ := z.Decode(tt.img)
			if len(detections) != 0 {
				t.Errorf("Decode() = %v, want none", detections)
			}
		})
	}
}

func TestZXing_Decode_RestrictedFormats(t *testing.T) {
	z, err := NewZXing(Config{Formats: []Format{FormatEAN13}})
	if err != nil {
		t.Fatalf("NewZXing() error = %v", err)
	}

	img, err := fixtures.Barcode(gozxing.BarcodeFormat_QR_CODE, "hello", 200, 200)
	if err != nil {
		t.Fatalf("fixtures.Barcode() error = %v", err)
	}

	detections, _ := z.Decode(img)
	if len(detections) != 0 {
		t.Errorf("EAN-13 only decoder found %v in a QR image", detections)
	}
}

func TestResultPoints_Offset(t *testing.T) {
	points := []gozxing.ResultPoint{
		gozxing.NewResultPoint(10.4, 20.6),
		nil,
		gozxing.NewResultPoint(0, 0),
	}

	got := resultPoints(points, image.Pt(5, 5))
	want := []image.Point{{X: 15, Y: 26}, {X: 5, Y: 5}}

	if len(got) != len(want) {
		t.Fatalf("resultPoints() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func singlePixel(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, c)
	return img
}
