package decoder

import (
	"fmt"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ZXing implements Decoder with the gozxing readers. Readers are tried in
// order and the first successful decode wins.
//
// ZXing keeps reader state between calls and is not safe for concurrent use.
type ZXing struct {
	readers []namedReader
	hints   map[gozxing.DecodeHintType]interface{}
}

type namedReader struct {
	format Format
	reader gozxing.Reader
}

// Config holds configuration options for the ZXing decoder.
type Config struct {
	// Formats limits the symbologies tried. Empty means all supported.
	Formats []Format
	// TryHarder spends more time looking for codes in each frame.
	TryHarder bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{TryHarder: true}
}

// AllFormats lists every supported format in the order readers are tried.
func AllFormats() []Format {
	return []Format{
		FormatQR,
		FormatDataMatrix,
		FormatEAN13,
		FormatEAN8,
		FormatUPCA,
		FormatCode128,
		FormatCode39,
	}
}

// NewZXing creates a decoder for the configured formats.
func NewZXing(config Config) (*ZXing, error) {
	formats := config.Formats
	if len(formats) == 0 {
		formats = AllFormats()
	}

	z := &ZXing{hints: make(map[gozxing.DecodeHintType]interface{})}
	if config.TryHarder {
		z.hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	for _, f := range formats {
		r, err := newReader(f)
		if err != nil {
			return nil, err
		}
		z.readers = append(z.readers, namedReader{format: f, reader: r})
	}

	return z, nil
}

func newReader(f Format) (gozxing.Reader, error) {
	switch f {
	case FormatQR:
		return qrcode.NewQRCodeReader(), nil
	case FormatDataMatrix:
		return datamatrix.NewDataMatrixReader(), nil
	case FormatEAN13:
		return oned.NewEAN13Reader(), nil
	case FormatEAN8:
		return oned.NewEAN8Reader(), nil
	case FormatUPCA:
		return oned.NewUPCAReader(), nil
	case FormatCode128:
		return oned.NewCode128Reader(), nil
	case FormatCode39:
		return oned.NewCode39Reader(), nil
	default:
		return nil, fmt.Errorf("unsupported barcode format %q", f)
	}
}

// Decode runs the readers over the image. Readers that find nothing are not
// an error; a malformed image is.
func (z *ZXing) Decode(img image.Image) (detections []Detection, err error) {
	if img == nil {
		return nil, nil
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			detections = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarize image: %w", err)
	}

	for _, nr := range z.readers {
		result, err := nr.reader.Decode(bmp, z.hints)
		nr.reader.Reset()
		if err != nil || result == nil {
			continue
		}
		if result.GetText() == "" {
			continue
		}
		return []Detection{{
			Format:  formatOf(result.GetBarcodeFormat(), nr.format),
			Content: result.GetText(),
			Points:  resultPoints(result.GetResultPoints(), b.Min),
		}}, nil
	}

	return nil, nil
}

// Close is a no-op; the gozxing readers hold no external resources.
func (z *ZXing) Close() error {
	return nil
}

func formatOf(f gozxing.BarcodeFormat, fallback Format) Format {
	switch f {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return FormatDataMatrix
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	default:
		return fallback
	}
}

// resultPoints converts reader points (relative to the image origin) to
// frame coordinates.
func resultPoints(points []gozxing.ResultPoint, origin image.Point) []image.Point {
	out := make([]image.Point, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		out = append(out, image.Point{
			X: origin.X + int(math.Round(p.GetX())),
			Y: origin.Y + int(math.Round(p.GetY())),
		})
	}
	return out
}
