// Package decoder provides barcode decoding for captured frames.
package decoder

import "image"

// Format is the symbolic name of a barcode symbology.
type Format string

// Supported formats.
const (
	FormatQR         Format = "QR"
	FormatDataMatrix Format = "DATAMATRIX"
	FormatEAN13      Format = "EAN13"
	FormatEAN8       Format = "EAN8"
	FormatUPCA       Format = "UPCA"
	FormatCode128    Format = "CODE128"
	FormatCode39     Format = "CODE39"
)

// Detection is one decoded barcode.
type Detection struct {
	Format  Format
	Content string
	// Points are the corner or finder points reported by the reader, in
	// frame pixel coordinates. May be empty.
	Points []image.Point
}

// Decoder defines the interface for barcode decoding implementations.
type Decoder interface {
	// Decode analyzes an image and returns the barcodes found in it.
	// Returns an empty slice if nothing is found; an error means the image
	// could not be analyzed at all.
	Decode(img image.Image) ([]Detection, error)

	// Close releases any resources held by the decoder.
	Close() error
}
