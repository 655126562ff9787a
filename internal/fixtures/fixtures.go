// Package fixtures renders synthetic barcode frames for tests.
package fixtures

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"gocv.io/x/gocv"
)

// Barcode renders content as a barcode image of the given size.
// Supported formats are gozxing.BarcodeFormat_QR_CODE, _EAN_13 and _CODE_128.
func Barcode(format gozxing.BarcodeFormat, content string, width, height int) (*image.RGBA, error) {
	var writer gozxing.Writer
	switch format {
	case gozxing.BarcodeFormat_QR_CODE:
		writer = qrcode.NewQRCodeWriter()
	case gozxing.BarcodeFormat_EAN_13:
		writer = oned.NewEAN13Writer()
	case gozxing.BarcodeFormat_CODE_128:
		writer = oned.NewCode128Writer()
	default:
		return nil, fmt.Errorf("no writer for format %v", format)
	}

	matrix, err := writer.Encode(content, format, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("encode %v %q: %w", format, content, err)
	}

	// Centre the code on a white canvas with a border.
	const border = 20
	b := matrix.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx()+2*border, b.Dy()+2*border))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, b.Add(image.Pt(border, border)), matrix, b.Min, draw.Src)

	return canvas, nil
}

// BarcodeMat renders content as a barcode in a BGR Mat.
// The caller is responsible for closing the returned Mat.
func BarcodeMat(format gozxing.BarcodeFormat, content string, width, height int) (*gocv.Mat, error) {
	img, err := Barcode(format, content, width, height)
	if err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert %v frame: %w", format, err)
	}

	return &mat, nil
}

// BlankMat returns an empty-scene BGR frame of the given size.
// The caller is responsible for closing the returned Mat.
func BlankMat(width, height int) *gocv.Mat {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(255, 255, 255, 0))
	return &mat
}
