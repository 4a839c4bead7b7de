// Package raster decodes uploaded raster images and normalizes them
// into document-embeddable payloads. The primary embeddable encoding
// is DCT (JPEG); raw samples compressed with flate serve as the
// secondary encoding and as the carrier for alpha soft masks.
package raster

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	_ "image/gif" // register stdlib decoders

	_ "golang.org/x/image/bmp" // register extended decoders
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/doccomposer/model"
)

// DefaultJPEGQuality is used when a caller passes a non-positive quality.
const DefaultJPEGQuality = 85

// Codec converts between encoded raster bytes and pixel data.
type Codec interface {
	// Decode parses encoded image bytes and reports the detected format
	// name (e.g. "jpeg", "png", "bmp").
	Decode(data []byte) (image.Image, string, error)
	// EncodeJPEG re-encodes pixels into the primary embeddable encoding.
	EncodeJPEG(img image.Image, quality int) ([]byte, error)
	// EncodePNG re-encodes pixels into the secondary embeddable encoding.
	EncodePNG(img image.Image) ([]byte, error)
}

type stdCodec struct{}

// NewCodec returns a codec backed by the registered image decoders:
// jpeg, png, and gif from the standard library plus bmp, tiff, and
// webp from golang.org/x/image.
func NewCodec() Codec { return stdCodec{} }

func (stdCodec) Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("raster: decode: %w", err)
	}
	return img, format, nil
}

func (stdCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("raster: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (stdCodec) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("raster: png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// PassthroughJPEG wraps already-DCT-encoded bytes as a model image
// without re-encoding. It fails when the bytes are not a parseable JPEG.
func PassthroughJPEG(data []byte) (*model.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("raster: jpeg passthrough: %w", err)
	}
	if format != "jpeg" {
		return nil, fmt.Errorf("raster: jpeg passthrough: detected %q", format)
	}
	return &model.Image{
		Width:            cfg.Width,
		Height:           cfg.Height,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Encoding:         model.EncodingDCT,
		Data:             append([]byte(nil), data...),
	}, nil
}

// FromImage converts decoded pixels into a DCT-encoded model image.
// When the source carries transparency, the alpha channel is split off
// into a flate-compressed grayscale soft mask.
func FromImage(c Codec, src image.Image, quality int) (*model.Image, error) {
	nrgba := toNRGBA(src)
	w := nrgba.Rect.Dx()
	h := nrgba.Rect.Dy()

	alpha, hasAlpha := extractAlpha(nrgba)

	payload, err := c.EncodeJPEG(opaque(nrgba), quality)
	if err != nil {
		return nil, err
	}
	out := &model.Image{
		Width:            w,
		Height:           h,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Encoding:         model.EncodingDCT,
		Data:             payload,
	}
	if hasAlpha {
		maskData, err := flateCompress(alpha)
		if err != nil {
			return nil, err
		}
		out.SMask = &model.Image{
			Width:            w,
			Height:           h,
			ColorSpace:       "DeviceGray",
			BitsPerComponent: 8,
			Encoding:         model.EncodingFlate,
			Data:             maskData,
		}
	}
	return out, nil
}

// FromImageFlate converts decoded pixels into a flate-compressed
// raw-RGB model image, the lossless secondary encoding.
func FromImageFlate(src image.Image) (*model.Image, error) {
	nrgba := toNRGBA(src)
	w := nrgba.Rect.Dx()
	h := nrgba.Rect.Dy()

	pixels := make([]byte, 0, w*h*3)
	for i := 0; i < w*h; i++ {
		off := i * 4
		pixels = append(pixels, nrgba.Pix[off], nrgba.Pix[off+1], nrgba.Pix[off+2])
	}
	payload, err := flateCompress(pixels)
	if err != nil {
		return nil, err
	}
	out := &model.Image{
		Width:            w,
		Height:           h,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Encoding:         model.EncodingFlate,
		Data:             payload,
	}
	if alpha, hasAlpha := extractAlpha(nrgba); hasAlpha {
		maskData, err := flateCompress(alpha)
		if err != nil {
			return nil, err
		}
		out.SMask = &model.Image{
			Width:            w,
			Height:           h,
			ColorSpace:       "DeviceGray",
			BitsPerComponent: 8,
			Encoding:         model.EncodingFlate,
			Data:             maskData,
		}
	}
	return out, nil
}

// toNRGBA normalizes any image to non-premultiplied RGBA samples.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	bounds := src.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(n, n.Bounds(), src, bounds.Min, draw.Src)
	return n
}

// extractAlpha pulls the alpha channel out of nrgba, reporting whether
// any pixel is non-opaque.
func extractAlpha(nrgba *image.NRGBA) ([]byte, bool) {
	w := nrgba.Rect.Dx()
	h := nrgba.Rect.Dy()
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		a := nrgba.Pix[i*4+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}
	return alpha, hasAlpha
}

// opaque returns a copy of nrgba with full alpha, since JPEG carries
// no transparency and partially transparent samples would otherwise
// darken the composite.
func opaque(nrgba *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(nrgba.Rect)
	copy(out.Pix, nrgba.Pix)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}
	return out
}

func flateCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("raster: flate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("raster: flate: %w", err)
	}
	return buf.Bytes(), nil
}
