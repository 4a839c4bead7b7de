// Package ocr defines the pluggable text-recognition capability the
// service exposes. The core never interprets pixels itself; it hands
// encoded images to an Engine and returns whatever text comes back.
package ocr

import (
	"context"
	"errors"
)

// ErrNoEngine reports that recognition was requested but no engine was
// configured.
var ErrNoEngine = errors.New("ocr: no engine configured")

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
	ImageFormatTIFF ImageFormat = "image/tiff"
)

// Input is a single image submitted for recognition.
type Input struct {
	// ID is a caller-provided identifier echoed back in the Result.
	ID string
	// Image is the encoded payload in the declared Format.
	Image []byte
	// Format declares the image content type.
	Format ImageFormat
	// Languages lists language hints (e.g. "eng", "deu") for engines
	// that select trained data by language.
	Languages []string
	// DPI is the effective dots-per-inch; zero means unknown.
	DPI int
}

// Result is the recognized text for one input.
type Result struct {
	InputID    string
	PlainText  string
	Confidence float64
	Language   string
}

// Engine is the provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}
