// Package embed turns uploaded raster images into a new document, one
// page per input. Each image runs through an ordered list of codec
// strategies; when every strategy fails the image degrades to a
// placeholder page instead of failing the whole request.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/doccomposer/fit"
	"github.com/wudi/doccomposer/model"
	"github.com/wudi/doccomposer/observability"
	"github.com/wudi/doccomposer/pagesize"
	"github.com/wudi/doccomposer/raster"
)

// ErrEmptyInput reports that no files were supplied.
var ErrEmptyInput = errors.New("embed: no image files supplied")

// UnsupportedTypeError reports a file whose mime type is not a raster
// image. This gate is request-fatal; codec failures are not.
type UnsupportedTypeError struct {
	Name     string
	MIMEType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("embed: %s: unsupported input type %q", e.Name, e.MIMEType)
}

// UploadedFile is an input file as handed over by the upload layer.
// The embedder never mutates it.
type UploadedFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

const (
	captionSize     = 9.0
	captionInset    = 20.0
	placeholderNote = "This image could not be embedded."
)

// Embedder places uploaded images onto fresh pages.
type Embedder struct {
	codec   raster.Codec
	quality int
	logger  observability.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithQuality sets the JPEG re-encoding quality (1-100).
func WithQuality(q int) Option {
	return func(e *Embedder) { e.quality = q }
}

// WithLogger sets the logger used for per-image diagnostics.
func WithLogger(l observability.Logger) Option {
	return func(e *Embedder) { e.logger = l }
}

// New constructs an Embedder over the given raster codec.
func New(codec raster.Codec, opts ...Option) *Embedder {
	e := &Embedder{
		codec:   codec,
		quality: raster.DefaultJPEGQuality,
		logger:  observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// strategy is one attempt at converting file bytes into an embeddable
// image. Strategies run in order; the first success wins.
type strategy struct {
	name string
	run  func(f UploadedFile) (*model.Image, error)
}

func (e *Embedder) strategies() []strategy {
	return []strategy{
		{name: "jpeg-passthrough", run: func(f UploadedFile) (*model.Image, error) {
			if !strings.EqualFold(f.MIMEType, "image/jpeg") {
				return nil, fmt.Errorf("embed: not a jpeg upload")
			}
			return raster.PassthroughJPEG(f.Data)
		}},
		{name: "reencode-jpeg", run: func(f UploadedFile) (*model.Image, error) {
			img, _, err := e.codec.Decode(f.Data)
			if err != nil {
				return nil, err
			}
			return raster.FromImage(e.codec, img, e.quality)
		}},
		{name: "reencode-flate", run: func(f UploadedFile) (*model.Image, error) {
			img, _, err := e.codec.Decode(f.Data)
			if err != nil {
				return nil, err
			}
			return raster.FromImageFlate(img)
		}},
	}
}

// EmbedImages builds a document with exactly one page per input file,
// in input order. A file whose mime type is not image/* fails the
// whole request; a file whose bytes defeat every codec strategy yields
// a placeholder page instead.
func (e *Embedder) EmbedImages(ctx context.Context, files []UploadedFile, page pagesize.Size, margin float64) (*model.Document, error) {
	if len(files) == 0 {
		return nil, ErrEmptyInput
	}
	for _, f := range files {
		if !strings.HasPrefix(strings.ToLower(f.MIMEType), "image/") {
			return nil, &UnsupportedTypeError{Name: f.Name, MIMEType: f.MIMEType}
		}
	}

	out := model.NewDocument()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := e.convert(f)
		if err != nil {
			e.logger.Warn("image not embeddable, substituting placeholder",
				observability.String("file", f.Name),
				observability.Error("error", err))
			out.AddPage(e.placeholderPage(f.Name, page))
			continue
		}
		p, err := e.imagePage(f.Name, img, page, margin)
		if err != nil {
			e.logger.Warn("image placement failed, substituting placeholder",
				observability.String("file", f.Name),
				observability.Error("error", err))
			out.AddPage(e.placeholderPage(f.Name, page))
			continue
		}
		out.AddPage(p)
	}
	return out, nil
}

// convert runs the strategy chain, returning the first success.
func (e *Embedder) convert(f UploadedFile) (*model.Image, error) {
	var lastErr error
	for _, s := range e.strategies() {
		img, err := s.run(f)
		if err == nil {
			return img, nil
		}
		e.logger.Debug("embed strategy failed",
			observability.String("file", f.Name),
			observability.String("strategy", s.name),
			observability.Error("error", err))
		lastErr = err
	}
	return nil, fmt.Errorf("embed: all strategies exhausted for %s: %w", f.Name, lastErr)
}

func (e *Embedder) imagePage(name string, img *model.Image, page pagesize.Size, margin float64) (*model.Page, error) {
	place, err := fit.Compute(float64(img.Width), float64(img.Height), page.Width, page.Height, margin)
	if err != nil {
		return nil, err
	}
	p := model.NewPage(page.Width, page.Height)
	p.Append(model.ImageOp{
		Image: img,
		X:     place.X,
		Y:     place.Y,
		W:     place.Width,
		H:     place.Height,
	})
	p.Append(model.TextOp{Text: name, X: captionInset, Y: captionInset, Size: captionSize})
	return p, nil
}

func (e *Embedder) placeholderPage(name string, page pagesize.Size) *model.Page {
	p := model.NewPage(page.Width, page.Height)
	p.Append(
		model.TextOp{Text: name, X: captionInset, Y: page.Height / 2, Size: 14},
		model.TextOp{Text: placeholderNote, X: captionInset, Y: page.Height/2 - 20, Size: 11},
	)
	return p
}
