// Package service exposes the document-conversion operations as a
// closed set of typed requests and responses. Each call is an isolated
// pipeline over fresh values: decode, compose or embed, encode.
// Nothing is shared between concurrent calls and nothing persists
// after the response is produced.
package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/wudi/doccomposer/codec"
	"github.com/wudi/doccomposer/compose"
	"github.com/wudi/doccomposer/convert"
	"github.com/wudi/doccomposer/embed"
	"github.com/wudi/doccomposer/model"
	"github.com/wudi/doccomposer/observability"
	"github.com/wudi/doccomposer/ocr"
	"github.com/wudi/doccomposer/pagesize"
	"github.com/wudi/doccomposer/raster"
)

// NamedBuffer is one uploaded document: raw bytes plus the name used
// in error reports.
type NamedBuffer struct {
	Name string
	Data []byte
}

// DocumentResponse is the common success shape: one serialized
// document plus its page count.
type DocumentResponse struct {
	Data      []byte
	PageCount int
}

// MergeRequest concatenates the given documents in order.
type MergeRequest struct {
	Inputs []NamedBuffer
}

// ExtractRequest selects pages from one document in the given order.
// Indices are zero-based and may repeat.
type ExtractRequest struct {
	Input   NamedBuffer
	Indices []int
}

// CompressRequest re-serializes one document.
type CompressRequest struct {
	Input NamedBuffer
}

// CompressResponse reports the re-serialized document and the size
// delta. Ratio is a percentage rounded to one decimal place and may be
// negative when re-serialization grows the file.
type CompressResponse struct {
	Data          []byte
	PageCount     int
	OriginalBytes int
	OutputBytes   int
	Ratio         float64
}

// EmbedImagesRequest builds a document with one page per image.
type EmbedImagesRequest struct {
	Files    []embed.UploadedFile
	PageSize string  // named size; empty means Letter
	Margin   float64 // points; negative means the default margin
}

// ExtractTextRequest pulls plain text out of one document.
type ExtractTextRequest struct {
	Input NamedBuffer
}

// ExtractTextResponse carries one string per page.
type ExtractTextResponse struct {
	Pages []string
}

// RecognizeRequest runs the configured OCR engine over one image.
type RecognizeRequest struct {
	File      embed.UploadedFile
	Languages []string
}

// MarkdownRequest renders markdown source into a document.
type MarkdownRequest struct {
	Source   string
	PageSize string
	Margin   float64
}

// DefaultMargin is the page margin applied when a request does not set
// one.
const DefaultMargin = 50.0

// Service wires the composition core to its injected capabilities.
type Service struct {
	serializer codec.Serializer
	embedder   *embed.Embedder
	engine     ocr.Engine
	logger     observability.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSerializer replaces the default PDF serializer.
func WithSerializer(s codec.Serializer) Option {
	return func(svc *Service) { svc.serializer = s }
}

// WithEmbedder replaces the default image embedder.
func WithEmbedder(e *embed.Embedder) Option {
	return func(svc *Service) { svc.embedder = e }
}

// WithOCREngine sets the text-recognition engine.
func WithOCREngine(e ocr.Engine) Option {
	return func(svc *Service) { svc.engine = e }
}

// WithLogger sets the structured logger.
func WithLogger(l observability.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// New constructs a Service with the default serializer and embedder
// unless overridden.
func New(opts ...Option) *Service {
	svc := &Service{
		serializer: codec.NewSerializer(),
		logger:     observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.embedder == nil {
		svc.embedder = embed.New(raster.NewCodec(), embed.WithLogger(svc.logger))
	}
	return svc
}

// Merge decodes every input, concatenates all pages in input order,
// and serializes the result. Any undecodable input fails the whole
// request, naming that input.
func (s *Service) Merge(ctx context.Context, req MergeRequest) (*DocumentResponse, error) {
	log := s.requestLogger("merge")
	if len(req.Inputs) == 0 {
		return nil, opError(KindEmptyInput, "", "no documents supplied", nil)
	}
	sources := make([]*model.Document, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.decode(in)
		if err != nil {
			return nil, err
		}
		sources = append(sources, doc)
	}
	merged, err := compose.Merge(sources)
	if err != nil {
		return nil, s.composeError(err, "")
	}
	data, err := s.encode(merged)
	if err != nil {
		return nil, err
	}
	log.Info("merged documents",
		observability.Int("inputs", len(req.Inputs)),
		observability.Int("pages", merged.PageCount()),
		observability.Int("bytes", len(data)))
	return &DocumentResponse{Data: data, PageCount: merged.PageCount()}, nil
}

// Extract decodes the input and builds a document from the requested
// pages in the requested order. Out-of-range indices reject the whole
// request.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (*DocumentResponse, error) {
	log := s.requestLogger("extract")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.decode(req.Input)
	if err != nil {
		return nil, err
	}
	extracted, err := compose.Extract(doc, req.Indices)
	if err != nil {
		return nil, s.composeError(err, req.Input.Name)
	}
	data, err := s.encode(extracted)
	if err != nil {
		return nil, err
	}
	log.Info("extracted pages",
		observability.String("input", req.Input.Name),
		observability.Int("pages", extracted.PageCount()))
	return &DocumentResponse{Data: data, PageCount: extracted.PageCount()}, nil
}

// Compress decodes and re-serializes the input, reporting the size
// delta. The delta is surfaced as-is; re-serialization may grow the
// file and the ratio is then negative.
func (s *Service) Compress(ctx context.Context, req CompressRequest) (*CompressResponse, error) {
	log := s.requestLogger("compress")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.decode(req.Input)
	if err != nil {
		return nil, err
	}
	data, err := s.encode(doc)
	if err != nil {
		return nil, err
	}
	original := len(req.Input.Data)
	ratio := 0.0
	if original > 0 {
		ratio = float64(original-len(data)) / float64(original) * 100
		ratio = math.Round(ratio*10) / 10
	}
	log.Info("compressed document",
		observability.String("input", req.Input.Name),
		observability.Int("original_bytes", original),
		observability.Int("output_bytes", len(data)),
		observability.Float64("ratio", ratio))
	return &CompressResponse{
		Data:          data,
		PageCount:     doc.PageCount(),
		OriginalBytes: original,
		OutputBytes:   len(data),
		Ratio:         ratio,
	}, nil
}

// EmbedImages builds a document with one page per uploaded image, in
// input order. Images that defeat every codec strategy become
// placeholder pages; a non-image mime type fails the whole request.
func (s *Service) EmbedImages(ctx context.Context, req EmbedImagesRequest) (*DocumentResponse, error) {
	log := s.requestLogger("embed_images")
	size := pagesize.LookupOrDefault(req.PageSize)
	margin := req.Margin
	if margin < 0 {
		margin = DefaultMargin
	}
	doc, err := s.embedder.EmbedImages(ctx, req.Files, size, margin)
	if err != nil {
		return nil, s.embedError(err)
	}
	data, err := s.encode(doc)
	if err != nil {
		return nil, err
	}
	log.Info("embedded images",
		observability.Int("files", len(req.Files)),
		observability.Int("pages", doc.PageCount()))
	return &DocumentResponse{Data: data, PageCount: doc.PageCount()}, nil
}

// ExtractText decodes the input and returns the text runs of each
// page, top to bottom in content order, one string per page.
func (s *Service) ExtractText(ctx context.Context, req ExtractTextRequest) (*ExtractTextResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.decode(req.Input)
	if err != nil {
		return nil, err
	}
	pages := make([]string, 0, doc.PageCount())
	for _, page := range doc.Pages {
		var runs []string
		for _, op := range page.Content {
			if t, ok := op.(model.TextOp); ok && t.Text != "" {
				runs = append(runs, t.Text)
			}
		}
		pages = append(pages, strings.Join(runs, "\n"))
	}
	return &ExtractTextResponse{Pages: pages}, nil
}

// Recognize runs the configured OCR engine over one uploaded image.
func (s *Service) Recognize(ctx context.Context, req RecognizeRequest) (*ocr.Result, error) {
	if s.engine == nil {
		return nil, ocr.ErrNoEngine
	}
	if len(req.File.Data) == 0 {
		return nil, opError(KindEmptyInput, req.File.Name, "no image data supplied", nil)
	}
	result, err := s.engine.Recognize(ctx, ocr.Input{
		ID:        req.File.Name,
		Image:     req.File.Data,
		Format:    ocr.ImageFormat(req.File.MIMEType),
		Languages: req.Languages,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ImportMarkdown renders markdown source into a serialized document.
func (s *Service) ImportMarkdown(ctx context.Context, req MarkdownRequest) (*DocumentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Source) == "" {
		return nil, opError(KindEmptyInput, "", "no markdown source supplied", nil)
	}
	size := pagesize.LookupOrDefault(req.PageSize)
	margin := req.Margin
	if margin <= 0 {
		margin = DefaultMargin
	}
	doc := convert.MarkdownToDocument(req.Source, size, margin)
	data, err := s.encode(doc)
	if err != nil {
		return nil, err
	}
	return &DocumentResponse{Data: data, PageCount: doc.PageCount()}, nil
}

func (s *Service) decode(in NamedBuffer) (*model.Document, error) {
	doc, err := s.serializer.Decode(in.Data)
	if err != nil {
		return nil, opError(KindMalformedDocument, in.Name, "document could not be decoded", err)
	}
	return doc, nil
}

func (s *Service) encode(doc *model.Document) ([]byte, error) {
	data, err := s.serializer.Encode(doc)
	if err != nil {
		return nil, opError(KindEncodingFailure, "", "composed document could not be serialized", err)
	}
	return data, nil
}

func (s *Service) composeError(err error, input string) error {
	if errors.Is(err, compose.ErrEmptyInput) {
		return opError(KindEmptyInput, input, "no pages requested", err)
	}
	var pie *compose.PageIndexError
	if errors.As(err, &pie) {
		return opError(KindInvalidPageIndex, input, err.Error(), err)
	}
	return opError(KindUnknown, input, "composition failed", err)
}

func (s *Service) embedError(err error) error {
	if errors.Is(err, embed.ErrEmptyInput) {
		return opError(KindEmptyInput, "", "no image files supplied", err)
	}
	var ute *embed.UnsupportedTypeError
	if errors.As(err, &ute) {
		return opError(KindUnsupportedInputType, ute.Name, err.Error(), err)
	}
	return err
}

func (s *Service) requestLogger(op string) observability.Logger {
	return s.logger.With(
		observability.String("operation", op),
		observability.String("request_id", uuid.NewString()))
}
