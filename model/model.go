// Package model holds the in-memory representation of a paginated
// document: an ordered page list where each page carries its geometry
// and an append-only sequence of draw operations. Every transform in
// this module builds a fresh Document and copies page content into it,
// so mutating an output never touches the inputs it was derived from.
package model

// Document is an ordered sequence of pages.
type Document struct {
	Pages []*Page
}

// NewDocument returns an empty document.
func NewDocument() *Document { return &Document{} }

// PageCount reports the number of pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// AddPage appends p to the document. The document takes ownership of p.
func (d *Document) AddPage(p *Page) { d.Pages = append(d.Pages, p) }

// AppendPageCopy appends an independent copy of p. The copy shares no
// mutable state with p or its owning document.
func (d *Document) AppendPageCopy(p *Page) { d.Pages = append(d.Pages, p.Clone()) }

// Page is one unit of a document: extent in points plus draw content.
type Page struct {
	Width   float64
	Height  float64
	Content []Op
}

// NewPage returns an empty page of the given extent.
func NewPage(width, height float64) *Page {
	return &Page{Width: width, Height: height}
}

// Append adds draw operations to the page content.
func (p *Page) Append(ops ...Op) { p.Content = append(p.Content, ops...) }

// Clone returns a deep copy of the page. Image payloads are copied too;
// the clone never aliases byte slices of the original.
func (p *Page) Clone() *Page {
	out := &Page{Width: p.Width, Height: p.Height}
	if len(p.Content) > 0 {
		out.Content = make([]Op, len(p.Content))
		for i, op := range p.Content {
			out.Content[i] = op.cloneOp()
		}
	}
	return out
}

// Op is a single draw operation on a page.
type Op interface {
	cloneOp() Op
}

// TextOp draws a single text run at a baseline position.
type TextOp struct {
	Text string
	X    float64
	Y    float64
	Size float64
}

func (t TextOp) cloneOp() Op { return t }

// ImageOp places an image into the rectangle (X, Y, W, H) in page
// coordinates with the origin at the lower-left corner.
type ImageOp struct {
	Image *Image
	X     float64
	Y     float64
	W     float64
	H     float64
}

func (im ImageOp) cloneOp() Op {
	c := im
	c.Image = im.Image.Clone()
	return c
}

// Encoding identifies how an Image payload is stored.
type Encoding int

const (
	// EncodingDCT marks a JPEG (DCTDecode) payload.
	EncodingDCT Encoding = iota
	// EncodingFlate marks a zlib-compressed raw-sample payload.
	EncodingFlate
)

// Image is an embeddable raster. Data holds the payload ready for
// serialization in the declared Encoding. SMask, when set, carries a
// grayscale alpha channel with the same pixel extent.
type Image struct {
	Width            int
	Height           int
	ColorSpace       string // DeviceRGB or DeviceGray
	BitsPerComponent int
	Encoding         Encoding
	Data             []byte
	SMask            *Image
}

// Clone returns a deep copy of the image including its payload bytes.
func (im *Image) Clone() *Image {
	if im == nil {
		return nil
	}
	c := *im
	c.Data = append([]byte(nil), im.Data...)
	c.SMask = im.SMask.Clone()
	return &c
}
