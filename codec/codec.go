// Package codec implements the document serializer boundary: decoding
// PDF byte buffers into model documents and encoding model documents
// back into well-formed PDF byte streams. Encoding is deterministic:
// the same document always serializes to the same bytes.
package codec

import (
	"fmt"

	"github.com/wudi/doccomposer/model"
)

// Serializer is the capability the composition core consumes. The
// default implementation lives in this package; tests substitute fakes.
type Serializer interface {
	Decode(data []byte) (*model.Document, error)
	Encode(doc *model.Document) ([]byte, error)
}

// MalformedDocumentError reports input bytes that cannot be decoded
// into a document.
type MalformedDocumentError struct {
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: malformed document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("codec: malformed document: %s", e.Reason)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

func malformed(reason string, err error) *MalformedDocumentError {
	return &MalformedDocumentError{Reason: reason, Err: err}
}

type pdfSerializer struct{}

// NewSerializer returns the default PDF serializer.
func NewSerializer() Serializer { return pdfSerializer{} }

func (pdfSerializer) Decode(data []byte) (*model.Document, error) { return decode(data) }

func (pdfSerializer) Encode(doc *model.Document) ([]byte, error) { return encode(doc) }
