package service

import (
	"errors"
	"fmt"
)

// Kind classifies operation failures so transports can map them to
// status codes without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	// KindEmptyInput: no files or pages supplied where at least one is
	// required.
	KindEmptyInput
	// KindMalformedDocument: an input buffer cannot be decoded.
	KindMalformedDocument
	// KindInvalidPageIndex: a requested page number is out of range.
	KindInvalidPageIndex
	// KindUnsupportedInputType: a file's declared type is not usable by
	// the operation.
	KindUnsupportedInputType
	// KindEncodingFailure: the final composed document failed to
	// serialize.
	KindEncodingFailure
)

func (k Kind) String() string {
	switch k {
	case KindEmptyInput:
		return "empty_input"
	case KindMalformedDocument:
		return "malformed_document"
	case KindInvalidPageIndex:
		return "invalid_page_index"
	case KindUnsupportedInputType:
		return "unsupported_input_type"
	case KindEncodingFailure:
		return "encoding_failure"
	default:
		return "unknown"
	}
}

// Error is the failure type returned by every service operation. It
// carries a machine-distinguishable kind, a human-readable message,
// and the name of the offending input when one is known. It never
// exposes stack traces or internal paths.
type Error struct {
	Kind    Kind
	Input   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Input, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err, returning KindUnknown for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func opError(kind Kind, input, message string, err error) *Error {
	return &Error{Kind: kind, Input: input, Message: message, Err: err}
}
