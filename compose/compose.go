// Package compose builds new documents from existing ones by
// selecting, copying, and ordering pages. All functions are pure:
// outputs are fresh documents whose pages are deep copies, so callers
// can keep using the sources afterwards.
package compose

import (
	"errors"
	"fmt"

	"github.com/wudi/doccomposer/model"
)

// ErrEmptyInput reports that an operation requiring at least one
// source document or page received none.
var ErrEmptyInput = errors.New("compose: no input supplied")

// PageIndexError reports a requested page index outside [0, PageCount).
type PageIndexError struct {
	Index     int
	PageCount int
}

func (e *PageIndexError) Error() string {
	return fmt.Sprintf("compose: page index %d out of range [0, %d)", e.Index, e.PageCount)
}

// Merge concatenates every page of every source, in input order, into
// a new document. No page is skipped, reordered, or deduplicated; the
// output page count is the sum of the input page counts. A single
// source is legal and yields an equivalent copy.
func Merge(sources []*model.Document) (*model.Document, error) {
	if len(sources) == 0 {
		return nil, ErrEmptyInput
	}
	out := model.NewDocument()
	for _, src := range sources {
		for _, page := range src.Pages {
			out.AppendPageCopy(page)
		}
	}
	return out, nil
}

// Extract builds a new document containing one copy of the source page
// for each entry of indices, in the order given. Indices may repeat.
// Any out-of-range index rejects the whole operation with a
// *PageIndexError; nothing is silently clamped or dropped.
func Extract(src *model.Document, indices []int) (*model.Document, error) {
	if len(indices) == 0 {
		return nil, ErrEmptyInput
	}
	for _, idx := range indices {
		if idx < 0 || idx >= src.PageCount() {
			return nil, &PageIndexError{Index: idx, PageCount: src.PageCount()}
		}
	}
	out := model.NewDocument()
	for _, idx := range indices {
		out.AppendPageCopy(src.Pages[idx])
	}
	return out, nil
}
