package codec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/doccomposer/model"
)

// pdf object model for decoding. Kept deliberately small: only the
// shapes the page walk needs.
type (
	pdfObj    interface{}
	pdfDict   map[string]pdfObj
	pdfArray  []pdfObj
	pdfName   string
	pdfString []byte
	pdfNumber float64
	pdfBool   bool
	pdfNull   struct{}
	pdfRef    struct{ num, gen int }
	pdfStream struct {
		dict pdfDict
		data []byte // raw, still filtered
	}
)

const maxResolveDepth = 32

// decoder reads one PDF byte buffer.
type decoder struct {
	data    []byte
	xref    map[int]int64 // object number -> byte offset
	trailer pdfDict
	cache   map[int]pdfObj
}

// decode parses data into a model document. Every failure is wrapped
// as a *MalformedDocumentError.
func decode(data []byte) (*model.Document, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, malformed("missing %PDF header", nil)
	}
	d := &decoder{data: data, cache: make(map[int]pdfObj)}
	if err := d.loadXref(); err != nil {
		// Broken or unsupported xref: fall back to a linear object scan.
		if scanErr := d.scanObjects(); scanErr != nil {
			return nil, malformed("unreadable cross-reference table", err)
		}
	}
	if _, ok := d.trailer["Encrypt"]; ok {
		return nil, malformed("encrypted documents are not supported", nil)
	}
	root, err := d.catalog()
	if err != nil {
		return nil, err
	}
	pagesObj, err := d.resolve(root["Pages"], 0)
	if err != nil {
		return nil, malformed("catalog has no readable page tree", err)
	}
	pagesDict, ok := pagesObj.(pdfDict)
	if !ok {
		return nil, malformed("page tree root is not a dictionary", nil)
	}
	doc := model.NewDocument()
	if err := d.walkPages(pagesDict, pdfDict{}, doc, 0); err != nil {
		return nil, err
	}
	if doc.PageCount() == 0 {
		return nil, malformed("document has no pages", nil)
	}
	return doc, nil
}

// loadXref locates startxref and follows classic xref tables through
// their /Prev chain.
func (d *decoder) loadXref() error {
	tail := d.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return fmt.Errorf("startxref not found")
	}
	lex := newLexer(tail[idx+len("startxref"):])
	offTok, err := lex.readObject(nil)
	if err != nil {
		return fmt.Errorf("startxref offset: %w", err)
	}
	offset, ok := offTok.(pdfNumber)
	if !ok {
		return fmt.Errorf("startxref offset is not a number")
	}

	d.xref = make(map[int]int64)
	d.trailer = pdfDict{}
	next := int64(offset)
	visited := make(map[int64]bool)
	for next > 0 && !visited[next] {
		visited[next] = true
		prev, err := d.readXrefSection(next)
		if err != nil {
			return err
		}
		next = prev
	}
	return nil
}

// readXrefSection parses one classic xref table plus its trailer and
// returns the /Prev offset (0 when absent).
func (d *decoder) readXrefSection(offset int64) (int64, error) {
	if offset < 0 || offset >= int64(len(d.data)) {
		return 0, fmt.Errorf("xref offset %d out of bounds", offset)
	}
	lex := newLexer(d.data[offset:])
	kw, err := lex.readKeyword()
	if err != nil || kw != "xref" {
		return 0, fmt.Errorf("no xref table at offset %d", offset)
	}
	for {
		lex.skipSpace()
		if lex.peekKeyword("trailer") {
			break
		}
		start, err := lex.readInt()
		if err != nil {
			return 0, fmt.Errorf("xref subsection header: %w", err)
		}
		count, err := lex.readInt()
		if err != nil {
			return 0, fmt.Errorf("xref subsection header: %w", err)
		}
		for i := 0; i < count; i++ {
			off, err := lex.readInt()
			if err != nil {
				return 0, fmt.Errorf("xref entry: %w", err)
			}
			if _, err := lex.readInt(); err != nil { // generation
				return 0, fmt.Errorf("xref entry: %w", err)
			}
			kind, err := lex.readKeyword()
			if err != nil {
				return 0, fmt.Errorf("xref entry: %w", err)
			}
			num := start + i
			if kind == "n" {
				if _, seen := d.xref[num]; !seen {
					d.xref[num] = int64(off)
				}
			}
		}
	}
	if _, err := lex.readKeyword(); err != nil { // consume "trailer"
		return 0, err
	}
	tObj, err := lex.readObject(nil)
	if err != nil {
		return 0, fmt.Errorf("trailer: %w", err)
	}
	tDict, ok := tObj.(pdfDict)
	if !ok {
		return 0, fmt.Errorf("trailer is not a dictionary")
	}
	for k, v := range tDict {
		if _, exists := d.trailer[k]; !exists {
			d.trailer[k] = v
		}
	}
	if prev, ok := tDict["Prev"].(pdfNumber); ok {
		return int64(prev), nil
	}
	return 0, nil
}

// scanObjects rebuilds the xref by scanning for "N G obj" headers.
// Used when the declared table is broken, or uses xref streams.
func (d *decoder) scanObjects() error {
	d.xref = make(map[int]int64)
	if d.trailer == nil {
		d.trailer = pdfDict{}
	}
	for pos := 0; pos < len(d.data); {
		idx := bytes.Index(d.data[pos:], []byte(" obj"))
		if idx < 0 {
			break
		}
		at := pos + idx
		// Walk back over "N G" preceding " obj".
		end := at
		start := end
		fields := 0
		for start > 0 && fields < 2 {
			c := d.data[start-1]
			if c >= '0' && c <= '9' {
				start--
				continue
			}
			if c == ' ' && fields == 0 && start < end {
				fields++
				start--
				continue
			}
			break
		}
		header := bytes.Fields(d.data[start:at])
		if len(header) == 2 {
			if num, err := strconv.Atoi(string(header[0])); err == nil {
				d.xref[num] = int64(start)
			}
		}
		pos = at + 4
	}
	if len(d.xref) == 0 {
		return fmt.Errorf("no objects found")
	}
	return nil
}

// catalog returns the document catalog, searching all objects when the
// trailer is missing a usable /Root.
func (d *decoder) catalog() (pdfDict, error) {
	if rootRef, ok := d.trailer["Root"]; ok {
		obj, err := d.resolve(rootRef, 0)
		if err == nil {
			if dict, ok := obj.(pdfDict); ok {
				return dict, nil
			}
		}
	}
	for num := range d.xref {
		obj, err := d.object(num)
		if err != nil {
			continue
		}
		if dict, ok := obj.(pdfDict); ok {
			if t, _ := dict["Type"].(pdfName); t == "Catalog" {
				return dict, nil
			}
		}
	}
	return nil, malformed("no document catalog", nil)
}

// walkPages recurses through the page tree collecting leaf pages.
// MediaBox and Resources inherit from ancestors per the page tree
// rules.
func (d *decoder) walkPages(node pdfDict, inherited pdfDict, doc *model.Document, depth int) error {
	if depth > maxResolveDepth {
		return malformed("page tree too deep", nil)
	}
	merged := pdfDict{}
	for k, v := range inherited {
		merged[k] = v
	}
	for _, key := range []string{"MediaBox", "Resources"} {
		if v, ok := node[key]; ok {
			merged[key] = v
		}
	}
	nodeType, _ := node["Type"].(pdfName)
	if nodeType == "Page" {
		page, err := d.buildPage(node, merged)
		if err != nil {
			return err
		}
		doc.AddPage(page)
		return nil
	}
	kidsObj, err := d.resolve(node["Kids"], 0)
	if err != nil {
		return malformed("unreadable page tree kids", err)
	}
	kids, ok := kidsObj.(pdfArray)
	if !ok {
		return malformed("page tree kids is not an array", nil)
	}
	for _, kid := range kids {
		kidObj, err := d.resolve(kid, 0)
		if err != nil {
			return malformed("unreadable page tree node", err)
		}
		kidDict, ok := kidObj.(pdfDict)
		if !ok {
			return malformed("page tree node is not a dictionary", nil)
		}
		if err := d.walkPages(kidDict, merged, doc, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// buildPage turns a page dictionary into a model page with its decoded
// content operations.
func (d *decoder) buildPage(node, inherited pdfDict) (*model.Page, error) {
	width, height := 612.0, 792.0
	if boxObj, err := d.resolve(inherited["MediaBox"], 0); err == nil {
		if box, ok := boxObj.(pdfArray); ok && len(box) == 4 {
			vals := make([]float64, 4)
			valid := true
			for i, v := range box {
				r, err := d.resolve(v, 0)
				if err != nil {
					valid = false
					break
				}
				n, ok := r.(pdfNumber)
				if !ok {
					valid = false
					break
				}
				vals[i] = float64(n)
			}
			if valid && vals[2] > vals[0] && vals[3] > vals[1] {
				width = vals[2] - vals[0]
				height = vals[3] - vals[1]
			}
		}
	}
	page := model.NewPage(width, height)

	content, err := d.pageContent(node)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 {
		resources, _ := d.resolvedDict(inherited["Resources"])
		if err := d.parseContent(content, resources, page); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// pageContent concatenates the decoded bytes of all content streams.
func (d *decoder) pageContent(node pdfDict) ([]byte, error) {
	contObj, err := d.resolve(node["Contents"], 0)
	if err != nil || contObj == nil {
		return nil, nil
	}
	streams := pdfArray{contObj}
	if arr, ok := contObj.(pdfArray); ok {
		streams = arr
	}
	var out bytes.Buffer
	for _, s := range streams {
		obj, err := d.resolve(s, 0)
		if err != nil {
			continue
		}
		stream, ok := obj.(*pdfStream)
		if !ok {
			continue
		}
		data, err := d.streamData(stream)
		if err != nil {
			return nil, malformed("unreadable content stream", err)
		}
		out.Write(data)
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// streamData applies the stream's filter. Only FlateDecode and
// unfiltered streams are supported for content; anything else is
// returned raw.
func (d *decoder) streamData(s *pdfStream) ([]byte, error) {
	filter, _ := d.resolve(s.dict["Filter"], 0)
	switch f := filter.(type) {
	case nil:
		return s.data, nil
	case pdfName:
		if f == "FlateDecode" {
			return inflate(s.data)
		}
		return s.data, nil
	case pdfArray:
		data := s.data
		for _, entry := range f {
			name, _ := entry.(pdfName)
			if name == "FlateDecode" {
				var err error
				if data, err = inflate(data); err != nil {
					return nil, err
				}
			}
		}
		return data, nil
	default:
		return s.data, nil
	}
}

func (d *decoder) resolvedDict(obj pdfObj) (pdfDict, bool) {
	r, err := d.resolve(obj, 0)
	if err != nil {
		return nil, false
	}
	dict, ok := r.(pdfDict)
	return dict, ok
}

// object fetches and caches the object with the given number.
func (d *decoder) object(num int) (pdfObj, error) {
	if obj, ok := d.cache[num]; ok {
		return obj, nil
	}
	offset, ok := d.xref[num]
	if !ok {
		return pdfNull{}, nil
	}
	if offset < 0 || offset >= int64(len(d.data)) {
		return nil, fmt.Errorf("object %d offset out of bounds", num)
	}
	lex := newLexer(d.data[offset:])
	if _, err := lex.readInt(); err != nil {
		return nil, fmt.Errorf("object %d header: %w", num, err)
	}
	if _, err := lex.readInt(); err != nil {
		return nil, fmt.Errorf("object %d header: %w", num, err)
	}
	kw, err := lex.readKeyword()
	if err != nil || kw != "obj" {
		return nil, fmt.Errorf("object %d: missing obj keyword", num)
	}
	obj, err := lex.readObject(d)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	d.cache[num] = obj
	return obj, nil
}

// resolve follows indirect references until a direct object remains.
func (d *decoder) resolve(obj pdfObj, depth int) (pdfObj, error) {
	if depth > maxResolveDepth {
		return nil, fmt.Errorf("reference chain too deep")
	}
	ref, ok := obj.(pdfRef)
	if !ok {
		return obj, nil
	}
	target, err := d.object(ref.num)
	if err != nil {
		return nil, err
	}
	return d.resolve(target, depth+1)
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	return out, nil
}
