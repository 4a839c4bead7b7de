package codec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/doccomposer/model"
)

// objRef is an indirect object number (generation is always 0 here).
type objRef int

// objTable accumulates serialized objects keyed by number.
type objTable struct {
	next    objRef
	objects map[objRef][]byte
}

func newObjTable() *objTable {
	return &objTable{next: 1, objects: make(map[objRef][]byte)}
}

func (t *objTable) alloc() objRef {
	ref := t.next
	t.next++
	return ref
}

func (t *objTable) set(ref objRef, body []byte) { t.objects[ref] = body }

// encode serializes doc into a complete PDF: header, numbered objects
// in ascending order, xref table, trailer. Object numbers are assigned
// in a fixed traversal order, so identical documents yield identical
// bytes.
func encode(doc *model.Document) ([]byte, error) {
	t := newObjTable()

	catalogRef := t.alloc()
	pagesRef := t.alloc()
	fontRef := t.alloc()
	t.set(fontRef, []byte("<</BaseFont /Helvetica /Subtype /Type1 /Type /Font>>"))

	pageRefs := make([]objRef, 0, len(doc.Pages))
	for _, page := range doc.Pages {
		ref, err := encodePage(t, page, pagesRef, fontRef)
		if err != nil {
			return nil, err
		}
		pageRefs = append(pageRefs, ref)
	}

	var kids bytes.Buffer
	kids.WriteByte('[')
	for i, ref := range pageRefs {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", ref)
	}
	kids.WriteByte(']')
	t.set(pagesRef, []byte(fmt.Sprintf("<</Count %d /Kids %s /Type /Pages>>", len(pageRefs), kids.Bytes())))
	t.set(catalogRef, []byte(fmt.Sprintf("<</Pages %d 0 R /Type /Catalog>>", pagesRef)))

	return emit(t, catalogRef)
}

// encodePage serializes one page: its content stream, any image
// XObjects (and their soft masks), then the page dictionary.
func encodePage(t *objTable, page *model.Page, pagesRef, fontRef objRef) (objRef, error) {
	var content bytes.Buffer
	type namedImage struct {
		name string
		ref  objRef
	}
	var images []namedImage

	for _, op := range page.Content {
		switch o := op.(type) {
		case model.TextOp:
			fmt.Fprintf(&content, "BT /F1 %s Tf %s %s Td (%s) Tj ET\n",
				num(o.Size), num(o.X), num(o.Y), escapeString(o.Text))
		case model.ImageOp:
			if o.Image == nil {
				continue
			}
			ref, err := encodeImage(t, o.Image)
			if err != nil {
				return 0, err
			}
			name := fmt.Sprintf("Im%d", len(images)+1)
			images = append(images, namedImage{name: name, ref: ref})
			fmt.Fprintf(&content, "q %s 0 0 %s %s %s cm /%s Do Q\n",
				num(o.W), num(o.H), num(o.X), num(o.Y), name)
		}
	}

	compressed, err := flate(content.Bytes())
	if err != nil {
		return 0, fmt.Errorf("codec: compress content: %w", err)
	}
	contentRef := t.alloc()
	t.set(contentRef, streamBody(fmt.Sprintf("<</Filter /FlateDecode /Length %d>>", len(compressed)), compressed))

	var dict bytes.Buffer
	fmt.Fprintf(&dict, "<</Contents %d 0 R /MediaBox [0 0 %s %s] /Parent %d 0 R /Resources <</Font <</F1 %d 0 R>>",
		contentRef, num(page.Width), num(page.Height), pagesRef, fontRef)
	if len(images) > 0 {
		dict.WriteString(" /XObject <<")
		for i, im := range images {
			if i > 0 {
				dict.WriteByte(' ')
			}
			fmt.Fprintf(&dict, "/%s %d 0 R", im.name, im.ref)
		}
		dict.WriteString(">>")
	}
	dict.WriteString(">> /Type /Page>>")

	pageRef := t.alloc()
	t.set(pageRef, dict.Bytes())
	return pageRef, nil
}

// encodeImage serializes an image XObject, emitting its soft mask
// first when present.
func encodeImage(t *objTable, img *model.Image) (objRef, error) {
	var smaskRef objRef
	if img.SMask != nil {
		ref, err := encodeImage(t, img.SMask)
		if err != nil {
			return 0, err
		}
		smaskRef = ref
	}

	filter := "/DCTDecode"
	if img.Encoding == model.EncodingFlate {
		filter = "/FlateDecode"
	}
	cs := img.ColorSpace
	if cs == "" {
		cs = "DeviceRGB"
	}
	bits := img.BitsPerComponent
	if bits == 0 {
		bits = 8
	}

	var dict bytes.Buffer
	fmt.Fprintf(&dict, "<</BitsPerComponent %d /ColorSpace /%s /Filter %s /Height %d /Length %d",
		bits, cs, filter, img.Height, len(img.Data))
	if smaskRef != 0 {
		fmt.Fprintf(&dict, " /SMask %d 0 R", smaskRef)
	}
	fmt.Fprintf(&dict, " /Subtype /Image /Type /XObject /Width %d>>", img.Width)

	ref := t.alloc()
	t.set(ref, streamBody(dict.String(), img.Data))
	return ref, nil
}

// emit lays out all objects in ascending number order and appends the
// xref table and trailer.
func emit(t *objTable, catalogRef objRef) ([]byte, error) {
	refs := make([]objRef, 0, len(t.objects))
	for ref := range t.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")

	offsets := make(map[objRef]int)
	for _, ref := range refs {
		offsets[ref] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", ref)
		buf.Write(t.objects[ref])
		buf.WriteString("\nendobj\n")
	}

	maxNum := int(refs[len(refs)-1])
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxNum; i++ {
		if off, ok := offsets[objRef(i)]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&buf, "trailer\n<</Root %d 0 R /Size %d>>\nstartxref\n%d\n%%%%EOF\n",
		catalogRef, maxNum+1, xrefOffset)
	return buf.Bytes(), nil
}

func streamBody(dict string, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(dict)
	buf.WriteString("\nstream\n")
	buf.Write(data)
	buf.WriteString("\nendstream")
	return buf.Bytes()
}

func flate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// num formats a coordinate without trailing zeros.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = trimRight(s, '0')
	s = trimRight(s, '.')
	return s
}

func trimRight(s string, c byte) string {
	for len(s) > 0 && s[len(s)-1] == c {
		s = s[:len(s)-1]
	}
	return s
}

// escapeString escapes characters with syntactic meaning in PDF
// literal strings.
func escapeString(s string) string {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString("\\n")
		case '\r':
			buf.WriteString("\\r")
		default:
			buf.WriteByte(c)
		}
	}
	return buf.String()
}
