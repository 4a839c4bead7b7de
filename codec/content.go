package codec

import (
	"bytes"

	"github.com/wudi/doccomposer/model"
)

// matrix is a PDF transformation matrix [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m × n (m applied first).
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// contentState tracks the graphics and text state needed to recover
// draw operations from a content stream.
type contentState struct {
	ctm      matrix
	stack    []matrix
	fontSize float64
	lineX    float64
	lineY    float64
	leading  float64
}

// parseContent interprets a decoded content stream, appending the text
// runs and image placements it recognizes to page. Operators outside
// that subset are skipped; a partially understood stream is not an
// error.
func (d *decoder) parseContent(content []byte, resources pdfDict, page *model.Page) error {
	lex := newLexer(content)
	st := &contentState{ctm: identity}
	var operands []pdfObj

	for {
		lex.skipSpace()
		if lex.eof() {
			return nil
		}
		c := lex.data[lex.pos]
		if isOperandStart(c) {
			obj, err := lex.readObject(nil)
			if err != nil {
				return nil // tolerate trailing garbage
			}
			operands = append(operands, obj)
			continue
		}
		op, err := lex.readKeyword()
		if err != nil {
			return nil
		}
		d.applyOperator(lex, st, op, operands, resources, page)
		operands = operands[:0]
	}
}

func isOperandStart(c byte) bool {
	if c == '/' || c == '(' || c == '<' || c == '[' || c == '+' || c == '-' || c == '.' {
		return true
	}
	return c >= '0' && c <= '9'
}

func (d *decoder) applyOperator(lex *lexer, st *contentState, op string, operands []pdfObj, resources pdfDict, page *model.Page) {
	switch op {
	case "q":
		st.stack = append(st.stack, st.ctm)
	case "Q":
		if n := len(st.stack); n > 0 {
			st.ctm = st.stack[n-1]
			st.stack = st.stack[:n-1]
		}
	case "cm":
		if m, ok := matrixOperands(operands); ok {
			st.ctm = m.mul(st.ctm)
		}
	case "BT":
		st.lineX, st.lineY = 0, 0
	case "Tf":
		if len(operands) == 2 {
			if n, ok := operands[1].(pdfNumber); ok {
				st.fontSize = float64(n)
			}
		}
	case "TL":
		if len(operands) == 1 {
			if n, ok := operands[0].(pdfNumber); ok {
				st.leading = float64(n)
			}
		}
	case "Td":
		if tx, ty, ok := pairOperands(operands); ok {
			st.lineX += tx
			st.lineY += ty
		}
	case "TD":
		if tx, ty, ok := pairOperands(operands); ok {
			st.lineX += tx
			st.lineY += ty
			st.leading = -ty
		}
	case "Tm":
		if m, ok := matrixOperands(operands); ok {
			st.lineX, st.lineY = m[4], m[5]
		}
	case "T*":
		st.lineY -= st.leading
	case "Tj":
		if len(operands) == 1 {
			if s, ok := operands[0].(pdfString); ok {
				appendText(page, st, string(s))
			}
		}
	case "'":
		st.lineY -= st.leading
		if len(operands) == 1 {
			if s, ok := operands[0].(pdfString); ok {
				appendText(page, st, string(s))
			}
		}
	case "\"":
		st.lineY -= st.leading
		if len(operands) == 3 {
			if s, ok := operands[2].(pdfString); ok {
				appendText(page, st, string(s))
			}
		}
	case "TJ":
		if len(operands) == 1 {
			if arr, ok := operands[0].(pdfArray); ok {
				var text bytes.Buffer
				for _, el := range arr {
					if s, ok := el.(pdfString); ok {
						text.Write(s)
					}
				}
				if text.Len() > 0 {
					appendText(page, st, text.String())
				}
			}
		}
	case "Do":
		if len(operands) == 1 {
			if name, ok := operands[0].(pdfName); ok {
				d.placeXObject(st, string(name), resources, page)
			}
		}
	case "BI":
		// Inline image: skip payload up to EI.
		if idx := bytes.Index(lex.data[lex.pos:], []byte("EI")); idx >= 0 {
			lex.pos += idx + 2
		} else {
			lex.pos = len(lex.data)
		}
	}
}

func appendText(page *model.Page, st *contentState, text string) {
	if text == "" {
		return
	}
	size := st.fontSize
	if size == 0 {
		size = 12
	}
	page.Append(model.TextOp{Text: text, X: st.lineX, Y: st.lineY, Size: size})
}

// placeXObject resolves an image XObject from page resources and
// records its placement from the current transformation matrix.
// Unsupported XObjects (forms, exotic filters) are skipped.
func (d *decoder) placeXObject(st *contentState, name string, resources pdfDict, page *model.Page) {
	xobjects, ok := d.resolvedDict(resources["XObject"])
	if !ok {
		return
	}
	obj, err := d.resolve(xobjects[name], 0)
	if err != nil {
		return
	}
	stream, ok := obj.(*pdfStream)
	if !ok {
		return
	}
	img := d.imageFromStream(stream, 0)
	if img == nil {
		return
	}
	page.Append(model.ImageOp{
		Image: img,
		X:     st.ctm[4],
		Y:     st.ctm[5],
		W:     st.ctm[0],
		H:     st.ctm[3],
	})
}

// imageFromStream converts an image XObject stream into a model image,
// keeping DCT and flate payloads as stored. Returns nil for anything
// it cannot represent.
func (d *decoder) imageFromStream(stream *pdfStream, depth int) *model.Image {
	if depth > 2 {
		return nil
	}
	subtype, _ := stream.dict["Subtype"].(pdfName)
	if subtype != "Image" {
		return nil
	}
	width, okW := numberValue(d, stream.dict["Width"])
	height, okH := numberValue(d, stream.dict["Height"])
	if !okW || !okH || width <= 0 || height <= 0 {
		return nil
	}

	var encoding model.Encoding
	data := stream.data
	filter, _ := d.resolve(stream.dict["Filter"], 0)
	switch f := filter.(type) {
	case nil:
		// Raw samples: recompress so the payload round-trips as flate.
		compressed, err := flate(data)
		if err != nil {
			return nil
		}
		data = compressed
		encoding = model.EncodingFlate
	case pdfName:
		switch f {
		case "DCTDecode":
			encoding = model.EncodingDCT
		case "FlateDecode":
			encoding = model.EncodingFlate
		default:
			return nil
		}
	default:
		return nil
	}

	cs := "DeviceRGB"
	if csObj, err := d.resolve(stream.dict["ColorSpace"], 0); err == nil {
		if name, ok := csObj.(pdfName); ok {
			cs = string(name)
		}
	}
	bits := 8
	if b, ok := numberValue(d, stream.dict["BitsPerComponent"]); ok && b > 0 {
		bits = int(b)
	}

	img := &model.Image{
		Width:            int(width),
		Height:           int(height),
		ColorSpace:       cs,
		BitsPerComponent: bits,
		Encoding:         encoding,
		Data:             append([]byte(nil), data...),
	}
	if maskObj, err := d.resolve(stream.dict["SMask"], 0); err == nil {
		if maskStream, ok := maskObj.(*pdfStream); ok {
			img.SMask = d.imageFromStream(maskStream, depth+1)
		}
	}
	return img
}

func numberValue(d *decoder, obj pdfObj) (float64, bool) {
	r, err := d.resolve(obj, 0)
	if err != nil {
		return 0, false
	}
	n, ok := r.(pdfNumber)
	return float64(n), ok
}

func matrixOperands(operands []pdfObj) (matrix, bool) {
	if len(operands) != 6 {
		return identity, false
	}
	var m matrix
	for i, o := range operands {
		n, ok := o.(pdfNumber)
		if !ok {
			return identity, false
		}
		m[i] = float64(n)
	}
	return m, true
}

func pairOperands(operands []pdfObj) (float64, float64, bool) {
	if len(operands) != 2 {
		return 0, 0, false
	}
	a, okA := operands[0].(pdfNumber)
	b, okB := operands[1].(pdfNumber)
	if !okA || !okB {
		return 0, 0, false
	}
	return float64(a), float64(b), true
}
