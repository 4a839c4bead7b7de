package codec

import (
	"bytes"
	"fmt"
	"strconv"
)

// lexer tokenizes PDF syntax out of a byte slice.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte) *lexer { return &lexer{data: data} }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) eof() bool { return l.pos >= len(l.data) }

func (l *lexer) skipSpace() {
	for !l.eof() {
		c := l.data[l.pos]
		if isSpace(c) {
			l.pos++
			continue
		}
		if c == '%' { // comment to end of line
			for !l.eof() && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// readKeyword reads a bare token (obj, stream, trailer, operators...).
func (l *lexer) readKeyword() (string, error) {
	l.skipSpace()
	start := l.pos
	for !l.eof() && !isSpace(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		return "", fmt.Errorf("expected keyword at offset %d", start)
	}
	return string(l.data[start:l.pos]), nil
}

// peekKeyword reports whether the next token equals kw without
// consuming it.
func (l *lexer) peekKeyword(kw string) bool {
	save := l.pos
	got, err := l.readKeyword()
	l.pos = save
	return err == nil && got == kw
}

func (l *lexer) readInt() (int, error) {
	kw, err := l.readKeyword()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(kw)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", kw)
	}
	return n, nil
}

// readObject reads one PDF object. d may be nil; it is only needed to
// resolve indirect /Length values on streams.
func (l *lexer) readObject(d *decoder) (pdfObj, error) {
	l.skipSpace()
	if l.eof() {
		return nil, fmt.Errorf("unexpected end of input")
	}
	c := l.data[l.pos]
	switch {
	case c == '/':
		return l.readName()
	case c == '(':
		return l.readString()
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			return l.readDict(d)
		}
		return l.readHexString()
	case c == '[':
		return l.readArray(d)
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.readNumberOrRef()
	default:
		kw, err := l.readKeyword()
		if err != nil {
			return nil, err
		}
		switch kw {
		case "true":
			return pdfBool(true), nil
		case "false":
			return pdfBool(false), nil
		case "null":
			return pdfNull{}, nil
		}
		return nil, fmt.Errorf("unexpected token %q", kw)
	}
}

func (l *lexer) readName() (pdfObj, error) {
	l.pos++ // consume '/'
	start := l.pos
	for !l.eof() && !isSpace(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return pdfName(l.data[start:l.pos]), nil
}

func (l *lexer) readString() (pdfObj, error) {
	l.pos++ // consume '('
	var out []byte
	depth := 1
	for !l.eof() {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.eof() {
				return nil, fmt.Errorf("unterminated string escape")
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\n': // line continuation
			case '\r':
				if !l.eof() && l.data[l.pos] == '\n' {
					l.pos++
				}
			default:
				if e >= '0' && e <= '7' { // octal, up to 3 digits
					v := int(e - '0')
					for i := 0; i < 2 && !l.eof(); i++ {
						c2 := l.data[l.pos]
						if c2 < '0' || c2 > '7' {
							break
						}
						v = v*8 + int(c2-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return pdfString(out), nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

func (l *lexer) readHexString() (pdfObj, error) {
	l.pos++ // consume '<'
	var out []byte
	var hi byte
	have := false
	for !l.eof() {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			if have {
				out = append(out, hi<<4)
			}
			return pdfString(out), nil
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if have {
			out = append(out, hi<<4|v)
			have = false
		} else {
			hi = v
			have = true
		}
	}
	return nil, fmt.Errorf("unterminated hex string")
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (l *lexer) readArray(d *decoder) (pdfObj, error) {
	l.pos++ // consume '['
	arr := pdfArray{}
	for {
		l.skipSpace()
		if l.eof() {
			return nil, fmt.Errorf("unterminated array")
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return arr, nil
		}
		obj, err := l.readObject(d)
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

func (l *lexer) readDict(d *decoder) (pdfObj, error) {
	l.pos += 2 // consume '<<'
	dict := pdfDict{}
	for {
		l.skipSpace()
		if l.eof() {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if l.data[l.pos] == '>' {
			if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
				l.pos += 2
				break
			}
			return nil, fmt.Errorf("malformed dictionary close")
		}
		if l.data[l.pos] != '/' {
			return nil, fmt.Errorf("dictionary key must be a name")
		}
		keyObj, err := l.readName()
		if err != nil {
			return nil, err
		}
		val, err := l.readObject(d)
		if err != nil {
			return nil, err
		}
		dict[string(keyObj.(pdfName))] = val
	}
	// A dictionary may introduce a stream.
	save := l.pos
	l.skipSpace()
	if l.peekKeyword("stream") {
		if _, err := l.readKeyword(); err != nil {
			return nil, err
		}
		// EOL after "stream" keyword.
		if !l.eof() && l.data[l.pos] == '\r' {
			l.pos++
		}
		if !l.eof() && l.data[l.pos] == '\n' {
			l.pos++
		}
		return l.readStreamData(d, dict)
	}
	l.pos = save
	return dict, nil
}

// readStreamData slices out stream payload using /Length, falling back
// to scanning for endstream when the length is unusable.
func (l *lexer) readStreamData(d *decoder, dict pdfDict) (pdfObj, error) {
	length := -1
	if d != nil {
		if lv, err := d.resolve(dict["Length"], 0); err == nil {
			if n, ok := lv.(pdfNumber); ok {
				length = int(n)
			}
		}
	} else if n, ok := dict["Length"].(pdfNumber); ok {
		length = int(n)
	}
	if length >= 0 && l.pos+length <= len(l.data) {
		data := l.data[l.pos : l.pos+length]
		end := l.pos + length
		// Verify the payload is really followed by endstream; if not,
		// distrust the declared length.
		probe := newLexer(l.data[end:])
		probe.skipSpace()
		if probe.peekKeyword("endstream") {
			l.pos = end + probe.pos
			if _, err := l.readKeyword(); err != nil {
				return nil, err
			}
			return &pdfStream{dict: dict, data: data}, nil
		}
	}
	idx := bytes.Index(l.data[l.pos:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("unterminated stream")
	}
	data := trimStreamTail(l.data[l.pos : l.pos+idx])
	l.pos = l.pos + idx + len("endstream")
	return &pdfStream{dict: dict, data: data}, nil
}

// trimStreamTail drops the EOL that separates payload from endstream.
func trimStreamTail(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return data
}

// readNumberOrRef reads a number, upgrading "N G R" to a reference.
func (l *lexer) readNumberOrRef() (pdfObj, error) {
	start := l.pos
	if l.data[l.pos] == '+' || l.data[l.pos] == '-' {
		l.pos++
	}
	isInt := true
	for !l.eof() {
		c := l.data[l.pos]
		if c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		if c == '.' {
			isInt = false
			l.pos++
			continue
		}
		break
	}
	text := string(l.data[start:l.pos])
	val, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", text)
	}
	if isInt && val >= 0 {
		save := l.pos
		gen, err1 := l.tryInt()
		if err1 == nil {
			kwSave := l.pos
			kw, err2 := l.readKeyword()
			if err2 == nil && kw == "R" {
				return pdfRef{num: int(val), gen: gen}, nil
			}
			l.pos = kwSave
		}
		l.pos = save
	}
	return pdfNumber(val), nil
}

// tryInt reads a bare non-negative integer, failing without consuming
// anything that is not one.
func (l *lexer) tryInt() (int, error) {
	save := l.pos
	l.skipSpace()
	start := l.pos
	for !l.eof() && l.data[l.pos] >= '0' && l.data[l.pos] <= '9' {
		l.pos++
	}
	if l.pos == start || (!l.eof() && !isSpace(l.data[l.pos]) && !isDelim(l.data[l.pos])) {
		l.pos = save
		return 0, fmt.Errorf("not an integer")
	}
	return strconv.Atoi(string(l.data[start:l.pos]))
}
