package codec

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/wudi/doccomposer/model"
)

func textDoc(pages ...string) *model.Document {
	doc := model.NewDocument()
	for _, text := range pages {
		page := model.NewPage(612, 792)
		page.Append(model.TextOp{Text: text, X: 72, Y: 720, Size: 12})
		doc.AddPage(page)
	}
	return doc
}

func flateImage(w, h int) *model.Image {
	raw := make([]byte, w*h*3)
	for i := range raw {
		raw[i] = byte(i)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	return &model.Image{
		Width:            w,
		Height:           h,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Encoding:         model.EncodingFlate,
		Data:             buf.Bytes(),
	}
}

func TestRoundTripText(t *testing.T) {
	s := NewSerializer()
	src := textDoc("first page", "second page", "third page")

	data, err := s.Encode(src)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-1.7")) {
		t.Errorf("Output does not start with a PDF header")
	}

	out, err := s.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.PageCount() != 3 {
		t.Fatalf("Expected 3 pages, got %d", out.PageCount())
	}

	want := []string{"first page", "second page", "third page"}
	for i, page := range out.Pages {
		if page.Width != 612 || page.Height != 792 {
			t.Errorf("Page %d geometry %vx%v", i, page.Width, page.Height)
		}
		if len(page.Content) != 1 {
			t.Fatalf("Page %d: expected 1 op, got %d", i, len(page.Content))
		}
		top, ok := page.Content[0].(model.TextOp)
		if !ok {
			t.Fatalf("Page %d: expected a text op", i)
		}
		if top.Text != want[i] {
			t.Errorf("Page %d text %q, want %q", i, top.Text, want[i])
		}
		if top.X != 72 || top.Y != 720 || top.Size != 12 {
			t.Errorf("Page %d placement (%v, %v) size %v", i, top.X, top.Y, top.Size)
		}
	}
}

func TestRoundTripPageSizes(t *testing.T) {
	s := NewSerializer()
	doc := model.NewDocument()
	doc.AddPage(model.NewPage(595.28, 841.89))
	doc.AddPage(model.NewPage(612, 1008))

	data, err := s.Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := s.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.PageCount() != 2 {
		t.Fatalf("Expected 2 pages, got %d", out.PageCount())
	}
	if math.Abs(out.Pages[0].Width-595.28) > 1e-6 || math.Abs(out.Pages[0].Height-841.89) > 1e-6 {
		t.Errorf("Page 0 is %vx%v", out.Pages[0].Width, out.Pages[0].Height)
	}
	if out.Pages[1].Width != 612 || out.Pages[1].Height != 1008 {
		t.Errorf("Page 1 is %vx%v", out.Pages[1].Width, out.Pages[1].Height)
	}
}

func TestRoundTripImageWithSMask(t *testing.T) {
	s := NewSerializer()
	img := flateImage(4, 3)
	img.SMask = &model.Image{
		Width:            4,
		Height:           3,
		ColorSpace:       "DeviceGray",
		BitsPerComponent: 8,
		Encoding:         model.EncodingFlate,
		Data:             flateImage(4, 3).Data,
	}
	page := model.NewPage(612, 792)
	page.Append(model.ImageOp{Image: img, X: 50, Y: 100, W: 200, H: 150})
	doc := model.NewDocument()
	doc.AddPage(page)

	data, err := s.Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := s.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.PageCount() != 1 {
		t.Fatalf("Expected 1 page, got %d", out.PageCount())
	}

	var got model.ImageOp
	found := false
	for _, op := range out.Pages[0].Content {
		if im, ok := op.(model.ImageOp); ok {
			got = im
			found = true
		}
	}
	if !found {
		t.Fatal("Decoded page has no image op")
	}
	if got.X != 50 || got.Y != 100 || got.W != 200 || got.H != 150 {
		t.Errorf("Placement (%v, %v, %v, %v)", got.X, got.Y, got.W, got.H)
	}
	if got.Image.Width != 4 || got.Image.Height != 3 {
		t.Errorf("Image extent %dx%d", got.Image.Width, got.Image.Height)
	}
	if got.Image.Encoding != model.EncodingFlate {
		t.Errorf("Image encoding %v", got.Image.Encoding)
	}
	if !bytes.Equal(got.Image.Data, img.Data) {
		t.Error("Image payload changed through the round trip")
	}
	if got.Image.SMask == nil {
		t.Fatal("Soft mask lost through the round trip")
	}
	if got.Image.SMask.ColorSpace != "DeviceGray" {
		t.Errorf("Soft mask color space %s", got.Image.SMask.ColorSpace)
	}
}

func TestRoundTripEscapedText(t *testing.T) {
	s := NewSerializer()
	text := `parens (nested) and \backslash`
	data, err := s.Encode(textDoc(text))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := s.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got := out.Pages[0].Content[0].(model.TextOp).Text
	if got != text {
		t.Errorf("Round-tripped %q, want %q", got, text)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	s := NewSerializer()
	doc := textDoc("alpha", "beta")
	page := model.NewPage(595.28, 841.89)
	page.Append(model.ImageOp{Image: flateImage(2, 2), X: 10, Y: 10, W: 50, H: 50})
	doc.AddPage(page)

	first, err := s.Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	second, err := s.Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Two encodings of the same document differ")
	}
}

func TestEncodeEmptyDocument(t *testing.T) {
	s := NewSerializer()
	data, err := s.Encode(model.NewDocument())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("Empty document still needs a valid header")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	s := NewSerializer()
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("this is not a pdf"),
		[]byte("%PDF-1.7\ngarbage with no objects"),
	}
	for i, data := range cases {
		_, err := s.Decode(data)
		var mde *MalformedDocumentError
		if !errors.As(err, &mde) {
			t.Errorf("Case %d: expected *MalformedDocumentError, got %v", i, err)
		}
	}
}

func TestDecodeRejectsEncrypted(t *testing.T) {
	s := NewSerializer()
	_, err := s.Decode(encryptedFixture())
	var mde *MalformedDocumentError
	if !errors.As(err, &mde) {
		t.Fatalf("Expected *MalformedDocumentError, got %v", err)
	}
	if mde.Reason != "encrypted documents are not supported" {
		t.Errorf("Reason %q", mde.Reason)
	}
}

// encryptedFixture builds a minimal document whose trailer declares an
// /Encrypt dictionary.
func encryptedFixture() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	offsets := make([]int, 4)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	writeObj(1, "<</Type /Catalog /Pages 2 0 R>>")
	writeObj(2, "<</Type /Pages /Kids [3 0 R] /Count 1>>")
	writeObj(3, "<</Type /Page /Parent 2 0 R /MediaBox [0 0 612 792]>>")

	xref := buf.Len()
	buf.WriteString("xref\n0 4\n0000000000 65535 f \n")
	for num := 1; num <= 3; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<</Size 4 /Root 1 0 R /Encrypt <</Filter /Standard>>>>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestDecodeFallsBackToObjectScan(t *testing.T) {
	s := NewSerializer()
	data, err := s.Encode(textDoc("scan me"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Corrupt the startxref offset so the declared table is unusable.
	broken := bytes.Replace(data, []byte("startxref"), []byte("startxrefX"), 1)

	out, err := s.Decode(broken)
	if err != nil {
		t.Fatalf("Decode with broken xref failed: %v", err)
	}
	if out.PageCount() != 1 {
		t.Fatalf("Expected 1 page, got %d", out.PageCount())
	}
	if got := out.Pages[0].Content[0].(model.TextOp).Text; got != "scan me" {
		t.Errorf("Recovered text %q", got)
	}
}

func TestDecodeInheritedMediaBox(t *testing.T) {
	s := NewSerializer()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, 4)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	writeObj(1, "<</Type /Catalog /Pages 2 0 R>>")
	writeObj(2, "<</Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 300 400]>>")
	writeObj(3, "<</Type /Page /Parent 2 0 R>>")
	xref := buf.Len()
	buf.WriteString("xref\n0 4\n0000000000 65535 f \n")
	for num := 1; num <= 3; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<</Size 4 /Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", xref)

	out, err := s.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Pages[0].Width != 300 || out.Pages[0].Height != 400 {
		t.Errorf("Page inherited %vx%v, want 300x400", out.Pages[0].Width, out.Pages[0].Height)
	}
}
