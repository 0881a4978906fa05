package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"contract-backend/internal/extract/ocr"
)

// buildPDF assembles a minimal single-font PDF with one content stream per
// page, tracking byte offsets so the xref table is valid.
func buildPDF(t *testing.T, pageTexts []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	offsets := []int{0} // object 0 is the free head

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pageTexts))
	pageObjBase := 4 // objects 1..3 are catalog, pages, font
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", pageObjBase+2*i)
	}

	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), len(pageTexts)))
	writeObj("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range pageTexts {
		pageNum := pageObjBase + 2*i
		contentNum := pageNum + 1
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>\nendobj\n",
			pageNum, contentNum))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n",
			contentNum, len(stream), stream))
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets))
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets), xrefOffset)

	return buf.Bytes()
}

func TestExtractPDFJoinsPagesWithBlankLine(t *testing.T) {
	data := buildPDF(t, []string{"First page of the agreement", "Second page terms"})

	res := ExtractPDF(data)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.PageCount != 2 {
		t.Errorf("expected 2 pages, got %d", res.PageCount)
	}
	if !strings.Contains(res.Text, "\n\n") {
		t.Errorf("pages must be separated by a blank line, got %q", res.Text)
	}
	if strings.Contains(res.Text, "  ") {
		t.Errorf("whitespace runs must be collapsed, got %q", res.Text)
	}
}

func TestExtractPDFZeroPages(t *testing.T) {
	data := buildPDF(t, nil)

	res := ExtractPDF(data)
	if res.Success {
		t.Fatal("expected failure for zero-page PDF")
	}
	if !strings.Contains(res.Error, "PDF has no pages") {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestExtractPDFImageBasedHint(t *testing.T) {
	data := buildPDF(t, []string{""})

	res := ExtractPDF(data)
	if res.Success {
		t.Fatal("expected failure for text-free PDF")
	}
	if !strings.Contains(res.Error, "image-based") {
		t.Errorf("error must hint at OCR fallback, got %q", res.Error)
	}
}

func TestExtractPDFGarbageInput(t *testing.T) {
	res := ExtractPDF([]byte("definitely not a pdf"))
	if res.Success {
		t.Fatal("expected parse failure")
	}
}

type fakeImageExtractor struct {
	result ocr.Result
	called bool
}

func (f *fakeImageExtractor) ExtractText(ctx context.Context, data []byte, fileName string, onProgress ocr.ProgressFunc) ocr.Result {
	f.called = true
	return f.result
}

func TestDispatchRoutesPDF(t *testing.T) {
	images := &fakeImageExtractor{}
	data := buildPDF(t, []string{"Agreement body text goes here"})

	res := Dispatch(context.Background(), images, data, "contract.pdf", "application/pdf", nil)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Method != "pdf" {
		t.Errorf("expected pdf method, got %q", res.Method)
	}
	if images.called {
		t.Error("OCR must not run for a text PDF")
	}
}

func TestDispatchRoutesImagesToOCR(t *testing.T) {
	images := &fakeImageExtractor{result: ocr.Result{Text: "recognized contract text", Confidence: 88, Success: true}}

	// Tiny valid PNG header payload; content does not matter for routing.
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

	res := Dispatch(context.Background(), images, png, "photo.png", "image/png", nil)
	if !images.called {
		t.Fatal("expected OCR to run for image input")
	}
	if !res.Success || res.Method != "ocr" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Confidence != 88 {
		t.Errorf("confidence must pass through, got %v", res.Confidence)
	}
}

func TestDispatchPlainTextFallback(t *testing.T) {
	images := &fakeImageExtractor{}
	text := []byte("본 계약은 갑과 을 간의 용역 제공에 관한 사항을 정한다.")

	res := Dispatch(context.Background(), images, text, "contract.txt", "", nil)
	if !res.Success {
		t.Fatalf("expected best-effort text read to succeed, got %q", res.Error)
	}
	if res.Method != "text" {
		t.Errorf("expected text method, got %q", res.Method)
	}
}

func TestDispatchRejectsBinaryGarbage(t *testing.T) {
	images := &fakeImageExtractor{}
	garbage := []byte{0x00, 0xff, 0xfe, 0x01, 0x80, 0x81, 0x92, 0xa3}

	res := Dispatch(context.Background(), images, garbage, "mystery.bin", "", nil)
	if res.Success {
		t.Fatal("expected failure for undecodable input")
	}
}
