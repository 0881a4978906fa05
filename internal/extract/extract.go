// Package extract turns uploaded contract files into plain text. PDFs are
// parsed directly; images go through OCR; anything else gets a best-effort
// plain-text read.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"contract-backend/internal/extract/ocr"
)

const (
	mimePDF = "application/pdf"

	// minTextLength is the shortest aggregate output accepted as a
	// successful extraction.
	minTextLength = 10
)

// Result is the outcome of one extraction. Confidence is 0..100 and only set
// for OCR; PageCount only for PDFs.
type Result struct {
	Text       string
	Success    bool
	Error      string
	Confidence float64
	PageCount  int
	Method     string
}

// ImageExtractor recognizes text in a photographed or scanned contract.
type ImageExtractor interface {
	ExtractText(ctx context.Context, data []byte, fileName string, onProgress ocr.ProgressFunc) ocr.Result
}

// Dispatch sniffs the payload and routes it to the right extractor. Unknown
// types get a best-effort plain-text read rather than a hard rejection.
func Dispatch(ctx context.Context, images ImageExtractor, data []byte, fileName, mimeType string, onProgress ocr.ProgressFunc) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err.Error()}
	}

	detected := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(fileName))

	switch {
	case detected.Is(mimePDF) || strings.EqualFold(mimeType, mimePDF) || ext == ".pdf":
		res := ExtractPDF(data)
		res.Method = "pdf"
		return res
	case strings.HasPrefix(detected.String(), "image/") || strings.HasPrefix(mimeType, "image/"):
		if images == nil {
			return Result{Error: "no OCR engine configured for image input", Method: "ocr"}
		}
		ocrRes := images.ExtractText(ctx, data, fileName, onProgress)
		return Result{
			Text:       ocrRes.Text,
			Success:    ocrRes.Success,
			Error:      ocrRes.Error,
			Confidence: ocrRes.Confidence,
			Method:     "ocr",
		}
	default:
		return extractPlainText(data)
	}
}

// ExtractPDF pulls text from every page in order. Page text items are joined
// with single spaces, whitespace runs collapsed, and pages separated by a
// blank line so coarse paragraph structure survives.
func ExtractPDF(data []byte) Result {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{Error: fmt.Sprintf("parse PDF: %v", err)}
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return Result{Error: "PDF has no pages"}
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		// Collapse runs of whitespace into single spaces.
		if collapsed := strings.Join(strings.Fields(content), " "); collapsed != "" {
			pages = append(pages, collapsed)
		}
	}

	text := strings.Join(pages, "\n\n")
	if len([]rune(strings.TrimSpace(text))) < minTextLength {
		return Result{
			PageCount: numPages,
			Error:     "no extractable text; the PDF may be image-based (scanned) and need OCR",
		}
	}

	return Result{Text: text, Success: true, PageCount: numPages}
}

// extractPlainText accepts any payload that decodes as UTF-8 text.
func extractPlainText(data []byte) Result {
	if !utf8.Valid(data) {
		return Result{Error: "unsupported file type: not valid text", Method: "text"}
	}
	text := strings.TrimSpace(string(data))
	if len([]rune(text)) < minTextLength {
		return Result{Error: "could not extract text from file", Method: "text"}
	}
	return Result{Text: text, Success: true, Method: "text"}
}
