// Package ocr extracts text from contract photos and scans by shelling out
// to tesseract. The binary is probed lazily on first use and the result
// cached for the extractor's lifetime.
package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"contract-backend/internal/shared/telemetry"
)

const (
	// MaxBytes caps input size before the engine is invoked.
	MaxBytes = 10 << 20
	// MinTextLength is the shortest output accepted as a successful read.
	MinTextLength = 10
	// LowConfidenceThreshold flags (but does not fail) weak recognitions.
	LowConfidenceThreshold = 60.0
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".tif":  true,
	".bmp":  true,
	".webp": true,
}

// Config tunes the tesseract invocation.
type Config struct {
	Binary      string
	Languages   string
	TessdataDir string
}

// Result is the outcome of one recognition pass. Confidence is on a 0..100
// scale blended from the engine's word confidences and a text heuristic.
type Result struct {
	Text       string
	Confidence float64
	Success    bool
	Error      string
}

// ProgressFunc receives a domain-friendly stage label and a 0..1 fraction.
type ProgressFunc func(stage string, fraction float64)

// Extractor wraps the tesseract binary behind a stubbable runner.
type Extractor struct {
	cfg    Config
	runner Runner

	probeOnce sync.Once
	available bool
}

// New builds an extractor with the real exec-backed runner.
func New(cfg Config) *Extractor {
	return NewWithRunner(cfg, execRunner{})
}

// NewWithRunner builds an extractor with a custom runner, used by tests.
func NewWithRunner(cfg Config, runner Runner) *Extractor {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "kor+eng"
	}
	return &Extractor{cfg: cfg, runner: runner}
}

// Available reports whether the OCR binary responds. The probe runs once and
// is cached.
func (e *Extractor) Available(ctx context.Context) bool {
	e.probeOnce.Do(func() {
		_, _, err := e.runner.Run(ctx, e.cfg.Binary, "--version")
		e.available = err == nil
		if err != nil {
			telemetry.Warn("ocr.unavailable", map[string]any{
				"binary": e.cfg.Binary,
				"error":  err.Error(),
			})
		}
	})
	return e.available
}

// ExtractText recognizes text in an image. Oversized or non-image inputs
// fail fast without touching the engine. Output under MinTextLength is a
// failure, not an empty success; low confidence is a warning only.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, fileName string, onProgress ProgressFunc) Result {
	progress := func(stage string, fraction float64) {
		if onProgress != nil {
			onProgress(stage, fraction)
		}
	}

	if len(data) > MaxBytes {
		return Result{Error: fmt.Sprintf("file too large for OCR: %d bytes (max %d)", len(data), MaxBytes)}
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !imageExtensions[ext] {
		return Result{Error: fmt.Sprintf("unsupported image type: %s", ext)}
	}

	progress("Loading OCR engine...", 0.1)
	if !e.Available(ctx) {
		return Result{Error: "OCR engine is not available"}
	}

	tmp, err := os.CreateTemp("", "ocr-*"+ext)
	if err != nil {
		return Result{Error: fmt.Sprintf("stage input: %v", err)}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Result{Error: fmt.Sprintf("stage input: %v", err)}
	}
	if err := tmp.Close(); err != nil {
		return Result{Error: fmt.Sprintf("stage input: %v", err)}
	}

	progress("Recognizing text...", 0.4)
	text, err := e.recognize(ctx, tmp.Name())
	if err != nil {
		return Result{Error: fmt.Sprintf("text recognition failed: %v", err)}
	}

	text = normalize(text)
	if len([]rune(text)) < MinTextLength {
		return Result{Error: "could not extract text from image"}
	}

	progress("Scoring confidence...", 0.8)
	confidence := e.confidence(ctx, tmp.Name(), text)
	if confidence < LowConfidenceThreshold {
		telemetry.Warn("ocr.low_confidence", map[string]any{
			"file":       fileName,
			"confidence": confidence,
			"text_len":   len(text),
		})
	}

	progress("Done", 1)
	return Result{Text: text, Confidence: confidence, Success: true}
}

func (e *Extractor) recognize(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Languages}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, _, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}

// confidence blends the engine's mean word confidence with a text heuristic,
// weighting the engine higher when it reported anything.
func (e *Extractor) confidence(ctx context.Context, path, text string) float64 {
	heuristic := heuristicConfidence(text)

	args := []string{path, "stdout", "-l", e.cfg.Languages}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, _, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		return heuristic
	}
	engine := parseTSVConfidence(string(out))
	if engine == 0 {
		return heuristic
	}
	blended := 0.7*engine + 0.3*heuristic
	if blended > 100 {
		blended = 100
	}
	return blended
}

// normalize trims the output and collapses runs of blank lines.
func normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []string
	blank := false
	for _, ln := range lines {
		ln = strings.TrimRight(ln, " \t")
		if strings.TrimSpace(ln) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
