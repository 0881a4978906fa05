package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeRunner answers --version, plain, and tsv invocations from canned data.
type fakeRunner struct {
	versionErr error
	text       string
	textErr    error
	tsv        string
	calls      []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	switch {
	case len(args) > 0 && args[0] == "--version":
		return []byte("tesseract 5.3.0"), nil, f.versionErr
	case len(args) > 0 && args[len(args)-1] == "tsv":
		return []byte(f.tsv), nil, nil
	default:
		return []byte(f.text), nil, f.textErr
	}
}

func tsvWithConfidence(words map[string]int) string {
	var b strings.Builder
	b.WriteString("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n")
	for word, conf := range words {
		fmt.Fprintf(&b, "5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t%d\t%s\n", conf, word)
	}
	return b.String()
}

func TestExtractTextRejectsOversizedInput(t *testing.T) {
	e := NewWithRunner(Config{}, &fakeRunner{})

	res := e.ExtractText(context.Background(), make([]byte, MaxBytes+1), "scan.jpg", nil)
	if res.Success {
		t.Fatal("expected failure for oversized input")
	}
	if !strings.Contains(res.Error, "too large") {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestExtractTextRejectsUnknownType(t *testing.T) {
	runner := &fakeRunner{}
	e := NewWithRunner(Config{}, runner)

	res := e.ExtractText(context.Background(), []byte("%PDF-1.4"), "contract.pdf", nil)
	if res.Success {
		t.Fatal("expected failure for non-image input")
	}
	if len(runner.calls) != 0 {
		t.Errorf("engine must not run for rejected input, saw calls %v", runner.calls)
	}
}

func TestExtractTextUnavailableEngine(t *testing.T) {
	e := NewWithRunner(Config{}, &fakeRunner{versionErr: errors.New("not found")})

	res := e.ExtractText(context.Background(), []byte("img"), "scan.png", nil)
	if res.Success {
		t.Fatal("expected failure when engine missing")
	}
	if !strings.Contains(res.Error, "not available") {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestExtractTextSuccess(t *testing.T) {
	runner := &fakeRunner{
		text: "제1조 (목적) 본 계약은 용역 제공에 관한 사항을 정한다.\n\n제2조 (기간) 2024년 1월 1일부터 1년.",
		tsv:  tsvWithConfidence(map[string]int{"계약": 91, "용역": 88}),
	}
	e := NewWithRunner(Config{}, runner)

	var stages []string
	res := e.ExtractText(context.Background(), []byte("img"), "scan.jpg", func(stage string, fraction float64) {
		stages = append(stages, stage)
		if fraction < 0 || fraction > 1 {
			t.Errorf("fraction out of range: %v", fraction)
		}
	})
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Confidence < LowConfidenceThreshold {
		t.Errorf("expected confident result, got %v", res.Confidence)
	}
	if len(stages) == 0 || stages[0] != "Loading OCR engine..." {
		t.Errorf("expected domain stage labels, got %v", stages)
	}
}

func TestExtractTextShortOutputIsFailure(t *testing.T) {
	runner := &fakeRunner{text: "abc"}
	e := NewWithRunner(Config{}, runner)

	res := e.ExtractText(context.Background(), []byte("img"), "scan.jpg", nil)
	if res.Success {
		t.Fatal("expected failure for output under minimum length")
	}
	if !strings.Contains(res.Error, "could not extract text") {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestExtractTextLowConfidenceStillSucceeds(t *testing.T) {
	runner := &fakeRunner{
		text: strings.Repeat("x", 80),
		tsv:  tsvWithConfidence(map[string]int{"x": 45}),
	}
	e := NewWithRunner(Config{}, runner)

	res := e.ExtractText(context.Background(), []byte("img"), "scan.jpg", nil)
	if !res.Success {
		t.Fatalf("low confidence must not fail the call, got %q", res.Error)
	}
	if res.Confidence >= LowConfidenceThreshold {
		t.Errorf("expected low confidence, got %v", res.Confidence)
	}
}

func TestAvailabilityProbeRunsOnce(t *testing.T) {
	runner := &fakeRunner{}
	e := NewWithRunner(Config{}, runner)

	e.Available(context.Background())
	e.Available(context.Background())

	var probes int
	for _, call := range runner.calls {
		if call == "--version" {
			probes++
		}
	}
	if probes != 1 {
		t.Errorf("expected a single cached probe, got %d", probes)
	}
}
