// Package imaging downscales and re-encodes oversized images before upload.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
)

// Options controls the resize and re-encode behavior.
type Options struct {
	MaxWidth  int
	MaxHeight int
	// Quality is the JPEG quality in [1,100].
	Quality int
	// MinSizeBytes is the threshold below which input is passed through.
	MinSizeBytes int
}

// DefaultOptions matches the upload pipeline defaults.
func DefaultOptions() Options {
	return Options{
		MaxWidth:     2048,
		MaxHeight:    2048,
		Quality:      85,
		MinSizeBytes: 100 * 1024,
	}
}

// Result describes a compression outcome. When the input is passed through
// unchanged, CompressionRatio is exactly 1 and Data aliases the input.
type Result struct {
	Data             []byte
	MimeType         string
	OriginalSize     int
	CompressedSize   int
	CompressionRatio float64
	Width            int
	Height           int
}

// Compress re-encodes an image as JPEG, downscaling when it exceeds the
// configured maxima. Non-image MIME types and inputs under the size threshold
// are returned unchanged. On error callers should keep the original bytes and
// skip compression.
func Compress(data []byte, mimeType string, opts Options) (Result, error) {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 2048
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 2048
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}

	if !strings.HasPrefix(mimeType, "image/") || len(data) < opts.MinSizeBytes {
		return Result{
			Data:             data,
			MimeType:         mimeType,
			OriginalSize:     len(data),
			CompressedSize:   len(data),
			CompressionRatio: 1,
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	targetW, targetH := fitWithin(width, height, opts.MaxWidth, opts.MaxHeight)

	// Flatten onto an opaque white background so transparent regions do not
	// turn black in the JPEG output.
	flat := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if targetW == width && targetH == height {
		draw.Draw(flat, flat.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(flat, flat.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return Result{}, fmt.Errorf("encode jpeg: %w", err)
	}

	out := buf.Bytes()
	return Result{
		Data:             out,
		MimeType:         "image/jpeg",
		OriginalSize:     len(data),
		CompressedSize:   len(out),
		CompressionRatio: float64(len(out)) / float64(len(data)),
		Width:            targetW,
		Height:           targetH,
	}, nil
}

// fitWithin scales (w,h) down to fit inside (maxW,maxH) preserving aspect
// ratio. Images already inside the box keep their dimensions; nothing is ever
// upscaled.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}
