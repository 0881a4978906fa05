package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func noisyImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x + y) * 3), A: 255})
		}
	}
	return img
}

func TestCompressPassthroughSmallInput(t *testing.T) {
	data := encodePNG(t, noisyImage(8, 8))

	res, err := Compress(data, "image/png", DefaultOptions())
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if res.CompressionRatio != 1 {
		t.Errorf("expected ratio exactly 1, got %v", res.CompressionRatio)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("expected input returned unchanged")
	}
}

func TestCompressPassthroughNonImage(t *testing.T) {
	data := bytes.Repeat([]byte("contract text "), 20_000)

	res, err := Compress(data, "application/pdf", DefaultOptions())
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if res.CompressionRatio != 1 {
		t.Errorf("expected ratio exactly 1 for non-image, got %v", res.CompressionRatio)
	}
}

func TestCompressDownscalesOversizedImage(t *testing.T) {
	data := encodePNG(t, noisyImage(800, 400))

	opts := DefaultOptions()
	opts.MaxWidth = 200
	opts.MaxHeight = 200
	opts.MinSizeBytes = 1

	res, err := Compress(data, "image/png", opts)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if res.Width != 200 || res.Height != 100 {
		t.Errorf("expected 200x100 preserving aspect, got %dx%d", res.Width, res.Height)
	}
	if res.MimeType != "image/jpeg" {
		t.Errorf("expected jpeg output, got %s", res.MimeType)
	}

	decoded, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("output not decodable: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("encoded dimensions %dx%d", b.Dx(), b.Dy())
	}
}

func TestCompressNeverUpscales(t *testing.T) {
	data := encodePNG(t, noisyImage(64, 64))

	opts := DefaultOptions()
	opts.MinSizeBytes = 1

	res, err := Compress(data, "image/png", opts)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if res.Width != 64 || res.Height != 64 {
		t.Errorf("small image must keep dimensions, got %dx%d", res.Width, res.Height)
	}
}

func TestCompressFlattensTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	// Fully transparent input should come out white, not black.
	data := encodePNG(t, img)

	opts := DefaultOptions()
	opts.MinSizeBytes = 1

	res, err := Compress(data, "image/png", opts)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	r, g, b, _ := decoded.At(16, 16).RGBA()
	if r < 0xf000 || g < 0xf000 || b < 0xf000 {
		t.Errorf("transparent pixel not flattened to white: r=%x g=%x b=%x", r, g, b)
	}
}

func TestCompressRejectsCorruptImage(t *testing.T) {
	data := bytes.Repeat([]byte{0xde, 0xad}, 60_000)

	if _, err := Compress(data, "image/png", DefaultOptions()); err == nil {
		t.Fatal("expected error for undecodable input")
	}
}
