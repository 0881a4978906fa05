package contracts

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// magicSignatures maps extensions to the byte prefixes their content must
// carry. A mismatch means the upload was renamed or corrupted.
var magicSignatures = map[string][][]byte{
	".pdf":  {[]byte("%PDF")},
	".png":  {{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}},
	".jpg":  {{0xff, 0xd8, 0xff}},
	".jpeg": {{0xff, 0xd8, 0xff}},
	".gif":  {[]byte("GIF87a"), []byte("GIF89a")},
	".webp": {[]byte("RIFF")},
	".bmp":  {[]byte("BM")},
	".tiff": {{'I', 'I', 0x2a, 0x00}, {'M', 'M', 0x00, 0x2a}},
	".tif":  {{'I', 'I', 0x2a, 0x00}, {'M', 'M', 0x00, 0x2a}},
}

var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

var allowedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
	".txt": true, ".md": true, ".csv": true,
}

// ValidateUpload checks extension allowlist, size cap, and content signature
// before an upload is accepted. Returns the sniffed MIME type.
func ValidateUpload(data []byte, fileName string, maxBytes int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: unsupported file type %q", ErrInvalidInput, ext)
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: %.1fMB exceeds the %.1fMB limit", ErrFileTooLarge,
			float64(len(data))/(1<<20), float64(maxBytes)/(1<<20))
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	if textExtensions[ext] {
		sample := data
		if len(sample) > 1000 {
			sample = sample[:1000]
			// The cutoff can land mid-rune; exclude a multi-byte character
			// split by it so Hangul text is not rejected as binary.
			if start := lastRuneStart(sample); start >= 0 {
				if r, size := utf8.DecodeRune(data[start:]); r != utf8.RuneError && start+size > len(sample) {
					sample = sample[:start]
				}
			}
		}
		if !utf8.Valid(sample) {
			return "", fmt.Errorf("%w: not valid text for %s", ErrBadSignature, ext)
		}
		return "text/plain; charset=utf-8", nil
	}

	sigs := magicSignatures[ext]
	matched := false
	for _, sig := range sigs {
		if len(data) < len(sig) || !equalPrefix(data, sig) {
			continue
		}
		if ext == ".webp" {
			if len(data) < 12 || string(data[8:12]) != "WEBP" {
				continue
			}
		}
		matched = true
		break
	}
	if !matched {
		return "", fmt.Errorf("%w: %s", ErrBadSignature, ext)
	}

	return mimetype.Detect(data).String(), nil
}

// lastRuneStart returns the index of the last byte that can begin a UTF-8
// sequence, looking back at most utf8.UTFMax bytes, or -1.
func lastRuneStart(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			return i
		}
	}
	return -1
}

func equalPrefix(data, sig []byte) bool {
	for i := range sig {
		if data[i] != sig[i] {
			return false
		}
	}
	return true
}
