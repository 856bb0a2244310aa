package upload

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxReceiptSize bounds a single proof-of-payment upload.
const MaxReceiptSize = 10 << 20

var ErrUnsupportedType = errors.New("only PDF, JPEG, PNG and WEBP receipts are supported")

var allowedExt = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var allowedMime = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

// ValidateReceiptBySniff checks the filename extension and the first bytes
// of a receipt against a whitelist. Returns the detected mime type.
func ValidateReceiptBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", ErrUnsupportedType
	}

	detected := http.DetectContentType(head)
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") {
		return "", errors.New("HTML content is not allowed")
	}
	if strings.HasPrefix(detected, "text/xml") || detected == "image/svg+xml" {
		return "", errors.New("SVG/XML content is not allowed")
	}
	if allowedMime[detected] {
		return detected, nil
	}
	return "", ErrUnsupportedType
}
