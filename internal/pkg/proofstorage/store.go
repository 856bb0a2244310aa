// Package proofstorage keeps uploaded proof-of-payment receipts. The payment
// record only stores the returned reference.
package proofstorage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists one receipt and returns a reference to it. Delete removes a
// receipt by key and is used when the proof it belonged to was refused.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg)
	default:
		return NewLocalStore(cfg.LocalDir)
	}
}

// ObjectKey names a receipt: receipts/YYYY/MM/<reference>-<index>-<uuid><ext>.
func ObjectKey(referenceCode string, installmentIndex int, ext string, now time.Time) string {
	ref := strings.ToLower(strings.ReplaceAll(referenceCode, "/", ""))
	return fmt.Sprintf("receipts/%04d/%02d/%s-%d-%s%s",
		now.Year(), int(now.Month()), ref, installmentIndex, uuid.NewString(), strings.ToLower(ext))
}

// ExtensionFor maps a sniffed content type to a file extension.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}
