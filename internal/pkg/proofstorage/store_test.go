package proofstorage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	key := ObjectKey("CNV-26-ABCDE", 2, ".PDF", now)

	assert.True(t, strings.HasPrefix(key, "receipts/2026/03/cnv-26-abcde-2-"), key)
	assert.True(t, strings.HasSuffix(key, ".pdf"), key)
	assert.NotEqual(t, key, ObjectKey("CNV-26-ABCDE", 2, ".pdf", now))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".pdf", ExtensionFor("application/pdf"))
	assert.Equal(t, ".jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, ".bin", ExtensionFor("text/plain"))
}

func TestLocalStore_Put(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "receipts/2026/03/a.pdf", "application/pdf", strings.NewReader("%PDF-1.4"), 8)
	require.NoError(t, err)
	assert.Equal(t, "receipts/2026/03/a.pdf", ref)

	data, err := os.ReadFile(filepath.Join(root, "receipts", "2026", "03", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = store.Put(context.Background(), "receipts/2026/03/a.pdf", "application/pdf", strings.NewReader("x"), 1)
	assert.Error(t, err, "existing receipts are never overwritten")
}

func TestLocalStore_Delete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	key := "receipts/2026/03/b.png"
	_, err = store.Put(context.Background(), key, "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), key))
	_, err = os.Stat(filepath.Join(root, "receipts", "2026", "03", "b.png"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(context.Background(), key), "deleting twice is fine")
	assert.Error(t, store.Delete(context.Background(), "../outside.png"))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside.pdf", "/etc/passwd", "a/../../b.pdf"} {
		_, err := store.Put(context.Background(), key, "application/pdf", strings.NewReader("x"), 1)
		assert.Error(t, err, key)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PROOF_STORAGE", "s3")
	t.Setenv("S3_ACCESS_KEY_ID", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("PROOF_STORAGE", "ftp")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("PROOF_STORAGE", "local")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend)
}
