package probe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestContentHashDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("shrink"), 1000)
	p1 := writeTemp(t, "a.mkv", data)
	p2 := writeTemp(t, "renamed elsewhere.mkv", data)

	h1, size1, err := ContentHash(p1)
	require.NoError(t, err)
	h2, size2, err := ContentHash(p2)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "identity must survive renames and moves")
	assert.Equal(t, int64(len(data)), size1)
	assert.Equal(t, size1, size2)
	assert.Len(t, h1, 64)
}

func TestContentHashSensitiveToContent(t *testing.T) {
	p1 := writeTemp(t, "a.mkv", bytes.Repeat([]byte{1}, 4096))
	p2 := writeTemp(t, "b.mkv", bytes.Repeat([]byte{2}, 4096))

	h1, _, err := ContentHash(p1)
	require.NoError(t, err)
	h2, _, err := ContentHash(p2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestContentHashSensitiveToSize(t *testing.T) {
	// Large files are sampled head and tail; padding the middle must still
	// change the identity because the length is part of the digest.
	head := bytes.Repeat([]byte{7}, hashSampleSize)
	tail := bytes.Repeat([]byte{9}, hashSampleSize)

	small := append(append([]byte{}, head...), tail...)
	large := append(append(append([]byte{}, head...), make([]byte, 1024)...), tail...)

	p1 := writeTemp(t, "small.mkv", small)
	p2 := writeTemp(t, "large.mkv", large)

	h1, _, err := ContentHash(p1)
	require.NoError(t, err)
	h2, _, err := ContentHash(p2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestContentHashMissingFile(t *testing.T) {
	_, _, err := ContentHash(filepath.Join(t.TempDir(), "nope.mkv"))
	assert.Error(t, err)
}
