package naming

import (
	"path/filepath"
	"testing"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.InputRoot = "/media/in"
	cfg.OutputRoot = "/media/out"
	return &cfg
}

func TestOutputPathMirrorsLayout(t *testing.T) {
	cfg := testConfig()
	got, err := OutputPath(cfg, "/media/in/shows/Show/ep01.mkv", config.ContainerMP4)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/media/out/shows/Show/ep01.mp4"), got)
}

func TestOutputPathSanitizes(t *testing.T) {
	cfg := testConfig()
	got, err := OutputPath(cfg, `/media/in/what?  a "name".avi`, config.ContainerMKV)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/media/out/what a name.mkv"), got)
}

func TestOutputPathNoRename(t *testing.T) {
	cfg := testConfig()
	cfg.NoRename = true
	got, err := OutputPath(cfg, `/media/in/keep  spaces?.avi`, config.ContainerMP4)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/media/out/keep  spaces?.mp4"), got)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{`a<b>c:d"e|f?g*h`, "abcdefgh"},
		{"lots    of   space", "lots of space"},
		{"trailing dots...", "trailing dots"},
		{`???`, "unnamed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestCollisionResolver(t *testing.T) {
	cr := NewCollisionResolver()

	out := "/out/movie.mp4"
	assert.Equal(t, out, cr.Resolve("/in/a.mkv", out))
	assert.Equal(t, out, cr.Resolve("/in/a.mkv", out), "owner keeps its claim")

	dup1 := cr.Resolve("/in/b.mkv", out)
	assert.Equal(t, filepath.FromSlash("/out/movie - dup1.mp4"), dup1)

	dup2 := cr.Resolve("/in/c.mkv", out)
	assert.Equal(t, filepath.FromSlash("/out/movie - dup2.mp4"), dup2)
	assert.NotEqual(t, dup1, dup2)

	assert.Equal(t, dup1, cr.Resolve("/in/b.mkv", out), "replayed resolution is stable")
}
