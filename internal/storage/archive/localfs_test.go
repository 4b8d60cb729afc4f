package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/newthinker/quarry/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
}

func TestLocalFS_WriteRead(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "results/s1/r1.json", []byte(`{"id":"r1"}`)))
	require.NoError(t, fs.Write(ctx, "results/s1/r1.json", []byte(`{"id":"r1","v":2}`)))

	got, err := fs.Read(ctx, "results/s1/r1.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"r1","v":2}`, string(got))
}

func TestLocalFS_ReadMissing(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	_, err := fs.Read(context.Background(), "results/nope.json")
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
}

func TestLocalFS_ExistsDelete(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	exists, err := fs.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.Write(ctx, "a.json", []byte("x")))
	exists, err = fs.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, fs.Delete(ctx, "a.json"))
	assert.True(t, errors.Is(fs.Delete(ctx, "a.json"), core.ErrNotFound))
}

func TestLocalFS_List(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()
	for _, p := range []string{"results/s2/b.json", "results/s1/a.json", "other/c.json"} {
		require.NoError(t, fs.Write(ctx, p, []byte("{}")))
	}

	paths, err := fs.List(ctx, "results/")
	require.NoError(t, err)
	assert.Equal(t, []string{"results/s1/a.json", "results/s2/b.json"}, paths)

	all, err := fs.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := fs.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalFS_RejectsEscapingPaths(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()
	for _, p := range []string{"../escape.json", "a/../../b", ""} {
		err := fs.Write(ctx, p, []byte("x"))
		assert.True(t, errors.Is(err, core.ErrValidation), "path %q: %v", p, err)
	}
}

func TestNew(t *testing.T) {
	s, err := New(Config{Backend: "localfs", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalFS{}, s)

	_, err = New(Config{Backend: "localfs"})
	assert.True(t, errors.Is(err, core.ErrConfigMissing))

	_, err = New(Config{Backend: "gcs"})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = New(Config{Backend: "s3"})
	assert.True(t, errors.Is(err, core.ErrConfigMissing), "bucket required")

	s, err = New(Config{Backend: "S3", S3: S3Config{Bucket: "results", Endpoint: "http://localhost:9000"}})
	require.NoError(t, err)
	assert.IsType(t, &S3Storage{}, s)
}
