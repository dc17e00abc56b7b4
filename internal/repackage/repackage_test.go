package repackage

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/kaniko-controller/internal/logging/loggingtest"
	"github.com/replicate/kaniko-controller/internal/storage"
)

type memStore struct {
	objects map[string][]byte
	putErr  error
	puts    []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Get(ctx context.Context, bucket string, key string) (io.ReadCloser, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Put(ctx context.Context, bucket string, key string, body io.Reader) error {
	m.puts = append(m.puts, bucket+"/"+key)
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func makeZip(t *testing.T, entries map[string]string, dirs ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, dir := range dirs {
		_, err := w.Create(dir)
		require.NoError(t, err)
	}
	for name, contents := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// readTarGz returns regular file contents keyed by name, plus every entry name.
func readTarGz(t *testing.T, data []byte) (map[string]string, []string) {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := map[string]string{}
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			contents, err := io.ReadAll(tr)
			require.NoError(t, err)
			files[hdr.Name] = string(contents)
		}
	}
	return files, names
}

func TestTargetKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"app.zip":          "app.tar.gz",
		"nested/dir/a.zip": "nested/dir/a.tar.gz",
		"UPPER.ZIP":        "UPPER.tar.gz",
		"zipper.zip":       "zipper.tar.gz",
		"no-extension":     "no-extension.tar.gz",
		"archive.zip.bak":  "archive.zip.bak.tar.gz",
		"pizza":            "pizza.tar.gz",
	}
	for in, want := range tests {
		assert.Equal(t, want, TargetKey(in), in)
	}
}

func TestRepackageRoundTrip(t *testing.T) {
	t.Parallel()

	entries := map[string]string{
		"Dockerfile":         "FROM alpine\nCOPY . /app\n",
		"main.go":            "package main\n",
		"my/dir/bar.txt":     "bar",
		"anotherdir/baz.txt": "baz",
		"empty-file":         "",
	}
	store := newMemStore()
	store.objects["bucket/src/app.zip"] = makeZip(t, entries, "emptydir/")

	stagingRoot := t.TempDir()
	r := New(store, stagingRoot, loggingtest.NewTestLogger(t))

	artifact, err := r.Repackage(t.Context(), "bucket", "src/app.zip")
	require.NoError(t, err)
	assert.Equal(t, Artifact{Bucket: "bucket", Key: "src/app.tar.gz"}, artifact)
	assert.Equal(t, "s3://bucket/src/app.tar.gz", artifact.Location())

	uploaded, ok := store.objects["bucket/src/app.tar.gz"]
	require.True(t, ok, "expected the build context to be uploaded")

	files, names := readTarGz(t, uploaded)
	assert.Equal(t, entries, files)
	for _, name := range names {
		assert.False(t, strings.HasPrefix(name, "/"), "absolute entry %s", name)
		assert.False(t, strings.HasPrefix(name, "tree"), "staging root leaked into %s", name)
		assert.NotEqual(t, "./", name)
	}

	leftovers, err := os.ReadDir(stagingRoot)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "staging directory should be cleaned up")
}

func TestRepackageSymlinkEntries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("app/main.py")
	require.NoError(t, err)
	_, err = f.Write([]byte("print('hi')\n"))
	require.NoError(t, err)

	hdr := &zip.FileHeader{Name: "app/link.py", Method: zip.Deflate}
	hdr.SetMode(os.ModeSymlink | 0o777)
	f, err = w.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = f.Write([]byte("main.py"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	store := newMemStore()
	store.objects["bucket/src.zip"] = buf.Bytes()
	r := New(store, t.TempDir(), loggingtest.NewTestLogger(t))

	artifact, err := r.Repackage(t.Context(), "bucket", "src.zip")
	require.NoError(t, err)

	files, _ := readTarGz(t, store.objects["bucket/"+artifact.Key])
	assert.Equal(t, map[string]string{
		"app/main.py": "print('hi')\n",
		"app/link.py": "main.py",
	}, files)
}

func TestRepackageMissingSource(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	stagingRoot := t.TempDir()
	r := New(store, stagingRoot, loggingtest.NewTestLogger(t))

	_, err := r.Repackage(t.Context(), "bucket", "missing.zip")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	assert.Empty(t, store.puts)

	leftovers, err := os.ReadDir(stagingRoot)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRepackageNotAZip(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.objects["bucket/app.zip"] = []byte("definitely not a zip")
	r := New(store, t.TempDir(), loggingtest.NewTestLogger(t))

	_, err := r.Repackage(t.Context(), "bucket", "app.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expanding s3://bucket/app.zip")
	assert.Empty(t, store.puts)
}

func TestRepackageRejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.objects["bucket/app.zip"] = makeZip(t, map[string]string{"../evil.txt": "gotcha"})
	r := New(store, t.TempDir(), loggingtest.NewTestLogger(t))

	_, err := r.Repackage(t.Context(), "bucket", "app.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the archive root")
}

func TestRepackageUploadFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.objects["bucket/app.zip"] = makeZip(t, map[string]string{"a.txt": "a"})
	store.putErr = errors.New("AccessDenied")
	r := New(store, t.TempDir(), loggingtest.NewTestLogger(t))

	_, err := r.Repackage(t.Context(), "bucket", "app.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploading build context")
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Equal(t, []string{"bucket/app.tar.gz"}, store.puts)
}

func TestRepackageBadStagingRoot(t *testing.T) {
	t.Parallel()

	r := New(newMemStore(), "/nonexistent/staging/root", loggingtest.NewTestLogger(t))
	_, err := r.Repackage(t.Context(), "bucket", "app.zip")
	assert.ErrorContains(t, err, "creating staging directory")
}
