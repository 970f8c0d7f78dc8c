package fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/objectfs/gateway/pkg/errors"
	"github.com/objectfs/gateway/pkg/types"
)

const testChunkSize = 16

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(Config{Root: t.TempDir(), ChunkSize: testChunkSize, Workers: 4}, nil)
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background()))
	return d
}

func writeString(t *testing.T, d *Driver, p, content string) {
	t.Helper()
	_, err := d.WriteStream(context.Background(), p, bytes.NewBufferString(content), types.WriteOptions{Overwrite: true})
	require.NoError(t, err)
}

func readAll(t *testing.T, d *Driver, p string, offset, length int64) []byte {
	t.Helper()
	rc, err := d.ReadStream(context.Background(), p, offset, length)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

// countingReader records how many times Read was called.
type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

func TestNew_EmptyRoot(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestDriver_InitCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	d, err := New(Config{Root: root}, nil)
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background()))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, d.HealthCheck(context.Background()))
}

func TestDriver_RoundTrip(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	sizes := []int{0, 1, testChunkSize - 1, testChunkSize, testChunkSize + 1, 5*testChunkSize + 3}
	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i % 251)
		}
		p := fmt.Sprintf("round/trip/file-%d", size)

		n, err := d.WriteStream(ctx, p, bytes.NewReader(payload), types.WriteOptions{Overwrite: true})
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, int64(size), n)

		got := readAll(t, d, p, 0, 0)
		assert.Equal(t, payload, got, "size %d", size)

		st, err := d.Stat(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, int64(size), st.Size)
		assert.False(t, st.IsDir)
	}
}

func TestDriver_ReadRange(t *testing.T) {
	d := newTestDriver(t)
	writeString(t, d, "range.txt", "0123456789")

	assert.Equal(t, []byte("3456"), readAll(t, d, "range.txt", 3, 4))
	assert.Equal(t, []byte("789"), readAll(t, d, "range.txt", 7, 0))
	assert.Equal(t, []byte("89"), readAll(t, d, "range.txt", 8, 100))
	assert.Empty(t, readAll(t, d, "range.txt", 20, 0))
}

func TestDriver_ReadErrors(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	require.NoError(t, d.Mkdirs(ctx, "dir", true))

	_, err := d.ReadStream(ctx, "missing.txt", 0, 0)
	assert.True(t, gwerrors.Is(err, gwerrors.KindNotFound), "got %v", err)

	_, err = d.ReadStream(ctx, "dir", 0, 0)
	assert.True(t, gwerrors.Is(err, gwerrors.KindFailedPrecondition), "got %v", err)
}

func TestDriver_Traversal(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	outside := filepath.Join(filepath.Dir(d.Root()), "evil.txt")

	_, err := d.WriteStream(ctx, "../evil.txt", bytes.NewBufferString("x"), types.WriteOptions{Overwrite: true})
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied), "got %v", err)
	_, statErr := os.Stat(outside)
	assert.True(t, os.IsNotExist(statErr))

	_, err = d.Stat(ctx, "a/../../etc/passwd")
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied), "got %v", err)

	_, err = d.ReadStream(ctx, "..", 0, 0)
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied), "got %v", err)

	err = d.Remove(ctx, "../"+filepath.Base(d.Root()), true)
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied), "got %v", err)
}

func TestDriver_LeadingSlashIsRelative(t *testing.T) {
	d := newTestDriver(t)
	writeString(t, d, "/docs/a.txt", "hello")

	data, err := os.ReadFile(filepath.Join(d.Root(), "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	st, err := d.Stat(context.Background(), `\docs\a.txt`)
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", st.RelPath)
	assert.Equal(t, "a.txt", st.Name)
}

func TestDriver_WriteModes(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	writeString(t, d, "modes.txt", "abc")

	src := &countingReader{r: bytes.NewBufferString("zzz")}
	_, err := d.WriteStream(ctx, "modes.txt", src, types.WriteOptions{})
	assert.True(t, gwerrors.Is(err, gwerrors.KindAlreadyExists), "got %v", err)
	assert.Zero(t, src.reads, "input must not be consumed when the destination exists")

	_, err = d.WriteStream(ctx, "modes.txt", bytes.NewBufferString("def"), types.WriteOptions{Append: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), readAll(t, d, "modes.txt", 0, 0))

	_, err = d.WriteStream(ctx, "modes.txt", bytes.NewBufferString("q"), types.WriteOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("q"), readAll(t, d, "modes.txt", 0, 0))

	_, err = d.WriteStream(ctx, "fresh.txt", bytes.NewBufferString("new"), types.WriteOptions{Append: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), readAll(t, d, "fresh.txt", 0, 0))
}

func TestDriver_WriteOntoDirectory(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	require.NoError(t, d.Mkdirs(ctx, "adir", true))

	_, err := d.WriteStream(ctx, "adir", bytes.NewBufferString("x"), types.WriteOptions{Overwrite: true})
	assert.True(t, gwerrors.Is(err, gwerrors.KindFailedPrecondition), "got %v", err)
}

func TestDriver_Mkdirs(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	require.NoError(t, d.Mkdirs(ctx, "a/b/c", true))
	require.NoError(t, d.Mkdirs(ctx, "a/b/c", true))

	err := d.Mkdirs(ctx, "a/b/c", false)
	assert.True(t, gwerrors.Is(err, gwerrors.KindAlreadyExists), "got %v", err)

	writeString(t, d, "file.txt", "x")
	err = d.Mkdirs(ctx, "file.txt", true)
	assert.True(t, gwerrors.Is(err, gwerrors.KindFailedPrecondition), "got %v", err)

	st, err := d.Stat(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, st.IsDir)
	assert.Zero(t, st.Size)
}

func TestDriver_Exists(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	writeString(t, d, "here.txt", "x")

	ok, err := d.Exists(ctx, "here.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Exists(ctx, "gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.Exists(ctx, "here.txt/child")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Exists(ctx, "../x")
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied))
}

func TestDriver_Listdir(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	writeString(t, d, "list/one.txt", "1")
	writeString(t, d, "list/two.txt", "22")
	require.NoError(t, d.Mkdirs(ctx, "list/sub", true))
	writeString(t, d, "list/sub/deep.txt", "deep")

	entries, err := d.Listdir(ctx, "list")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	assert.Equal(t, "one.txt", entries[0].Name)
	assert.Equal(t, "list/one.txt", entries[0].RelPath)
	assert.Equal(t, "sub", entries[1].Name)
	assert.True(t, entries[1].IsDir)
	assert.Equal(t, int64(2), entries[2].Size)

	root, err := d.Listdir(ctx, "")
	require.NoError(t, err)
	assert.Len(t, root, 1)

	_, err = d.Listdir(ctx, "list/one.txt")
	assert.True(t, gwerrors.Is(err, gwerrors.KindFailedPrecondition), "got %v", err)

	_, err = d.Listdir(ctx, "nope")
	assert.True(t, gwerrors.Is(err, gwerrors.KindNotFound), "got %v", err)
}

func TestDriver_ListdirSkipsEscapingLinks(t *testing.T) {
	d := newTestDriver(t)
	writeString(t, d, "links/ok.txt", "x")
	if err := os.Symlink(t.TempDir(), filepath.Join(d.Root(), "links", "out")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	entries, err := d.Listdir(context.Background(), "links")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok.txt", entries[0].Name)
}

func TestDriver_Rename(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	writeString(t, d, "src.txt", "source")
	writeString(t, d, "dst.txt", "dest")

	err := d.Rename(ctx, "src.txt", "dst.txt", false)
	assert.True(t, gwerrors.Is(err, gwerrors.KindAlreadyExists), "got %v", err)

	require.NoError(t, d.Rename(ctx, "src.txt", "dst.txt", true))
	assert.Equal(t, []byte("source"), readAll(t, d, "dst.txt", 0, 0))

	ok, err := d.Exists(ctx, "src.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	err = d.Rename(ctx, "missing.txt", "other.txt", true)
	assert.True(t, gwerrors.Is(err, gwerrors.KindNotFound), "got %v", err)

	err = d.Rename(ctx, "dst.txt", "../outside.txt", true)
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied), "got %v", err)
}

func TestDriver_Remove(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	writeString(t, d, "tree/a.txt", "a")
	writeString(t, d, "tree/sub/b.txt", "b")
	require.NoError(t, d.Mkdirs(ctx, "empty", true))

	err := d.Remove(ctx, "tree", false)
	assert.True(t, gwerrors.Is(err, gwerrors.KindFailedPrecondition), "got %v", err)

	require.NoError(t, d.Remove(ctx, "empty", false))
	require.NoError(t, d.Remove(ctx, "tree/a.txt", false))
	require.NoError(t, d.Remove(ctx, "tree", true))

	ok, err := d.Exists(ctx, "tree")
	require.NoError(t, err)
	assert.False(t, ok)

	err = d.Remove(ctx, "tree", true)
	assert.True(t, gwerrors.Is(err, gwerrors.KindNotFound), "got %v", err)

	err = d.Remove(ctx, "", true)
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied), "got %v", err)
	err = d.Remove(ctx, "/", true)
	assert.True(t, gwerrors.Is(err, gwerrors.KindPermissionDenied), "got %v", err)
}

func TestDriver_CanceledContext(t *testing.T) {
	d := newTestDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Stat(ctx, "anything")
	assert.Error(t, err)
}

// closeRecorder signals when the wrapped file is closed.
type closeRecorder struct {
	afero.File
	closed chan struct{}
}

func (c *closeRecorder) Close() error {
	close(c.closed)
	return c.File.Close()
}

func TestDriver_AbandonedOpenIsClosed(t *testing.T) {
	d := newTestDriver(t)
	writeString(t, d, "held.txt", "data")

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	rec := &closeRecorder{closed: make(chan struct{})}

	result := make(chan error, 1)
	go func() {
		f, err := d.open(ctx, func() (afero.File, error) {
			close(started)
			<-release
			f, err := d.fs.Open(filepath.Join(d.Root(), "held.txt"))
			if err != nil {
				return nil, err
			}
			rec.File = f
			return rec, nil
		})
		assert.Nil(t, f)
		result <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-result, context.Canceled)

	close(release)
	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("file opened after cancellation was never closed")
	}
}

func TestDriver_OverwriteKeepsContentUntilOpened(t *testing.T) {
	d := newTestDriver(t)
	writeString(t, d, "keep.txt", "original")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.WriteStream(ctx, "keep.txt", bytes.NewBufferString("replacement"), types.WriteOptions{Overwrite: true})
	assert.Error(t, err)
	assert.Equal(t, []byte("original"), readAll(t, d, "keep.txt", 0, 0))

	writeString(t, d, "keep.txt", "new")
	assert.Equal(t, []byte("new"), readAll(t, d, "keep.txt", 0, 0))
}
