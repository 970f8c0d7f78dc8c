// Package fs implements the storage driver for a directory tree under a fixed
// root on the local filesystem.
package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/objectfs/gateway/internal/buffer"
	gwerrors "github.com/objectfs/gateway/pkg/errors"
	"github.com/objectfs/gateway/pkg/types"
	"github.com/objectfs/gateway/pkg/utils"
)

// DefaultChunkSize is the write chunk size used when none is configured.
const DefaultChunkSize = 1 << 20

// Config represents filesystem driver configuration
type Config struct {
	Root      string `yaml:"root"`
	ChunkSize int    `yaml:"chunk_size"`
	Workers   int    `yaml:"workers"`
}

// Driver stores files verbatim under Root with real directories.
type Driver struct {
	root    string
	fs      afero.Fs
	chunks  *buffer.ChunkPool
	workers *semaphore.Weighted
	logger  *zap.Logger
}

var _ types.Driver = (*Driver)(nil)

// New creates a filesystem driver. The root is created by Init.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	if cfg.Root == "" {
		return nil, errors.New("filesystem root cannot be empty")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Driver{
		root:    root,
		fs:      afero.NewOsFs(),
		chunks:  buffer.ForSize(cfg.ChunkSize),
		workers: semaphore.NewWeighted(int64(cfg.Workers)),
		logger:  logger.With(zap.String("component", "fs-driver"), zap.String("root", root)),
	}, nil
}

// Root returns the absolute storage root
func (d *Driver) Root() string {
	return d.root
}

// run executes a blocking call on the worker pool. The caller stops waiting
// when ctx is done; the call itself runs to completion in the background.
func (d *Driver) run(ctx context.Context, fn func() error) error {
	_, err := d.open(ctx, func() (afero.File, error) {
		return nil, fn()
	})
	return err
}

// open is run for calls that hand back a file. A file opened after the
// caller stopped waiting is closed once the call completes.
func (d *Driver) open(ctx context.Context, fn func() (afero.File, error)) (afero.File, error) {
	if err := d.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	type result struct {
		f   afero.File
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer d.workers.Release(1)
		f, err := fn()
		done <- result{f: f, err: err}
	}()

	select {
	case r := <-done:
		return r.f, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.f != nil {
				r.f.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// resolve canonicalizes an untrusted path and returns its relative and
// absolute forms.
func (d *Driver) resolve(p string) (rel, full string, err error) {
	rel = utils.Normalize(p)
	full, err = utils.Resolve(d.root, rel)
	if err != nil {
		return "", "", err
	}
	return path.Clean("/" + rel)[1:], full, nil
}

// Init creates the root directory if needed.
func (d *Driver) Init(ctx context.Context) error {
	err := d.run(ctx, func() error {
		return d.fs.MkdirAll(d.root, 0o755)
	})
	if err != nil {
		return gwerrors.Wrap(err, "init", "")
	}
	d.logger.Info("Filesystem driver initialized")
	return nil
}

// Stat returns metadata for path
func (d *Driver) Stat(ctx context.Context, p string) (types.FileStat, error) {
	rel, full, err := d.resolve(p)
	if err != nil {
		return types.FileStat{}, err
	}

	var info os.FileInfo
	err = d.run(ctx, func() error {
		var statErr error
		info, statErr = d.fs.Stat(full)
		return statErr
	})
	if err != nil {
		return types.FileStat{}, gwerrors.Wrap(err, "stat", rel)
	}
	return toFileStat(rel, info), nil
}

// Exists reports whether path exists
func (d *Driver) Exists(ctx context.Context, p string) (bool, error) {
	_, err := d.Stat(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case gwerrors.Is(err, gwerrors.KindNotFound):
		return false, nil
	case gwerrors.Is(err, gwerrors.KindFailedPrecondition):
		// a path component is a regular file
		return false, nil
	default:
		return false, err
	}
}

// Listdir returns the direct children of a directory. Children that vanish or
// resolve outside the root between enumeration and stat are skipped.
func (d *Driver) Listdir(ctx context.Context, p string) ([]types.FileStat, error) {
	rel, full, err := d.resolve(p)
	if err != nil {
		return nil, err
	}

	var names []string
	err = d.run(ctx, func() error {
		info, err := d.fs.Stat(full)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return gwerrors.FailedPrecondition(rel, "not a directory")
		}
		dir, err := d.fs.Open(full)
		if err != nil {
			return err
		}
		defer dir.Close()
		names, err = dir.Readdirnames(-1)
		return err
	})
	if err != nil {
		return nil, gwerrors.Wrap(err, "listdir", rel)
	}

	entries := make([]types.FileStat, 0, len(names))
	for _, name := range names {
		child := path.Join(rel, name)
		st, err := d.Stat(ctx, child)
		if err != nil {
			if gwerrors.Is(err, gwerrors.KindNotFound) || gwerrors.Is(err, gwerrors.KindPermissionDenied) {
				d.logger.Debug("Skipping vanished entry", zap.String("path", child), zap.Error(err))
				continue
			}
			return nil, err
		}
		entries = append(entries, st)
	}
	return entries, nil
}

// Mkdirs creates path and any missing parents
func (d *Driver) Mkdirs(ctx context.Context, p string, existOK bool) error {
	rel, full, err := d.resolve(p)
	if err != nil {
		return err
	}

	err = d.run(ctx, func() error {
		if info, err := d.fs.Stat(full); err == nil {
			if !existOK {
				return gwerrors.AlreadyExists(rel)
			}
			if !info.IsDir() {
				return gwerrors.FailedPrecondition(rel, "exists and is not a directory")
			}
			return nil
		}
		return d.fs.MkdirAll(full, 0o755)
	})
	return gwerrors.Wrap(err, "mkdirs", rel)
}

// Rename moves src to dst atomically.
func (d *Driver) Rename(ctx context.Context, src, dst string, overwrite bool) error {
	srcRel, srcFull, err := d.resolve(src)
	if err != nil {
		return err
	}
	dstRel, dstFull, err := d.resolve(dst)
	if err != nil {
		return err
	}
	if srcRel == "" || dstRel == "" {
		return gwerrors.PermissionDenied("", "cannot rename the storage root").WithOp("rename")
	}

	err = d.run(ctx, func() error {
		if _, err := d.fs.Stat(srcFull); err != nil {
			return gwerrors.Wrap(err, "rename", srcRel)
		}
		if !overwrite {
			if _, err := d.fs.Stat(dstFull); err == nil {
				return gwerrors.AlreadyExists(dstRel)
			}
		}
		return d.fs.Rename(srcFull, dstFull)
	})
	return gwerrors.Wrap(err, "rename", srcRel)
}

// Remove deletes a file or directory. Non-empty directories require
// recursive.
func (d *Driver) Remove(ctx context.Context, p string, recursive bool) error {
	rel, full, err := d.resolve(p)
	if err != nil {
		return err
	}
	if rel == "" {
		return gwerrors.PermissionDenied("", "cannot remove the storage root").WithOp("remove")
	}

	err = d.run(ctx, func() error {
		info, err := d.fs.Stat(full)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return d.fs.Remove(full)
		}
		if recursive {
			return d.fs.RemoveAll(full)
		}
		empty, err := afero.IsEmpty(d.fs, full)
		if err != nil {
			return err
		}
		if !empty {
			return gwerrors.FailedPrecondition(rel, "directory not empty")
		}
		return d.fs.Remove(full)
	})
	return gwerrors.Wrap(err, "remove", rel)
}

// ReadStream opens path for reading from offset; length 0 reads to the end.
func (d *Driver) ReadStream(ctx context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	rel, full, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, gwerrors.New(gwerrors.KindInvalidArgument, "offset and length must not be negative").WithPath(rel)
	}

	f, err := d.open(ctx, func() (afero.File, error) {
		info, err := d.fs.Stat(full)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, gwerrors.FailedPrecondition(rel, "is a directory")
		}
		f, err := d.fs.Open(full)
		if err != nil {
			return nil, err
		}
		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				f.Close()
				return nil, err
			}
		}
		return f, nil
	})
	if err != nil {
		return nil, gwerrors.Wrap(err, "read", rel)
	}

	if length > 0 {
		return &limitedFile{Reader: io.LimitReader(f, length), Closer: f}, nil
	}
	return f, nil
}

type limitedFile struct {
	io.Reader
	io.Closer
}

// WriteStream stores src at path, creating missing parent directories. Input
// is copied in fixed-size chunks.
func (d *Driver) WriteStream(ctx context.Context, p string, src io.Reader, opts types.WriteOptions) (int64, error) {
	rel, full, err := d.resolve(p)
	if err != nil {
		return 0, err
	}
	if rel == "" {
		return 0, gwerrors.FailedPrecondition("", "is a directory").WithOp("write")
	}

	// Overwrite truncates only once the caller holds the file, so a write
	// abandoned while opening leaves the old content in place.
	flags := os.O_WRONLY | os.O_CREATE
	switch {
	case opts.Append:
		flags |= os.O_APPEND
	case opts.Overwrite:
	default:
		flags |= os.O_EXCL
	}

	f, err := d.open(ctx, func() (afero.File, error) {
		if info, err := d.fs.Stat(full); err == nil && info.IsDir() {
			return nil, gwerrors.FailedPrecondition(rel, "is a directory")
		}
		if err := d.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return d.fs.OpenFile(full, flags, 0o644)
	})
	if err != nil {
		return 0, gwerrors.Wrap(err, "write", rel)
	}
	if opts.Overwrite && !opts.Append {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return 0, gwerrors.Wrap(err, "write", rel)
		}
	}

	written, copyErr := d.copyChunks(f, src)
	closeErr := f.Close()
	if copyErr != nil {
		return written, gwerrors.Wrap(copyErr, "write", rel)
	}
	if closeErr != nil {
		return written, gwerrors.Wrap(closeErr, "write", rel)
	}

	d.logger.Debug("Write completed", zap.String("path", rel), zap.Int64("bytes", written))
	return written, nil
}

func (d *Driver) copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := d.chunks.Get()
	defer d.chunks.Put(buf)

	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// HealthCheck verifies the root is an accessible directory
func (d *Driver) HealthCheck(ctx context.Context) error {
	return d.run(ctx, func() error {
		info, err := d.fs.Stat(d.root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return gwerrors.FailedPrecondition(d.root, "storage root is not a directory")
		}
		return nil
	})
}

// Close releases driver resources
func (d *Driver) Close() error {
	return nil
}

func toFileStat(rel string, info os.FileInfo) types.FileStat {
	size := info.Size()
	if info.IsDir() {
		size = 0
	}
	name := path.Base("/" + rel)
	if rel == "" {
		name = ""
	}
	return types.FileStat{
		Name:      name,
		RelPath:   rel,
		IsDir:     info.IsDir(),
		Size:      size,
		CreatedAt: changeTime(info),
		UpdatedAt: info.ModTime(),
	}
}
