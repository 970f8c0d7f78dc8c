package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/objectfs/gateway/internal/buffer"
	gwerrors "github.com/objectfs/gateway/pkg/errors"
	"github.com/objectfs/gateway/pkg/retry"
	"github.com/objectfs/gateway/pkg/types"
	"github.com/objectfs/gateway/pkg/utils"
)

const abortTimeout = 30 * time.Second

// Driver stores files as objects in a single bucket. A directory is either a
// zero-length key ending in "/" or any key prefix shared by other objects.
type Driver struct {
	api        API
	presign    presignAPI
	bucket     string
	region     string
	partSize   int64
	presignTTL time.Duration

	deleteRetry *retry.Retryer
	parts       *buffer.ChunkPool
	uploads     *MultipartStateManager
	metrics     *MetricsCollector
	logger      *zap.Logger
}

var (
	_ types.Driver        = (*Driver)(nil)
	_ types.Presigner     = (*Driver)(nil)
	_ types.StatsReporter = (*Driver)(nil)
)

// NewDriver creates an S3 driver talking to the configured endpoint.
func NewDriver(ctx context.Context, cfg *Config, logger *zap.Logger) (*Driver, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d, err := NewDriverWithAPI(client, cfg, logger)
	if err != nil {
		return nil, err
	}
	d.presign = s3.NewPresignClient(client)
	return d, nil
}

// NewDriverWithAPI creates an S3 driver over an existing client. Presigning
// is unavailable on drivers built this way.
func NewDriverWithAPI(api API, cfg *Config, logger *zap.Logger) (*Driver, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Driver{
		api:         api,
		bucket:      cfg.Bucket,
		region:      cfg.Region,
		partSize:    cfg.PartSize,
		presignTTL:  cfg.PresignTTL,
		deleteRetry: retry.New(cfg.DeleteRetry),
		parts:       buffer.ForSize(int(cfg.PartSize)),
		uploads:     NewMultipartStateManager(),
		metrics:     NewMetricsCollector(),
		logger:      logger.With(zap.String("component", "s3-driver"), zap.String("bucket", cfg.Bucket)),
	}, nil
}

// Init verifies the bucket is reachable and creates it when missing.
func (d *Driver) Init(ctx context.Context) (err error) {
	defer d.track(time.Now(), &err)

	_, err = d.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err == nil {
		d.logger.Info("S3 driver initialized")
		return nil
	}
	switch {
	case isAccessDenied(err):
		return gwerrors.PermissionDenied("", "access to bucket denied").WithOp("init").WithCause(err)
	case !isNotFound(err) && !isErrorType[*s3types.NoSuchBucket](err):
		return gwerrors.New(gwerrors.KindInternal, "object store unreachable").WithOp("init").WithCause(err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(d.bucket)}
	if d.region != "" && d.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(d.region),
		}
	}
	if _, err = d.api.CreateBucket(ctx, input); err != nil {
		if isErrorType[*s3types.BucketAlreadyOwnedByYou](err) {
			return nil
		}
		if isAccessDenied(err) {
			return gwerrors.PermissionDenied("", "not allowed to create bucket").WithOp("init").WithCause(err)
		}
		return d.translateError(err, "init", "")
	}

	d.logger.Info("Created missing bucket", zap.String("region", d.region))
	return nil
}

// Stat returns metadata for an object or a directory prefix.
func (d *Driver) Stat(ctx context.Context, p string) (st types.FileStat, err error) {
	key, err := utils.ObjectKey(p)
	if err != nil {
		return types.FileStat{}, err
	}
	if key == "" {
		return types.DirStat(""), nil
	}
	defer d.track(time.Now(), &err)

	out, err := d.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		modified := aws.ToTime(out.LastModified)
		return types.FileStat{
			Name:      baseName(key),
			RelPath:   key,
			Size:      aws.ToInt64(out.ContentLength),
			CreatedAt: modified,
			UpdatedAt: modified,
			ETag:      unquote(aws.ToString(out.ETag)),
		}, nil
	}
	if !isNotFound(err) {
		return types.FileStat{}, d.translateError(err, "stat", key)
	}

	dir, err := d.isDir(ctx, key)
	if err != nil {
		return types.FileStat{}, d.translateError(err, "stat", key)
	}
	if !dir {
		return types.FileStat{}, gwerrors.NotFound(key).WithOp("stat")
	}
	return types.DirStat(key), nil
}

// Exists reports whether an object or directory prefix exists
func (d *Driver) Exists(ctx context.Context, p string) (bool, error) {
	_, err := d.Stat(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case gwerrors.Is(err, gwerrors.KindNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Listdir lists the direct children of a prefix. Common prefixes become
// directory entries; the directory's own marker is skipped.
func (d *Driver) Listdir(ctx context.Context, p string) (entries []types.FileStat, err error) {
	key, err := utils.ObjectKey(p)
	if err != nil {
		return nil, err
	}
	defer d.track(time.Now(), &err)

	prefix := dirKey(key)
	paginator := s3.NewListObjectsV2Paginator(d.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	seen := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, d.translateError(err, "listdir", key)
		}
		for _, cp := range page.CommonPrefixes {
			seen = true
			entries = append(entries, types.DirStat(strings.TrimSuffix(aws.ToString(cp.Prefix), "/")))
		}
		for _, obj := range page.Contents {
			seen = true
			k := aws.ToString(obj.Key)
			if k == prefix {
				continue
			}
			modified := aws.ToTime(obj.LastModified)
			entries = append(entries, types.FileStat{
				Name:      baseName(k),
				RelPath:   k,
				Size:      aws.ToInt64(obj.Size),
				CreatedAt: modified,
				UpdatedAt: modified,
				ETag:      unquote(aws.ToString(obj.ETag)),
			})
		}
	}

	if !seen && key != "" {
		if d.objectExists(ctx, key) {
			return nil, gwerrors.FailedPrecondition(key, "not a directory").WithOp("listdir")
		}
		return nil, gwerrors.NotFound(key).WithOp("listdir")
	}
	return entries, nil
}

// Mkdirs writes a directory marker. Parents are implicit in object keys.
func (d *Driver) Mkdirs(ctx context.Context, p string, existOK bool) (err error) {
	key, err := utils.ObjectKey(p)
	if err != nil {
		return err
	}
	if key == "" {
		if !existOK {
			return gwerrors.AlreadyExists("").WithOp("mkdirs")
		}
		return nil
	}
	defer d.track(time.Now(), &err)

	if d.objectExists(ctx, key) {
		if !existOK {
			return gwerrors.AlreadyExists(key).WithOp("mkdirs")
		}
		return gwerrors.FailedPrecondition(key, "exists and is not a directory").WithOp("mkdirs")
	}
	if !existOK {
		dir, err := d.isDir(ctx, key)
		if err != nil {
			return d.translateError(err, "mkdirs", key)
		}
		if dir {
			return gwerrors.AlreadyExists(key).WithOp("mkdirs")
		}
	}

	_, err = d.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(dirKey(key)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	return d.translateError(err, "mkdirs", key)
}

// Rename copies src to dst and deletes src. Only single objects can be
// renamed; a failed source delete is retried and then reported.
func (d *Driver) Rename(ctx context.Context, src, dst string, overwrite bool) (err error) {
	srcKey, err := utils.ObjectKey(src)
	if err != nil {
		return err
	}
	dstKey, err := utils.ObjectKey(dst)
	if err != nil {
		return err
	}
	if srcKey == "" || dstKey == "" {
		return gwerrors.PermissionDenied("", "cannot rename the bucket root").WithOp("rename")
	}
	defer d.track(time.Now(), &err)

	if !d.objectExists(ctx, srcKey) {
		dir, err := d.isDir(ctx, srcKey)
		if err != nil {
			return d.translateError(err, "rename", srcKey)
		}
		if dir {
			return gwerrors.Unsupported("rename", "renaming a directory prefix is not supported").WithPath(srcKey)
		}
		return gwerrors.NotFound(srcKey).WithOp("rename")
	}
	if !overwrite {
		exists, err := d.Exists(ctx, dstKey)
		if err != nil {
			return err
		}
		if exists {
			return gwerrors.AlreadyExists(dstKey).WithOp("rename")
		}
	}

	_, err = d.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(d.bucket, srcKey)),
	})
	if err != nil {
		return d.translateError(err, "rename", srcKey)
	}

	err = d.deleteRetry.DoWithContext(ctx, func(ctx context.Context) error {
		_, err := d.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(srcKey),
		})
		return d.translateError(err, "rename", srcKey)
	})
	if err != nil {
		d.logger.Error("Rename left source behind",
			zap.String("src", srcKey), zap.String("dst", dstKey), zap.Error(err))
		return gwerrors.New(gwerrors.KindInternal,
			"copied to %s but failed to delete source; both objects now exist", dstKey).
			WithOp("rename").WithPath(srcKey).WithCause(err)
	}
	return nil
}

// Remove deletes an object or a directory prefix.
func (d *Driver) Remove(ctx context.Context, p string, recursive bool) (err error) {
	key, err := utils.ObjectKey(p)
	if err != nil {
		return err
	}
	if key == "" {
		return gwerrors.PermissionDenied("", "cannot remove the bucket root").WithOp("remove")
	}
	defer d.track(time.Now(), &err)

	if d.objectExists(ctx, key) {
		_, err = d.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		})
		return d.translateError(err, "remove", key)
	}

	prefix := dirKey(key)
	if !recursive {
		out, err := d.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(d.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(2),
		})
		if err != nil {
			return d.translateError(err, "remove", key)
		}
		switch {
		case len(out.Contents) == 0:
			return gwerrors.NotFound(key).WithOp("remove")
		case len(out.Contents) == 1 && aws.ToString(out.Contents[0].Key) == prefix:
			_, err = d.api.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(d.bucket),
				Key:    aws.String(prefix),
			})
			return d.translateError(err, "remove", key)
		default:
			return gwerrors.FailedPrecondition(key, "directory not empty").WithOp("remove")
		}
	}

	paginator := s3.NewListObjectsV2Paginator(d.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})
	removed := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return d.translateError(err, "remove", key)
		}
		keys := make([]string, 0, len(page.Contents))
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if err := d.deleteKeys(ctx, key, keys); err != nil {
			return err
		}
		removed += len(keys)
	}
	if removed == 0 {
		return gwerrors.NotFound(key).WithOp("remove")
	}

	d.logger.Debug("Removed prefix", zap.String("prefix", prefix), zap.Int("objects", removed))
	return nil
}

// deleteKeys removes keys in batches, surfacing per-key failures.
func (d *Driver) deleteKeys(ctx context.Context, path string, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}

		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := d.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return d.translateError(err, "remove", path)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return gwerrors.New(gwerrors.KindInternal, "failed to delete %d objects (first %s: %s)",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message)).
				WithOp("remove").WithPath(path)
		}
	}
	return nil
}

// ReadStream fetches an object, ranged when offset or length is set. The
// returned reader owns the response body.
func (d *Driver) ReadStream(ctx context.Context, p string, offset, length int64) (rc io.ReadCloser, err error) {
	key, err := utils.ObjectKey(p)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, gwerrors.FailedPrecondition("", "is a directory").WithOp("read")
	}
	if offset < 0 || length < 0 {
		return nil, gwerrors.New(gwerrors.KindInvalidArgument, "offset and length must not be negative").WithPath(key)
	}
	defer d.track(time.Now(), &err)

	input := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}
	if r := rangeHeader(offset, length); r != "" {
		input.Range = aws.String(r)
	}

	out, err := d.api.GetObject(ctx, input)
	if err != nil {
		if isInvalidRange(err) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		if isNotFound(err) {
			if dir, _ := d.isDir(ctx, key); dir {
				return nil, gwerrors.FailedPrecondition(key, "is a directory").WithOp("read")
			}
		}
		return nil, d.translateError(err, "read", key)
	}
	return &meteredBody{ReadCloser: out.Body, metrics: d.metrics}, nil
}

type meteredBody struct {
	io.ReadCloser
	metrics *MetricsCollector
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.metrics.RecordBytesDownloaded(int64(n))
	}
	return n, err
}

// WriteStream uploads src as a multipart upload, one part per PartSize bytes.
// Any failure after the upload is created aborts it before returning.
func (d *Driver) WriteStream(ctx context.Context, p string, src io.Reader, opts types.WriteOptions) (written int64, err error) {
	key, err := utils.ObjectKey(p)
	if err != nil {
		return 0, err
	}
	if key == "" {
		return 0, gwerrors.FailedPrecondition("", "is a directory").WithOp("write")
	}
	if opts.Append {
		return 0, gwerrors.Unsupported("write", "append is not supported by the object store").WithPath(key)
	}
	defer d.track(time.Now(), &err)

	if !opts.Overwrite && d.objectExists(ctx, key) {
		return 0, gwerrors.AlreadyExists(key).WithOp("write")
	}

	start := time.Now()
	created, err := d.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(detectContentType(key)),
	})
	if err != nil {
		return 0, d.translateError(err, "write", key)
	}

	state := NewMultipartUploadState(aws.ToString(created.UploadId), d.bucket, key, d.partSize)
	d.uploads.TrackUpload(state)
	d.metrics.RecordMultipartUploadStart()

	written, err = d.uploadParts(ctx, state, src)
	if err == nil {
		_, err = d.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(d.bucket),
			Key:             aws.String(key),
			UploadId:        aws.String(state.UploadID),
			MultipartUpload: &s3types.CompletedMultipartUpload{Parts: state.CompletedParts()},
		})
	}
	if err != nil {
		d.abort(ctx, state, err)
		return 0, d.translateError(err, "write", key)
	}

	d.uploads.Finish(state.UploadID, UploadStatusCompleted)
	d.metrics.RecordMultipartUploadComplete(time.Since(start))
	d.metrics.RecordBytesUploaded(written)
	d.logger.Debug("Multipart upload completed",
		zap.String("key", key), zap.Int64("bytes", written), zap.Int("parts", len(state.Parts)))
	return written, nil
}

// uploadParts fills a part-sized buffer from src and uploads it until src is
// exhausted. Empty input still produces a single empty part.
func (d *Driver) uploadParts(ctx context.Context, state *MultipartUploadState, src io.Reader) (int64, error) {
	buf := d.parts.Get()
	defer d.parts.Put(buf)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, rerr := io.ReadFull(src, buf)
		last := rerr == io.EOF || rerr == io.ErrUnexpectedEOF
		if rerr != nil && !last {
			return total, rerr
		}

		if n > 0 || len(state.Parts) == 0 {
			num := state.NextPartNumber()
			out, err := d.api.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(d.bucket),
				Key:           aws.String(state.Key),
				UploadId:      aws.String(state.UploadID),
				PartNumber:    aws.Int32(num),
				Body:          bytes.NewReader(buf[:n]),
				ContentLength: aws.Int64(int64(n)),
			})
			if err != nil {
				return total, err
			}
			state.MarkPartCompleted(num, int64(n), aws.ToString(out.ETag))
			d.metrics.RecordMultipartUploadPart(int64(n))
			total += int64(n)
		}

		if last {
			return total, nil
		}
	}
}

// abort cancels an upload on a context detached from the caller, so a
// canceled write still releases its parts.
func (d *Driver) abort(parent context.Context, state *MultipartUploadState, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), abortTimeout)
	defer cancel()

	_, err := d.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(d.bucket),
		Key:      aws.String(state.Key),
		UploadId: aws.String(state.UploadID),
	})
	d.uploads.Finish(state.UploadID, UploadStatusAborted)
	d.metrics.RecordMultipartUploadAborted()

	if err != nil {
		d.logger.Error("Failed to abort multipart upload",
			zap.String("key", state.Key), zap.String("upload_id", state.UploadID),
			zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	d.logger.Warn("Aborted multipart upload",
		zap.String("key", state.Key), zap.Int("parts", len(state.Parts)), zap.Error(cause))
}

// HealthCheck verifies the bucket is reachable
func (d *Driver) HealthCheck(ctx context.Context) error {
	_, err := d.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	return d.translateError(err, "health", "")
}

// DriverStats returns the request and multipart counters
func (d *Driver) DriverStats() types.DriverStats {
	stats := d.metrics.Snapshot()
	stats.OpenUploads = d.uploads.GetUploadCount()
	return stats
}

// Close releases driver resources
func (d *Driver) Close() error {
	if open := d.uploads.GetUploadCount(); open > 0 {
		d.logger.Warn("Closing with multipart uploads in flight", zap.Int("uploads", open))
	}
	return nil
}

// Helper methods

func (d *Driver) track(start time.Time, err *error) {
	d.metrics.RecordMetrics(time.Since(start), *err)
}

func (d *Driver) objectExists(ctx context.Context, key string) bool {
	_, err := d.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

// isDir reports whether any key lives under key + "/".
func (d *Driver) isDir(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	out, err := d.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(dirKey(key)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

func dirKey(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

func unquote(etag string) string {
	return strings.Trim(etag, `"`)
}

func rangeHeader(offset, length int64) string {
	switch {
	case length > 0:
		return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	case offset > 0:
		return fmt.Sprintf("bytes=%d-", offset)
	default:
		return ""
	}
}

func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".html"):
		return "text/html"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
