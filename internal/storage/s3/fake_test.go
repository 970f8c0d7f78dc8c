package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var errTest = errors.New("test failure")

type fakeObject struct {
	data     []byte
	etag     string
	modified time.Time
}

type fakeUpload struct {
	key   string
	parts map[int32][]byte
}

// fakeS3 is an in-memory single-bucket implementation of API.
type fakeS3 struct {
	mu sync.Mutex

	bucketExists  bool
	headBucketErr error
	objects       map[string]fakeObject
	uploads       map[string]*fakeUpload
	nextUpload    int

	// failure injection
	uploadPartErr        func(part int32) error
	deleteFailures       int
	deleteObjectsErrKeys map[string]bool

	// call counters
	createBucketCalls  int
	createUploadCalls  int
	uploadPartCalls    int
	completeCalls      int
	abortCalls         int
	deleteObjectsCalls int
	maxDeleteBatchSeen int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		bucketExists: true,
		objects:      make(map[string]fakeObject),
		uploads:      make(map[string]*fakeUpload),
	}
}

func (f *fakeS3) put(key string, data []byte) {
	sum := md5.Sum(data)
	f.objects[key] = fakeObject{
		data:     append([]byte(nil), data...),
		etag:     `"` + hex.EncodeToString(sum[:]) + `"`,
		modified: time.Now().UTC(),
	}
}

func (f *fakeS3) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj.data, ok
}

func (f *fakeS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headBucketErr != nil {
		return nil, f.headBucketErr
	}
	if !f.bucketExists {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createBucketCalls++
	f.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ETag:          aws.String(obj.etag),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}

	data := obj.data
	if r := aws.ToString(params.Range); r != "" {
		start, end, err := parseRange(r, int64(len(data)))
		if err != nil {
			return nil, err
		}
		data = data[start : end+1]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), data...))),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func parseRange(r string, size int64) (int64, int64, error) {
	invalid := &smithy.GenericAPIError{Code: "InvalidRange", Message: "The requested range is not satisfiable"}
	spec := strings.TrimPrefix(r, "bytes=")
	startStr, endStr, _ := strings.Cut(spec, "-")
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start >= size {
		return 0, 0, invalid
	}
	end := size - 1
	if endStr != "" {
		if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
			return 0, 0, invalid
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(aws.ToString(params.Key), data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, escaped, _ := strings.Cut(aws.ToString(params.CopySource), "/")
	src, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, err
	}
	obj, ok := f.objects[src]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	f.put(aws.ToString(params.Key), obj.data)
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteFailures > 0 {
		f.deleteFailures--
		return nil, &smithy.GenericAPIError{Code: "InternalError", Message: "We encountered an internal error"}
	}
	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteObjectsCalls++
	if n := len(params.Delete.Objects); n > f.maxDeleteBatchSeen {
		f.maxDeleteBatchSeen = n
	}

	out := &s3.DeleteObjectsOutput{}
	for _, id := range params.Delete.Objects {
		key := aws.ToString(id.Key)
		if f.deleteObjectsErrKeys[key] {
			out.Errors = append(out.Errors, s3types.Error{
				Key:     aws.String(key),
				Code:    aws.String("AccessDenied"),
				Message: aws.String("Access Denied"),
			})
			continue
		}
		delete(f.objects, key)
	}
	return out, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(params.Prefix)
	delimiter := aws.ToString(params.Delimiter)
	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	after := aws.ToString(params.ContinuationToken)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	seenPrefixes := make(map[string]bool)
	count := 0
	last := ""
	for _, k := range keys {
		if after != "" && k <= after {
			continue
		}
		entry := k
		isPrefix := false
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				entry = k[:len(prefix)+i+len(delimiter)]
				isPrefix = true
			}
		}
		if isPrefix && seenPrefixes[entry] {
			last = k
			continue
		}
		if count == maxKeys {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(last)
			break
		}
		if isPrefix {
			seenPrefixes[entry] = true
			out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(entry)})
		} else {
			obj := f.objects[k]
			out.Contents = append(out.Contents, s3types.Object{
				Key:          aws.String(k),
				Size:         aws.Int64(int64(len(obj.data))),
				ETag:         aws.String(obj.etag),
				LastModified: aws.Time(obj.modified),
			})
		}
		count++
		last = k
	}
	if out.IsTruncated == nil {
		out.IsTruncated = aws.Bool(false)
	}
	out.KeyCount = aws.Int32(int32(count))
	return out, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createUploadCalls++
	f.nextUpload++
	id := fmt.Sprintf("upload-%d", f.nextUpload)
	f.uploads[id] = &fakeUpload{key: aws.ToString(params.Key), parts: make(map[int32][]byte)}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadPartCalls++
	num := aws.ToInt32(params.PartNumber)
	if f.uploadPartErr != nil {
		if err := f.uploadPartErr(num); err != nil {
			return nil, err
		}
	}
	up, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &s3types.NoSuchUpload{}
	}
	up.parts[num] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"part-%d"`, num))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	id := aws.ToString(params.UploadId)
	up, ok := f.uploads[id]
	if !ok {
		return nil, &s3types.NoSuchUpload{}
	}

	var buf bytes.Buffer
	prev := int32(0)
	for _, p := range params.MultipartUpload.Parts {
		num := aws.ToInt32(p.PartNumber)
		if num <= prev {
			return nil, &smithy.GenericAPIError{Code: "InvalidPartOrder"}
		}
		prev = num
		buf.Write(up.parts[num])
	}
	f.put(up.key, buf.Bytes())
	delete(f.uploads, id)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCalls++
	delete(f.uploads, aws.ToString(params.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) openUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}
