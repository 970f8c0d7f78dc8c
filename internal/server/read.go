package server

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/objectfs/gateway/internal/cache"
	"github.com/objectfs/gateway/internal/metrics"
	"github.com/objectfs/gateway/pkg/api"
)

// errClientGone marks a stream the client abandoned mid-response
var errClientGone = errors.New("client disconnected")

// Read streams a file. Offset 0 reads are served from the data cache when
// possible; whole reads of small files are buffered while streaming and
// cached once they complete.
func (s *storageService) Read(req *api.ReadRequest, stream api.ReadServer) error {
	ctx := stream.Context()
	if req.Offset < 0 || req.Length < 0 {
		return status.Errorf(codes.InvalidArgument, "offset and length must not be negative")
	}

	start := time.Now()
	if req.Offset == 0 {
		if data, ok := s.cache.GetData(ctx, req.Path); ok {
			if req.Length > 0 && req.Length < int64(len(data)) {
				data = data[:req.Length]
			}
			n, err := s.sendCached(ctx, stream, data)
			return s.finishRead(ctx, req.Path, start, n, err)
		}
	}

	cacheable := false
	var v cache.Version
	if s.cache.Enabled() && req.Offset == 0 && req.Length == 0 {
		v = s.cache.Version(ctx, req.Path)
		st, err := s.stat(ctx, req.Path)
		if err != nil {
			return s.fail("read", req.Path, err)
		}
		cacheable = !st.IsDir && st.Size <= s.cache.MaxFileSize()
	}

	rc, err := s.driver.ReadStream(ctx, req.Path, req.Offset, req.Length)
	if err != nil {
		s.observe("read", start, 0, err)
		return s.fail("read", req.Path, err)
	}
	defer rc.Close()

	body, n, err := s.pump(ctx, stream, rc, cacheable)
	if err == nil && cacheable {
		s.cache.SetData(ctx, req.Path, body, v)
	}
	return s.finishRead(ctx, req.Path, start, n, err)
}

// sendCached slices a cached body into chunk-sized messages
func (s *storageService) sendCached(ctx context.Context, stream api.ReadServer, data []byte) (int64, error) {
	size := s.chunks.Size()
	var sent int64
	for len(data) > 0 {
		if ctx.Err() != nil {
			return sent, errClientGone
		}
		n := min(size, len(data))
		if err := stream.Send(&api.ReadChunk{Data: data[:n]}); err != nil {
			return sent, s.sendFailure(ctx, err)
		}
		sent += int64(n)
		data = data[n:]
	}
	return sent, nil
}

// pump copies rc to the stream one chunk at a time, checking for
// cancellation before each chunk. When keep is set the body is returned for
// caching; it is only complete when err is nil.
func (s *storageService) pump(ctx context.Context, stream api.ReadServer, rc io.Reader, keep bool) ([]byte, int64, error) {
	buf := s.chunks.Get()
	defer s.chunks.Put(buf)

	var body []byte
	var sent int64
	for {
		if ctx.Err() != nil {
			return nil, sent, errClientGone
		}

		n, rerr := io.ReadFull(rc, buf)
		if n > 0 {
			// Messages may be retained after Send returns, so they never
			// alias the pooled buffer.
			var chunk []byte
			if keep {
				body = append(body, buf[:n]...)
				chunk = body[len(body)-n:]
			} else {
				chunk = append([]byte(nil), buf[:n]...)
			}
			if err := stream.Send(&api.ReadChunk{Data: chunk}); err != nil {
				return nil, sent, s.sendFailure(ctx, err)
			}
			sent += int64(n)
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			if keep && body == nil {
				body = []byte{}
			}
			return body, sent, nil
		default:
			return nil, sent, rerr
		}
	}
}

func (s *storageService) sendFailure(ctx context.Context, err error) error {
	if isDisconnect(ctx, err) {
		return errClientGone
	}
	return err
}

// finishRead records the outcome. A disconnect is not an error worth
// reporting: the client is no longer listening.
func (s *storageService) finishRead(ctx context.Context, p string, start time.Time, n int64, err error) error {
	s.metrics.RecordBytes(metrics.DirectionRead, n)
	if errors.Is(err, errClientGone) {
		s.observe("read", start, n, nil)
		s.logger.Debug("Client went away during read",
			zap.String("path", p),
			zap.Int64("bytes_sent", n),
			zap.NamedError("cause", ctx.Err()))
		return nil
	}
	s.observe("read", start, n, err)
	if err != nil {
		return s.fail("read", p, err)
	}
	return nil
}
