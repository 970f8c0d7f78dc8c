package server

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/objectfs/gateway/internal/metrics"
	"github.com/objectfs/gateway/pkg/api"
	"github.com/objectfs/gateway/pkg/types"
)

type writeState int

const (
	awaitingHeader writeState = iota
	streaming
)

// frameReader turns the inbound frames of a Write stream into a byte stream.
// It starts in awaitingHeader; once the header is consumed, data frames are
// read through and further header frames are ignored.
type frameReader struct {
	stream   api.WriteServer
	state    writeState
	pending  []byte
	received int64
	err      error
}

func newFrameReader(stream api.WriteServer) *frameReader {
	return &frameReader{stream: stream, state: awaitingHeader}
}

// header consumes the first frame, which must be a header
func (r *frameReader) header() (*api.WriteHeader, error) {
	if r.state != awaitingHeader {
		return nil, status.Error(codes.Internal, "write header already consumed")
	}

	frame, err := r.stream.Recv()
	if errors.Is(err, io.EOF) {
		return nil, status.Error(codes.InvalidArgument, "empty write stream")
	}
	if err != nil {
		return nil, err
	}
	if frame.Kind != api.FrameHeader || frame.Header == nil {
		return nil, status.Errorf(codes.InvalidArgument, "first message must be a write header, got %s frame", frame.Kind)
	}

	r.state = streaming
	return frame.Header, nil
}

// Read implements io.Reader over the remaining data frames
func (r *frameReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		frame, err := r.stream.Recv()
		if err != nil {
			r.err = err
			continue
		}
		if frame.Kind == api.FrameData {
			r.pending = frame.Data
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	r.received += int64(n)
	return n, nil
}

// Write stores the inbound stream at the path named by its header. Driver
// failures are reported in the ack, not as an RPC error.
func (s *storageService) Write(stream api.WriteServer) error {
	ctx := stream.Context()
	frames := newFrameReader(stream)

	header, err := frames.header()
	if err != nil {
		return err
	}

	p := header.Path
	opts := types.WriteOptions{Overwrite: header.Overwrite, Append: header.Append}
	s.logger.Info("Write started",
		zap.String("path", p),
		zap.Bool("overwrite", opts.Overwrite),
		zap.Bool("append", opts.Append))

	// Entries are dropped before the write so nothing stale is served while
	// it runs, and again after it because a concurrent read may have
	// repopulated them.
	s.invalidate(ctx, p)

	start := time.Now()
	n, err := s.driver.WriteStream(ctx, p, frames, opts)
	s.observe("write", start, n, err)
	s.metrics.RecordBytes(metrics.DirectionWritten, n)
	s.invalidate(ctx, p)

	if err != nil {
		_ = s.fail("write", p, err)
		return stream.SendAndClose(&api.WriteAck{
			OK:           false,
			BytesWritten: frames.received,
			Error:        err.Error(),
		})
	}

	s.logger.Info("Write completed", zap.String("path", p), zap.Int64("bytes", n))
	return stream.SendAndClose(&api.WriteAck{OK: true, BytesWritten: n})
}
