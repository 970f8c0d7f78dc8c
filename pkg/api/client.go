package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// DefaultChunkSize is the size of the data frames Client.Write sends
const DefaultChunkSize = 1024 * 1024

// Client calls the storage and info services over one connection
type Client struct {
	conn      grpc.ClientConnInterface
	closer    io.Closer
	token     string
	chunkSize int
	opts      []grpc.CallOption
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithToken sends token as a bearer credential on every call
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithChunkSize sets the data frame size used by Write
func WithChunkSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// NewClient wraps an existing connection. The caller keeps ownership of conn.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{
		conn:      conn,
		chunkSize: DefaultChunkSize,
		opts:      []grpc.CallOption{grpc.CallContentSubtype(CodecName)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a gateway at target over plaintext. Extra dial options
// are applied after the defaults.
func Dial(target string, dialOpts []grpc.DialOption, opts ...ClientOption) (*Client, error) {
	all := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, dialOpts...)
	conn, err := grpc.NewClient(target, all...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c := NewClient(conn, opts...)
	c.closer = conn
	return c, nil
}

// Close closes the connection if the client opened it
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(c.outgoing(ctx), method, in, out, c.opts...)
}

// Health returns the server status and version
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, MethodHealth, &HealthRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stat returns metadata for path
func (c *Client) Stat(ctx context.Context, path string) (*StatResponse, error) {
	out := new(StatResponse)
	if err := c.invoke(ctx, MethodStat, &StatRequest{Path: path}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Exists reports whether path exists and what it is
func (c *Client) Exists(ctx context.Context, path string) (*ExistsResponse, error) {
	out := new(ExistsResponse)
	if err := c.invoke(ctx, MethodExists, &ExistsRequest{Path: path}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Listdir returns the direct children of path
func (c *Client) Listdir(ctx context.Context, path string) ([]FileEntry, error) {
	out := new(ListdirResponse)
	if err := c.invoke(ctx, MethodListdir, &ListdirRequest{Path: path}, out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Mkdirs creates path and any missing parents
func (c *Client) Mkdirs(ctx context.Context, path string, existOK bool) error {
	return c.invoke(ctx, MethodMkdirs, &MkdirsRequest{Path: path, ExistOK: existOK}, new(MkdirsResponse))
}

// Rename moves src to dst
func (c *Client) Rename(ctx context.Context, src, dst string, overwrite bool) error {
	return c.invoke(ctx, MethodRename, &RenameRequest{Src: src, Dst: dst, Overwrite: overwrite}, new(RenameResponse))
}

// Remove deletes path
func (c *Client) Remove(ctx context.Context, path string, recursive bool) error {
	return c.invoke(ctx, MethodRemove, &RemoveRequest{Path: path, Recursive: recursive}, new(RemoveResponse))
}

// PresignURL asks for a presigned URL. The response reports Supported false
// when the backend cannot presign.
func (c *Client) PresignURL(ctx context.Context, path, method string, ttl time.Duration) (*PresignResponse, error) {
	in := &PresignRequest{Path: path, Method: method, TTLSeconds: int64(ttl / time.Second)}
	out := new(PresignResponse)
	if err := c.invoke(ctx, MethodGeneratePresignedURL, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Info returns the server's identification
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	out := new(InfoResponse)
	if err := c.invoke(ctx, MethodInfoAll, &InfoRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Read streams length bytes of path starting at offset into w and returns the
// number of bytes written. Length 0 reads to the end.
func (c *Client) Read(ctx context.Context, path string, offset, length int64, w io.Writer) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(c.outgoing(ctx), &StorageServiceDesc.Streams[0], MethodRead, c.opts...)
	if err != nil {
		return 0, err
	}
	if err := stream.SendMsg(&ReadRequest{Path: path, Offset: offset, Length: length}); err != nil {
		return 0, err
	}
	if err := stream.CloseSend(); err != nil {
		return 0, err
	}

	var total int64
	for {
		chunk := new(ReadChunk)
		err := stream.RecvMsg(chunk)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk.Data)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

// Write uploads r to the path named in header. A failed write is reported
// through the returned ack; the error is only set when the RPC itself fails.
func (c *Client) Write(ctx context.Context, header WriteHeader, r io.Reader) (*WriteAck, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(c.outgoing(ctx), &StorageServiceDesc.Streams[1], MethodWrite, c.opts...)
	if err != nil {
		return nil, err
	}

	// A send error means the server has already answered; its status or ack
	// comes from RecvMsg.
	if err := stream.SendMsg(HeaderFrame(header)); err == nil {
		if err := c.sendData(stream, r); err != nil {
			// Cancel so the server aborts instead of committing a
			// truncated body.
			cancel()
			return nil, fmt.Errorf("read source: %w", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	ack := new(WriteAck)
	if err := stream.RecvMsg(ack); err != nil {
		return nil, err
	}
	return ack, nil
}

func (c *Client) sendData(stream grpc.ClientStream, r io.Reader) error {
	buf := make([]byte, c.chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if sendErr := stream.SendMsg(DataFrame(buf[:n])); sendErr != nil {
				return nil
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
