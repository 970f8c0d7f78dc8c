package api

import (
	"time"

	"github.com/objectfs/gateway/pkg/types"
)

// FileType classifies a path on the wire
type FileType int32

const (
	FileTypeUnknown FileType = iota
	FileTypeFile
	FileTypeDir
)

// String returns the wire name of the type
func (t FileType) String() string {
	switch t {
	case FileTypeFile:
		return "FILE"
	case FileTypeDir:
		return "DIR"
	default:
		return "UNKNOWN"
	}
}

// FileTypeOf maps a directory flag to its FileType
func FileTypeOf(isDir bool) FileType {
	if isDir {
		return FileTypeDir
	}
	return FileTypeFile
}

// FrameKind tags a WriteFrame
type FrameKind int32

const (
	FrameInvalid FrameKind = iota
	FrameHeader
	FrameData
)

// String returns the name of the frame kind
func (k FrameKind) String() string {
	switch k {
	case FrameHeader:
		return "header"
	case FrameData:
		return "data"
	default:
		return "invalid"
	}
}

// Storage service messages. Field keys are fixed integers so that messages
// stay compatible when fields are renamed.

type HealthRequest struct{}

type HealthResponse struct {
	Status  string `cbor:"1,keyasint,omitempty" json:"status"`
	Version string `cbor:"2,keyasint,omitempty" json:"version"`
}

type StatRequest struct {
	Path string `cbor:"1,keyasint"`
}

type StatResponse struct {
	Name        string   `cbor:"1,keyasint,omitempty"`
	RelPath     string   `cbor:"2,keyasint,omitempty"`
	FileType    FileType `cbor:"3,keyasint,omitempty"`
	SizeBytes   int64    `cbor:"4,keyasint,omitempty"`
	CreatedAtMs int64    `cbor:"5,keyasint,omitempty"`
	UpdatedAtMs int64    `cbor:"6,keyasint,omitempty"`
	ETag        string   `cbor:"7,keyasint,omitempty"`
}

type ExistsRequest struct {
	Path string `cbor:"1,keyasint"`
}

type ExistsResponse struct {
	Exists   bool     `cbor:"1,keyasint,omitempty"`
	FileType FileType `cbor:"2,keyasint,omitempty"`
}

type ListdirRequest struct {
	Path      string `cbor:"1,keyasint"`
	PageToken string `cbor:"2,keyasint,omitempty"`
}

type FileEntry struct {
	Name        string   `cbor:"1,keyasint,omitempty"`
	RelPath     string   `cbor:"2,keyasint,omitempty"`
	FileType    FileType `cbor:"3,keyasint,omitempty"`
	SizeBytes   int64    `cbor:"4,keyasint,omitempty"`
	CreatedAtMs int64    `cbor:"5,keyasint,omitempty"`
	UpdatedAtMs int64    `cbor:"6,keyasint,omitempty"`
}

type ListdirResponse struct {
	Entries []FileEntry `cbor:"1,keyasint,omitempty"`
	// NextPageToken is always empty; listings are returned whole.
	NextPageToken string `cbor:"2,keyasint,omitempty"`
}

type MkdirsRequest struct {
	Path    string `cbor:"1,keyasint"`
	ExistOK bool   `cbor:"2,keyasint,omitempty"`
}

type MkdirsResponse struct {
	OK bool `cbor:"1,keyasint,omitempty"`
}

type RenameRequest struct {
	Src       string `cbor:"1,keyasint"`
	Dst       string `cbor:"2,keyasint"`
	Overwrite bool   `cbor:"3,keyasint,omitempty"`
}

type RenameResponse struct {
	OK bool `cbor:"1,keyasint,omitempty"`
}

type RemoveRequest struct {
	Path      string `cbor:"1,keyasint"`
	Recursive bool   `cbor:"2,keyasint,omitempty"`
}

type RemoveResponse struct {
	OK bool `cbor:"1,keyasint,omitempty"`
}

// ReadRequest asks for Length bytes from Offset. Length 0 reads to the end.
type ReadRequest struct {
	Path   string `cbor:"1,keyasint"`
	Offset int64  `cbor:"2,keyasint,omitempty"`
	Length int64  `cbor:"3,keyasint,omitempty"`
}

type ReadChunk struct {
	Data []byte `cbor:"1,keyasint,omitempty"`
}

type WriteHeader struct {
	Path      string `cbor:"1,keyasint"`
	Overwrite bool   `cbor:"2,keyasint,omitempty"`
	Append    bool   `cbor:"3,keyasint,omitempty"`
}

// WriteFrame is one message of a Write stream. The first frame must be a
// header; every later frame should carry data.
type WriteFrame struct {
	Kind   FrameKind    `cbor:"1,keyasint"`
	Header *WriteHeader `cbor:"2,keyasint,omitempty"`
	Data   []byte       `cbor:"3,keyasint,omitempty"`
}

// HeaderFrame wraps h in a frame
func HeaderFrame(h WriteHeader) *WriteFrame {
	return &WriteFrame{Kind: FrameHeader, Header: &h}
}

// DataFrame wraps p in a frame
func DataFrame(p []byte) *WriteFrame {
	return &WriteFrame{Kind: FrameData, Data: p}
}

// WriteAck terminates a Write stream. Write failures are reported here with
// OK false rather than as an RPC error.
type WriteAck struct {
	OK           bool   `cbor:"1,keyasint,omitempty"`
	BytesWritten int64  `cbor:"2,keyasint,omitempty"`
	Error        string `cbor:"3,keyasint,omitempty"`
}

type PresignRequest struct {
	Path       string `cbor:"1,keyasint"`
	Method     string `cbor:"2,keyasint,omitempty"`
	TTLSeconds int64  `cbor:"3,keyasint,omitempty"`
}

type PresignResponse struct {
	Supported   bool   `cbor:"1,keyasint,omitempty"`
	URL         string `cbor:"2,keyasint,omitempty"`
	Method      string `cbor:"3,keyasint,omitempty"`
	ExpiresAtMs int64  `cbor:"4,keyasint,omitempty"`
}

// Info service messages

type InfoRequest struct{}

type InfoResponse struct {
	AppName       string            `cbor:"1,keyasint,omitempty" json:"app_name"`
	InstanceID    string            `cbor:"2,keyasint,omitempty" json:"instance_id"`
	Host          string            `cbor:"3,keyasint,omitempty" json:"host"`
	Version       string            `cbor:"4,keyasint,omitempty" json:"version"`
	UptimeSeconds int64             `cbor:"5,keyasint,omitempty" json:"uptime_seconds"`
	Labels        map[string]string `cbor:"6,keyasint,omitempty" json:"labels,omitempty"`
	Metrics       map[string]int64  `cbor:"7,keyasint,omitempty" json:"metrics,omitempty"`
	BuildHash     string            `cbor:"8,keyasint,omitempty" json:"build_hash,omitempty"`
	BuildTime     string            `cbor:"9,keyasint,omitempty" json:"build_time,omitempty"`
}

// UnixMillis converts t to milliseconds since the epoch. The zero time maps
// to 0.
func UnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of UnixMillis
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// NewStatResponse converts a driver stat
func NewStatResponse(st types.FileStat) *StatResponse {
	return &StatResponse{
		Name:        st.Name,
		RelPath:     st.RelPath,
		FileType:    FileTypeOf(st.IsDir),
		SizeBytes:   st.Size,
		CreatedAtMs: UnixMillis(st.CreatedAt),
		UpdatedAtMs: UnixMillis(st.UpdatedAt),
		ETag:        st.ETag,
	}
}

// NewFileEntry converts a driver stat to a listing entry
func NewFileEntry(st types.FileStat) FileEntry {
	return FileEntry{
		Name:        st.Name,
		RelPath:     st.RelPath,
		FileType:    FileTypeOf(st.IsDir),
		SizeBytes:   st.Size,
		CreatedAtMs: UnixMillis(st.CreatedAt),
		UpdatedAtMs: UnixMillis(st.UpdatedAt),
	}
}

// FileStat converts the response back to a driver stat, at millisecond
// precision
func (r *StatResponse) FileStat() types.FileStat {
	return types.FileStat{
		Name:      r.Name,
		RelPath:   r.RelPath,
		IsDir:     r.FileType == FileTypeDir,
		Size:      r.SizeBytes,
		CreatedAt: FromMillis(r.CreatedAtMs),
		UpdatedAt: FromMillis(r.UpdatedAtMs),
		ETag:      r.ETag,
	}
}
