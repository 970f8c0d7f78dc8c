package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/objectfs/gateway/pkg/types"
)

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodec_WriteFrames(t *testing.T) {
	var c Codec

	data, err := c.Marshal(HeaderFrame(WriteHeader{Path: "a/b.bin", Overwrite: true}))
	require.NoError(t, err)
	var header WriteFrame
	require.NoError(t, c.Unmarshal(data, &header))
	assert.Equal(t, FrameHeader, header.Kind)
	require.NotNil(t, header.Header)
	assert.Equal(t, "a/b.bin", header.Header.Path)
	assert.True(t, header.Header.Overwrite)
	assert.False(t, header.Header.Append)

	data, err = c.Marshal(DataFrame([]byte{0, 1, 2}))
	require.NoError(t, err)
	var frame WriteFrame
	require.NoError(t, c.Unmarshal(data, &frame))
	assert.Equal(t, FrameData, frame.Kind)
	assert.Nil(t, frame.Header)
	assert.Equal(t, []byte{0, 1, 2}, frame.Data)
}

func TestCodec_UnmarshalError(t *testing.T) {
	var c Codec
	var ack WriteAck
	err := c.Unmarshal([]byte{0xff}, &ack)
	assert.ErrorContains(t, err, "*api.WriteAck")
}

func TestNewStatResponse(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 678_900_000, time.UTC)
	st := types.FileStat{
		Name: "b.txt", RelPath: "a/b.txt", Size: 10,
		CreatedAt: created, UpdatedAt: created.Add(time.Second), ETag: "abc",
	}

	resp := NewStatResponse(st)
	assert.Equal(t, FileTypeFile, resp.FileType)
	assert.Equal(t, created.UnixMilli(), resp.CreatedAtMs)
	assert.Equal(t, "abc", resp.ETag)

	back := resp.FileStat()
	assert.Equal(t, st.RelPath, back.RelPath)
	assert.True(t, back.CreatedAt.Equal(created.Truncate(time.Millisecond)))

	dir := NewFileEntry(types.DirStat("a"))
	assert.Equal(t, FileTypeDir, dir.FileType)
	assert.Zero(t, dir.CreatedAtMs, "synthetic directories have no timestamps")
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "FILE", FileTypeFile.String())
	assert.Equal(t, "DIR", FileTypeDir.String())
	assert.Equal(t, "UNKNOWN", FileTypeUnknown.String())
	assert.Equal(t, "header", FrameHeader.String())
	assert.Equal(t, "data", FrameData.String())
	assert.Equal(t, "invalid", FrameKind(7).String())
}
