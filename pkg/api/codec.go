package api

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/objectfs/gateway/pkg/codec"
)

// CodecName is the gRPC content subtype of the gateway's messages
const CodecName = "cbor"

// Codec carries gateway messages over gRPC as CBOR
type Codec struct{}

var _ encoding.Codec = Codec{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal encodes v
func (Codec) Marshal(v any) ([]byte, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor codec: marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes data into v
func (Codec) Unmarshal(data []byte, v any) error {
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor codec: unmarshal %T: %w", v, err)
	}
	return nil
}

// Name returns CodecName
func (Codec) Name() string {
	return CodecName
}
