package database

import (
	"bytes"

	stormcodec "github.com/asdine/storm/v3/codec"
	"github.com/asdine/storm/v3/codec/msgpack"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

// Supported storage codecs.
const (
	CodecMsgpack = "msgpack"
	CodecCBOR    = "cbor"
	CodecBinc    = "binc"
)

// Codec returns the storage codec for the given name. An empty name selects msgpack.
func Codec(name string) (stormcodec.MarshalUnmarshaler, error) {
	switch name {
	case "", CodecMsgpack:
		return msgpack.Codec, nil
	case CodecCBOR:
		return &ugorjiCodec{name: CodecCBOR, handle: &codec.CborHandle{}}, nil
	case CodecBinc:
		return &ugorjiCodec{name: CodecBinc, handle: &codec.BincHandle{}}, nil
	}
	return nil, errors.Errorf("unsupported database codec %q", name)
}

// ugorjiCodec encodes records with one of the ugorji handles.
// CBOR: https://tools.ietf.org/html/rfc7049
// Binc: https://github.com/ugorji/binc
type ugorjiCodec struct {
	name   string
	handle codec.Handle
}

func (c *ugorjiCodec) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	if err := codec.NewEncoder(&b, c.handle).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (c *ugorjiCodec) Unmarshal(b []byte, v any) error {
	return codec.NewDecoder(bytes.NewReader(b), c.handle).Decode(v)
}

func (c *ugorjiCodec) Name() string {
	return c.name
}
