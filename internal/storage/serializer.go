package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns a value into bytes and back
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
	Name() string
}

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Decode(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (JSONCodec) Name() string { return "json" }

// SonicCodec produces the same bytes as JSONCodec, with sorted map keys
type SonicCodec struct{}

func (SonicCodec) Encode(v interface{}) ([]byte, error) { return sonic.ConfigStd.Marshal(v) }

func (SonicCodec) Decode(data []byte, v interface{}) error { return sonic.ConfigStd.Unmarshal(data, v) }

func (SonicCodec) Name() string { return "sonic" }

// MsgPackCodec reuses the json struct tags so both codecs agree on field names
type MsgPackCodec struct{}

func (MsgPackCodec) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgPackCodec) Decode(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (MsgPackCodec) Name() string { return "msgpack" }

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "sonic":
		return SonicCodec{}, nil
	case "msgpack":
		return MsgPackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionZstd:
		return Compression(name), nil
	default:
		return "", fmt.Errorf("unknown compression %q", name)
	}
}

// Serializer encodes with the codec and then compresses the result
type Serializer struct {
	codec       Codec
	compression Compression
}

func NewSerializer(codec Codec, compression Compression) *Serializer {
	if codec == nil {
		codec = JSONCodec{}
	}
	if compression == "" {
		compression = CompressionNone
	}
	return &Serializer{codec: codec, compression: compression}
}

// DefaultSerializer stores plain JSON, readable by any client of the slot
func DefaultSerializer() *Serializer {
	return NewSerializer(JSONCodec{}, CompressionNone)
}

func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	data, err := s.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%s encoding failed: %w", s.codec.Name(), err)
	}

	data, err = s.compress(data)
	if err != nil {
		return nil, fmt.Errorf("%s compression failed: %w", s.compression, err)
	}
	return data, nil
}

func (s *Serializer) Deserialize(data []byte, v interface{}) error {
	data, err := s.decompress(data)
	if err != nil {
		return fmt.Errorf("%s decompression failed: %w", s.compression, err)
	}

	err = s.codec.Decode(data, v)
	if err != nil {
		return fmt.Errorf("%s decoding failed: %w", s.codec.Name(), err)
	}
	return nil
}

func (s *Serializer) compress(data []byte) ([]byte, error) {
	switch s.compression {
	case CompressionGzip:
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func (s *Serializer) decompress(data []byte) ([]byte, error) {
	switch s.compression {
	case CompressionGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case CompressionZstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)
	default:
		return data, nil
	}
}
