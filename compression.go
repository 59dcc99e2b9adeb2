package quickpick

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how batch payloads are compressed before they are
// written to Redis. Stored payloads are self-describing, so a store reads
// batches written under any setting.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression accepts none, zstd and lz4; empty means zstd
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionZstd, nil
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return c, nil
	}
	return "", ErrConfigInvalid.WithDetails("unknown batch compression %q", s)
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// EncodeAll and DecodeAll are safe for concurrent use, one of each is enough
var (
	zstdEncoder = sync.OnceValue(func() *zstd.Encoder {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	})
	zstdDecoder = sync.OnceValue(func() *zstd.Decoder {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBatchPayloadSize))
		return dec
	})
)

// encodePayload compresses a serialized batch. Payloads below
// CompressionThreshold, or that do not shrink, are kept as plain JSON.
func encodePayload(data []byte, c Compression) ([]byte, error) {
	if len(data) < CompressionThreshold {
		return data, nil
	}

	var out []byte
	switch c {
	case CompressionZstd:
		out = zstdEncoder().EncodeAll(data, make([]byte, 0, len(data)/4))
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, ErrSerializationFailed.WithDetails("lz4").WithCause(err)
		}
		if err := w.Close(); err != nil {
			return nil, ErrSerializationFailed.WithDetails("lz4").WithCause(err)
		}
		out = buf.Bytes()
	default:
		return data, nil
	}

	if len(out) >= len(data) {
		return data, nil
	}
	return out, nil
}

// decodePayload undoes encodePayload by looking at the frame magic
func decodePayload(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		out, err := zstdDecoder().DecodeAll(data, nil)
		if err != nil {
			return nil, ErrDeserializationFailed.WithDetails("zstd").WithCause(err)
		}
		return out, nil

	case bytes.HasPrefix(data, lz4Magic):
		// 多读 1 字节以发现超限
		out, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), MaxBatchPayloadSize+1))
		if err != nil {
			return nil, ErrDeserializationFailed.WithDetails("lz4").WithCause(err)
		}
		if len(out) > MaxBatchPayloadSize {
			return nil, ErrDeserializationFailed.WithDetails("lz4 payload exceeds %d bytes", MaxBatchPayloadSize)
		}
		return out, nil
	}
	return data, nil
}
