package quickpick

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// largeBatch serializes well past CompressionThreshold
func largeBatch(t *testing.T) *Batch {
	cfg, err := NewTicketConfig(500, 1, 60, 6)
	require.NoError(t, err)
	b, err := DrawBatch(NewSeededRandomSource(11), "weekly", cfg)
	require.NoError(t, err)
	return b
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"":      CompressionZstd,
		"zstd":  CompressionZstd,
		" LZ4 ": CompressionLZ4,
		"none":  CompressionNone,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestPayloadCodec(t *testing.T) {
	data := []byte(mustSerialize(t, largeBatch(t)))
	require.Greater(t, len(data), CompressionThreshold)

	for _, c := range []Compression{CompressionZstd, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			packed, err := encodePayload(data, c)
			require.NoError(t, err)
			assert.Less(t, len(packed), len(data))
			assert.NotEqual(t, byte('{'), packed[0])

			plain, err := decodePayload(packed)
			require.NoError(t, err)
			assert.Equal(t, data, plain)
		})
	}

	t.Run("none", func(t *testing.T) {
		packed, err := encodePayload(data, CompressionNone)
		require.NoError(t, err)
		assert.Equal(t, data, packed)
	})

	t.Run("small_payload_stays_plain", func(t *testing.T) {
		small := []byte(mustSerialize(t, testBatch()))
		packed, err := encodePayload(small, CompressionZstd)
		require.NoError(t, err)
		assert.Equal(t, small, packed)

		plain, err := decodePayload(small)
		require.NoError(t, err)
		assert.Equal(t, small, plain)
	})

	t.Run("corrupt_frames", func(t *testing.T) {
		for _, frame := range [][]byte{
			append(bytes.Clone(zstdMagic), 0xde, 0xad, 0xbe, 0xef),
			append(bytes.Clone(lz4Magic), 0xde, 0xad, 0xbe, 0xef),
		} {
			_, err := decodePayload(frame)
			assert.ErrorIs(t, err, ErrDeserializationFailed)
		}
	})
}

func TestBatchStore_Compression(t *testing.T) {
	ctx := context.Background()
	b := largeBatch(t)
	key := batchKey(b.LockKey, b.ID)

	for _, c := range []Compression{CompressionZstd, CompressionLZ4, CompressionNone} {
		t.Run(string(c), func(t *testing.T) {
			s, mock := newMockBatchStore(t)
			s.SetCompression(c)

			stored, err := encodePayload([]byte(mustSerialize(t, b)), c)
			require.NoError(t, err)
			mock.ExpectSet(key, stored, s.ttl).SetVal("OK")
			mock.ExpectGet(key).SetVal(string(stored))

			require.NoError(t, s.Save(ctx, b))
			loaded, err := s.Load(ctx, b.LockKey, b.ID)
			require.NoError(t, err)
			assert.Equal(t, b.Tickets, loaded.Tickets)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
