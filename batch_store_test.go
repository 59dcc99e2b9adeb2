package quickpick

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBatchStore(t *testing.T) (*BatchStore, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { db.Close() })
	return NewBatchStoreWithRetry(db, NewSilentLogger(), 2, time.Millisecond, time.Hour), mock
}

func mustSerialize(t *testing.T, b *Batch) string {
	data, err := serializeBatch(b)
	require.NoError(t, err)
	return string(data)
}

func TestBatchKey(t *testing.T) {
	key := batchKey("weekly", "b-1")
	assert.Equal(t, "quickpick:batch:weekly:b-1", key)

	lockKey, id, err := parseBatchKey(key)
	require.NoError(t, err)
	assert.Equal(t, "weekly", lockKey)
	assert.Equal(t, "b-1", id)

	lockKey, id, err = parseBatchKey(batchKey("tenant:a", "b-2"))
	require.NoError(t, err)
	assert.Equal(t, "tenant:a", lockKey)
	assert.Equal(t, "b-2", id)

	for _, bad := range []string{"other:weekly:b-1", "quickpick:batch:weekly", "quickpick:batch:weekly:", "quickpick:batch::b-1"} {
		_, _, err := parseBatchKey(bad)
		assert.ErrorIs(t, err, ErrInvalidParameters, bad)
	}
}

func TestBatchStore_Save(t *testing.T) {
	ctx := context.Background()
	key := "quickpick:batch:weekly:b-1"

	t.Run("saved", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.Regexp().ExpectSet(key, `.*`, time.Hour).SetVal("OK")

		require.NoError(t, s.Save(ctx, testBatch()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retry_on_timeout", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.Regexp().ExpectSet(key, `.*`, time.Hour).SetErr(errors.New("connection timeout"))
		mock.Regexp().ExpectSet(key, `.*`, time.Hour).SetVal("OK")

		require.NoError(t, s.Save(ctx, testBatch()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis_error", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.Regexp().ExpectSet(key, `.*`, time.Hour).SetErr(redis.TxFailedErr)

		err := s.Save(ctx, testBatch())
		assert.ErrorIs(t, err, ErrBatchSaveFailure)
		assert.ErrorIs(t, err, redis.TxFailedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_batch_not_written", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		b := testBatch()
		b.Tickets = nil

		assert.ErrorIs(t, s.Save(ctx, b), ErrBatchCorrupted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBatchStore_Load(t *testing.T) {
	ctx := context.Background()
	key := "quickpick:batch:weekly:b-1"

	t.Run("loaded", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectGet(key).SetVal(mustSerialize(t, testBatch()))

		b, err := s.Load(ctx, "weekly", "b-1")
		require.NoError(t, err)
		assert.Equal(t, "b-1", b.ID)
		assert.Len(t, b.Tickets, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectGet(key).RedisNil()

		_, err := s.Load(ctx, "weekly", "b-1")
		assert.ErrorIs(t, err, ErrBatchNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis_error", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectGet(key).SetErr(redis.TxFailedErr)

		_, err := s.Load(ctx, "weekly", "b-1")
		assert.ErrorIs(t, err, ErrBatchLoadFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupted", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectGet(key).SetVal(`{"id":"b-1","lock_key":"weekly","low":1,"high":60,"pick":6}`)

		_, err := s.Load(ctx, "weekly", "b-1")
		assert.ErrorIs(t, err, ErrBatchCorrupted)
	})

	t.Run("undecodable", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectGet(key).SetVal("not json")

		_, err := s.Load(ctx, "weekly", "b-1")
		assert.ErrorIs(t, err, ErrDeserializationFailed)
	})

	t.Run("lock_key_mismatch", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		other := testBatch()
		other.LockKey = "daily"
		mock.ExpectGet(key).SetVal(mustSerialize(t, other))

		_, err := s.Load(ctx, "weekly", "b-1")
		assert.ErrorIs(t, err, ErrBatchCorrupted)
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		s, _ := newMockBatchStore(t)
		_, err := s.Load(ctx, "", "b-1")
		assert.ErrorIs(t, err, ErrInvalidParameters)
		_, err = s.Load(ctx, "weekly", "")
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})
}

func TestBatchStore_Keys(t *testing.T) {
	ctx := context.Background()
	pattern := "quickpick:batch:weekly:*"

	t.Run("paged_and_filtered", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectScan(0, pattern, scanBatchCount).SetVal([]string{
			"quickpick:batch:weekly:b-1",
			"quickpick:batch:weekly:extra:b-9",
		}, 17)
		mock.ExpectScan(17, pattern, scanBatchCount).SetVal([]string{"quickpick:batch:weekly:b-2"}, 0)

		keys, err := s.Keys(ctx, "weekly")
		require.NoError(t, err)
		assert.Equal(t, []string{"quickpick:batch:weekly:b-1", "quickpick:batch:weekly:b-2"}, keys)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan_error", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectScan(0, pattern, scanBatchCount).SetErr(redis.TxFailedErr)

		_, err := s.Keys(ctx, "weekly")
		assert.ErrorIs(t, err, ErrBatchLoadFailure)
	})

	t.Run("empty_lock_key", func(t *testing.T) {
		s, _ := newMockBatchStore(t)
		_, err := s.Keys(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})
}

func TestBatchStore_List(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockBatchStore(t)

	second := testBatch()
	second.ID = "b-2"

	mock.ExpectScan(0, "quickpick:batch:weekly:*", scanBatchCount).SetVal([]string{
		"quickpick:batch:weekly:b-1",
		"quickpick:batch:weekly:b-2",
		"quickpick:batch:weekly:gone",
		"quickpick:batch:weekly:junk",
	}, 0)
	mock.ExpectGet("quickpick:batch:weekly:b-1").SetVal(mustSerialize(t, testBatch()))
	mock.ExpectGet("quickpick:batch:weekly:b-2").SetVal(mustSerialize(t, second))
	mock.ExpectGet("quickpick:batch:weekly:gone").RedisNil()
	mock.ExpectGet("quickpick:batch:weekly:junk").SetVal("{")

	batches, err := s.List(ctx, "weekly")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "b-1", batches[0].ID)
	assert.Equal(t, "b-2", batches[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchStore_Delete(t *testing.T) {
	ctx := context.Background()
	key := "quickpick:batch:weekly:b-1"

	t.Run("deleted", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectDel(key).SetVal(1)
		assert.NoError(t, s.Delete(ctx, "weekly", "b-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectDel(key).SetVal(0)
		assert.ErrorIs(t, s.Delete(ctx, "weekly", "b-1"), ErrBatchNotFound)
	})

	t.Run("redis_error", func(t *testing.T) {
		s, mock := newMockBatchStore(t)
		mock.ExpectDel(key).SetErr(redis.TxFailedErr)
		assert.ErrorIs(t, s.Delete(ctx, "weekly", "b-1"), ErrBatchSaveFailure)
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		s, _ := newMockBatchStore(t)
		assert.ErrorIs(t, s.Delete(ctx, "weekly", ""), ErrInvalidParameters)
	})
}

func TestBatchStore_RedisIntegration(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	s := NewBatchStoreWithRetry(rdb, NewSilentLogger(), 1, time.Millisecond, time.Minute)

	b := testBatch()
	require.NoError(t, s.Save(ctx, b))

	ttl, err := rdb.TTL(ctx, batchKey(b.LockKey, b.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	loaded, err := s.Load(ctx, b.LockKey, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Tickets, loaded.Tickets)

	batches, err := s.List(ctx, b.LockKey)
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	require.NoError(t, s.Delete(ctx, b.LockKey, b.ID))
	_, err = s.Load(ctx, b.LockKey, b.ID)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}
