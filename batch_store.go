package quickpick

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// scanBatchCount is the COUNT hint passed to SCAN when listing batches
const scanBatchCount = 100

// BatchStore persists generated batches in Redis as JSON with a TTL
type BatchStore struct {
	redisClient *redis.Client
	logger      Logger
	recovery    *ErrorRecovery
	ttl         time.Duration
	compression Compression
}

// NewBatchStore creates a batch store with the default retry settings and TTL
func NewBatchStore(redisClient *redis.Client, logger Logger) *BatchStore {
	return NewBatchStoreWithRetry(redisClient, logger, DefaultRetryAttempts, DefaultRetryInterval, DefaultBatchTTL)
}

// NewBatchStoreWithRetry creates a batch store with custom retry settings and TTL
func NewBatchStoreWithRetry(redisClient *redis.Client, logger Logger, retryAttempts int, retryDelay, ttl time.Duration) *BatchStore {
	if logger == nil {
		logger = NewSilentLogger()
	}
	if ttl <= 0 {
		ttl = DefaultBatchTTL
	}
	return &BatchStore{
		redisClient: redisClient,
		logger:      logger,
		recovery:    NewErrorRecovery(NewDefaultErrorHandler(logger, retryDelay), retryAttempts, logger),
		ttl:         ttl,
		compression: CompressionZstd,
	}
}

// SetCompression selects the codec for batches saved from now on
func (s *BatchStore) SetCompression(c Compression) { s.compression = c }

// newBatchID returns a random batch identifier
func newBatchID() string { return uuid.NewString() }

// batchKey returns the Redis key of a batch
func batchKey(lockKey, batchID string) string {
	return fmt.Sprintf("%s%s:%s", BatchKeyPrefix, lockKey, batchID)
}

// parseBatchKey splits a batch key into its lock key and batch ID. The lock
// key may itself contain colons, the batch ID never does.
func parseBatchKey(key string) (lockKey, batchID string, err error) {
	rest, ok := strings.CutPrefix(key, BatchKeyPrefix)
	if !ok {
		return "", "", ErrInvalidParameters.WithDetails("batch key %q: missing prefix", key)
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", ErrInvalidParameters.WithDetails("batch key %q: want <lock key>:<batch id>", key)
	}
	return rest[:i], rest[i+1:], nil
}

// Save writes the batch under its lock key and ID
func (s *BatchStore) Save(ctx context.Context, b *Batch) error {
	start := time.Now()
	data, err := serializeBatch(b)
	if err == nil {
		data, err = encodePayload(data, s.compression)
	}
	if err != nil {
		s.logger.Error("Failed to serialize batch: %v", err)
		return err
	}

	key := batchKey(b.LockKey, b.ID)
	err = s.recovery.ExecuteWithRetry(ctx, "save["+key+"]", func() error {
		return s.redisClient.Set(ctx, key, data, s.ttl).Err()
	})
	if err != nil {
		s.logger.Error("Failed to save batch: key=%s, size=%d bytes, error=%v", key, len(data), err)
		return ErrBatchSaveFailure.WithDetails("key=%s", key).WithCause(err)
	}

	s.logger.Debug("Saved batch: key=%s, tickets=%d, size=%d bytes, ttl=%v, took=%v",
		key, len(b.Tickets), len(data), s.ttl, time.Since(start))
	return nil
}

// Load reads one batch. A missing or expired batch yields ErrBatchNotFound.
func (s *BatchStore) Load(ctx context.Context, lockKey, batchID string) (*Batch, error) {
	if lockKey == "" || batchID == "" {
		return nil, ErrInvalidParameters.WithDetails("empty lock key or batch id")
	}
	return s.load(ctx, batchKey(lockKey, batchID))
}

func (s *BatchStore) load(ctx context.Context, key string) (*Batch, error) {
	var data []byte
	missing := false
	err := s.recovery.ExecuteWithRetry(ctx, "load["+key+"]", func() error {
		var err error
		data, err = s.redisClient.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			missing = true
			return nil
		}
		return err
	})
	if err != nil {
		s.logger.Error("Failed to load batch: key=%s, error=%v", key, err)
		return nil, ErrBatchLoadFailure.WithDetails("key=%s", key).WithCause(err)
	}
	if missing {
		return nil, ErrBatchNotFound.WithDetails("key=%s", key)
	}

	plain, err := decodePayload(data)
	if err != nil {
		s.logger.Error("Failed to decompress batch: key=%s, size=%d bytes, error=%v", key, len(data), err)
		return nil, err
	}
	b, err := deserializeBatch(plain)
	if err != nil {
		s.logger.Error("Failed to decode batch: key=%s, size=%d bytes, error=%v", key, len(data), err)
		return nil, err
	}
	if want, _, _ := parseBatchKey(key); want != b.LockKey {
		return nil, ErrBatchCorrupted.WithDetails("key %s holds a batch of lock key %s", key, b.LockKey)
	}
	return b, nil
}

// Keys lists the batch keys under lockKey with SCAN
func (s *BatchStore) Keys(ctx context.Context, lockKey string) ([]string, error) {
	if lockKey == "" {
		return nil, ErrInvalidParameters.WithDetails("empty lock key")
	}

	pattern := BatchKeyPrefix + lockKey + ":*"
	var keys []string
	err := s.recovery.ExecuteWithRetry(ctx, "scan["+pattern+"]", func() error {
		keys = keys[:0]
		var cursor uint64
		for {
			page, next, err := s.redisClient.Scan(ctx, cursor, pattern, scanBatchCount).Result()
			if err != nil {
				return err
			}
			keys = append(keys, page...)
			if cursor = next; cursor == 0 {
				return nil
			}
		}
	})
	if err != nil {
		s.logger.Error("Failed to scan batch keys: pattern=%s, error=%v", pattern, err)
		return nil, ErrBatchLoadFailure.WithDetails("pattern=%s", pattern).WithCause(err)
	}

	// the glob also matches lock keys that extend lockKey with a colon
	out := keys[:0]
	for _, key := range keys {
		if lk, _, err := parseBatchKey(key); err == nil && lk == lockKey {
			out = append(out, key)
		}
	}
	return out, nil
}

// List loads every live batch under lockKey. Batches that expire between the
// scan and the read are skipped, and so are corrupted ones, which are logged.
func (s *BatchStore) List(ctx context.Context, lockKey string) ([]*Batch, error) {
	keys, err := s.Keys(ctx, lockKey)
	if err != nil {
		return nil, err
	}

	batches := make([]*Batch, 0, len(keys))
	for _, key := range keys {
		b, err := s.load(ctx, key)
		switch {
		case err == nil:
			batches = append(batches, b)
		case errors.Is(err, ErrBatchNotFound):
			s.logger.Debug("Batch expired while listing: key=%s", key)
		case errors.Is(err, ErrBatchCorrupted), errors.Is(err, ErrDeserializationFailed):
			s.logger.Error("Skipping unreadable batch: key=%s, error=%v", key, err)
		default:
			return nil, err
		}
	}

	s.logger.Debug("Listed %d batches for lockKey=%s", len(batches), lockKey)
	return batches, nil
}

// Delete removes a batch. Deleting a missing batch yields ErrBatchNotFound.
func (s *BatchStore) Delete(ctx context.Context, lockKey, batchID string) error {
	if lockKey == "" || batchID == "" {
		return ErrInvalidParameters.WithDetails("empty lock key or batch id")
	}

	key := batchKey(lockKey, batchID)
	var removed int64
	err := s.recovery.ExecuteWithRetry(ctx, "delete["+key+"]", func() error {
		var err error
		removed, err = s.redisClient.Del(ctx, key).Result()
		return err
	})
	if err != nil {
		s.logger.Error("Failed to delete batch: key=%s, error=%v", key, err)
		return ErrBatchSaveFailure.WithOperation("delete").WithDetails("key=%s", key).WithCause(err)
	}
	if removed == 0 {
		return ErrBatchNotFound.WithDetails("key=%s", key)
	}

	s.logger.Debug("Deleted batch: key=%s", key)
	return nil
}
