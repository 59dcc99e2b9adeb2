package quickpick

import "time"

const (
	// NarrowMaxSize is the largest range handled by a single 64-bit word
	NarrowMaxSize = 64

	// WideMaxSize is the largest range handled by a double-width word
	WideMaxSize = 128

	// MaxKeyWords is the number of 64-bit words in an extended bitmap
	MaxKeyWords = 8

	// MaxRangeSize is the largest supported range cardinality
	MaxRangeSize = MaxKeyWords * 64

	// EnumerationLimit is the largest subset space that may be fully enumerated
	// when a batch asks for more than half of it
	EnumerationLimit = 100_000

	// DenseFillRatio is the ticket/space ratio above which enumeration is preferred
	DenseFillRatio = 0.5
)

// Attempt multipliers for the rejection loop, chosen by fill ratio t / C(size,k)
const (
	SparseAttemptFactor = 100
	MediumAttemptFactor = 1_000
	DenseAttemptFactor  = 10_000
)

const (
	// DefaultLockTimeout is the default timeout for acquiring distributed locks
	DefaultLockTimeout = 30 * time.Second

	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 3

	// DefaultRetryInterval is the default interval between retry attempts
	DefaultRetryInterval = 100 * time.Millisecond

	// DefaultLockCacheTTL is the default TTL of the failed-lock fast path cache
	DefaultLockCacheTTL = 1 * time.Second

	// DefaultLockExpiration is the default expiration time for locks
	DefaultLockExpiration = 30 * time.Second

	// LockKeyPrefix is the prefix for Redis lock keys
	LockKeyPrefix = "quickpick:lock:"

	// BatchKeyPrefix is the prefix for persisted ticket batches
	BatchKeyPrefix = "quickpick:batch:"

	// DefaultBatchTTL is how long a generated batch stays in Redis
	DefaultBatchTTL = 24 * time.Hour

	// MaxBatchPayloadSize is the largest serialized batch accepted (10MB)
	MaxBatchPayloadSize = 10 * 1024 * 1024

	// CompressionThreshold is the payload size from which batches are compressed
	CompressionThreshold = 4 * 1024

	// DefaultBatchCompression is the codec used for stored batches
	DefaultBatchCompression = "zstd"

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// MinLockTimeout is the minimum lock timeout allowed
	MinLockTimeout = 1 * time.Second

	// MaxLockTimeout is the maximum lock timeout allowed
	MaxLockTimeout = 5 * time.Minute

	// MinLockCacheTTL is the minimum TTL for lock cache
	MinLockCacheTTL = 1 * time.Second

	// MaxLockCacheTTL is the maximum TTL for lock cache
	MaxLockCacheTTL = 5 * time.Minute

	// DefaultParallelThreshold is the batch size from which the engine fans out to workers
	DefaultParallelThreshold = 10_000

	// DefaultWorkers is the default number of generation workers, 0 means GOMAXPROCS
	DefaultWorkers = 0

	// DefaultRateLimit is the default number of batches admitted per second, 0 disables it
	DefaultRateLimit = 0

	// DefaultRateBurst is the default burst for the batch admission limiter
	DefaultRateBurst = 10

	// DefaultRandomCacheSize is the default number of buffered words of CachedRandomSource
	DefaultRandomCacheSize = 256
)

// Mega-Sena style defaults used when no game is configured
const (
	DefaultTickets = 1
	DefaultLow     = 1
	DefaultHigh    = 60
	DefaultPick    = 6
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "quickpick-engine"

	// DefaultCircuitBreakerMaxRequests is the default max requests
	DefaultCircuitBreakerMaxRequests = 3

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 50
	DefaultRedisMinIdleConns = 10
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisPoolTimeout  = 4 * time.Second
)
