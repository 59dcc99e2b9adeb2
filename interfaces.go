package quickpick

import "context"

// RandomSource supplies uniformly distributed integers.
//
// GenerateInRange returns a value in the closed interval [min, max].
// A source is owned by a single generation call for its whole duration and
// need not be safe for concurrent use.
type RandomSource interface {
	GenerateInRange(min, max int) (int, error)
}

// ProgressCallback is invoked by the parallel generator each time a ticket is accepted
type ProgressCallback func(accepted, total int)

// TicketGenerator defines the ticket operations exposed by the engine
type TicketGenerator interface {
	// GenerateBatch draws a batch of unique tickets under the given lock key and persists it
	GenerateBatch(ctx context.Context, lockKey string, cfg *TicketConfig) (*Batch, error)

	// LoadBatch loads a previously generated batch
	LoadBatch(ctx context.Context, lockKey, batchID string) (*Batch, error)

	// ListBatches returns all live batches stored under the lock key
	ListBatches(ctx context.Context, lockKey string) ([]*Batch, error)

	// DeleteBatch removes a persisted batch
	DeleteBatch(ctx context.Context, lockKey, batchID string) error

	// Probability computes the odds of matching m of k numbers drawn from n
	Probability(n, k, m int) (Probability, error)
}

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}
