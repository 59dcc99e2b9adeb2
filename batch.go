package quickpick

import (
	"encoding/json"
	"time"
)

// Batch is a persisted set of unique tickets drawn under one lock key
type Batch struct {
	ID         string         `json:"id"`
	LockKey    string         `json:"lock_key"`
	Low        int            `json:"low"`
	High       int            `json:"high"`
	Pick       int            `json:"pick"`
	Strategy   BitmapStrategy `json:"strategy"`
	Tickets    []Ticket       `json:"tickets"`
	Attempts   int            `json:"attempts"`             // candidate tickets drawn, duplicates included
	Enumerated bool           `json:"enumerated,omitempty"` // chosen from the full subset list
	CreatedAt  time.Time      `json:"created_at"`
}

// newBatch assembles a batch from a finished generation
func newBatch(id, lockKey string, cfg *TicketConfig, gen *Generation) *Batch {
	r := cfg.Range()
	return &Batch{
		ID:         id,
		LockKey:    lockKey,
		Low:        r.Low(),
		High:       r.High(),
		Pick:       cfg.Pick().Value(),
		Strategy:   gen.Strategy,
		Tickets:    gen.Tickets(r),
		Attempts:   gen.Attempts,
		Enumerated: gen.Enumerated,
		CreatedAt:  time.Now().UTC(),
	}
}

// DrawBatch generates a batch from src without locking or persisting it
func DrawBatch(src RandomSource, lockKey string, cfg *TicketConfig) (*Batch, error) {
	if lockKey == "" {
		return nil, ErrInvalidParameters.WithDetails("empty lock key")
	}
	gen, err := generate(src, cfg)
	if err != nil {
		return nil, err
	}
	return newBatch(newBatchID(), lockKey, cfg, gen), nil
}

// Range returns the ball range of the batch
func (b *Batch) Range() (BallRange, error) { return NewBallRange(b.Low, b.High) }

// Keys re-encodes every ticket
func (b *Batch) Keys() ([]TicketKey, error) {
	r, err := b.Range()
	if err != nil {
		return nil, err
	}
	keys := make([]TicketKey, len(b.Tickets))
	for i, t := range b.Tickets {
		if keys[i], err = EncodeTicketKey(r, t.Ints()); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Validate re-checks everything the generator guarantees: every ticket has
// Pick ascending balls inside [Low, High] and no two tickets are equal.
func (b *Batch) Validate() error {
	if b.ID == "" || b.LockKey == "" {
		return ErrBatchCorrupted.WithDetails("missing id or lock key")
	}
	r, err := b.Range()
	if err != nil {
		return ErrBatchCorrupted.WithCause(err)
	}
	if _, err := NewPickCount(b.Pick, r); err != nil {
		return ErrBatchCorrupted.WithCause(err)
	}
	if b.Strategy != r.Strategy() {
		return ErrBatchCorrupted.WithDetails("strategy %s does not fit %s", b.Strategy, r)
	}
	if len(b.Tickets) == 0 {
		return ErrBatchCorrupted.WithDetails("batch %s has no tickets", b.ID)
	}
	if b.Attempts < len(b.Tickets) && !b.Enumerated {
		return ErrBatchCorrupted.WithDetails("%d tickets from %d attempts", len(b.Tickets), b.Attempts)
	}

	seen := make(map[TicketKey]int, len(b.Tickets))
	for i, t := range b.Tickets {
		balls := t.Ints()
		if len(balls) != b.Pick {
			return ErrBatchCorrupted.WithDetails("ticket %d has %d balls, want %d", i, len(balls), b.Pick)
		}
		for j := 1; j < len(balls); j++ {
			if balls[j] <= balls[j-1] {
				return ErrBatchCorrupted.WithDetails("ticket %d is not strictly ascending", i)
			}
		}
		key, err := EncodeTicketKey(r, balls)
		if err != nil {
			return ErrBatchCorrupted.WithDetails("ticket %d", i).WithCause(err)
		}
		if prev, dup := seen[key]; dup {
			return ErrBatchCorrupted.WithDetails("tickets %d and %d are equal", prev, i)
		}
		seen[key] = i
	}
	return nil
}

// JackpotOdds is the chance that one of the batch's tickets matches every
// ball of a draw: len(Tickets) out of C(size, Pick).
func (b *Batch) JackpotOdds() (Probability, error) {
	r, err := b.Range()
	if err != nil {
		return Probability{}, err
	}
	single, err := CalculateProbability(r.Size(), b.Pick, b.Pick)
	if err != nil {
		return Probability{}, err
	}
	favorable, ok := single.Favorable.Mul64(uint64(len(b.Tickets)))
	if !ok {
		return Probability{}, ErrCalculationOverflow
	}
	single.Favorable = favorable
	return single, nil
}

// Check compares every ticket with drawn balls and returns the match count per ticket
func (b *Batch) Check(drawn []int) ([]int, error) {
	r, err := b.Range()
	if err != nil {
		return nil, err
	}
	draw, err := EncodeTicketKey(r, drawn)
	if err != nil {
		return nil, err
	}
	keys, err := b.Keys()
	if err != nil {
		return nil, err
	}

	matches := make([]int, len(keys))
	for i, key := range keys {
		matches[i] = key.Matches(draw)
	}
	return matches, nil
}

// serializeBatch validates and encodes a batch for storage
func serializeBatch(b *Batch) ([]byte, error) {
	if b == nil {
		return nil, ErrInvalidParameters.WithDetails("nil batch")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(b)
	if err != nil {
		return nil, ErrSerializationFailed.WithCause(err)
	}
	if len(data) > MaxBatchPayloadSize {
		return nil, ErrSerializationFailed.WithDetails(
			"batch %s is %d bytes, limit %d", b.ID, len(data), MaxBatchPayloadSize)
	}
	return data, nil
}

// deserializeBatch decodes and validates a stored batch
func deserializeBatch(data []byte) (*Batch, error) {
	if len(data) == 0 {
		return nil, ErrDeserializationFailed.WithDetails("empty payload")
	}
	if len(data) > MaxBatchPayloadSize {
		return nil, ErrDeserializationFailed.WithDetails("payload of %d bytes exceeds %d", len(data), MaxBatchPayloadSize)
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, ErrDeserializationFailed.WithCause(err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
