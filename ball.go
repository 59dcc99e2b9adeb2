package quickpick

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BallNumber is a lottery ball known to lie inside a BallRange.
type BallNumber int

// NewBallNumber validates v against r
func NewBallNumber(v int, r BallRange) (BallNumber, error) {
	if !r.Contains(v) {
		return 0, ErrBallOutOfRange.WithDetails("%d not in %s", v, r)
	}
	return BallNumber(v), nil
}

// Value returns the plain integer
func (b BallNumber) Value() int { return int(b) }

// String zero-pads to two digits, the way lottery slips print numbers.
func (b BallNumber) String() string { return fmt.Sprintf("%02d", int(b)) }

// BallRange is the closed interval [low, high].
type BallRange struct {
	low, high int
}

// NewBallRange validates low <= high and the supported cardinality
func NewBallRange(low, high int) (BallRange, error) {
	if low > high {
		return BallRange{}, ErrInvalidRange.WithDetails("low=%d high=%d", low, high)
	}
	if size := int64(high) - int64(low) + 1; size > MaxRangeSize {
		return BallRange{}, ErrRangeTooLarge.WithDetails("size %d exceeds %d", size, MaxRangeSize)
	}
	return BallRange{low: low, high: high}, nil
}

// MustBallRange is NewBallRange for constants known to be valid; it panics otherwise
func MustBallRange(low, high int) BallRange {
	r, err := NewBallRange(low, high)
	if err != nil {
		panic(err)
	}
	return r
}

// MegaSena is the 1-60 range
func MegaSena() BallRange { return BallRange{low: 1, high: 60} }

// Lotomania is the 0-99 range
func Lotomania() BallRange { return BallRange{low: 0, high: 99} }

// Low returns the smallest ball
func (r BallRange) Low() int { return r.low }

// High returns the largest ball
func (r BallRange) High() int { return r.high }

// Size returns the number of balls in the range
func (r BallRange) Size() int { return r.high - r.low + 1 }

// Contains reports whether v is a ball of r
func (r BallRange) Contains(v int) bool { return v >= r.low && v <= r.high }

// Strategy returns the bitmap tier for r
func (r BallRange) Strategy() BitmapStrategy { return SelectStrategy(r.Size()) }

func (r BallRange) String() string { return fmt.Sprintf("[%d,%d]", r.low, r.high) }

// PickCount is the number of balls on one ticket, 1 <= k <= size.
type PickCount int

// NewPickCount validates k against r
func NewPickCount(k int, r BallRange) (PickCount, error) {
	if k < 1 {
		return 0, ErrInvalidPickCount.WithDetails("pick=%d", k)
	}
	if k > r.Size() {
		return 0, ErrPickExceedsRange.WithDetails("cannot pick %d balls from %d values", k, r.Size())
	}
	return PickCount(k), nil
}

// Value returns the plain integer
func (k PickCount) Value() int { return int(k) }

// TicketCount is the number of tickets in a batch, t >= 1.
type TicketCount int

// NewTicketCount validates t
func NewTicketCount(t int) (TicketCount, error) {
	if t < 1 {
		return 0, ErrInvalidTicketCount.WithDetails("tickets=%d", t)
	}
	return TicketCount(t), nil
}

// Value returns the plain integer
func (t TicketCount) Value() int { return int(t) }

// Ticket is an ascending sequence of distinct balls. Tickets are produced by
// the decoder and are never mutated afterwards.
type Ticket struct {
	balls []BallNumber
}

// Balls returns the balls in ascending order. The slice must not be modified.
func (t Ticket) Balls() []BallNumber { return t.balls }

// Len returns the number of balls
func (t Ticket) Len() int { return len(t.balls) }

// Ints copies the balls into a plain slice
func (t Ticket) Ints() []int {
	out := make([]int, len(t.balls))
	for i, b := range t.balls {
		out[i] = int(b)
	}
	return out
}

// Equal compares two tickets ball by ball
func (t Ticket) Equal(o Ticket) bool {
	if len(t.balls) != len(o.balls) {
		return false
	}
	for i := range t.balls {
		if t.balls[i] != o.balls[i] {
			return false
		}
	}
	return true
}

func (t Ticket) String() string {
	parts := make([]string, len(t.balls))
	for i, b := range t.balls {
		parts[i] = b.String()
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the ticket as a plain array of integers
func (t Ticket) MarshalJSON() ([]byte, error) { return json.Marshal(t.Ints()) }

// UnmarshalJSON decodes a plain integer array. Ordering and range are
// checked later by Batch.Validate since the range is not known here.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.balls = make([]BallNumber, len(raw))
	for i, v := range raw {
		t.balls[i] = BallNumber(v)
	}
	return nil
}

// TicketConfig holds (t, low, high, k), validated once at construction.
// Everything downstream assumes it is valid.
type TicketConfig struct {
	tickets TicketCount
	rng     BallRange
	pick    PickCount
}

// NewTicketConfig validates every parameter and rejects batches larger than
// the number of distinct subsets, since such a batch could never complete.
func NewTicketConfig(tickets, low, high, pick int) (*TicketConfig, error) {
	t, err := NewTicketCount(tickets)
	if err != nil {
		return nil, err
	}
	r, err := NewBallRange(low, high)
	if err != nil {
		return nil, err
	}
	k, err := NewPickCount(pick, r)
	if err != nil {
		return nil, err
	}

	space, err := Combination(r.Size(), k.Value())
	switch {
	case err != nil:
		// the space does not fit in 128 bits, so it is larger than any int
	case space.Cmp64(uint64(t)) < 0:
		return nil, ErrTooManyTickets.WithDetails("requested %d, maximum %s", t, space)
	}

	return &TicketConfig{tickets: t, rng: r, pick: k}, nil
}

// Tickets returns t
func (c *TicketConfig) Tickets() TicketCount { return c.tickets }

// Range returns [low, high]
func (c *TicketConfig) Range() BallRange { return c.rng }

// Pick returns k
func (c *TicketConfig) Pick() PickCount { return c.pick }

func (c *TicketConfig) String() string {
	return fmt.Sprintf("%d ticket(s) of %d from %s", c.tickets, c.pick, c.rng)
}
