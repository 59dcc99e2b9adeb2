package quickpick

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// stallFactor bounds the draws spent on one key at stallFactor*size. At most
// half the positions are ever occupied while drawing, so a uniform source
// succeeds on every other draw on average and only a stuck source reaches it.
const stallFactor = 64

// TicketKey is the bitmap form of a ticket: bit p set means ball low+p is
// picked. Keys are comparable values and serve directly as set members.
type TicketKey struct {
	strategy BitmapStrategy
	words    [MaxKeyWords]uint64
}

// Strategy returns the tier the key was built for
func (k TicketKey) Strategy() BitmapStrategy { return k.strategy }

// Words returns a copy of the words used by the key's tier
func (k TicketKey) Words() []uint64 {
	n := k.strategy.wordCount()
	out := make([]uint64, n)
	copy(out, k.words[:n])
	return out
}

// Count returns the number of picked balls
func (k TicketKey) Count() int {
	n := 0
	for _, w := range k.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// IsZero reports whether no bit is set
func (k TicketKey) IsZero() bool { return k.words == [MaxKeyWords]uint64{} }

func (k TicketKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.strategy.String())
	sb.WriteByte(':')
	for i := k.strategy.wordCount() - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%016x", k.words[i])
	}
	return sb.String()
}

// GenerateTicketKey draws one ticket of k balls from r as a bitmap.
//
// Positions in [0, size) are drawn from src and rejected when already set.
// When more than half the range is picked, the complement is drawn instead
// and inverted, so picking the whole range costs no draws at all.
// The result is validated before it is returned; a key with the wrong bit
// count or a bit outside the range panics with ErrInvariantViolation.
func GenerateTicketKey(src RandomSource, strategy BitmapStrategy, r BallRange, k PickCount) (TicketKey, error) {
	size := r.Size()
	if size > strategy.Capacity() {
		return TicketKey{}, ErrInvalidParameters.WithDetails("%s bitmap cannot hold %d balls", strategy, size)
	}
	picks := k.Value()
	if picks < 1 || picks > size {
		return TicketKey{}, ErrPickExceedsRange.WithDetails("cannot pick %d balls from %d values", picks, size)
	}

	exclude := picks > size/2
	draws := picks
	if exclude {
		draws = size - picks
	}

	key := TicketKey{strategy: strategy}
	var err error
	switch strategy {
	case StrategyNarrow:
		key.words[0], err = drawNarrow(src, size, draws)
	case StrategyWide:
		key.words[0], key.words[1], err = drawWide(src, size, draws)
	default:
		err = drawExtended(src, size, draws, &key.words)
	}
	if err != nil {
		return TicketKey{}, err
	}

	if exclude {
		key.invert(size)
	}
	key.validate(size, picks)
	return key, nil
}

// drawPosition asks src for one position in [0, size)
func drawPosition(src RandomSource, size int) (int, error) {
	p, err := src.GenerateInRange(0, size-1)
	if err != nil {
		return 0, sourceError(err)
	}
	if p < 0 || p >= size {
		invariantf("random source returned %d outside [0,%d)", p, size)
	}
	return p, nil
}

// sourceError tags a failure of the random source itself
func sourceError(err error) error {
	if errors.Is(err, ErrRandomSource) {
		return err
	}
	return ErrRandomSource.WithCause(err)
}

func stalled(attempts, size int) error {
	return ErrRandomSource.WithDetails("no new position after %d draws over %d values", attempts, size)
}

func drawNarrow(src RandomSource, size, draws int) (uint64, error) {
	var w uint64
	for set, attempts := 0, 0; set < draws; attempts++ {
		if attempts >= stallFactor*size {
			return 0, stalled(attempts, size)
		}
		p, err := drawPosition(src, size)
		if err != nil {
			return 0, err
		}
		bit := uint64(1) << uint(p)
		if w&bit != 0 {
			continue
		}
		w |= bit
		set++
	}
	return w, nil
}

func drawWide(src RandomSource, size, draws int) (lo, hi uint64, err error) {
	for set, attempts := 0, 0; set < draws; attempts++ {
		if attempts >= stallFactor*size {
			return 0, 0, stalled(attempts, size)
		}
		var p int
		if p, err = drawPosition(src, size); err != nil {
			return 0, 0, err
		}
		word := &lo
		if p >= 64 {
			word = &hi
			p -= 64
		}
		bit := uint64(1) << uint(p)
		if *word&bit != 0 {
			continue
		}
		*word |= bit
		set++
	}
	return lo, hi, nil
}

func drawExtended(src RandomSource, size, draws int, words *[MaxKeyWords]uint64) error {
	for set, attempts := 0, 0; set < draws; attempts++ {
		if attempts >= stallFactor*size {
			return stalled(attempts, size)
		}
		p, err := drawPosition(src, size)
		if err != nil {
			return err
		}
		bit := uint64(1) << uint(p&63)
		if words[p>>6]&bit != 0 {
			continue
		}
		words[p>>6] |= bit
		set++
	}
	return nil
}

// rangeMask returns the valid bits of word i for a range of size balls
func rangeMask(i, size int) uint64 {
	full := size >> 6
	switch {
	case i < full:
		return ^uint64(0)
	case i == full && size&63 != 0:
		return uint64(1)<<uint(size&63) - 1
	default:
		return 0
	}
}

// invert flips every bit inside the range
func (k *TicketKey) invert(size int) {
	for i := range k.words {
		k.words[i] = ^k.words[i] & rangeMask(i, size)
	}
}

// validate checks the bit count and that nothing is set past size,
// including the unused high bits of the last partial word.
func (k TicketKey) validate(size, picks int) {
	count := 0
	for i, w := range k.words {
		if stray := w &^ rangeMask(i, size); stray != 0 {
			invariantf("%s key has bits beyond position %d in word %d: %#x", k.strategy, size, i, stray)
		}
		count += bits.OnesCount64(w)
	}
	if count != picks {
		invariantf("%s key has %d bits set, want %d", k.strategy, count, picks)
	}
}

// Ticket decodes the key into ascending balls of r. Only set bits are
// visited: the lowest set bit of each word is extracted and cleared until
// the word is empty, words in increasing order.
func (k TicketKey) Ticket(r BallRange) Ticket {
	size := r.Size()
	balls := make([]BallNumber, 0, k.Count())
	prev := -1
	for i := 0; i < k.strategy.wordCount(); i++ {
		w := k.words[i]
		base := i << 6
		for w != 0 {
			pos := base + bits.TrailingZeros64(w)
			w &= w - 1
			if pos >= size {
				invariantf("bit %d set outside range of %d balls", pos, size)
			}
			if pos <= prev {
				invariantf("decoded positions not increasing: %d after %d", pos, prev)
			}
			prev = pos
			balls = append(balls, BallNumber(r.Low()+pos))
		}
	}
	return Ticket{balls: balls}
}

// EncodeTicketKey builds the key of a ticket given as ball values in any order.
// It is used to reload stored batches and to check user supplied tickets.
func EncodeTicketKey(r BallRange, balls []int) (TicketKey, error) {
	if len(balls) == 0 {
		return TicketKey{}, ErrInvalidPickCount.WithDetails("empty ticket")
	}
	if len(balls) > r.Size() {
		return TicketKey{}, ErrPickExceedsRange.WithDetails("%d balls for %d values", len(balls), r.Size())
	}

	key := TicketKey{strategy: r.Strategy()}
	for _, b := range balls {
		if !r.Contains(b) {
			return TicketKey{}, ErrBallOutOfRange.WithDetails("%d not in %s", b, r)
		}
		p := b - r.Low()
		bit := uint64(1) << uint(p&63)
		if key.words[p>>6]&bit != 0 {
			return TicketKey{}, ErrInvalidTicketKey.WithDetails("ball %d repeated", b)
		}
		key.words[p>>6] |= bit
	}
	return key, nil
}

// Matches returns how many balls k and o have in common
func (k TicketKey) Matches(o TicketKey) int {
	n := 0
	for i := range k.words {
		n += bits.OnesCount64(k.words[i] & o.words[i])
	}
	return n
}
