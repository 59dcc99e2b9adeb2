package quickpick

import "strings"

// BitmapStrategy selects the width of the bitmap used for one batch.
//
// The strategy is picked once per batch from the range size and threaded
// through every call of the generation loop.
type BitmapStrategy uint8

const (
	// StrategyNarrow stores a ticket in a single 64-bit word (size <= 64)
	StrategyNarrow BitmapStrategy = iota

	// StrategyWide stores a ticket in two words (65 <= size <= 128)
	StrategyWide

	// StrategyExtended stores a ticket in up to MaxKeyWords words (size > 128)
	StrategyExtended
)

// SelectStrategy depends on the range size only, never on the ball values:
// [200,255] has 56 balls and is narrow.
func SelectStrategy(size int) BitmapStrategy {
	switch {
	case size <= NarrowMaxSize:
		return StrategyNarrow
	case size <= WideMaxSize:
		return StrategyWide
	default:
		return StrategyExtended
	}
}

// Capacity returns the largest range size the strategy can encode
func (s BitmapStrategy) Capacity() int {
	switch s {
	case StrategyNarrow:
		return NarrowMaxSize
	case StrategyWide:
		return WideMaxSize
	default:
		return MaxRangeSize
	}
}

// wordCount is the number of words the strategy may populate
func (s BitmapStrategy) wordCount() int {
	switch s {
	case StrategyNarrow:
		return 1
	case StrategyWide:
		return 2
	default:
		return MaxKeyWords
	}
}

func (s BitmapStrategy) String() string {
	switch s {
	case StrategyNarrow:
		return "narrow"
	case StrategyWide:
		return "wide"
	case StrategyExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// ParseStrategy is the inverse of String
func ParseStrategy(s string) (BitmapStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "narrow":
		return StrategyNarrow, nil
	case "wide":
		return StrategyWide, nil
	case "extended":
		return StrategyExtended, nil
	}
	return 0, ErrInvalidParameters.WithDetails("unknown bitmap strategy %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (s BitmapStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *BitmapStrategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
