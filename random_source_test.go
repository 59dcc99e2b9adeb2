package quickpick

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays a fixed list of values, cycling when exhausted
type scriptedSource struct {
	values []int
	next   int
	calls  int
}

func (s *scriptedSource) GenerateInRange(min, max int) (int, error) {
	s.calls++
	v := s.values[s.next%len(s.values)]
	s.next++
	return v, nil
}

// failingSource always fails
type failingSource struct{ err error }

func (s failingSource) GenerateInRange(int, int) (int, error) { return 0, s.err }

func TestRandomSources_GenerateInRange(t *testing.T) {
	sources := map[string]RandomSource{
		"secure": NewSecureRandomSource(),
		"cached": NewCachedRandomSource(4),
		"seeded": NewSeededRandomSource(42),
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			seen := make(map[int]bool)
			for i := 0; i < 2000; i++ {
				v, err := src.GenerateInRange(1, 10)
				require.NoError(t, err)
				require.GreaterOrEqual(t, v, 1)
				require.LessOrEqual(t, v, 10)
				seen[v] = true
			}
			assert.Len(t, seen, 10, "every value should appear")

			v, err := src.GenerateInRange(7, 7)
			require.NoError(t, err)
			assert.Equal(t, 7, v)

			_, err = src.GenerateInRange(5, 1)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

func TestCachedRandomSource_Refill(t *testing.T) {
	src := NewCachedRandomSource(2)
	// 消耗超过缓存大小的随机数
	for i := 0; i < 100; i++ {
		_, err := src.GenerateInRange(0, 1<<40)
		require.NoError(t, err)
	}

	def := NewCachedRandomSource()
	assert.Len(t, def.cache, DefaultRandomCacheSize*8)
}

func TestSeededRandomSource_Deterministic(t *testing.T) {
	a, b := NewSeededRandomSource(7), NewSeededRandomSource(7)
	for i := 0; i < 100; i++ {
		va, _ := a.GenerateInRange(0, 1000)
		vb, _ := b.GenerateInRange(0, 1000)
		require.Equal(t, va, vb)
	}

	t.Run("split", func(t *testing.T) {
		x := NewSeededRandomSource(7).Split(3)
		y := NewSeededRandomSource(7).Split(3)
		require.Len(t, x, 3)
		for i := range x {
			vx, _ := x[i].GenerateInRange(0, 1<<30)
			vy, _ := y[i].GenerateInRange(0, 1<<30)
			assert.Equal(t, vx, vy)
		}
	})
}

func TestSourceError(t *testing.T) {
	cause := errors.New("entropy exhausted")
	err := sourceError(cause)
	assert.ErrorIs(t, err, ErrRandomSource)
	assert.ErrorIs(t, err, cause)

	// already tagged errors are passed through
	assert.Same(t, ErrRandomSource, sourceError(ErrRandomSource))
}
