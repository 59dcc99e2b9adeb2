package quickpick

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireValidBatch checks the batch-level properties every result must hold
func requireValidBatch(t *testing.T, cfg *TicketConfig, tickets []Ticket) {
	t.Helper()
	require.Len(t, tickets, cfg.Tickets().Value())

	r := cfg.Range()
	seen := make(map[TicketKey]bool, len(tickets))
	for _, ticket := range tickets {
		balls := ticket.Ints()
		require.Len(t, balls, cfg.Pick().Value())
		for i, b := range balls {
			require.True(t, r.Contains(b), "ball %d outside %s", b, r)
			if i > 0 {
				require.Greater(t, b, balls[i-1], "ticket %s not ascending", ticket)
			}
		}

		key, err := EncodeTicketKey(r, balls)
		require.NoError(t, err)
		require.False(t, seen[key], "duplicate ticket %s", ticket)
		seen[key] = true
	}
}

func TestGenerateTickets_Scenarios(t *testing.T) {
	tests := []struct {
		name                     string
		tickets, low, high, pick int
	}{
		{"mega_sena", 5, 1, 60, 6},
		{"lotofacil", 1, 1, 25, 15},
		{"lotomania", 20, 0, 99, 50},
		{"extended", 10, 1, 200, 12},
		{"negative_range", 8, -20, -1, 4},
		{"many_small", 1000, 1, 30, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewTicketConfig(tt.tickets, tt.low, tt.high, tt.pick)
			require.NoError(t, err)

			tickets, err := GenerateTickets(NewSeededRandomSource(99), cfg)
			require.NoError(t, err)
			requireValidBatch(t, cfg, tickets)
		})
	}
}

func TestGenerateTickets_Deterministic(t *testing.T) {
	cfg, err := NewTicketConfig(10, 1, 60, 6)
	require.NoError(t, err)

	a, err := GenerateTicketKeys(NewSeededRandomSource(2024), cfg)
	require.NoError(t, err)
	b, err := GenerateTicketKeys(NewSeededRandomSource(2024), cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateTickets_Boundaries(t *testing.T) {
	t.Run("pick_everything", func(t *testing.T) {
		cfg, err := NewTicketConfig(1, 1, 10, 10)
		require.NoError(t, err)

		src := &scriptedSource{values: []int{0}}
		gen, err := generate(src, cfg)
		require.NoError(t, err)
		assert.Equal(t, 0, src.calls)

		tickets := gen.Tickets(cfg.Range())
		require.Len(t, tickets, 1)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, tickets[0].Ints())
	})

	t.Run("whole_space", func(t *testing.T) {
		cfg, err := NewTicketConfig(120, 1, 10, 3)
		require.NoError(t, err)

		gen, err := generate(NewSeededRandomSource(5), cfg)
		require.NoError(t, err)
		assert.True(t, gen.Enumerated)
		requireValidBatch(t, cfg, gen.Tickets(cfg.Range()))
	})

	t.Run("whole_space_wide", func(t *testing.T) {
		cfg, err := NewTicketConfig(100, 0, 99, 99)
		require.NoError(t, err)

		tickets, err := GenerateTickets(NewSecureRandomSource(), cfg)
		require.NoError(t, err)
		requireValidBatch(t, cfg, tickets)
	})

	t.Run("beyond_space_fails_fast", func(t *testing.T) {
		_, err := NewTicketConfig(121, 1, 10, 3)
		require.ErrorIs(t, err, ErrTooManyTickets)
		assert.True(t, IsDomainError(err))
	})
}

func TestGenerateTickets_AttemptCap(t *testing.T) {
	cfg, err := NewTicketConfig(2, 1, 60, 1)
	require.NoError(t, err)

	// 始终产生同一张票, 第二张永远无法被接受
	src := &scriptedSource{values: []int{5}}
	_, err = GenerateTickets(src, cfg)
	require.ErrorIs(t, err, ErrUniqueGenerationFailed)
	assert.Equal(t, 2*SparseAttemptFactor, src.calls)
}

func TestGenerateTickets_InvalidInput(t *testing.T) {
	cfg, err := NewTicketConfig(1, 1, 60, 6)
	require.NoError(t, err)

	_, err = GenerateTickets(nil, cfg)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	_, err = GenerateTickets(NewSeededRandomSource(1), nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = GenerateTickets(failingSource{err: errors.New("boom")}, cfg)
	assert.ErrorIs(t, err, ErrRandomSource)
}

func TestPlanBatch(t *testing.T) {
	tests := []struct {
		name                     string
		tickets, low, high, pick int
		enumerate                bool
		factor                   int
	}{
		{"sparse", 30, 1, 10, 3, false, SparseAttemptFactor},
		{"small_dense_enumerates", 70, 1, 10, 3, true, MediumAttemptFactor},
		{"medium", 100_000, 1, 20, 10, false, MediumAttemptFactor},
		{"dense", 160_000, 1, 20, 10, false, DenseAttemptFactor},
		{"unbounded", 10, 0, 511, 256, false, SparseAttemptFactor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewTicketConfig(tt.tickets, tt.low, tt.high, tt.pick)
			require.NoError(t, err)

			plan := planBatch(cfg)
			assert.Equal(t, tt.enumerate, plan.enumerate)
			assert.Equal(t, tt.tickets*tt.factor, plan.limit)
			assert.Equal(t, SelectStrategy(cfg.Range().Size()), plan.strategy)
		})
	}
}

func TestSubsets(t *testing.T) {
	var got [][]int
	for combo := range subsets(5, 3) {
		got = append(got, slices.Clone(combo))
	}
	require.Len(t, got, 10)
	assert.Equal(t, []int{0, 1, 2}, got[0])
	assert.Equal(t, []int{0, 1, 3}, got[1])
	assert.Equal(t, []int{2, 3, 4}, got[9])
	assert.True(t, slices.IsSortedFunc(got, slices.Compare[[]int]))

	n := 0
	for range subsets(10, 2) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)

	for range subsets(2, 3) {
		t.Fatal("no subsets expected")
	}
}

func TestGenerateTicketsParallel(t *testing.T) {
	cfg, err := NewTicketConfig(500, 1, 60, 6)
	require.NoError(t, err)

	t.Run("workers", func(t *testing.T) {
		tickets, err := GenerateTicketsParallel(context.Background(), NewSeededRandomSource(3).Split(4), cfg)
		require.NoError(t, err)
		requireValidBatch(t, cfg, tickets)
	})

	t.Run("progress", func(t *testing.T) {
		var last atomic.Int64
		gen, err := generateParallel(context.Background(), NewSeededRandomSource(3).Split(2), cfg,
			func(accepted, total int) {
				assert.Equal(t, 500, total)
				last.Store(int64(accepted))
			})
		require.NoError(t, err)
		assert.Len(t, gen.Keys, 500)
		assert.GreaterOrEqual(t, gen.Attempts, 500)
		assert.Equal(t, int64(500), last.Load())
	})

	t.Run("single_source", func(t *testing.T) {
		tickets, err := GenerateTicketsParallel(context.Background(), []RandomSource{NewSeededRandomSource(1)}, cfg)
		require.NoError(t, err)
		requireValidBatch(t, cfg, tickets)
	})

	big, err := NewTicketConfig(100_000, 1, 60, 6)
	require.NoError(t, err)

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := GenerateTicketsParallel(ctx, NewSeededRandomSource(3).Split(2), big)
		assert.ErrorIs(t, err, ErrGenerationInterrupted)
	})

	t.Run("worker_error", func(t *testing.T) {
		sources := []RandomSource{NewSeededRandomSource(1), failingSource{err: errors.New("boom")}}
		_, err := GenerateTicketsParallel(context.Background(), sources, big)
		assert.ErrorIs(t, err, ErrRandomSource)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := GenerateTicketsParallel(context.Background(), nil, cfg)
		assert.ErrorIs(t, err, ErrInvalidParameters)
		_, err = GenerateTicketsParallel(context.Background(), []RandomSource{nil, nil}, cfg)
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})
}
