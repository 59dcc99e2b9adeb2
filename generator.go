package quickpick

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/kydenul/quickpick/internal/uint128"
)

// Generation is the outcome of one batch: the accepted keys in acceptance
// order plus how they were obtained.
type Generation struct {
	Keys       []TicketKey
	Strategy   BitmapStrategy
	Attempts   int
	Enumerated bool
}

// Tickets decodes every key against r
func (g *Generation) Tickets(r BallRange) []Ticket {
	tickets := make([]Ticket, len(g.Keys))
	for i, key := range g.Keys {
		tickets[i] = key.Ticket(r)
	}
	return tickets
}

// GenerateTickets draws cfg.Tickets() pairwise distinct tickets from src.
func GenerateTickets(src RandomSource, cfg *TicketConfig) ([]Ticket, error) {
	gen, err := generate(src, cfg)
	if err != nil {
		return nil, err
	}
	return gen.Tickets(cfg.Range()), nil
}

// GenerateTicketKeys is GenerateTickets without decoding
func GenerateTicketKeys(src RandomSource, cfg *TicketConfig) ([]TicketKey, error) {
	gen, err := generate(src, cfg)
	if err != nil {
		return nil, err
	}
	return gen.Keys, nil
}

// GenerateTicketsParallel spreads candidate generation over one worker per
// source. A single writer owns the accepted set, so sources are never
// shared. Cancelling ctx stops the batch with ErrGenerationInterrupted.
func GenerateTicketsParallel(ctx context.Context, sources []RandomSource, cfg *TicketConfig) ([]Ticket, error) {
	gen, err := generateParallel(ctx, sources, cfg, nil)
	if err != nil {
		return nil, err
	}
	return gen.Tickets(cfg.Range()), nil
}

// batchPlan is what generate decides before drawing anything
type batchPlan struct {
	strategy  BitmapStrategy
	space     uint128.Uint128
	bounded   bool
	enumerate bool
	limit     int
}

func planBatch(cfg *TicketConfig) batchPlan {
	size, t := cfg.Range().Size(), cfg.Tickets().Value()
	plan := batchPlan{strategy: SelectStrategy(size)}

	space, err := Combination(size, cfg.Pick().Value())
	if err == nil {
		plan.space, plan.bounded = space, true
	}
	if plan.bounded && space.Cmp64(EnumerationLimit) <= 0 && float64(t) > DenseFillRatio*space.Float64() {
		plan.enumerate = true
	}
	plan.limit = t * attemptFactor(t, plan)
	return plan
}

// attemptFactor scales the rejection budget with how full the batch makes
// the subset space.
func attemptFactor(t int, plan batchPlan) int {
	if !plan.bounded {
		return SparseAttemptFactor
	}
	switch fill := float64(t) / plan.space.Float64(); {
	case fill < 0.5:
		return SparseAttemptFactor
	case fill < 0.8:
		return MediumAttemptFactor
	default:
		return DenseAttemptFactor
	}
}

func generate(src RandomSource, cfg *TicketConfig) (*Generation, error) {
	if src == nil || cfg == nil {
		return nil, ErrInvalidParameters.WithDetails("nil random source or config")
	}
	plan := planBatch(cfg)
	if plan.enumerate {
		return enumerate(src, cfg, plan)
	}

	t := cfg.Tickets().Value()
	gen := &Generation{Strategy: plan.strategy, Keys: make([]TicketKey, 0, t)}
	seen := make(map[TicketKey]struct{}, t)
	for len(gen.Keys) < t {
		if gen.Attempts >= plan.limit {
			return nil, ErrUniqueGenerationFailed.WithDetails(
				"%d of %d unique tickets after %d attempts", len(gen.Keys), t, gen.Attempts)
		}
		key, err := GenerateTicketKey(src, plan.strategy, cfg.Range(), cfg.Pick())
		if err != nil {
			return nil, err
		}
		gen.Attempts++
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		gen.Keys = append(gen.Keys, key)
	}
	return gen, nil
}

// enumerate lists the whole subset space and keeps a random t of it with a
// partial Fisher-Yates shuffle, for batches that fill most of a small space.
func enumerate(src RandomSource, cfg *TicketConfig, plan batchPlan) (*Generation, error) {
	size, k := cfg.Range().Size(), cfg.Pick().Value()
	all := make([]TicketKey, 0, int(plan.space.Lo))
	for combo := range subsets(size, k) {
		key := TicketKey{strategy: plan.strategy}
		for _, p := range combo {
			key.words[p>>6] |= uint64(1) << uint(p&63)
		}
		key.validate(size, k)
		all = append(all, key)
	}
	if uint64(len(all)) != plan.space.Lo {
		invariantf("enumerated %d subsets of C(%d,%d)=%s", len(all), size, k, plan.space)
	}

	t := cfg.Tickets().Value()
	gen := &Generation{Strategy: plan.strategy, Enumerated: true}
	for i := 0; i < t; i++ {
		j := i
		if i < len(all)-1 {
			var err error
			if j, err = src.GenerateInRange(i, len(all)-1); err != nil {
				return nil, sourceError(err)
			}
			if j < i || j >= len(all) {
				invariantf("random source returned %d outside [%d,%d]", j, i, len(all)-1)
			}
			gen.Attempts++
		}
		all[i], all[j] = all[j], all[i]
	}
	gen.Keys = all[:t:t]
	return gen, nil
}

// subsets yields the k-subsets of [0, n) in lexicographic order. The yielded
// slice is reused between iterations.
func subsets(n, k int) iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		if k < 0 || k > n {
			return
		}
		a := make([]int, k)
		for i := range a {
			a[i] = i
		}
		for {
			if !yield(a) {
				return
			}
			// rightmost position that can still move right
			j := k - 1
			for j >= 0 && a[j] == n-k+j {
				j--
			}
			if j < 0 {
				return
			}
			a[j]++
			for i := j + 1; i < k; i++ {
				a[i] = a[i-1] + 1
			}
		}
	}
}

func generateParallel(ctx context.Context, sources []RandomSource, cfg *TicketConfig, progress ProgressCallback) (*Generation, error) {
	if len(sources) == 0 || cfg == nil {
		return nil, ErrInvalidParameters.WithDetails("no random sources or nil config")
	}
	for _, src := range sources {
		if src == nil {
			return nil, ErrInvalidParameters.WithDetails("nil random source")
		}
	}
	plan := planBatch(cfg)
	if plan.enumerate || len(sources) == 1 {
		gen, err := generate(sources[0], cfg)
		if err == nil && progress != nil {
			progress(len(gen.Keys), len(gen.Keys))
		}
		return gen, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	t := cfg.Tickets().Value()
	candidates := make(chan TicketKey, len(sources)*4)
	for _, src := range sources {
		g.Go(func() error {
			for {
				key, err := GenerateTicketKey(src, plan.strategy, cfg.Range(), cfg.Pick())
				if err != nil {
					return err
				}
				select {
				case candidates <- key:
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	gen := &Generation{Strategy: plan.strategy, Keys: make([]TicketKey, 0, t)}
	g.Go(func() error {
		defer cancel()
		seen := make(map[TicketKey]struct{}, t)
		for len(gen.Keys) < t {
			if gen.Attempts >= plan.limit {
				return ErrUniqueGenerationFailed.WithDetails(
					"%d of %d unique tickets after %d attempts", len(gen.Keys), t, gen.Attempts)
			}
			select {
			case <-gctx.Done():
				return ErrGenerationInterrupted.WithCause(gctx.Err())
			case key := <-candidates:
				gen.Attempts++
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				gen.Keys = append(gen.Keys, key)
				if progress != nil {
					progress(len(gen.Keys), t)
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return gen, nil
}
