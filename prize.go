package quickpick

import (
	"cmp"
	"slices"
)

// PrizeTier is a named prize paid for matching exactly Matches balls
type PrizeTier struct {
	Name    string      `json:"name"`
	Matches int         `json:"matches"`
	Odds    Probability `json:"-"` // chance of one ticket landing in the tier
}

// PrizeTable lists the prize tiers of a game, best tier first
type PrizeTable struct {
	N     int
	K     int
	Tiers []PrizeTier
}

// NewPrizeTable builds the tiers of a game drawing k balls from n, from the
// tier name of each paying match count.
func NewPrizeTable(n, k int, names map[int]string) (*PrizeTable, error) {
	if len(names) == 0 {
		return nil, ErrInvalidParameters.WithDetails("prize table needs at least one tier")
	}

	table := &PrizeTable{N: n, K: k, Tiers: make([]PrizeTier, 0, len(names))}
	for m, name := range names {
		if name == "" {
			return nil, ErrInvalidParameters.WithDetails("tier for %d matches has no name", m)
		}
		if m < 1 {
			return nil, ErrInvalidMatchCount.WithDetails("tier %q pays %d matches", name, m)
		}
		odds, err := CalculateProbability(n, k, m)
		if err != nil {
			return nil, err
		}
		table.Tiers = append(table.Tiers, PrizeTier{Name: name, Matches: m, Odds: odds})
	}

	slices.SortFunc(table.Tiers, func(a, b PrizeTier) int { return cmp.Compare(b.Matches, a.Matches) })
	return table, nil
}

// MegaSenaPrizes is the 6 of 60 table: sena, quina and quadra
func MegaSenaPrizes() *PrizeTable {
	table, err := NewPrizeTable(60, 6, map[int]string{6: "sena", 5: "quina", 4: "quadra"})
	if err != nil {
		panic(err)
	}
	return table
}

// Tier returns the tier paid for matches, if any
func (t *PrizeTable) Tier(matches int) (PrizeTier, bool) {
	for _, tier := range t.Tiers {
		if tier.Matches == matches {
			return tier, true
		}
	}
	return PrizeTier{}, false
}

// Award counts the tickets landing in each tier, given per-ticket match
// counts as returned by Batch.Check. Tiers nobody reached are omitted.
func (t *PrizeTable) Award(matches []int) map[string]int {
	won := make(map[string]int)
	for _, m := range matches {
		if tier, ok := t.Tier(m); ok {
			won[tier.Name]++
		}
	}
	return won
}
