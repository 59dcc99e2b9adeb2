package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/kydenul/quickpick"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	ballColor   = color.New(color.FgGreen)
	hitColor    = color.New(color.FgYellow, color.Bold)
	faintColor  = color.New(color.Faint)
	errorColor  = color.New(color.FgRed, color.Bold)
)

func applyColor() {
	if noColorFlag {
		color.NoColor = true
	}
}

// ballWidth zero-pads every ball to the digits of the largest one, at least two
func ballWidth(high int) int {
	return max(2, len(strconv.Itoa(high)))
}

// formatTicket renders a ticket with balls found in hits highlighted
func formatTicket(t quickpick.Ticket, width int, hits map[int]bool) string {
	parts := make([]string, t.Len())
	for i, v := range t.Ints() {
		s := fmt.Sprintf("%0*d", width, v)
		if hits[v] {
			parts[i] = hitColor.Sprint(s)
		} else {
			parts[i] = ballColor.Sprint(s)
		}
	}
	return strings.Join(parts, " ")
}

// printBatch writes one ticket per line; matches, when given, is the match
// count of each ticket against drawn.
func printBatch(w io.Writer, batch *quickpick.Batch, matches []int, drawn ...int) {
	hits := make(map[int]bool, len(drawn))
	for _, v := range drawn {
		hits[v] = true
	}

	width := ballWidth(batch.High)
	index := len(strconv.Itoa(len(batch.Tickets)))
	for i, t := range batch.Tickets {
		line := formatTicket(t, width, hits)
		if matches != nil {
			line += faintColor.Sprintf("  (%d)", matches[i])
		}
		fmt.Fprintf(w, "%s %s\n", faintColor.Sprintf("%*d.", index, i+1), line)
	}

	if verboseFlag {
		fmt.Fprintln(w, faintColor.Sprintf("batch %s: %d ticket(s) of %d from [%d,%d], %s bitmap, %d attempts",
			batch.ID, len(batch.Tickets), batch.Pick, batch.Low, batch.High, batch.Strategy, batch.Attempts))
	}
}

// prizeTable returns named tiers for games that have them
func prizeTable(size, pick int) *quickpick.PrizeTable {
	if size == 60 && pick == 6 {
		return quickpick.MegaSenaPrizes()
	}
	return nil
}

// printAwards summarises a checked batch
func printAwards(w io.Writer, batch *quickpick.Batch, matches []int) {
	best := 0
	for _, m := range matches {
		best = max(best, m)
	}
	headerColor.Fprintf(w, "best ticket matched %d of %d\n", best, batch.Pick)

	table := prizeTable(batch.High-batch.Low+1, batch.Pick)
	if table == nil {
		return
	}
	won := table.Award(matches)
	for _, tier := range table.Tiers {
		if n := won[tier.Name]; n > 0 {
			hitColor.Fprintf(w, "%-8s %d ticket(s)\n", tier.Name, n)
		}
	}
}

// printOdds prints the size of the ticket space and the odds of each match count
func printOdds(w io.Writer, game quickpick.GameConfig, table bool, matches int) error {
	size := game.High - game.Low + 1
	if game.Low > game.High {
		return quickpick.ErrInvalidRange.WithDetails("low=%d high=%d", game.Low, game.High)
	}

	if matches >= 0 {
		p, err := quickpick.CalculateProbability(size, game.Pick, matches)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "P(%d of %d from %d) = %s = 1 in %.2f\n", matches, game.Pick, size, p, p.OneIn())
		if !table {
			return nil
		}
	}

	total, err := quickpick.Combination(size, game.Pick)
	if err != nil {
		return err
	}
	headerColor.Fprintf(w, "%s possible tickets of %d from [%d,%d]\n", total, game.Pick, game.Low, game.High)

	odds, err := quickpick.OddsTable(size, game.Pick)
	if err != nil {
		return err
	}
	for i := len(odds) - 1; i >= 0; i-- {
		p := odds[i]
		if p.Favorable.IsZero() {
			continue
		}
		fmt.Fprintf(w, "%3d  %s  1 in %.2f\n", p.M, ballColor.Sprintf("%-24.10g", p.Float64()), p.OneIn())
	}
	return nil
}
