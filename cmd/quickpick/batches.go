package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kydenul/quickpick"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the batches stored under the lock key",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Print a stored batch, optionally checking it against drawn numbers",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete a stored batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	showCmd.Flags().StringVar(&checkFlag, "check", "", "drawn numbers to check the batch against")
}

// withEngine runs fn against a connected engine
func withEngine(fn func(ctx context.Context, engine *quickpick.QuickPickEngine) error) error {
	applyColor()
	cm, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine, closeFn, err := newEngine(ctx, cm, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, engine)
}

func runList(cmd *cobra.Command, _ []string) error {
	return withEngine(func(ctx context.Context, engine *quickpick.QuickPickEngine) error {
		batches, err := engine.ListBatches(ctx, lockKeyFlag)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no batches under %q\n", lockKeyFlag)
			return nil
		}

		slices.SortFunc(batches, func(a, b *quickpick.Batch) int { return a.CreatedAt.Compare(b.CreatedAt) })
		for _, b := range batches {
			odds, err := b.JackpotOdds()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %4d ticket(s) of %d from [%d,%d]  jackpot 1 in %.0f\n",
				headerColor.Sprint(b.ID), b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				len(b.Tickets), b.Pick, b.Low, b.High, odds.OneIn())
		}
		return nil
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	var drawn []int
	if strings.TrimSpace(checkFlag) != "" {
		var err error
		if drawn, err = quickpick.ParseBalls(checkFlag); err != nil {
			return err
		}
	}

	return withEngine(func(ctx context.Context, engine *quickpick.QuickPickEngine) error {
		batch, err := engine.LoadBatch(ctx, lockKeyFlag, args[0])
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), batch, drawn)
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, engine *quickpick.QuickPickEngine) error {
		if err := engine.DeleteBatch(ctx, lockKeyFlag, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	})
}
