package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kydenul/quickpick"
)

var (
	gamesFlag         int
	startFlag         int
	endFlag           int
	pickFlag          int
	possibilitiesFlag bool
	matchesFlag       int
	seedFlag          uint64
	checkFlag         string
	storeFlag         bool

	configFlag  string
	lockKeyFlag string
	noColorFlag bool
	verboseFlag bool
)

// loadConfig reads the config file and environment, falling back to defaults
func loadConfig() (*quickpick.ConfigManager, *quickpick.Config, error) {
	cm := quickpick.NewConfigManager()
	if configFlag != "" {
		cm.SetConfigFile(configFlag)
	}
	cfg, err := cm.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cm, cfg, nil
}

// resolveGame overlays the flags the user set on the configured game
func resolveGame(cmd *cobra.Command, base *quickpick.GameConfig) quickpick.GameConfig {
	game := *base
	flags := cmd.Flags()
	if flags.Changed("games") {
		game.Tickets = gamesFlag
	}
	if flags.Changed("start") {
		game.Low = startFlag
	}
	if flags.Changed("end") {
		game.High = endFlag
	}
	if flags.Changed("pick") {
		game.Pick = pickFlag
	}
	return game
}

func newLogger() quickpick.Logger {
	if verboseFlag {
		return quickpick.NewDefaultLogger(quickpick.LevelDebug)
	}
	return quickpick.NewSilentLogger()
}

// newEngine connects to Redis and builds the engine from cm
func newEngine(ctx context.Context, cm *quickpick.ConfigManager, cfg *quickpick.Config) (*quickpick.QuickPickEngine, func(), error) {
	client := quickpick.NewRedisClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, quickpick.ErrRedisConnectionFailed.WithDetails("addr=%s", cfg.Redis.Addr).WithCause(err)
	}

	engine := quickpick.NewQuickPickEngineWithConfigAndLogger(client, cm, newLogger())
	if seedFlag != 0 {
		engine.SetSourceFactory(quickpick.SeededSources(seedFlag))
	}
	return engine, func() { client.Close() }, nil
}

func randomSource() quickpick.RandomSource {
	if seedFlag != 0 {
		return quickpick.NewSeededRandomSource(seedFlag)
	}
	return quickpick.NewCachedRandomSource()
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	applyColor()
	out := cmd.OutOrStdout()

	cm, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	game := resolveGame(cmd, cfg.Game)

	if possibilitiesFlag || matchesFlag >= 0 {
		return printOdds(out, game, possibilitiesFlag, matchesFlag)
	}

	ticketCfg, err := game.TicketConfig()
	if err != nil {
		return err
	}

	var drawn []int
	if checkFlag != "" {
		if drawn, err = quickpick.ParseBalls(checkFlag); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	batch, err := generate(ctx, cm, cfg, ticketCfg)
	if err != nil {
		return err
	}
	if storeFlag {
		faintColor.Fprintf(cmd.ErrOrStderr(), "stored batch %s under %q\n", batch.ID, batch.LockKey)
	}
	return report(out, batch, drawn)
}

func generate(
	ctx context.Context, cm *quickpick.ConfigManager, cfg *quickpick.Config, ticketCfg *quickpick.TicketConfig,
) (*quickpick.Batch, error) {
	if !storeFlag {
		return quickpick.DrawBatch(randomSource(), lockKeyFlag, ticketCfg)
	}

	engine, closeFn, err := newEngine(ctx, cm, cfg)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var generator quickpick.TicketGenerator = engine
	if cfg.CircuitBreaker.Enabled {
		generator = quickpick.NewCircuitBreakerEngine(engine, cfg.CircuitBreaker, engine.GetLogger())
	}
	return generator.GenerateBatch(ctx, lockKeyFlag, ticketCfg)
}

// report prints the batch and, when drawn balls are given, how each ticket fared
func report(w io.Writer, batch *quickpick.Batch, drawn []int) error {
	if drawn == nil {
		printBatch(w, batch, nil)
		return nil
	}

	matches, err := batch.Check(drawn)
	if err != nil {
		return err
	}
	printBatch(w, batch, matches, drawn...)
	printAwards(w, batch, matches)
	return nil
}
