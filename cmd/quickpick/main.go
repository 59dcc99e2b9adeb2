package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "quickpick",
	Short: "Generate unique lottery quick-pick tickets",
	Long: `quickpick draws tickets of distinct numbers from a closed range, no two
tickets alike. Defaults describe a Mega-Sena game: 6 numbers from 1 to 60.

With --store the batch is generated under a Redis lock and kept in Redis, so
it can be listed, shown and checked later.`,
	Example: `  quickpick -g 5 -s 1 -e 60 -p 6
  quickpick -s 0 -e 99 -p 50 -P
  quickpick -g 10 --check "4 8 15 16 23 42"`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGenerate,
}

func init() {
	flags := rootCmd.Flags()
	flags.IntVarP(&gamesFlag, "games", "g", 0, "number of tickets (default from config, 1)")
	flags.IntVarP(&startFlag, "start", "s", 0, "lowest number (default from config, 1)")
	flags.IntVarP(&endFlag, "end", "e", 0, "highest number (default from config, 60)")
	flags.IntVarP(&pickFlag, "pick", "p", 0, "numbers per ticket (default from config, 6)")
	flags.BoolVarP(&possibilitiesFlag, "possibilities", "P", false, "print the number of possible tickets and the odds table, then exit")
	flags.IntVarP(&matchesFlag, "matches", "m", -1, "print the odds of matching exactly this many numbers, then exit")
	flags.Uint64Var(&seedFlag, "seed", 0, "seed for a reproducible batch (0 uses crypto/rand)")
	flags.StringVar(&checkFlag, "check", "", "drawn numbers to check the generated tickets against")
	flags.BoolVar(&storeFlag, "store", false, "generate through the Redis-backed engine and keep the batch")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "config file (default: quickpick.yaml in ., ./config, /etc/quickpick, $HOME/.quickpick)")
	pf.StringVar(&lockKeyFlag, "lock-key", "quickpick", "lock key batches are generated and stored under")
	pf.BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "log engine activity to stderr")

	rootCmd.AddCommand(listCmd, showCmd, deleteCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quickpick %s\n", rootCmd.Version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
