package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/config"
	"github.com/jeanpaul/recall/internal/logging"
)

var version = "dev"

// app carries what every command needs after PersistentPreRunE.
type app struct {
	configFile string
	cfg        *config.Config
	log        *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "Offline answers from previously learned knowledge",
		Long: `recall answers development requests from a local knowledge store.

It classifies the request, retrieves and ranks learned snippets, API usage,
fixes and framework notes, and streams a response without any network call.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a.configFile != "" {
				a.cfg, err = config.LoadFile(a.configFile)
			} else {
				a.cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.log, err = logging.New(a.cfg.Log.Level, a.cfg.Log.JSON)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default: ./config.yaml or ~/.config/recall/config.yaml)")

	rootCmd.AddCommand(newAskCommand(a))
	rootCmd.AddCommand(newLearnCommand(a))
	rootCmd.AddCommand(newLearnFixCommand(a))
	rootCmd.AddCommand(newImportCommand(a))
	rootCmd.AddCommand(newStatsCommand(a))
	return rootCmd
}
