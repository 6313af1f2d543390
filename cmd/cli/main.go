// Command cli is the operator tool: inspect and import automation rules,
// try transfer detection, process messages by hand and read balances.
package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "cli",
	Short: "Operate the expense assistant",
	Long: `cli runs the expense assistant services from the command line.

Example:
  cli rules list
  cli rules import --file rules.yaml
  cli transfer inspect "Transferiste $20.000 a la cuenta *3104633357"
  cli process "20000 in rappi"
  cli balance A1`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(rulesCmd(), transferCmd(), processCmd(), balanceCmd(), accountsCmd(), replayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	return logger.NewWithLevel(level, false)
}

// openApp loads configuration, checks the required settings and assembles
// the services.
func openApp(ctx context.Context, required ...string) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(required...); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, newLogger(cfg))
}
