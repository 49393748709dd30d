package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/bot"
	"github.com/rovshanmuradov/whale-tracker/internal/config"
	"github.com/rovshanmuradov/whale-tracker/internal/logger"
)

const defaultConfigPath = "configs/config.yaml"

type runCmd struct {
	configPath string
	simulate   bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "track the configured addresses and send alerts" }
func (*runCmd) Usage() string {
	return `whale-tracker run [-config <file>] [-simulate]

  Polls every tracked address, detects position changes and notifies the
  Telegram subscribers. With -simulate the exchange is replaced by a scripted
  feed that walks each address through open, increase, decrease and close.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", defaultConfigPath, "Path to the configuration file (JSON or YAML).")
	f.BoolVar(&c.simulate, "simulate", false, "Use scripted positions instead of the live exchange.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return subcommands.ExitFailure
	}

	log := logger.New(loggerConfig(cfg))
	defer logger.Sync(log)

	runner, err := bot.NewRunner(cfg, c.simulate, log)
	if err != nil {
		log.Error("Failed to initialize tracker", zap.Error(err))
		return subcommands.ExitFailure
	}

	if err := runner.Run(ctx); err != nil {
		log.Error("Tracker stopped with error", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
		Debug:      cfg.Log.Debug,
	}
}
