package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/rovshanmuradov/whale-tracker/internal/config"
)

type configCmd struct {
	configPath string
}

func (*configCmd) Name() string     { return "config" }
func (*configCmd) Synopsis() string { return "print the effective configuration" }
func (*configCmd) Usage() string {
	return `whale-tracker config [-config <file>]

  Prints the configuration after defaults and WHALE_TRACKER_* environment
  variables are applied. The bot token is masked.
`
}

func (c *configCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", defaultConfigPath, "Path to the configuration file (JSON or YAML).")
}

func (c *configCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return subcommands.ExitFailure
	}

	out, err := json.MarshalIndent(cfg.Masked(), "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(string(out))
	fmt.Printf("# exchange endpoint: %s\n", cfg.Endpoint())
	for _, w := range cfg.Warnings() {
		fmt.Printf("# warning: %s\n", w)
	}
	return subcommands.ExitSuccess
}
