package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/config"
	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/exchange"
	"github.com/rovshanmuradov/whale-tracker/internal/report"
)

type checkCmd struct {
	configPath string
	timeout    time.Duration
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "validate addresses and show their current positions" }
func (*checkCmd) Usage() string {
	return `whale-tracker check [-config <file>] <address>...

  Validates each address, fetches its open positions once and prints a
  report. Nothing is stored and no alert is sent.
`
}

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", defaultConfigPath, "Path to the configuration file (JSON or YAML).")
	f.DurationVar(&c.timeout, "timeout", 15*time.Second, "Timeout per address.")
}

func (c *checkCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "at least one address is required")
		return subcommands.ExitUsageError
	}

	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return subcommands.ExitFailure
	}

	client := exchange.NewClient(exchange.ClientConfig{
		BaseURL:    cfg.Endpoint(),
		HTTPClient: &http.Client{Timeout: c.timeout},
	}, zap.NewNop())

	fmt.Printf("🔍 Testing %d addresses against %s\n", f.NArg(), cfg.Endpoint())
	results := make([]report.Result, 0, f.NArg())
	for _, address := range f.Args() {
		results = append(results, checkAddress(ctx, client, address, c.timeout))
	}

	fmt.Print(report.Render(results, report.DefaultStyles()))
	return subcommands.ExitSuccess
}

func checkAddress(ctx context.Context, fetcher exchange.Fetcher, address string, timeout time.Duration) report.Result {
	if err := domain.ValidateAddress(address); err != nil {
		return report.Result{Address: address, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	positions, err := fetcher.FetchPositions(ctx, address)
	return report.Result{Address: address, Positions: positions, Err: err}
}
