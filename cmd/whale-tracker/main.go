package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&runCmd{}, "tracker")
	commander.Register(&checkCmd{}, "tools")
	commander.Register(&configCmd{}, "tools")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
