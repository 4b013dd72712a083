package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cfoust/yard/pkg/config"
	"github.com/cfoust/yard/pkg/version"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Version bool `help:"Print version information and exit." short:"v"`
	Debug   bool `help:"Whether to enable debug logging and report held locks sooner."`

	Serve struct {
		Ports   []int    `arg:"" optional:"" name:"ports" help:"Ports to run games on. Overrides the configured ports."`
		Configs []string `name:"config" short:"c" help:"Configuration files, applied in order." type:"existingfile"`
	} `cmd:"" help:"Run one game after another on each port."`

	Config struct {
	} `cmd:"" help:"Write yard's default configuration to standard output."`

	History struct {
		Configs []string `name:"config" short:"c" help:"Configuration files, applied in order." type:"existingfile"`
		Limit   int      `help:"How many games to show." default:"20"`
	} `cmd:"" help:"Show the most recently finished games."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if len(os.Args) == 1 {
		err := serveCommand(nil, nil, false)
		if err != nil {
			writeError(err)
		}
		return
	}

	ctx := kong.Parse(&CLI,
		kong.Name("yard"),
		kong.Description("a turn-based pursuit game server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	if CLI.Version {
		fmt.Printf(
			"yard %s (commit %s)\n",
			version.Version,
			version.GitCommit,
		)
		fmt.Printf(
			"built %s\n",
			version.BuildTime,
		)
		os.Exit(0)
	}

	switch ctx.Command() {
	case "serve":
		fallthrough
	case "serve <ports>":
		err := serveCommand(CLI.Serve.Ports, CLI.Serve.Configs, CLI.Debug)
		if err != nil {
			writeError(err)
		}
	case "config":
		os.Stdout.Write(config.DEFAULT)
	case "history":
		err := historyCommand(CLI.History.Configs, CLI.History.Limit)
		if err != nil {
			writeError(err)
		}
	}
}
