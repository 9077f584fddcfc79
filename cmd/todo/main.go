package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Makepad-fr/tada/internal/cli"
	"github.com/Makepad-fr/tada/internal/telemetry"
)

func main() {
	// Root flags (apply to every subcommand)
	groupPending := flag.Bool("group", false, "group output by pending/done")
	configPath := flag.String("config", "", "config file (default ~/.tada/config.toml)")
	serverAddr := flag.String("server", "", "server URL, overrides the config")
	theme := flag.String("theme", "", "classic, neon or mono")
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()

	// Hand the remaining args to the CLI runner.
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintHelp(os.Stderr)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	shutdown, err := telemetry.Setup(ctx, "todo", os.Getenv("TADA_OTEL_ENDPOINT"), os.Getenv("TADA_OTEL_ENABLED"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "telemetry:", err)
	}

	code := cli.Run(ctx, args, cli.Options{
		Group:      *groupPending,
		ConfigPath: *configPath,
		Server:     *serverAddr,
		Theme:      *theme,
	})

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = shutdown(sctx)
	scancel()
	cancel()
	if code != 0 {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(code)
}
