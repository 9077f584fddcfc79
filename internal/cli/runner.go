// Package cli implements the todo subcommands on top of the client cache.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/client"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/credentials"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/telemetry"
	"github.com/Makepad-fr/tada/internal/ui"
)

// Options tune output behavior from root flags.
type Options struct {
	Group      bool   // plain listing grouped by pending/done
	ConfigPath string // defaults to ~/.tada/config.toml
	Server     string // overrides the configured server
	Theme      string // overrides the configured theme

	// CredentialsDir defaults to ~/.tada.
	CredentialsDir string

	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// app is everything a subcommand needs, built once per invocation.
type app struct {
	opt    Options
	cfg    config.Client
	logger *log.Logger
	creds  *credentials.Store
	api    *client.Client
	cache  *cache.Cache
	in     *bufio.Reader
	out    io.Writer
	err    io.Writer
}

// Run dispatches subcommands and returns an exit code (0 ok, 1 error, 2 usage).
func Run(ctx context.Context, args []string, opt Options) int {
	if opt.Stdout == nil {
		opt.Stdout = os.Stdout
	}
	if opt.Stderr == nil {
		opt.Stderr = os.Stderr
	}
	if opt.Stdin == nil {
		opt.Stdin = os.Stdin
	}
	if len(args) == 0 {
		PrintHelp(opt.Stderr)
		return exitUsage
	}
	cmd, a := args[0], args[1:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		PrintHelp(opt.Stdout)
		return exitOK
	}

	app, err := newApp(opt)
	if err != nil {
		ui.Fail(opt.Stderr, err.Error())
		return exitError
	}
	defer app.cache.Close()

	switch cmd {
	case "auth":
		return app.auth(ctx, a)
	case "ls":
		return app.list(ctx, a)
	case "add":
		return app.add(ctx, a)
	case "done":
		return app.toggle(ctx, a)
	case "rm":
		return app.remove(ctx, a)
	case "edit":
		return app.edit(ctx, a)
	case "show":
		return app.show(ctx, a)
	}

	ui.Fail(opt.Stderr, "unknown subcommand: "+cmd)
	fmt.Fprintln(opt.Stderr)
	PrintHelp(opt.Stderr)
	return exitUsage
}

func newApp(opt Options) (*app, error) {
	path := opt.ConfigPath
	if path == "" {
		p, err := config.ClientConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return nil, err
	}
	if opt.Server != "" {
		cfg.Server = strings.TrimRight(opt.Server, "/")
	}
	if opt.Theme != "" {
		cfg.Theme = opt.Theme
	}
	ui.SetTheme(cfg.Theme)

	creds := &credentials.Store{Dir: opt.CredentialsDir}
	if creds.Dir == "" {
		if creds, err = credentials.Default(); err != nil {
			return nil, err
		}
	}

	logger := logging.New(opt.Stderr, logging.Options{Level: cfg.LogLevel, Prefix: "todo"})
	api := client.New(cfg.Server,
		client.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout)}),
		client.WithToken(creds.Token),
	)
	c := cache.New(api,
		cache.WithStaleTime(time.Duration(cfg.StaleTime)),
		cache.WithLogger(logger),
		cache.WithTracer(telemetry.Tracer("cache")),
	)
	return &app{
		opt:    opt,
		cfg:    cfg,
		logger: logger,
		creds:  creds,
		api:    api,
		cache:  c,
		in:     bufio.NewReader(opt.Stdin),
		out:    opt.Stdout,
		err:    opt.Stderr,
	}, nil
}

// fail reports err and picks the exit code. Unauthenticated errors get a
// login hint.
func (a *app) fail(what string, err error) int {
	ui.Fail(a.err, what+": "+err.Error())
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		ui.Hint(a.err, "Hint: run `todo auth login`")
	case apperr.KindTransient:
		ui.Hint(a.err, "Hint: is the server running at "+a.cfg.Server+"?")
	case apperr.KindValidation:
		if errors.Is(err, cache.ErrPendingTodo) {
			return exitError
		}
		return exitUsage
	}
	return exitError
}

func (a *app) usage(msg string) int {
	ui.Fail(a.err, "usage: "+msg)
	return exitUsage
}

func PrintHelp(w io.Writer) {
	fmt.Fprint(w, `todo - a personal todo list

Usage:
  todo [flags] <subcommand> [args]

Subcommands:
  auth register [--email E] [--first F] [--last L]
  auth login [--email E]     Sign in and store the session token
  auth logout|status|whoami
  ls [--completed=true|false] [--priority=P] [--plain]
                             Interactive list (plain when not a terminal)
  add <title...> [--priority=P] [--due=DATE] [--desc=TEXT]
  done <n>                   Toggle completion of todo n
  rm <n>                     Remove todo n
  edit <n> [--title T] [--desc D] [--priority P] [--due DATE|--clear-due]
  show <n>                   Show every field of todo n

<n> is the 1-based position in the unfiltered list (see todo ls).

Examples:
  todo add "Buy milk" --priority HIGH --due 2025-01-31
  todo ls --completed=false
  todo done 2
  todo rm 3
`)
}
