package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/credentials"
	"github.com/Makepad-fr/tada/internal/ui"
)

const authUsage = "todo auth <register|login|logout|status|whoami>"

func (a *app) auth(ctx context.Context, args []string) int {
	if len(args) == 0 {
		return a.usage(authUsage)
	}
	switch args[0] {
	case "register":
		return a.register(ctx, args[1:])
	case "login":
		return a.login(ctx, args[1:])
	case "logout":
		return a.logout()
	case "status":
		return a.status()
	case "whoami":
		return a.whoami(ctx)
	}
	return a.usage(authUsage)
}

func (a *app) register(ctx context.Context, args []string) int {
	fs := newFlagSet("auth register", a.err)
	email := fs.String("email", "", "account email")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *email == "" {
		v, err := a.prompt("Email: ")
		if err != nil {
			return a.fail("read email", err)
		}
		*email = v
	}
	pw, err := a.password()
	if err != nil {
		return a.fail("read password", err)
	}

	u, err := a.api.Register(ctx, auth.Registration{FirstName: *first, LastName: *last, Email: *email, Password: pw})
	if err != nil {
		return a.fail("register", err)
	}
	a.logger.Debug("registered", "user", u.ID)
	return a.startSession(ctx, auth.Credentials{Email: *email, Password: pw})
}

func (a *app) login(ctx context.Context, args []string) int {
	fs := newFlagSet("auth login", a.err)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *email == "" {
		v, err := a.prompt("Email: ")
		if err != nil {
			return a.fail("read email", err)
		}
		*email = v
	}
	pw, err := a.password()
	if err != nil {
		return a.fail("read password", err)
	}
	return a.startSession(ctx, auth.Credentials{Email: *email, Password: pw})
}

func (a *app) startSession(ctx context.Context, cred auth.Credentials) int {
	sess, err := a.api.Login(ctx, cred)
	if err != nil {
		return a.fail("login", err)
	}
	exp := sess.ExpiresAt
	err = a.creds.Set(credentials.TokenInfo{
		Token:     sess.Token,
		Email:     sess.User.Email,
		Server:    a.cfg.Server,
		ExpiresAt: &exp,
	})
	if err != nil {
		return a.fail("save token", err)
	}
	ui.OK(a.out, "logged in as "+sess.User.Email)
	return exitOK
}

func (a *app) logout() int {
	ti, _ := a.creds.Get()
	if ti != nil && ti.Source == "env" {
		ui.OK(a.out, "token is provided by "+credentials.EnvToken+" env var (nothing to delete)")
		return exitOK
	}
	if err := a.creds.Delete(); err != nil {
		return a.fail("logout", err)
	}
	ui.OK(a.out, "logged out")
	return exitOK
}

func (a *app) status() int {
	ti, err := a.creds.Get()
	if err != nil {
		return a.fail("status", err)
	}
	if ti == nil {
		ui.Hint(a.out, "not logged in")
		fmt.Fprintln(a.out, "Run: todo auth login")
		return exitOK
	}
	fmt.Fprintf(a.out, "source: %s\n", ti.Source)
	if ti.Email != "" {
		fmt.Fprintf(a.out, "email: %s\n", ti.Email)
	}
	if ti.Server != "" {
		fmt.Fprintf(a.out, "server: %s\n", ti.Server)
	}
	switch {
	case ti.ExpiresAt == nil:
		fmt.Fprintln(a.out, "expires: (unknown)")
	case ti.Expired(time.Now()):
		fmt.Fprintf(a.out, "expires: %s %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339), ui.Current().Error.Render("(expired)"))
	default:
		fmt.Fprintf(a.out, "expires: %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(a.out, "env override: "+credentials.EnvToken)
	return exitOK
}

// whoami asks the server who the stored token belongs to.
func (a *app) whoami(ctx context.Context) int {
	if a.creds.Token() == "" {
		ui.Fail(a.err, "not logged in. Run: todo auth login")
		return exitUsage
	}
	u, err := a.api.Me(ctx)
	if err != nil {
		return a.fail("whoami", err)
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		fmt.Fprintf(a.out, "%s (%s)\n", u.Email, name)
	} else {
		fmt.Fprintln(a.out, u.Email)
	}
	return exitOK
}

// prompt reads one trimmed line.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.err, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// password reads without echo on a terminal and falls back to a plain line
// for piped input.
func (a *app) password() (string, error) {
	f, ok := a.opt.Stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt("")
	}
	fmt.Fprint(a.err, "Password: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(a.err)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
