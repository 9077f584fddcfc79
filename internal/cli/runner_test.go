package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/server"
	"github.com/Makepad-fr/tada/internal/store/jsonstore"
)

type harness struct {
	t      *testing.T
	server string
	creds  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("TADA_TOKEN", "")
	t.Setenv("TADA_SERVER", "http://overridden.invalid")
	st, err := jsonstore.Open(filepath.Join(t.TempDir(), "tada.json"))
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := auth.NewTokens("test-secret", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := server.New(st, auth.NewService(st, tokens).WithCost(bcrypt.MinCost), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return &harness{t: t, server: ts.URL, creds: t.TempDir()}
}

// run executes one todo invocation with stdin as its input.
func (h *harness) run(stdin string, args ...string) (code int, stdout, stderr string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	code = Run(context.Background(), args, Options{
		ConfigPath:     filepath.Join(h.creds, "missing.toml"),
		Server:         h.server,
		Theme:          "mono",
		CredentialsDir: h.creds,
		Stdin:          strings.NewReader(stdin),
		Stdout:         &out,
		Stderr:         &errOut,
	})
	return code, out.String(), errOut.String()
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	code, out, errOut := h.run("", args...)
	if code != 0 {
		h.t.Fatalf("todo %s: exit %d\n%s%s", strings.Join(args, " "), code, out, errOut)
	}
	return out
}

func (h *harness) register() {
	h.t.Helper()
	code, out, errOut := h.run("secret\n", "auth", "register", "--email", "ada@example.com", "--first", "Ada")
	if code != 0 {
		h.t.Fatalf("register: %d %s %s", code, out, errOut)
	}
}

func TestWorkflow(t *testing.T) {
	h := newHarness(t)
	h.register()

	if out := h.mustRun("auth", "whoami"); !strings.Contains(out, "ada@example.com (Ada)") {
		t.Fatalf("whoami: %q", out)
	}

	h.mustRun("add", "Buy", "milk", "--priority", "high", "--due", "2030-01-02")
	h.mustRun("add", "Walk the dog")

	out := h.mustRun("ls")
	for _, want := range []string{"Todos", " 1. [ ] MEDIUM Walk the dog", " 2. [ ] HIGH   Buy milk  due 2030-01-02"} {
		if !strings.Contains(out, want) {
			t.Fatalf("ls missing %q:\n%s", want, out)
		}
	}

	if out := h.mustRun("done", "2"); !strings.Contains(out, "done: Buy milk") {
		t.Fatalf("done: %q", out)
	}
	out = h.mustRun("ls", "--completed=true")
	if !strings.Contains(out, " 2. [x]") || strings.Contains(out, "Walk the dog") {
		t.Fatalf("filtered ls keeps unfiltered numbers:\n%s", out)
	}

	h.mustRun("edit", "1", "--title", "Walk the cat", "--desc", "twice", "--priority", "LOW")
	out = h.mustRun("show", "1")
	for _, want := range []string{"Walk the cat", "priority:    LOW", "description: twice", "due:         (none)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show missing %q:\n%s", want, out)
		}
	}

	h.mustRun("edit", "2", "--clear-due")
	if out := h.mustRun("show", "2"); !strings.Contains(out, "due:         (none)") {
		t.Fatalf("due not cleared:\n%s", out)
	}

	if out := h.mustRun("rm", "1"); !strings.Contains(out, "removed: Walk the cat") {
		t.Fatalf("rm: %q", out)
	}
	if out := h.mustRun("ls", "--group"); strings.Contains(out, "Walk the cat") {
		t.Fatalf("removed todo still listed:\n%s", out)
	}
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.mustRun("add", "one")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"add"}, "usage: todo add"},
		{[]string{"add", "x", "--priority", "URGENT"}, "invalid priority"},
		{[]string{"add", "x", "--due", "soon"}, "invalid due date"},
		{[]string{"done", "7"}, "index out of range: have 1, got 7"},
		{[]string{"rm", "abc"}, "not a number: abc"},
		{[]string{"edit", "1"}, "usage: todo edit"},
		{[]string{"edit", "1", "--title", " "}, "title cannot be empty"},
		{[]string{"edit", "1", "--due", "2030-01-01", "--clear-due"}, "exclusive"},
		{[]string{"frobnicate"}, "unknown subcommand"},
		{[]string{"auth"}, "usage: todo auth"},
	}
	for _, tc := range tests {
		code, _, errOut := h.run("", tc.args...)
		if code != exitUsage {
			t.Errorf("%v: exit %d, want %d", tc.args, code, exitUsage)
		}
		if !strings.Contains(errOut, tc.want) {
			t.Errorf("%v: stderr %q lacks %q", tc.args, errOut, tc.want)
		}
	}
}

func TestLoggedOut(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("", "auth", "status")
	if code != 0 || !strings.Contains(out, "not logged in") {
		t.Fatalf("status: %d %q", code, out)
	}
	code, _, errOut := h.run("", "ls")
	if code != exitError || !strings.Contains(errOut, "todo auth login") {
		t.Fatalf("ls without session: %d %q", code, errOut)
	}

	h.register()
	code, out, _ = h.run("", "auth", "status")
	if code != 0 || !strings.Contains(out, "email: ada@example.com") || !strings.Contains(out, "source: file") {
		t.Fatalf("status after login: %q", out)
	}
	h.mustRun("auth", "logout")
	if code, _, _ := h.run("", "auth", "whoami"); code != exitUsage {
		t.Fatalf("whoami after logout: %d", code)
	}
}

func TestWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.mustRun("auth", "logout")

	code, _, errOut := h.run("nope\n", "auth", "login", "--email", "ada@example.com")
	if code != exitError || !strings.Contains(errOut, "login: ") {
		t.Fatalf("bad login: %d %q", code, errOut)
	}
	code, _, _ = h.run("secret\n", "auth", "login", "--email", "ada@example.com")
	if code != 0 {
		t.Fatal("good login failed")
	}
}

func TestParseArgsMixesFlags(t *testing.T) {
	fs := newFlagSet("add", &bytes.Buffer{})
	prio := fs.String("priority", "", "")
	rest, err := parseArgs(fs, []string{"Buy", "--priority", "LOW", "milk"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(rest, " ") != "Buy milk" || *prio != "LOW" {
		t.Fatalf("rest=%v priority=%q", rest, *prio)
	}
}
