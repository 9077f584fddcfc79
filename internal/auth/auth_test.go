package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/store/jsonstore"
)

func newTestService(t *testing.T, now func() time.Time) *Service {
	t.Helper()
	st, err := jsonstore.Open(filepath.Join(t.TempDir(), "tada.json"))
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := NewTokens("test-secret", time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	return NewService(st, tokens).WithCost(bcrypt.MinCost)
}

func TestTokenRoundTrip(t *testing.T) {
	tokens, err := NewTokens("s3cret", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	tok, exp, err := tokens.Issue("user-1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}
	id, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "user-1" {
		t.Fatalf("subject = %q", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens, _ := NewTokens("s3cret", time.Hour, clock)
	tok, _, err := tokens.Issue("user-1", "")
	if err != nil {
		t.Fatal(err)
	}

	other, _ := NewTokens("different", time.Hour, clock)
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: %v", err)
	}

	later, _ := NewTokens("s3cret", time.Hour, func() time.Time { return now.Add(2 * time.Hour) })
	if _, err := later.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}

	if _, err := tokens.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"":            "",
		"Bearer ":     "",
	}
	for in, want := range tests {
		if got := BearerToken(in); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	u, err := svc.Register(ctx, Registration{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.FirstName != "ada" || u.PasswordHash == "pw" {
		t.Fatalf("unexpected user %+v", u)
	}

	_, err = svc.Register(ctx, Registration{Email: "ada@example.com", Password: "pw"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("duplicate email: %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Email: "x@example.com"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("missing password: %v", err)
	}

	sess, err := svc.Login(ctx, Credentials{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	id, err := svc.Tokens().Verify(sess.Token)
	if err != nil || id != u.ID {
		t.Fatalf("token subject %q err %v, want %q", id, err, u.ID)
	}

	if _, err := svc.Login(ctx, Credentials{Email: "ada@example.com", Password: "nope"}); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := svc.Login(ctx, Credentials{Email: "who@example.com", Password: "pw"}); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := IdentityFrom(context.Background()); ok {
		t.Fatal("empty context should carry no identity")
	}
	ctx := WithIdentity(context.Background(), "u1")
	if id, ok := IdentityFrom(ctx); !ok || id != "u1" {
		t.Fatalf("identity = %q %v", id, ok)
	}
}
