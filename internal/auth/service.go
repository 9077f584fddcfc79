package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// Registration is the sign-up payload.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what a successful login returns.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      model.User `json:"user"`
}

// Service registers users and opens sessions.
type Service struct {
	users  store.Users
	tokens *Tokens
	cost   int
}

// NewService wires the user store and token issuer.
func NewService(users store.Users, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

// WithCost sets the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Tokens exposes the verifier for request middleware.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Register creates an account. The first name defaults to the email's local part.
func (s *Service) Register(ctx context.Context, r Registration) (model.User, error) {
	email := strings.TrimSpace(r.Email)
	if email == "" || r.Password == "" {
		return model.User{}, apperr.Validation("Email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	first := strings.TrimSpace(r.FirstName)
	if first == "" {
		first, _, _ = strings.Cut(email, "@")
	}
	u, err := s.users.CreateUser(ctx, model.User{
		Email:        email,
		FirstName:    first,
		LastName:     strings.TrimSpace(r.LastName),
		PasswordHash: string(hash),
	})
	if errors.Is(err, store.ErrConflict) {
		return model.User{}, apperr.Validation("User with this email already exists")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login checks the password and issues a token. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Login(ctx context.Context, c Credentials) (Session, error) {
	invalid := apperr.New(apperr.KindUnauthenticated, "Invalid credentials")
	email := strings.TrimSpace(c.Email)
	if email == "" || c.Password == "" {
		return Session{}, invalid
	}
	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, invalid
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(c.Password)); err != nil {
		return Session{}, invalid
	}
	token, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// User resolves an id from a verified token into its account.
func (s *Service) User(ctx context.Context, id string) (model.User, error) {
	u, err := s.users.UserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, apperr.Unauthenticated()
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}
