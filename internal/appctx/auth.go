package appctx

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"ocrdesk/internal/logger"
)

// Authentication errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// AuthCookie carries the sign-in token.
const AuthCookie = "ocr-auth"

// User is a signed-up account.
type User struct {
	ID      string    `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// AuthProvider signs users up and in.
type AuthProvider interface {
	SignUp(ctx context.Context, email, name, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
}

type account struct {
	user User
	hash []byte
}

// MemoryAuth is an in-process AuthProvider with bearer tokens. Accounts do
// not survive a restart.
type MemoryAuth struct {
	mu       sync.RWMutex
	accounts map[string]account
	tokens   map[string]string // token -> email
	cost     int
	log      zerolog.Logger
}

// NewMemoryAuth creates an empty provider. A zero cost selects bcrypt.DefaultCost.
func NewMemoryAuth(cost int) *MemoryAuth {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &MemoryAuth{
		accounts: make(map[string]account),
		tokens:   make(map[string]string),
		cost:     cost,
		log:      logger.WithComponent("auth"),
	}
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// SignUp registers a new account.
func (a *MemoryAuth) SignUp(ctx context.Context, email, name, password string) (*User, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.accounts[addr]; exists {
		return nil, ErrEmailTaken
	}
	u := User{ID: uuid.NewString(), Email: addr, Name: strings.TrimSpace(name), Created: time.Now()}
	a.accounts[addr] = account{user: u, hash: hash}

	a.log.Info().Str("user_id", u.ID).Msg("Account created")
	return &u, nil
}

// SignIn checks the password and returns the account.
func (a *MemoryAuth) SignIn(ctx context.Context, email, password string) (*User, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	acc, ok := a.accounts[addr]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	u := acc.user
	return &u, nil
}

// Issue returns a new sign-in token for u.
func (a *MemoryAuth) Issue(u *User) string {
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = u.Email
	a.mu.Unlock()
	return token
}

// Lookup resolves a token to its user.
func (a *MemoryAuth) Lookup(token string) (*User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	email, ok := a.tokens[token]
	if !ok {
		return nil, false
	}
	acc, ok := a.accounts[email]
	if !ok {
		return nil, false
	}
	u := acc.user
	return &u, true
}

// Revoke invalidates a token.
func (a *MemoryAuth) Revoke(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}
