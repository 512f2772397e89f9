// Package auth provides the firewall's single admin session and its lockout policy.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/pkg/types"
)

const tokenIssuer = "scadarange"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked")
	ErrTokenInvalid       = errors.New("invalid token")
)

// LockedError is returned while the lockout window is open.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for another %d seconds", int(e.Remaining.Seconds()))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// InvalidCredentialsError is returned for a wrong username or password that
// did not trigger a lockout.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidCredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// Gate is the process-wide login state of the firewall admin console.
// There is one session, not one per user.
type Gate struct {
	username     string
	passwordHash []byte
	maxAttempts  int
	lockout      time.Duration
	secret       []byte
	tokenTTL     time.Duration

	attempts      int
	lockedUntil   *time.Time
	authenticated bool
	tokens        map[string]time.Time

	log *monitor.ActivityLog
	now func() time.Time
	mu  sync.Mutex
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the wall clock used for lockout and token expiry.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate creates a gate for the configured admin account.
func NewGate(cfg *config.FirewallConfig, log *monitor.ActivityLog, opts ...Option) (*Gate, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	g := &Gate{
		username:     cfg.AdminUsername,
		passwordHash: hash,
		maxAttempts:  cfg.MaxLoginAttempts,
		lockout:      cfg.LockoutDuration,
		secret:       []byte(cfg.JWTSecret),
		tokenTTL:     cfg.TokenExpiration,
		tokens:       make(map[string]time.Time),
		log:          log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Login checks credentials against the admin account. The returned result is
// never nil so callers can render it; err carries the failure kind.
func (g *Gate) Login(username, password string) (*types.AuthResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if g.lockedLocked(now) {
		remaining := g.lockedUntil.Sub(now)
		msg := fmt.Sprintf("Account locked. Try again in %d seconds.", int(remaining.Seconds()))
		g.log.Append("auth_locked", fmt.Sprintf("Login attempt while locked: %s", username))
		monitor.ObserveLogin("locked")
		return &types.AuthResult{Message: msg, Locked: true}, &LockedError{Remaining: remaining}
	}

	if username == g.username && bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)) == nil {
		g.attempts = 0
		g.lockedUntil = nil
		g.authenticated = true

		token, expiresAt, err := g.issueLocked(username, now)
		if err != nil {
			return &types.AuthResult{Message: "Failed to issue session token"}, err
		}

		g.log.Append("auth_success", fmt.Sprintf("Successful login: %s", username))
		monitor.ObserveLogin("success")
		return &types.AuthResult{
			Success:       true,
			Message:       "Authentication successful",
			Authenticated: true,
			Token:         token,
			ExpiresAt:     &expiresAt,
		}, nil
	}

	g.attempts++
	g.log.Append("auth_failed", fmt.Sprintf("Failed login attempt %d: %s", g.attempts, username))

	if g.attempts >= g.maxAttempts {
		until := now.Add(g.lockout)
		g.lockedUntil = &until
		monitor.ObserveLogin("locked")
		zero := 0
		return &types.AuthResult{
			Message:           fmt.Sprintf("Too many failed attempts. Account locked for %d minutes.", int(g.lockout.Minutes())),
			Locked:            true,
			AttemptsRemaining: &zero,
		}, &LockedError{Remaining: g.lockout}
	}

	remaining := g.maxAttempts - g.attempts
	monitor.ObserveLogin("invalid")
	return &types.AuthResult{
		Message:           "Invalid credentials",
		AttemptsRemaining: &remaining,
	}, &InvalidCredentialsError{AttemptsRemaining: remaining}
}

// Logout ends the admin session and revokes every issued token.
func (g *Gate) Logout() {
	g.mu.Lock()
	g.authenticated = false
	clear(g.tokens)
	g.mu.Unlock()

	g.log.Append("auth_logout", "User logged out")
}

// Authenticated reports whether the admin session is open.
func (g *Gate) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

// Attempts returns the failed-login counter. It only resets on success.
func (g *Gate) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// MaxAttempts returns the number of failures that trigger a lockout.
func (g *Gate) MaxAttempts() int {
	return g.maxAttempts
}

// Locked reports whether the lockout window is currently open.
func (g *Gate) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lockedLocked(g.now())
}

func (g *Gate) lockedLocked(now time.Time) bool {
	return g.lockedUntil != nil && now.Before(*g.lockedUntil)
}

func (g *Gate) issueLocked(subject string, now time.Time) (string, time.Time, error) {
	jti := uuid.New().String()
	expiresAt := now.Add(g.tokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	g.tokens[jti] = expiresAt
	return signed, expiresAt, nil
}

// ValidateToken checks a bearer token issued by Login. Tokens die with Logout.
func (g *Gate) ValidateToken(tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return g.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tokens[claims.ID]; !ok {
		return fmt.Errorf("%w: token revoked", ErrTokenInvalid)
	}
	return nil
}
