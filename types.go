package identity

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds identity options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetVerificationTokenTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetOpaqueTokenBytes() int
	GetBaseURL() string
}

// TokenService issues and verifies token material for every flow: signed
// bearer tokens for stateless checks, opaque random tokens validated by
// fingerprint lookup against the store.
type TokenService interface {
	Sign(subject string, ttl time.Duration) (string, error)
	Validate(token string) (string, error)
	NewOpaqueToken(length int) (string, error)
	Fingerprint(raw string) string
}

// TokenPair is what a successful login hands back to the transport layer.
// The refresh token never travels in a JSON body, only as an HttpOnly cookie.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
}

// Mail is a rendered outbound message.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer dispatches rendered messages. Implementations own their transport
// and timeout; flows only care about dispatch success or failure.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// SessionAuthenticator holds methods to deal with the session lifecycle
type SessionAuthenticator interface {
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	IssueSession(ctx context.Context, user *User) (*TokenPair, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
