package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Auther manages password logins and the single active session each
// account may hold. Issuing a session overwrites the stored refresh
// fingerprint, which silently invalidates any previous session.
type Auther struct {
	repo         RepositoryManager
	tokenService TokenService
	config       Config
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		repo:         repo,
		tokenService: tokenService,
		config:       opts,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
		s.tokenService = NewTokenService(
			[]byte(s.config.GetSigningKey()),
			s.config.GetIssuer(),
			s.config.GetAudience(),
			logger,
		)
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenService overrides the token service used to mint and check tokens.
func (s *Auther) WithTokenService(tokens TokenService) *Auther {
	if tokens != nil {
		s.tokenService = tokens
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

var _ SessionAuthenticator = (*Auther)(nil)

// Login verifies an email/password pair and starts a session. Every failure
// mode returns the same error so callers cannot probe which accounts exist
// or which of them are verified.
func (s *Auther) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			s.logger.Error("Login user lookup error: %v", err)
		}
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", map[string]any{
			"email":  email,
			"reason": "unknown email",
		})
		return nil, ErrInvalidCredentials
	}

	if user.IsFederated() && user.PasswordHash == "" {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, user.ID.String(), map[string]any{
			"email":  email,
			"reason": "federated account without password",
		})
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, user.ID.String(), map[string]any{
			"email":  email,
			"reason": "password mismatch",
		})
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, user.ID.String(), map[string]any{
			"email":  email,
			"reason": "unverified account",
		})
		return nil, ErrInvalidCredentials
	}

	pair, err := s.IssueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, user.ID.String(), map[string]any{
		"email": email,
	})

	return pair, nil
}

// IssueSession mints an access/refresh pair for a user whose identity has
// already been established. Storing the new refresh fingerprint replaces
// whatever session was active before.
func (s *Auther) IssueSession(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, err := s.tokenService.Sign(user.ID.String(), s.config.GetAccessTokenTTL())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}

	refreshToken, err := s.tokenService.NewOpaqueToken(s.config.GetOpaqueTokenBytes())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate refresh token")
	}

	fingerprint := s.tokenService.Fingerprint(refreshToken)
	if err := s.repo.Users().StoreRefreshFingerprint(ctx, user.ID, fingerprint); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store refresh fingerprint")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh exchanges a live refresh token for a fresh access token. The
// refresh token itself is not rotated; it stays valid until the session is
// replaced or closed.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrInvalidRefreshToken
	}

	fingerprint := s.tokenService.Fingerprint(refreshToken)

	user, err := s.repo.Users().GetByRefreshFingerprint(ctx, fingerprint)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			s.logger.Error("Refresh fingerprint lookup error: %v", err)
		}
		return "", ErrInvalidRefreshToken
	}

	accessToken, err := s.tokenService.Sign(user.ID.String(), s.config.GetAccessTokenTTL())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}

	s.emitAuthEvent(ctx, ActivityEventSessionRefreshed, user.ID.String(), nil)

	return accessToken, nil
}

// Logout closes the session owning the given refresh token. It is
// idempotent and succeeds whether or not a matching session exists, so the
// response never reveals session state.
func (s *Auther) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	fingerprint := s.tokenService.Fingerprint(refreshToken)

	if err := s.repo.Users().ClearRefreshFingerprint(ctx, fingerprint); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear refresh fingerprint")
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, "", nil)

	return nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
