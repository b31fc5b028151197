package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	identity "github.com/goliatone/go-identity"
)

// Authenticator orchestrates federated login flows and hands resolved
// users to the session manager.
type Authenticator struct {
	providers       map[string]Provider
	stateManager    StateManager
	linkingStrategy LinkingStrategy
	users           identity.Users
	sessions        identity.SessionAuthenticator
	activitySink    identity.ActivitySink
	logger          identity.Logger
	config          AuthConfig
}

// AuthConfig configures the federated authenticator.
type AuthConfig struct {
	DefaultRedirectURL   string
	StateEncryptionKey   []byte
	StateHMACKey         []byte
	StateTTL             time.Duration
	AllowSignup          bool
	RequireEmailVerified bool
}

// AuthOption configures the federated authenticator.
type AuthOption func(*Authenticator)

// NewAuthenticator creates a new federated authenticator.
func NewAuthenticator(
	users identity.Users,
	sessions identity.SessionAuthenticator,
	config AuthConfig,
	opts ...AuthOption,
) *Authenticator {
	cfg := config
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	sa := &Authenticator{
		providers: make(map[string]Provider),
		users:     users,
		sessions:  sessions,
		config:    cfg,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	if sa.stateManager == nil {
		sa.stateManager = NewEncryptedStateManager(
			cfg.StateEncryptionKey,
			cfg.StateHMACKey,
			cfg.StateTTL,
		)
	}

	if sa.linkingStrategy == nil {
		sa.linkingStrategy = &DefaultLinkingStrategy{
			AllowSignup:          cfg.AllowSignup,
			RequireEmailVerified: cfg.RequireEmailVerified,
		}
	}

	return sa
}

// WithProvider registers a federated provider.
func WithProvider(provider Provider) AuthOption {
	return func(sa *Authenticator) {
		if provider == nil {
			return
		}
		sa.providers[provider.Name()] = provider
	}
}

// WithStateManager sets a custom state manager.
func WithStateManager(sm StateManager) AuthOption {
	return func(sa *Authenticator) {
		sa.stateManager = sm
	}
}

// WithLinkingStrategy sets a custom user linking strategy.
func WithLinkingStrategy(ls LinkingStrategy) AuthOption {
	return func(sa *Authenticator) {
		sa.linkingStrategy = ls
	}
}

// WithActivitySink sets the activity sink for audit logging.
func WithActivitySink(sink identity.ActivitySink) AuthOption {
	return func(sa *Authenticator) {
		sa.activitySink = sink
	}
}

// WithLogger sets the logger used by the authenticator.
func WithLogger(logger identity.Logger) AuthOption {
	return func(sa *Authenticator) {
		sa.logger = logger
	}
}

// BeginAuth starts the OAuth flow for a provider.
func (sa *Authenticator) BeginAuth(
	ctx context.Context,
	providerName string,
	opts ...BeginAuthOption,
) (*AuthRedirect, error) {
	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	cfg := &beginAuthConfig{
		redirectURL: sa.config.DefaultRedirectURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	codeChallenge := computeCodeChallenge(codeVerifier)

	state := &OAuthState{
		Nonce:        generateNonce(),
		Provider:     providerName,
		CodeVerifier: codeVerifier,
		RedirectURL:  cfg.redirectURL,
		IssuedAt:     time.Now().Unix(),
		ExpiresAt:    time.Now().Add(sa.config.StateTTL).Unix(),
	}

	stateToken, err := sa.stateManager.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	authURL := provider.AuthCodeURL(stateToken, WithPKCE(codeChallenge, "S256"))

	return &AuthRedirect{
		URL:      authURL,
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// CompleteAuth finishes the OAuth flow after callback. It resolves the
// provider profile to a local user and issues a session, replacing
// whatever session the account had.
func (sa *Authenticator) CompleteAuth(
	ctx context.Context,
	providerName string,
	code string,
	stateToken string,
) (*AuthResult, error) {
	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if state.Provider != providerName {
		return nil, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}

	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}

	if sa.linkingStrategy == nil {
		return nil, ErrSignupNotAllowed
	}

	result, err := sa.linkingStrategy.ResolveUser(ctx, LinkingContext{
		Profile: profile,
		Users:   sa.users,
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.User == nil {
		return nil, identity.ErrUserNotFound
	}

	pair, err := sa.sessions.IssueSession(ctx, result.User)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	sa.recordActivity(ctx, providerName, profile, result)

	return &AuthResult{
		User:        result.User,
		Pair:        pair,
		IsNewUser:   result.IsNewUser,
		Linked:      result.Linked,
		Provider:    providerName,
		Profile:     profile,
		RedirectURL: state.RedirectURL,
	}, nil
}

// ListProviders returns all registered providers.
func (sa *Authenticator) ListProviders() []ProviderInfo {
	var providers []ProviderInfo
	for name, p := range sa.providers {
		providers = append(providers, ProviderInfo{
			Name:    name,
			AuthURL: p.AuthCodeURL(""),
		})
	}
	return providers
}

func (sa *Authenticator) recordActivity(ctx context.Context, providerName string, profile *Profile, result *LinkingResult) {
	if sa.activitySink == nil {
		return
	}

	err := sa.activitySink.Record(ctx, identity.ActivityEvent{
		EventType:  identity.ActivityEventSocialLogin,
		UserID:     result.User.ID.String(),
		Email:      result.User.Email,
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"provider":         providerName,
			"provider_user_id": profile.ProviderUserID,
			"is_new_user":      result.IsNewUser,
			"linked":           result.Linked,
		},
	})

	if err != nil && sa.logger != nil {
		sa.logger.Warn("activity sink error during social login: %v", err)
	}
}

// ProviderInfo describes an available provider.
type ProviderInfo struct {
	Name    string
	AuthURL string
}

// AuthRedirect contains the authorization URL for redirecting users.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// AuthResult contains the result of a successful authentication.
type AuthResult struct {
	User        *identity.User
	Pair        *identity.TokenPair
	IsNewUser   bool
	Linked      bool
	Provider    string
	Profile     *Profile
	RedirectURL string
}

// BeginAuthOption configures the auth initiation.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	redirectURL string
}

// WithRedirectURL sets the post-auth redirect URL.
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.redirectURL = url
	}
}
