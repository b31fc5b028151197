package social

import (
	"context"
	"net/url"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name        string
	exchanged   []string
	verifier    string
	profile     *Profile
	exchangeErr error
	userInfoErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	cfg := ApplyAuthCodeOptions(nil, opts...)
	params := url.Values{"state": {state}}
	if cfg.CodeChallenge != "" {
		params.Set("code_challenge", cfg.CodeChallenge)
		params.Set("code_challenge_method", cfg.CodeChallengeMethod)
	}
	return "https://provider.example.com/authorize?" + params.Encode()
}

func (p *fakeProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	cfg := ApplyExchangeOptions(opts...)
	p.exchanged = append(p.exchanged, code)
	p.verifier = cfg.CodeVerifier
	return &Token{AccessToken: "provider-access-token"}, nil
}

func (p *fakeProvider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	if p.userInfoErr != nil {
		return nil, p.userInfoErr
	}
	return p.profile, nil
}

type fakeSessions struct {
	issued []*identity.User
	pair   *identity.TokenPair
}

func (s *fakeSessions) Login(ctx context.Context, email, password string) (*identity.TokenPair, error) {
	return nil, identity.ErrInvalidCredentials
}

func (s *fakeSessions) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return "", identity.ErrInvalidRefreshToken
}

func (s *fakeSessions) Logout(ctx context.Context, refreshToken string) error { return nil }

func (s *fakeSessions) IssueSession(ctx context.Context, user *identity.User) (*identity.TokenPair, error) {
	s.issued = append(s.issued, user)
	return s.pair, nil
}

func newTestAuthConfig() AuthConfig {
	return AuthConfig{
		DefaultRedirectURL:   "/dashboard",
		StateEncryptionKey:   []byte("0123456789abcdef0123456789abcdef"),
		StateHMACKey:         []byte("fedcba9876543210fedcba9876543210"),
		AllowSignup:          true,
		RequireEmailVerified: true,
	}
}

func TestBeginAuthProducesStateAndPKCE(t *testing.T) {
	provider := &fakeProvider{name: "google"}
	sa := NewAuthenticator(&stubUsers{}, &fakeSessions{}, newTestAuthConfig(), WithProvider(provider))

	redirect, err := sa.BeginAuth(context.Background(), "google")
	require.NoError(t, err)
	require.NotNil(t, redirect)
	assert.Equal(t, "google", redirect.Provider)
	assert.NotEmpty(t, redirect.State)

	parsed, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, redirect.State, query.Get("state"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
}

func TestBeginAuthUnknownProvider(t *testing.T) {
	sa := NewAuthenticator(&stubUsers{}, &fakeSessions{}, newTestAuthConfig())

	_, err := sa.BeginAuth(context.Background(), "github")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestCompleteAuthIssuesSession(t *testing.T) {
	user := &identity.User{
		ID:          uuid.New(),
		Email:       "ada@example.com",
		FederatedID: "google:123",
		IsVerified:  true,
	}
	users := &stubUsers{
		byFederatedID: map[string]*identity.User{"google:123": user},
	}
	provider := &fakeProvider{
		name: "google",
		profile: &Profile{
			Provider:       "google",
			ProviderUserID: "123",
			Email:          user.Email,
			EmailVerified:  true,
		},
	}
	sessions := &fakeSessions{
		pair: &identity.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
	}

	sa := NewAuthenticator(users, sessions, newTestAuthConfig(), WithProvider(provider))

	redirect, err := sa.BeginAuth(context.Background(), "google", WithRedirectURL("/welcome"))
	require.NoError(t, err)

	result, err := sa.CompleteAuth(context.Background(), "google", "auth-code", redirect.State)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, user, result.User)
	assert.Equal(t, sessions.pair, result.Pair)
	assert.Equal(t, "/welcome", result.RedirectURL)
	assert.False(t, result.IsNewUser)

	// the code verifier minted at BeginAuth made the round trip
	require.Len(t, provider.exchanged, 1)
	assert.Equal(t, "auth-code", provider.exchanged[0])
	assert.NotEmpty(t, provider.verifier)

	require.Len(t, sessions.issued, 1)
	assert.Equal(t, user, sessions.issued[0])
}

func TestCompleteAuthRejectsForeignState(t *testing.T) {
	provider := &fakeProvider{name: "google"}
	sa := NewAuthenticator(&stubUsers{}, &fakeSessions{}, newTestAuthConfig(), WithProvider(provider))

	_, err := sa.CompleteAuth(context.Background(), "google", "auth-code", "not-a-state-token")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteAuthRejectsProviderMismatch(t *testing.T) {
	google := &fakeProvider{name: "google"}
	github := &fakeProvider{name: "github"}
	sa := NewAuthenticator(&stubUsers{}, &fakeSessions{}, newTestAuthConfig(),
		WithProvider(google), WithProvider(github))

	redirect, err := sa.BeginAuth(context.Background(), "google")
	require.NoError(t, err)

	// a state minted for one provider cannot complete another's callback
	_, err = sa.CompleteAuth(context.Background(), "github", "auth-code", redirect.State)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteAuthWrapsExchangeFailure(t *testing.T) {
	provider := &fakeProvider{
		name: "google",
		exchangeErr: &ProviderError{
			Provider:  "google",
			Operation: "exchange",
			Code:      "invalid_grant",
		},
	}
	sa := NewAuthenticator(&stubUsers{}, &fakeSessions{}, newTestAuthConfig(), WithProvider(provider))

	redirect, err := sa.BeginAuth(context.Background(), "google")
	require.NoError(t, err)

	_, err = sa.CompleteAuth(context.Background(), "google", "stale-code", redirect.State)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, ErrTokenExchangeFailed.TextCode, richErr.TextCode)
	assert.Equal(t, "google", richErr.Metadata["provider"])
}

func TestListProviders(t *testing.T) {
	sa := NewAuthenticator(&stubUsers{}, &fakeSessions{}, newTestAuthConfig(),
		WithProvider(&fakeProvider{name: "google"}))

	providers := sa.ListProviders()
	require.Len(t, providers, 1)
	assert.Equal(t, "google", providers[0].Name)
	assert.NotEmpty(t, providers[0].AuthURL)
}
