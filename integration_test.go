package identity_test

import (
	"context"
	"strings"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// extractLink pulls the first href target following the marker out of a
// rendered mail body.
func extractLink(t *testing.T, body, marker string) string {
	t.Helper()

	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0, "mail body is missing %q", marker)

	rest := body[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	require.Greater(t, end, 0)
	return rest[:end]
}

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig{}

	repo := identity.NewRepositoryManager(setupUsersDB(t))
	tokens := newTestTokenService()
	renderer := newTestRenderer(t)
	auther := identity.NewAuthenticator(repo, cfg)

	var mails []identity.Mail
	mailer := identity.MailerFunc(func(_ context.Context, mail identity.Mail) error {
		mails = append(mails, mail)
		return nil
	})

	register := identity.NewRegisterUserHandler(repo, tokens, mailer, renderer, cfg)
	verify := identity.NewVerifyEmailHandler(repo, tokens)
	forgot := identity.NewInitializePasswordResetHandler(repo, tokens, mailer, renderer, cfg)
	reset := identity.NewFinalizePasswordResetHandler(repo, tokens)

	// registration creates an unverified account and mails a token
	err := register.Execute(ctx, identity.RegisterUserMessage{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "firstPassword123!",
	})
	require.NoError(t, err)
	require.Len(t, mails, 1)
	assert.Equal(t, "ada@example.com", mails[0].To)

	// the account cannot log in until the address is confirmed
	_, err = auther.Login(ctx, "ada@example.com", "firstPassword123!")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	verifyToken := extractLink(t, mails[0].Body, cfg.GetBaseURL()+"/auth/verify-email?token=")
	require.NoError(t, verify.Execute(ctx, identity.VerifyEmailMessage{Token: verifyToken}))

	// replaying a still-valid verification token succeeds again
	require.NoError(t, verify.Execute(ctx, identity.VerifyEmailMessage{Token: verifyToken}))

	pair, err := auther.Login(ctx, "ada@example.com", "firstPassword123!")
	require.NoError(t, err)

	access, err := auther.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	// a second login replaces the session, orphaning the first refresh token
	second, err := auther.Login(ctx, "ada@example.com", "firstPassword123!")
	require.NoError(t, err)

	_, err = auther.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidRefreshToken)
	_, err = auther.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)

	// two reset requests: only the latest token is live
	require.NoError(t, forgot.Execute(ctx, identity.InitializePasswordResetMessage{Email: "ada@example.com"}))
	require.NoError(t, forgot.Execute(ctx, identity.InitializePasswordResetMessage{Email: "ada@example.com"}))
	require.Len(t, mails, 3)

	resetPrefix := cfg.GetBaseURL() + "/auth/reset-password/"
	staleToken := extractLink(t, mails[1].Body, resetPrefix)
	liveToken := extractLink(t, mails[2].Body, resetPrefix)
	require.NotEqual(t, staleToken, liveToken)

	err = reset.Execute(ctx, identity.FinalizePasswordResetMessage{
		Token:    staleToken,
		Password: "secondPassword123!",
	})
	assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken)

	require.NoError(t, reset.Execute(ctx, identity.FinalizePasswordResetMessage{
		Token:    liveToken,
		Password: "secondPassword123!",
	}))

	// the token was consumed, a replay finds nothing
	err = reset.Execute(ctx, identity.FinalizePasswordResetMessage{
		Token:    liveToken,
		Password: "thirdPassword123!",
	})
	assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken)

	_, err = auther.Login(ctx, "ada@example.com", "firstPassword123!")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	final, err := auther.Login(ctx, "ada@example.com", "secondPassword123!")
	require.NoError(t, err)

	// logout closes the session and stays quiet about repeats
	require.NoError(t, auther.Logout(ctx, final.RefreshToken))
	require.NoError(t, auther.Logout(ctx, final.RefreshToken))

	_, err = auther.Refresh(ctx, final.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidRefreshToken)
}

func TestDuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig{}

	repo := identity.NewRepositoryManager(setupUsersDB(t))
	register := identity.NewRegisterUserHandler(
		repo,
		newTestTokenService(),
		identity.MailerFunc(func(context.Context, identity.Mail) error { return nil }),
		newTestRenderer(t),
		cfg,
	)

	msg := identity.RegisterUserMessage{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "firstPassword123!",
	}

	require.NoError(t, register.Execute(ctx, msg))

	err := register.Execute(ctx, msg)
	assert.ErrorIs(t, err, identity.ErrDuplicateEmail)
}
