package identity

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeDuplicateEmail      = "identity_duplicate_email"
	TextCodeUserNotFound        = "identity_user_not_found"
	TextCodeInvalidCredentials  = "identity_invalid_credentials"
	TextCodeInvalidToken        = "identity_invalid_token"
	TextCodeTokenExpired        = "identity_token_expired"
	TextCodeInvalidResetToken   = "identity_invalid_or_expired_token"
	TextCodeInvalidRefreshToken = "identity_invalid_refresh_token"
	TextCodeMailDispatchFailed  = "identity_mail_dispatch_failed"
)

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = errors.New("a user with that email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeConflict)

// ErrUserNotFound is returned when a password reset targets an unknown email.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials deliberately collapses every login failure mode so a
// response never discloses whether the account exists, is unverified, or
// which credential was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a signed token is past its expiry.
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidToken is returned when a signed token fails signature or shape checks.
var ErrInvalidToken = errors.New("invalid token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidOrExpiredToken collapses verification and reset token failures
// where distinguishing the cause would leak state.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidResetToken).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidRefreshToken is returned when no user owns the presented
// refresh token fingerprint.
var ErrInvalidRefreshToken = errors.New("invalid refresh token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefreshToken).
	WithCode(errors.CodeUnauthorized)

// ErrMailDispatchFailed signals that the triggering mutation committed but
// the notification could not be delivered, so the caller can drive a retry.
var ErrMailDispatchFailed = errors.New("could not dispatch notification email", errors.CategoryOperation).
	WithTextCode(TextCodeMailDispatchFailed).
	WithCode(errors.CodeInternal)

// ErrNoEmptyPassword guards the hasher against hashing the empty string.
var ErrNoEmptyPassword = errors.New("password must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the normalized bcrypt mismatch error.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)
