package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// DefaultOpaqueTokenBytes is the entropy used for refresh and reset tokens
// when the configuration does not override it.
const DefaultOpaqueTokenBytes = 32

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a new TokenService instance. The signing key is
// injected here and nowhere else; there is no package-level secret.
func NewTokenService(signingKey []byte, issuer string, audience []string, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   jwt.ClaimStrings(audience),
		logger:     logger,
	}
}

// Sign produces a signed token binding the subject to an expiry of now+ttl.
func (ts *TokenServiceImpl) Sign(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject must not be empty", errors.CategoryBadInput)
	}

	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Issuer:    ts.issuer,
		Subject:   subject,
		Audience:  ts.audience,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning its subject.
// Any single-bit mutation of the token fails the signature check here.
func (ts *TokenServiceImpl) Validate(tokenString string) (string, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", errors.Wrap(err, ErrInvalidToken.Category, ErrInvalidToken.Message).
			WithTextCode(ErrInvalidToken.TextCode)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		ts.logger.Error("TokenService validate could not decode claims")
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

// NewOpaqueToken returns a cryptographically random token of the given byte
// length, hex encoded. The raw value goes to the caller only; stores keep
// the fingerprint.
func (ts *TokenServiceImpl) NewOpaqueToken(length int) (string, error) {
	if length <= 0 {
		length = DefaultOpaqueTokenBytes
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read random bytes")
	}

	return hex.EncodeToString(buf), nil
}

// Fingerprint returns the deterministic one-way digest used to store and
// look up opaque tokens without persisting them in recoverable form.
func (ts *TokenServiceImpl) Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
