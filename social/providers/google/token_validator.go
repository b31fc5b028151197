package google

import (
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const defaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// IDTokenValidator checks id_token signatures against Google's published
// JWK set and validates the issuer/audience claims locally, avoiding a
// round trip to the userinfo endpoint.
type IDTokenValidator struct {
	jwks     *keyfunc.JWKS
	clientID string
}

// ValidatorOptions configures the id_token validator.
type ValidatorOptions struct {
	// JWKSURL overrides the Google certs endpoint, mainly for tests.
	JWKSURL string
}

// NewIDTokenValidator fetches Google's JWK set and keeps it refreshed in
// the background.
func NewIDTokenValidator(clientID string, opts ...ValidatorOptions) (*IDTokenValidator, error) {
	jwksURL := defaultJWKSURL
	if len(opts) > 0 && opts[0].JWKSURL != "" {
		jwksURL = opts[0].JWKSURL
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of google JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch google JWK set: %w", err)
	}

	return &IDTokenValidator{
		jwks:     jwks,
		clientID: clientID,
	}, nil
}

// NewIDTokenValidatorWithKeyfunc wires a pre-built JWKS, mainly for tests.
func NewIDTokenValidatorWithKeyfunc(clientID string, jwks *keyfunc.JWKS) *IDTokenValidator {
	return &IDTokenValidator{
		jwks:     jwks,
		clientID: clientID,
	}
}

// Validate parses and verifies an id_token, returning its claims.
func (v *IDTokenValidator) Validate(idToken string) (*idTokenClaims, error) {
	claims := &idTokenClaims{}

	parserOptions := []jwt.ParserOption{
		jwt.WithIssuedAt(),
	}
	if v.clientID != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(v.clientID))
	}

	token, err := jwt.ParseWithClaims(idToken, claims, v.jwks.Keyfunc, parserOptions...)
	if err != nil {
		return nil, fmt.Errorf("id token parse failed: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("id token is not valid")
	}

	issuer, err := claims.GetIssuer()
	if err != nil || (issuer != "https://accounts.google.com" && issuer != "accounts.google.com") {
		return nil, fmt.Errorf("unexpected id token issuer: %q", issuer)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("id token has no subject")
	}

	return claims, nil
}

// Close stops the background JWK refresh.
func (v *IDTokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
