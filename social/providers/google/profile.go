package google

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity/social"
)

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (c *idTokenClaims) profile() *social.Profile {
	return &social.Profile{
		ProviderUserID: c.Subject,
		Provider:       "google",
		Email:          c.Email,
		EmailVerified:  c.EmailVerified,
		Name:           c.Name,
		AvatarURL:      c.Picture,
		Raw: map[string]any{
			"sub":            c.Subject,
			"email":          c.Email,
			"email_verified": c.EmailVerified,
			"name":           c.Name,
			"picture":        c.Picture,
		},
	}
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func mapProfile(info *googleUserInfo) *social.Profile {
	if info == nil {
		return nil
	}

	return &social.Profile{
		ProviderUserID: info.Sub,
		Provider:       "google",
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		Name:           info.Name,
		AvatarURL:      info.Picture,
		Raw: map[string]any{
			"sub":            info.Sub,
			"email":          info.Email,
			"email_verified": info.EmailVerified,
			"name":           info.Name,
			"picture":        info.Picture,
			"locale":         info.Locale,
		},
	}
}
