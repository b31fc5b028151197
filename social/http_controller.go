package social

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController handles federated auth HTTP routes.
type HTTPController struct {
	authenticator *Authenticator
	config        HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/auth/social")
	PathPrefix string

	// CookieDuration bounds the refresh cookie lifetime
	CookieDuration time.Duration

	// SuccessRedirect is the default redirect after successful auth
	SuccessRedirect string

	// ErrorRedirect is the redirect for auth errors
	ErrorRedirect string

	// ErrorHandler handles errors (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// NewHTTPController creates a new federated auth HTTP controller.
func NewHTTPController(auth *Authenticator, cfg HTTPConfig) *HTTPController {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth/social"
	}
	if cfg.CookieDuration == 0 {
		cfg.CookieDuration = identity.DefaultRefreshCookieDuration
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login?error=auth_failed"
	}

	return &HTTPController{
		authenticator: auth,
		config:        cfg,
	}
}

// RegisterRoutes registers federated auth routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/providers", c.ListProviders)
	group.Get("/:provider/callback", c.Callback)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns available federated providers.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	providers := c.authenticator.ListProviders()
	return ctx.JSON(router.StatusOK, map[string]any{
		"providers": providers,
	})
}

// BeginAuth starts the OAuth flow.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	providerName := ctx.Param("provider")

	redirectURL := ctx.Query("redirect_url")
	if redirectURL == "" {
		redirectURL = c.config.SuccessRedirect
	}

	redirect, err := c.authenticator.BeginAuth(ctx.Context(), providerName, WithRedirectURL(redirectURL))
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback.
func (c *HTTPController) Callback(ctx router.Context) error {
	providerName := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if errCode := ctx.Query("error"); errCode != "" {
		errDesc := ctx.Query("error_description")
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "oauth_error", errCode)
		if errDesc != "" {
			redirectURL = appendQueryParam(redirectURL, "desc", errDesc)
		}
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	if code == "" || state == "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "missing_params")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	result, err := c.authenticator.CompleteAuth(ctx.Context(), providerName, code, state)
	if err != nil {
		return c.handleError(ctx, err)
	}

	c.setRefreshCookie(ctx, result.Pair.RefreshToken)

	redirectURL := result.RedirectURL
	if redirectURL == "" {
		redirectURL = c.config.SuccessRedirect
	}

	if result.IsNewUser {
		redirectURL = appendQueryParam(redirectURL, "new_user", "true")
	}

	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

func (c *HTTPController) setRefreshCookie(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     identity.RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		Expires:  time.Now().Add(c.config.CookieDuration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", err.Error())
	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
