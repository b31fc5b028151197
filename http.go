package identity

import (
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RefreshCookieName is the cookie carrying the opaque refresh token. The
// browser is the only holder of the raw value; the server keeps a
// fingerprint.
const RefreshCookieName = "refresh_token"

// DefaultRefreshCookieDuration bounds how long the refresh cookie lives.
const DefaultRefreshCookieDuration = 7 * 24 * time.Hour

// RegisterAuthRoutes mounts the credential and session endpoints.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.RegisterCreate).
		SetName("auth.register")

	app.Get(controller.Routes.VerifyEmail, controller.VerifyEmail).
		SetName("auth.verify-email")

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")

	app.Post(controller.Routes.Logout, controller.LogoutPost).
		SetName("auth.logout")

	app.Post(controller.Routes.Refresh, controller.RefreshPost).
		SetName("auth.refresh")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).
		SetName("auth.forgot-password")

	app.Put(controller.Routes.ResetPassword+"/:token", controller.ResetPassword).
		SetName("auth.reset-password")
}

func setRefreshCookie(ctx router.Context, token string, duration time.Duration) {
	ctx.Cookie(&router.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func clearRefreshCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func defaultErrHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "internal server error").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	body := map[string]any{
		"success": false,
		"error":   richErr.Message,
	}

	if richErr.TextCode != "" {
		body["text_code"] = richErr.TextCode
	}

	return ctx.JSON(status, body)
}

func validationErrHandler(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"success":    false,
		"error":      "validation failed",
		"validation": err.Error(),
	})
}
