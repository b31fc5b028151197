package identity

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type AuthControllerRoutes struct {
	Register       string
	VerifyEmail    string
	Login          string
	Logout         string
	Refresh        string
	ForgotPassword string
	ResetPassword  string
}

type AuthController struct {
	Debug          bool
	Logger         Logger
	Repo           RepositoryManager
	Auther         SessionAuthenticator
	Tokens         TokenService
	Mailer         Mailer
	Renderer       *MailRenderer
	Config         Config
	Routes         *AuthControllerRoutes
	CookieDuration time.Duration
	ErrorHandler   router.ErrorHandler
	Activity       ActivitySink
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithRepositoryManager(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithAuthenticator(auther SessionAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithTokenService(tokens TokenService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Tokens = tokens
		return c
	}
}

func WithMailer(mailer Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = mailer
		return c
	}
}

func WithMailRenderer(renderer *MailRenderer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Renderer = renderer
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:         defLogger{},
		ErrorHandler:   defaultErrHandler,
		CookieDuration: DefaultRefreshCookieDuration,
		Activity:       noopActivitySink{},
		Routes: &AuthControllerRoutes{
			Register:       "/auth/register",
			VerifyEmail:    "/auth/verify-email",
			Login:          "/auth/login",
			Logout:         "/auth/logout",
			Refresh:        "/auth/refresh-token",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing SessionAuthenticator in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	if c.Mailer == nil {
		c.Mailer = NewLogMailer(c.Logger)
	}

	if c.Renderer == nil {
		renderer, err := NewMailRenderer()
		if err != nil {
			panic(err)
		}
		c.Renderer = renderer
	}

	return c
}

// RegisterPayload is the registration body
type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AuthController) RegisterCreate(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return validationErrHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Tokens, a.Mailer, a.Renderer, a.Config).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"success": true,
		"message": "verification email sent",
		"user":    res.User.PublicProfile(),
	})
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	token := ctx.Query("token")
	if token == "" {
		return a.ErrorHandler(ctx, ErrInvalidOrExpiredToken)
	}

	verifyEmail := NewVerifyEmailHandler(a.Repo, a.Tokens).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	if err := verifyEmail.Execute(ctx.Context(), VerifyEmailMessage{Token: token}); err != nil {
		a.Logger.Error("verify email error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "email verified",
	})
}

// LoginPayload is the login body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return validationErrHandler(ctx, err)
	}

	pair, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Error("login error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	setRefreshCookie(ctx, pair.RefreshToken, a.CookieDuration)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":      true,
		"access_token": pair.AccessToken,
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	refreshToken := ctx.Cookies(RefreshCookieName)

	if err := a.Auther.Logout(ctx.Context(), refreshToken); err != nil {
		a.Logger.Error("logout error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	clearRefreshCookie(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) RefreshPost(ctx router.Context) error {
	refreshToken := ctx.Cookies(RefreshCookieName)

	accessToken, err := a.Auther.Refresh(ctx.Context(), refreshToken)
	if err != nil {
		a.Logger.Error("refresh error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":      true,
		"access_token": accessToken,
	})
}

// ForgotPasswordPayload holds values for password reset initialization
type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return validationErrHandler(ctx, err)
	}

	initReset := NewInitializePasswordResetHandler(a.Repo, a.Tokens, a.Mailer, a.Renderer, a.Config).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	req := InitializePasswordResetMessage{Email: payload.Email}

	if err := initReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("forgot password error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "password reset email sent",
	})
}

// ResetPasswordPayload holds values for password reset finalization
type ResetPasswordPayload struct {
	Password string `json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return validationErrHandler(ctx, err)
	}

	finalizeReset := NewFinalizePasswordResetHandler(a.Repo, a.Tokens).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	req := FinalizePasswordResetMessage{
		Token:    token,
		Password: payload.Password,
	}

	if err := finalizeReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("reset password error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "password updated",
	})
}
