package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "identity.password_reset.init" }

type InitializePasswordResetResponse struct {
	User    *User
	Success bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	mailer   Mailer
	renderer *MailRenderer
	config   Config
	activity ActivitySink
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, tokens TokenService, mailer Mailer, renderer *MailRenderer, config Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		mailer:   mailer,
		renderer: renderer,
		config:   config,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit reset request events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := h.tokens.NewOpaqueToken(h.config.GetOpaqueTokenBytes())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset token")
	}

	fingerprint := h.tokens.Fingerprint(token)
	expiry := time.Now().Add(h.config.GetResetTokenTTL())

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUserNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		// a single statement swaps fingerprint and expiry together, so a
		// repeat request supersedes any outstanding token atomically
		if err := h.repo.Users().StoreResetRequestTx(ctx, tx, user.ID, fingerprint, expiry); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset request")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{
			User:    user,
			Success: true,
		})
	}

	if err := h.sendResetMail(ctx, user, token); err != nil {
		h.logger.Error("failed to send password reset email for %s: %v", user.Email, err)
		return goerrors.Wrap(err, ErrMailDispatchFailed.Category, ErrMailDispatchFailed.Message).
			WithTextCode(ErrMailDispatchFailed.TextCode)
	}

	return nil
}

func (h *InitializePasswordResetHandler) sendResetMail(ctx context.Context, user *User, token string) error {
	mail, err := h.renderer.PasswordResetMail(user, h.config.GetBaseURL()+"/auth/reset-password/"+token)
	if err != nil {
		return err
	}

	return h.mailer.Send(ctx, mail)
}

func (h *InitializePasswordResetHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType:  ActivityEventPasswordResetRequest,
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset request: %v", err)
	}
}
