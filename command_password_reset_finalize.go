package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "identity.password_reset.finalize" }

type FinalizePasswordResetResponse struct {
	User    *User
	Success bool
}

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, tokens TokenService) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	fingerprint := h.tokens.Fingerprint(event.Token)

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// the guarded update matches only a live fingerprint and clears
		// it in the same statement: an expired, superseded, or already
		// used token finds no row
		user, err = h.repo.Users().ConsumeResetRequestTx(ctx, tx, fingerprint, passwordHash, time.Now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOrExpiredToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume password reset request")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{
			User:    user,
			Success: true,
		})
	}

	return nil
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset: %v", err)
	}
}
