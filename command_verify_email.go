package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "identity.user.verify_email" }

type VerifyEmailResponse struct {
	User    *User
	Success bool
}

type VerifyEmailHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	activity ActivitySink
	logger   Logger
}

// NewVerifyEmailHandler creates a handler with sane defaults.
func NewVerifyEmailHandler(repo RepositoryManager, tokens TokenService) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:     repo,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit verification events.
func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	subject, err := h.tokens.Validate(event.Token)
	if err != nil {
		// expired and tampered tokens collapse into the same answer
		return ErrInvalidOrExpiredToken
	}

	id, err := uuid.Parse(subject)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// verification is idempotent: replaying a live token on an
		// already verified account succeeds again
		user, err = h.repo.Users().MarkVerifiedTx(ctx, tx, id)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOrExpiredToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark user as verified")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&VerifyEmailResponse{
			User:    user,
			Success: true,
		})
	}

	return nil
}

func (h *VerifyEmailHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType:  ActivityEventEmailVerified,
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email verification: %v", err)
	}
}
