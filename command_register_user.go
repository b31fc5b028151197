package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is the region used to parse phone numbers that carry no
// country prefix.
var DefaultPhoneRegion = "US"

type RegisterUserMessage struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "identity.user.register" }

type RegisterUserResponse struct {
	User    *User
	Success bool
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	mailer   Mailer
	renderer *MailRenderer
	config   Config
	activity ActivitySink
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, tokens TokenService, mailer Mailer, renderer *MailRenderer, config Config) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		tokens:   tokens,
		mailer:   mailer,
		renderer: renderer,
		config:   config,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	resp := &RegisterUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	phone, err := normalizePhone(event.Phone)
	if err != nil {
		return err
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return ErrDuplicateEmail
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing user")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Name = event.Name
		user.Email = event.Email
		user.Phone = phone
		if id, err := hashid.NewUUID(event.Email); err == nil {
			user.ID = id
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
				WithTextCode(TextCodeDuplicateEmail).
				WithCode(goerrors.CodeConflict)
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	resp.User = user
	resp.Success = true

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	// the account now exists regardless of what happens to the mail; a
	// dispatch failure is reported so the caller can drive a retry
	if err := h.sendVerificationMail(ctx, user); err != nil {
		h.logger.Error("failed to send verification email for %s: %v", user.Email, err)
		return goerrors.Wrap(err, ErrMailDispatchFailed.Category, ErrMailDispatchFailed.Message).
			WithTextCode(ErrMailDispatchFailed.TextCode)
	}

	return nil
}

func (h *RegisterUserHandler) sendVerificationMail(ctx context.Context, user *User) error {
	token, err := h.tokens.Sign(user.ID.String(), h.config.GetVerificationTokenTTL())
	if err != nil {
		return err
	}

	mail, err := h.renderer.VerificationMail(user, h.config.GetBaseURL()+"/auth/verify-email?token="+token)
	if err != nil {
		return err
	}

	return h.mailer.Send(ctx, mail)
}

func (h *RegisterUserHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType:  ActivityEventRegistration,
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during registration: %v", err)
	}
}

func normalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
