package identity

import (
	"bytes"
	"context"
	"embed"
	"net/http"

	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
)

//go:embed templates/*.html
var mailTemplates embed.FS

// MailRenderer renders notification bodies from the embedded template set.
type MailRenderer struct {
	engine *django.Engine
}

// NewMailRenderer loads the embedded mail templates. Call once at boot;
// Load failures are configuration errors, not runtime ones.
func NewMailRenderer() (*MailRenderer, error) {
	engine := django.NewFileSystem(http.FS(mailTemplates), ".html")
	if err := engine.Load(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load mail templates")
	}
	return &MailRenderer{engine: engine}, nil
}

// Render produces the body for the named template with the given bindings.
func (r *MailRenderer) Render(name string, binding map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, name, binding); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to render mail template").
			WithMetadata(map[string]any{
				"template": name,
			})
	}
	return buf.String(), nil
}

// VerificationMail builds the account verification message for a user.
func (r *MailRenderer) VerificationMail(user *User, verifyURL string) (Mail, error) {
	body, err := r.Render("templates/verification", map[string]any{
		"name":       user.Name,
		"verify_url": verifyURL,
	})
	if err != nil {
		return Mail{}, err
	}

	return Mail{
		To:      user.Email,
		Subject: "Verify your email address",
		Body:    body,
	}, nil
}

// PasswordResetMail builds the password reset message for a user.
func (r *MailRenderer) PasswordResetMail(user *User, resetURL string) (Mail, error) {
	body, err := r.Render("templates/password_reset", map[string]any{
		"name":      user.Name,
		"reset_url": resetURL,
	})
	if err != nil {
		return Mail{}, err
	}

	return Mail{
		To:      user.Email,
		Subject: "Reset your password",
		Body:    body,
	}, nil
}

// logMailer is the default Mailer; it records the message instead of
// delivering it. Wire a real transport in production.
type logMailer struct {
	logger Logger
}

// NewLogMailer returns a Mailer that logs messages rather than sending them.
func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &logMailer{logger: logger}
}

func (m *logMailer) Send(_ context.Context, mail Mail) error {
	m.logger.Info("mail to=%s subject=%q body_bytes=%d", mail.To, mail.Subject, len(mail.Body))
	return nil
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, mail Mail) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, mail Mail) error {
	if f == nil {
		return nil
	}
	return f(ctx, mail)
}
