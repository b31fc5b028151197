package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/social"
	"github.com/goliatone/go-identity/social/providers/google"
	"github.com/goliatone/go-router"
	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// AppConfig carries the runtime configuration read from file and env.
type AppConfig struct {
	Address              string
	BaseURL              string
	DSN                  string
	SigningKey           string
	Issuer               string
	Audience             []string
	AccessTokenTTL       time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	OpaqueTokenBytes     int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	StateEncryptionKey string
	StateHMACKey       string
}

func (c *AppConfig) GetSigningKey() string                  { return c.SigningKey }
func (c *AppConfig) GetIssuer() string                      { return c.Issuer }
func (c *AppConfig) GetAudience() []string                  { return c.Audience }
func (c *AppConfig) GetAccessTokenTTL() time.Duration       { return c.AccessTokenTTL }
func (c *AppConfig) GetVerificationTokenTTL() time.Duration { return c.VerificationTokenTTL }
func (c *AppConfig) GetResetTokenTTL() time.Duration        { return c.ResetTokenTTL }
func (c *AppConfig) GetOpaqueTokenBytes() int               { return c.OpaqueTokenBytes }
func (c *AppConfig) GetBaseURL() string                     { return c.BaseURL }

func loadConfig() (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("address", ":8572")
	v.SetDefault("base_url", "http://localhost:8572")
	v.SetDefault("dsn", "file:identity.db?cache=shared&mode=rwc")
	v.SetDefault("issuer", "go-identity")
	v.SetDefault("audience", []string{"go-identity"})
	v.SetDefault("access_token_ttl", 15*time.Minute)
	v.SetDefault("verification_token_ttl", 24*time.Hour)
	v.SetDefault("reset_token_ttl", 10*time.Minute)
	v.SetDefault("opaque_token_bytes", identity.DefaultOpaqueTokenBytes)

	v.SetConfigName("identityd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/identityd")

	v.SetEnvPrefix("IDENTITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &AppConfig{
		Address:              v.GetString("address"),
		BaseURL:              v.GetString("base_url"),
		DSN:                  v.GetString("dsn"),
		SigningKey:           v.GetString("signing_key"),
		Issuer:               v.GetString("issuer"),
		Audience:             v.GetStringSlice("audience"),
		AccessTokenTTL:       v.GetDuration("access_token_ttl"),
		VerificationTokenTTL: v.GetDuration("verification_token_ttl"),
		ResetTokenTTL:        v.GetDuration("reset_token_ttl"),
		OpaqueTokenBytes:     v.GetInt("opaque_token_bytes"),
		GoogleClientID:       v.GetString("google.client_id"),
		GoogleClientSecret:   v.GetString("google.client_secret"),
		GoogleCallbackURL:    v.GetString("google.callback_url"),
		StateEncryptionKey:   v.GetString("state.encryption_key"),
		StateHMACKey:         v.GetString("state.hmac_key"),
	}

	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.SigningKey == "" {
		log.Fatal("config: signing_key is required")
	}

	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.DSN)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	repo := identity.NewRepositoryManager(db)
	repo.MustValidate()

	auther := identity.NewAuthenticator(repo, cfg)
	mailer := identity.NewLogMailer(nil)

	renderer, err := identity.NewMailRenderer()
	if err != nil {
		log.Fatalf("mail templates: %v", err)
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
			AppName:       "identityd",
		}))
	})

	identity.RegisterAuthRoutes(srv.Router().Group("/"),
		identity.WithRepositoryManager(repo),
		identity.WithAuthenticator(auther),
		identity.WithTokenService(auther.TokenService()),
		identity.WithMailer(mailer),
		identity.WithMailRenderer(renderer),
		identity.WithControllerConfig(cfg),
	)

	if cfg.GoogleClientID != "" {
		if err := registerSocialRoutes(srv, repo, auther, cfg); err != nil {
			log.Fatalf("social: %v", err)
		}
	}

	srv.Serve(cfg.Address)

	WaitExitSignal()
}

func openDatabase(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*identity.User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

func registerSocialRoutes(srv router.Server[*fiber.App], repo identity.RepositoryManager, auther *identity.Auther, cfg *AppConfig) error {
	validator, err := google.NewIDTokenValidator(cfg.GoogleClientID)
	if err != nil {
		return err
	}

	provider := google.New(google.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		CallbackURL:  cfg.GoogleCallbackURL,
	}).WithIDTokenValidator(validator)

	socialAuth := social.NewAuthenticator(
		repo.Users(),
		auther,
		social.AuthConfig{
			StateEncryptionKey:   []byte(cfg.StateEncryptionKey),
			StateHMACKey:         []byte(cfg.StateHMACKey),
			AllowSignup:          true,
			RequireEmailVerified: true,
		},
		social.WithProvider(provider),
	)

	controller := social.NewHTTPController(socialAuth, social.HTTPConfig{})
	controller.RegisterRoutes(srv.Router().Group("/auth/social"))

	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
