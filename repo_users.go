package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Single-statement updates keep every multi-field mutation atomic: two
// concurrent logins, or a reset racing a superseding forgot-password, can
// never interleave into a torn fingerprint/expiry pair.
var MarkUserVerifiedSQL = `UPDATE "users" AS "usr"
SET
	"is_verified" = TRUE,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."id" = ?
RETURNING *;`

var StoreRefreshFingerprintSQL = `UPDATE "users" AS "usr"
SET
	"refresh_fingerprint" = ?,
	"loggedin_at" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."id" = ?
RETURNING *;`

var ClearRefreshFingerprintSQL = `UPDATE "users" AS "usr"
SET
	"refresh_fingerprint" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."refresh_fingerprint" = ?
RETURNING *;`

var StoreResetRequestSQL = `UPDATE "users" AS "usr"
SET
	"reset_fingerprint" = ?,
	"reset_expiry" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."id" = ?
RETURNING *;`

// ConsumeResetRequestSQL guards on the fingerprint and expiry in the WHERE
// clause, making the reset token single-use by construction.
var ConsumeResetRequestSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"reset_fingerprint" = NULL,
	"reset_expiry" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."reset_fingerprint" = ?
AND	"usr"."reset_expiry" > ?
RETURNING *;`

var LinkFederatedIdentitySQL = `UPDATE "users" AS "usr"
SET
	"federated_id" = ?,
	"is_verified" = TRUE,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."id" = ?
RETURNING *;`

// Users is the credential store contract the flows depend on. Lookups by
// fingerprint return the owning user or a record-not-found error; the flow
// boundary translates misses into the public error kinds.
type Users interface {
	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByFederatedID(ctx context.Context, federatedID string) (*User, error)
	GetByFederatedIDTx(ctx context.Context, tx bun.IDB, federatedID string) (*User, error)
	GetByRefreshFingerprint(ctx context.Context, fingerprint string) (*User, error)
	GetByRefreshFingerprintTx(ctx context.Context, tx bun.IDB, fingerprint string) (*User, error)

	MarkVerified(ctx context.Context, id uuid.UUID) (*User, error)
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	StoreRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error
	StoreRefreshFingerprintTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fingerprint string) error
	ClearRefreshFingerprint(ctx context.Context, fingerprint string) error
	ClearRefreshFingerprintTx(ctx context.Context, tx bun.IDB, fingerprint string) error

	StoreResetRequest(ctx context.Context, id uuid.UUID, fingerprint string, expiry time.Time) error
	StoreResetRequestTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fingerprint string, expiry time.Time) error
	ConsumeResetRequest(ctx context.Context, fingerprint, passwordHash string, now time.Time) (*User, error)
	ConsumeResetRequestTx(ctx context.Context, tx bun.IDB, fingerprint, passwordHash string, now time.Time) (*User, error)

	LinkFederatedIdentity(ctx context.Context, id uuid.UUID, federatedID string) (*User, error)
	LinkFederatedIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, federatedID string) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.getByColumn(ctx, tx, "id", id.String())
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getByColumn(ctx, tx, "email", email)
}

func (a *users) GetByFederatedID(ctx context.Context, federatedID string) (*User, error) {
	return a.GetByFederatedIDTx(ctx, a.db, federatedID)
}

func (a *users) GetByFederatedIDTx(ctx context.Context, tx bun.IDB, federatedID string) (*User, error) {
	return a.getByColumn(ctx, tx, "federated_id", federatedID)
}

func (a *users) GetByRefreshFingerprint(ctx context.Context, fingerprint string) (*User, error) {
	return a.GetByRefreshFingerprintTx(ctx, a.db, fingerprint)
}

func (a *users) GetByRefreshFingerprintTx(ctx context.Context, tx bun.IDB, fingerprint string) (*User, error) {
	return a.getByColumn(ctx, tx, "refresh_fingerprint", fingerprint)
}

func (a *users) MarkVerified(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.MarkVerifiedTx(ctx, a.db, id)
}

func (a *users) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.execReturningOne(ctx, tx, MarkUserVerifiedSQL, id.String())
}

func (a *users) StoreRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error {
	return a.StoreRefreshFingerprintTx(ctx, a.db, id, fingerprint)
}

func (a *users) StoreRefreshFingerprintTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fingerprint string) error {
	_, err := a.execReturningOne(ctx, tx, StoreRefreshFingerprintSQL, fingerprint, time.Now(), id.String())
	return err
}

func (a *users) ClearRefreshFingerprint(ctx context.Context, fingerprint string) error {
	return a.ClearRefreshFingerprintTx(ctx, a.db, fingerprint)
}

func (a *users) ClearRefreshFingerprintTx(ctx context.Context, tx bun.IDB, fingerprint string) error {
	// no-match is fine here: logout is idempotent and never reports
	// whether a session was active
	_, err := a.Repository.RawTx(ctx, tx, ClearRefreshFingerprintSQL, fingerprint)
	return err
}

func (a *users) StoreResetRequest(ctx context.Context, id uuid.UUID, fingerprint string, expiry time.Time) error {
	return a.StoreResetRequestTx(ctx, a.db, id, fingerprint, expiry)
}

func (a *users) StoreResetRequestTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fingerprint string, expiry time.Time) error {
	_, err := a.execReturningOne(ctx, tx, StoreResetRequestSQL, fingerprint, expiry, id.String())
	return err
}

func (a *users) ConsumeResetRequest(ctx context.Context, fingerprint, passwordHash string, now time.Time) (*User, error) {
	return a.ConsumeResetRequestTx(ctx, a.db, fingerprint, passwordHash, now)
}

func (a *users) ConsumeResetRequestTx(ctx context.Context, tx bun.IDB, fingerprint, passwordHash string, now time.Time) (*User, error) {
	return a.execReturningOne(ctx, tx, ConsumeResetRequestSQL, passwordHash, fingerprint, now)
}

func (a *users) LinkFederatedIdentity(ctx context.Context, id uuid.UUID, federatedID string) (*User, error) {
	return a.LinkFederatedIdentityTx(ctx, a.db, id, federatedID)
}

func (a *users) LinkFederatedIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, federatedID string) (*User, error) {
	return a.execReturningOne(ctx, tx, LinkFederatedIdentitySQL, federatedID, id.String())
}

func (a *users) getByColumn(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					column: value,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) execReturningOne(ctx context.Context, tx bun.IDB, sql string, args ...any) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound()
	}

	return res[0], nil
}
