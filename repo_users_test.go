package identity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupUsersDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().
		Model((*identity.User)(nil)).
		Exec(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return bunDB
}

func seedUser(t *testing.T, users identity.Users, email string) *identity.User {
	t.Helper()

	user, err := users.Create(context.Background(), &identity.User{
		Name:         "Ada Lovelace",
		Email:        email,
		PasswordHash: "not-a-real-hash",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, user.ID)
	return user
}

func TestUsersRepositoryLookups(t *testing.T) {
	users := identity.NewUsersRepository(setupUsersDB(t))
	ctx := context.Background()

	user := seedUser(t, users, "ada@example.com")

	byEmail, err := users.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	_, err = users.GetByEmail(ctx, "nobody@example.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersRepositoryMarkVerified(t *testing.T) {
	users := identity.NewUsersRepository(setupUsersDB(t))
	ctx := context.Background()

	user := seedUser(t, users, "ada@example.com")
	assert.False(t, user.IsVerified)

	verified, err := users.MarkVerified(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)

	// verification is monotonic, replaying succeeds again
	again, err := users.MarkVerified(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, again.IsVerified)

	_, err = users.MarkVerified(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersRepositoryRefreshFingerprintLifecycle(t *testing.T) {
	users := identity.NewUsersRepository(setupUsersDB(t))
	ctx := context.Background()

	user := seedUser(t, users, "ada@example.com")

	require.NoError(t, users.StoreRefreshFingerprint(ctx, user.ID, "fp-one"))

	found, err := users.GetByRefreshFingerprint(ctx, "fp-one")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.NotNil(t, found.LoggedInAt)

	// a second session replaces the first on the same row
	require.NoError(t, users.StoreRefreshFingerprint(ctx, user.ID, "fp-two"))

	_, err = users.GetByRefreshFingerprint(ctx, "fp-one")
	assert.True(t, repository.IsRecordNotFound(err))

	found, err = users.GetByRefreshFingerprint(ctx, "fp-two")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, users.ClearRefreshFingerprint(ctx, "fp-two"))
	_, err = users.GetByRefreshFingerprint(ctx, "fp-two")
	assert.True(t, repository.IsRecordNotFound(err))

	// clearing a fingerprint nobody holds is not an error
	require.NoError(t, users.ClearRefreshFingerprint(ctx, "fp-unknown"))
}

func TestUsersRepositoryResetLifecycle(t *testing.T) {
	users := identity.NewUsersRepository(setupUsersDB(t))
	ctx := context.Background()

	user := seedUser(t, users, "ada@example.com")
	expiry := time.Now().Add(10 * time.Minute)

	require.NoError(t, users.StoreResetRequest(ctx, user.ID, "reset-one", expiry))

	// a repeat request supersedes the outstanding token
	require.NoError(t, users.StoreResetRequest(ctx, user.ID, "reset-two", expiry))

	_, err := users.ConsumeResetRequest(ctx, "reset-one", "new-hash", time.Now())
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))

	consumed, err := users.ConsumeResetRequest(ctx, "reset-two", "new-hash", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "new-hash", consumed.PasswordHash)
	assert.False(t, consumed.HasPendingReset(time.Now()))

	// single use: the same fingerprint finds no row the second time
	_, err = users.ConsumeResetRequest(ctx, "reset-two", "other-hash", time.Now())
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersRepositoryResetExpiryGuard(t *testing.T) {
	users := identity.NewUsersRepository(setupUsersDB(t))
	ctx := context.Background()

	user := seedUser(t, users, "ada@example.com")

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, users.StoreResetRequest(ctx, user.ID, "reset-stale", expired))

	_, err := users.ConsumeResetRequest(ctx, "reset-stale", "new-hash", time.Now())
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))

	// the expired pair is still on the row, untouched
	stored, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "not-a-real-hash", stored.PasswordHash)
}

func TestUsersRepositoryLinkFederatedIdentity(t *testing.T) {
	users := identity.NewUsersRepository(setupUsersDB(t))
	ctx := context.Background()

	user := seedUser(t, users, "ada@example.com")

	linked, err := users.LinkFederatedIdentity(ctx, user.ID, "google:123")
	require.NoError(t, err)
	assert.Equal(t, "google:123", linked.FederatedID)
	assert.True(t, linked.IsVerified)

	found, err := users.GetByFederatedID(ctx, "google:123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}
