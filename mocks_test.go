package identity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// expectRunInTx wires the transaction mock so the callback actually runs,
// and asserts it resolves to the expected error.
func expectRunInTx(t *testing.T, repo *MockRepositoryManager, want error) {
	t.Helper()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(want).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(ctx context.Context, tx bun.Tx) error)
			var tx bun.Tx
			err := fn(args.Get(0).(context.Context), tx)
			if want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, want)
			}
		}).Once()
}

// MockUsers implements identity.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) Create(ctx context.Context, record *identity.User) (*identity.User, error) {
	args := m.Called(ctx, record)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *identity.User) (*identity.User, error) {
	args := m.Called(ctx, tx, record)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, tx, id)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*identity.User, error) {
	args := m.Called(ctx, tx, email)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByFederatedID(ctx context.Context, federatedID string) (*identity.User, error) {
	args := m.Called(ctx, federatedID)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByFederatedIDTx(ctx context.Context, tx bun.IDB, federatedID string) (*identity.User, error) {
	args := m.Called(ctx, tx, federatedID)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByRefreshFingerprint(ctx context.Context, fingerprint string) (*identity.User, error) {
	args := m.Called(ctx, fingerprint)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByRefreshFingerprintTx(ctx context.Context, tx bun.IDB, fingerprint string) (*identity.User, error) {
	args := m.Called(ctx, tx, fingerprint)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) MarkVerified(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, tx, id)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) StoreRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error {
	args := m.Called(ctx, id, fingerprint)
	return args.Error(0)
}

func (m *MockUsers) StoreRefreshFingerprintTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fingerprint string) error {
	args := m.Called(ctx, tx, id, fingerprint)
	return args.Error(0)
}

func (m *MockUsers) ClearRefreshFingerprint(ctx context.Context, fingerprint string) error {
	args := m.Called(ctx, fingerprint)
	return args.Error(0)
}

func (m *MockUsers) ClearRefreshFingerprintTx(ctx context.Context, tx bun.IDB, fingerprint string) error {
	args := m.Called(ctx, tx, fingerprint)
	return args.Error(0)
}

func (m *MockUsers) StoreResetRequest(ctx context.Context, id uuid.UUID, fingerprint string, expiry time.Time) error {
	args := m.Called(ctx, id, fingerprint, expiry)
	return args.Error(0)
}

func (m *MockUsers) StoreResetRequestTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fingerprint string, expiry time.Time) error {
	args := m.Called(ctx, tx, id, fingerprint, expiry)
	return args.Error(0)
}

func (m *MockUsers) ConsumeResetRequest(ctx context.Context, fingerprint, passwordHash string, now time.Time) (*identity.User, error) {
	args := m.Called(ctx, fingerprint, passwordHash, now)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) ConsumeResetRequestTx(ctx context.Context, tx bun.IDB, fingerprint, passwordHash string, now time.Time) (*identity.User, error) {
	args := m.Called(ctx, tx, fingerprint, passwordHash, now)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) LinkFederatedIdentity(ctx context.Context, id uuid.UUID, federatedID string) (*identity.User, error) {
	args := m.Called(ctx, id, federatedID)
	return userArg(args, 0), args.Error(1)
}

func (m *MockUsers) LinkFederatedIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, federatedID string) (*identity.User, error) {
	args := m.Called(ctx, tx, id, federatedID)
	return userArg(args, 0), args.Error(1)
}

func userArg(args mock.Arguments, idx int) *identity.User {
	if u, ok := args.Get(idx).(*identity.User); ok {
		return u
	}
	return nil
}

// MockRepositoryManager implements identity.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	return args.Error(0)
}

func (m *MockRepositoryManager) Users() identity.Users {
	args := m.Called()
	return args.Get(0).(identity.Users)
}

// MockMailer implements identity.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, mail identity.Mail) error {
	args := m.Called(ctx, mail)
	return args.Error(0)
}

// MockActivitySink implements identity.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event identity.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// testConfig implements identity.Config
type testConfig struct {
	signingKey string
}

func (c testConfig) GetSigningKey() string {
	if c.signingKey != "" {
		return c.signingKey
	}
	return "test-signing-key"
}
func (c testConfig) GetIssuer() string                      { return "identity-test" }
func (c testConfig) GetAudience() []string                  { return []string{"identity-test"} }
func (c testConfig) GetAccessTokenTTL() time.Duration       { return 15 * time.Minute }
func (c testConfig) GetVerificationTokenTTL() time.Duration { return 24 * time.Hour }
func (c testConfig) GetResetTokenTTL() time.Duration        { return 10 * time.Minute }
func (c testConfig) GetOpaqueTokenBytes() int               { return 32 }
func (c testConfig) GetBaseURL() string                     { return "http://localhost:8572" }
