package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/mailer"
	"github.com/stretchr/testify/assert"
)

var testClockBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type managerFixture struct {
	store  *fakeAccountStore
	outbox *mailer.Recorder
	sink   *captureSink
	clock  *time.Time
}

func newTestManager(t *testing.T) (*identity.Manager, *managerFixture) {
	t.Helper()

	fx := &managerFixture{
		store:  newFakeAccountStore(),
		outbox: mailer.NewRecorder(),
		sink:   &captureSink{},
	}

	now := testClockBase
	fx.clock = &now

	mgr := identity.NewManager(fx.store, identity.DefaultConfig()).
		WithMailer(fx.outbox).
		WithActivitySink(fx.sink).
		WithClock(func() time.Time { return *fx.clock })

	return mgr, fx
}

func TestManagerCreate(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@EXAMPLE.com", "pw-original-1", "Ann")
	assert.NoError(t, err)
	assert.NotNil(t, account)

	assert.Equal(t, "ann@example.com", account.Email)
	assert.Equal(t, "Ann", account.DisplayName)
	assert.True(t, account.IsActive)
	assert.False(t, account.IsStaff)
	assert.False(t, account.MailVerified)
	assert.Equal(t, identity.VisibilityPrivate, account.ProfileVisibility)

	assert.Len(t, account.ActivationKey, identity.ActivationKeyLength)
	wantExpiry := testClockBase.Add(7 * 24 * time.Hour)
	if assert.NotNil(t, account.KeyExpiresAt) {
		assert.True(t, account.KeyExpiresAt.Equal(wantExpiry), "expiry is exactly 7 days out")
	}

	assert.NotEqual(t, "pw-original-1", account.PasswordHash)
	assert.True(t, strings.HasPrefix(account.PasswordHash, "$2"), "hash is self describing")
	assert.NoError(t, identity.ComparePasswordAndHash("pw-original-1", account.PasswordHash))

	msg, ok := fx.outbox.Last()
	assert.True(t, ok, "verification mail dispatched")
	assert.Equal(t, "ann@example.com", msg.To)
	assert.Equal(t, identity.VerificationMailSubject, msg.Subject)
	assert.Contains(t, msg.Body, account.ActivationKey)
	assert.Contains(t, msg.Body, "valid for 7 days")

	assert.Contains(t, fx.sink.Types(), identity.ActivityEventAccountCreated)
	assert.Contains(t, fx.sink.Types(), identity.ActivityEventVerificationRequested)
}

func TestManagerCreateValidation(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		email       string
		password    string
		displayName string
		wantErr     error
	}{
		{
			name:        "missing email",
			email:       "",
			password:    "pw",
			displayName: "Ann",
			wantErr:     identity.ErrInvalidEmail,
		},
		{
			name:        "malformed email",
			email:       "not-an-address",
			password:    "pw",
			displayName: "Ann",
			wantErr:     identity.ErrInvalidEmail,
		},
		{
			name:        "missing password",
			email:       "ann@example.com",
			password:    "",
			displayName: "Ann",
			wantErr:     identity.ErrNoEmptyString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := mgr.Create(ctx, tt.email, tt.password, tt.displayName)
			assert.Nil(t, account)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestManagerCreateDisplayNameBound(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	tooLong := strings.Repeat("n", identity.MaxDisplayNameLength+1)
	account, err := mgr.Create(ctx, "long@example.com", "pw", tooLong)
	assert.Nil(t, account)
	assert.Error(t, err)

	atCap := strings.Repeat("n", identity.MaxDisplayNameLength)
	account, err = mgr.Create(ctx, "cap@example.com", "pw", atCap)
	assert.NoError(t, err)
	assert.Equal(t, atCap, account.DisplayName)
}

func TestManagerCreateConfiguredDisplayNameBound(t *testing.T) {
	fx := &managerFixture{
		store:  newFakeAccountStore(),
		outbox: mailer.NewRecorder(),
	}

	cfg := identity.DefaultConfig()
	cfg.DisplayNameMaxLength = 10

	mgr := identity.NewManager(fx.store, cfg).WithMailer(fx.outbox)

	_, err := mgr.Create(context.Background(), "a@example.com", "pw", strings.Repeat("n", 11))
	assert.Error(t, err)

	_, err = mgr.Create(context.Background(), "b@example.com", "pw", strings.Repeat("n", 10))
	assert.NoError(t, err)
}

func TestManagerCreateDuplicateEmail(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Create(ctx, "ann@example.com", "pw1", "Ann")
	assert.NoError(t, err)

	// same address modulo normalization
	account, err := mgr.Create(ctx, " ann@EXAMPLE.COM", "pw2", "Other Ann")
	assert.Nil(t, account)
	assert.Equal(t, identity.ErrDuplicateEmail, err)
}

func TestManagerCreatePrivileged(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.CreatePrivileged(ctx, "root@example.com", "pw-root")
	assert.NoError(t, err)

	assert.True(t, account.IsStaff)
	assert.Empty(t, account.DisplayName)
	assert.True(t, account.IsActive)

	// privilege does not bypass the verification cycle
	assert.False(t, account.MailVerified)
	assert.Len(t, account.ActivationKey, identity.ActivationKeyLength)

	msg, ok := fx.outbox.Last()
	assert.True(t, ok)
	assert.Equal(t, identity.VerificationMailSubject, msg.Subject)
}

func TestManagerCreateAccountOptions(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "opt@example.com", "pw", "Opt",
		identity.WithName("First", "Last"),
		identity.WithDescription("hello"),
		identity.WithVisibility(identity.VisibilityCommunities),
	)
	assert.NoError(t, err)

	assert.Equal(t, "First", account.FirstName)
	assert.Equal(t, "Last", account.LastName)
	assert.Equal(t, "hello", account.Description)
	assert.Equal(t, identity.VisibilityCommunities, account.ProfileVisibility)
}

func TestManagerStartVerificationSupersedesKey(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw", "Ann")
	assert.NoError(t, err)

	k1 := account.ActivationKey

	account, err = mgr.StartVerification(ctx, account)
	assert.NoError(t, err)

	k2 := account.ActivationKey
	assert.Len(t, k2, identity.ActivationKeyLength)
	assert.NotEqual(t, k1, k2)

	// the superseded key is permanently invalid
	_, err = mgr.ConfirmVerification(ctx, account, k1)
	assert.Equal(t, identity.ErrInvalidOrExpiredKey, err)

	confirmed, err := mgr.ConfirmVerification(ctx, account, k2)
	assert.NoError(t, err)
	assert.True(t, confirmed.MailVerified)
}

func TestManagerConfirmVerification(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw", "Ann")
	assert.NoError(t, err)

	key := account.ActivationKey

	confirmed, err := mgr.ConfirmVerification(ctx, account, key)
	assert.NoError(t, err)
	assert.True(t, confirmed.MailVerified)
	assert.Empty(t, confirmed.ActivationKey)
	assert.Nil(t, confirmed.KeyExpiresAt)

	// the key was cleared on success, a replay must fail
	_, err = mgr.ConfirmVerification(ctx, account, key)
	assert.Equal(t, identity.ErrInvalidOrExpiredKey, err)

	assert.Contains(t, fx.sink.Types(), identity.ActivityEventMailVerified)
}

func TestManagerConfirmVerificationWrongKey(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw", "Ann")
	assert.NoError(t, err)

	for _, key := range []string{"", "bogus-key"} {
		_, err = mgr.ConfirmVerification(ctx, account, key)
		assert.Equal(t, identity.ErrInvalidOrExpiredKey, err)
	}

	// no mutation on failure
	stored, err := fx.store.GetByEmail(ctx, "ann@example.com")
	assert.NoError(t, err)
	assert.False(t, stored.MailVerified)
	assert.Equal(t, account.ActivationKey, stored.ActivationKey)
}

func TestManagerConfirmVerificationExpiredKey(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw", "Ann")
	assert.NoError(t, err)

	// move past the 7 day window
	*fx.clock = testClockBase.Add(7*24*time.Hour + time.Minute)

	_, err = mgr.ConfirmVerification(ctx, account, account.ActivationKey)
	assert.Equal(t, identity.ErrInvalidOrExpiredKey, err)

	stored, err := fx.store.GetByEmail(ctx, "ann@example.com")
	assert.NoError(t, err)
	assert.False(t, stored.MailVerified)
}

func TestManagerConfirmVerificationAtBoundary(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw", "Ann")
	assert.NoError(t, err)

	// the key is still valid at the exact expiry instant
	*fx.clock = testClockBase.Add(7 * 24 * time.Hour)

	confirmed, err := mgr.ConfirmVerification(ctx, account, account.ActivationKey)
	assert.NoError(t, err)
	assert.True(t, confirmed.MailVerified)
}

func TestManagerSetPassword(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw-old", "Ann")
	assert.NoError(t, err)

	updated, err := mgr.SetPassword(ctx, account, "pw-new")
	assert.NoError(t, err)

	assert.Error(t, identity.ComparePasswordAndHash("pw-old", updated.PasswordHash))
	assert.NoError(t, identity.ComparePasswordAndHash("pw-new", updated.PasswordHash))
}

func TestManagerResetPassword(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw-old", "Ann")
	assert.NoError(t, err)

	updated, err := mgr.ResetPassword(ctx, account)
	assert.NoError(t, err)

	msg, ok := fx.outbox.Last()
	assert.True(t, ok)
	assert.Equal(t, identity.ResetMailSubject, msg.Subject)
	assert.Equal(t, "ann@example.com", msg.To)

	temp := extractTempPassword(t, msg.Body)
	assert.Len(t, temp, identity.TempPasswordLength)

	// old plaintext no longer verifies, the mailed one does
	assert.Error(t, identity.ComparePasswordAndHash("pw-old", updated.PasswordHash))
	assert.NoError(t, identity.ComparePasswordAndHash(temp, updated.PasswordHash))

	assert.Contains(t, fx.sink.Types(), identity.ActivityEventPasswordReset)
}

// The temporary password is deliberately a regular credential: nothing
// expires it and nothing forces a single use. Inherited behavior, kept
// until the requirement owner decides otherwise.
func TestManagerResetPasswordTemporaryPasswordKeepsWorking(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw-old", "Ann")
	assert.NoError(t, err)

	updated, err := mgr.ResetPassword(ctx, account)
	assert.NoError(t, err)

	msg, _ := fx.outbox.Last()
	temp := extractTempPassword(t, msg.Body)

	*fx.clock = testClockBase.Add(30 * 24 * time.Hour)
	assert.NoError(t, identity.ComparePasswordAndHash(temp, updated.PasswordHash))
}

func TestManagerDispatchFailureDoesNotRollBack(t *testing.T) {
	fx := &managerFixture{store: newFakeAccountStore(), sink: &captureSink{}}
	now := testClockBase
	fx.clock = &now

	mgr := identity.NewManager(fx.store, identity.DefaultConfig()).
		WithMailer(failingMailer{err: errors.New("smtp down")}).
		WithActivitySink(fx.sink).
		WithClock(func() time.Time { return *fx.clock })

	ctx := context.Background()

	account, err := mgr.Create(ctx, "ann@example.com", "pw", "Ann")
	assert.True(t, identity.IsDispatchFailure(err))
	assert.NotNil(t, account, "account is returned alongside the dispatch failure")

	// the mutation persisted even though the mail bounced
	stored, err2 := fx.store.GetByEmail(ctx, "ann@example.com")
	assert.NoError(t, err2)
	assert.Len(t, stored.ActivationKey, identity.ActivationKeyLength)

	updated, err := mgr.ResetPassword(ctx, stored)
	assert.True(t, identity.IsDispatchFailure(err))
	assert.NotNil(t, updated)
	assert.Error(t, identity.ComparePasswordAndHash("pw", updated.PasswordHash))
}

func TestManagerConcurrentCreateSameEmail(t *testing.T) {
	mgr, fx := newTestManager(t)
	ctx := context.Background()

	const workers = 8

	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := mgr.Create(ctx, "race@example.com", "pw", "Racer")
			errs <- err
		}()
	}

	var created, duplicates int
	for i := 0; i < workers; i++ {
		err := <-errs
		switch {
		case err == nil:
			created++
		case errors.Is(err, identity.ErrDuplicateEmail) || err == identity.ErrDuplicateEmail:
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, created, "exactly one registration wins")
	assert.Equal(t, workers-1, duplicates)

	stored, err := fx.store.GetByEmail(ctx, "race@example.com")
	assert.NoError(t, err)
	assert.NotNil(t, stored)
}

func extractTempPassword(t *testing.T, body string) string {
	t.Helper()

	const prefix = "Here is your new temporary password: "
	assert.True(t, strings.HasPrefix(body, prefix), "unexpected mail body: %s", body)

	rest := strings.TrimPrefix(body, prefix)
	end := strings.Index(rest, ".")
	assert.Greater(t, end, 0)

	return rest[:end]
}
