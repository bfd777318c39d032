package identity

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Mail copy for the two notification flows.
const (
	VerificationMailSubject = "Verify your mail address"
	ResetMailSubject        = "New password"
)

// AccountStore is the narrow persistence surface the manager needs. The
// bun-backed Accounts repository satisfies it; tests substitute fakes.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Register(ctx context.Context, account *Account) (*Account, error)
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) (*Account, error)
	StartVerification(ctx context.Context, id uuid.UUID, key string, expiresAt time.Time) (*Account, error)
	ConfirmVerification(ctx context.Context, id uuid.UUID, key string, now time.Time) (*Account, error)
}

// AccountOption mutates the account record before it is persisted.
type AccountOption func(*Account)

// WithName sets the optional first and last name.
func WithName(first, last string) AccountOption {
	return func(a *Account) {
		a.FirstName = first
		a.LastName = last
	}
}

// WithDescription sets the profile description.
func WithDescription(description string) AccountOption {
	return func(a *Account) {
		a.Description = description
	}
}

// WithVisibility sets the initial profile visibility.
func WithVisibility(v ProfileVisibility) AccountOption {
	return func(a *Account) {
		a.ProfileVisibility = v
	}
}

// WithWall links the account to an existing wall.
func WithWall(wallID uuid.UUID) AccountOption {
	return func(a *Account) {
		a.WallID = &wallID
	}
}

// WithStaff marks the account as staff.
func WithStaff() AccountOption {
	return func(a *Account) {
		a.IsStaff = true
	}
}

// Manager is the only account creation path and the facade for the
// credential lifecycle: create, verification, password set and reset.
type Manager struct {
	store    AccountStore
	config   Config
	mailer   Mailer
	keygen   KeyGenerator
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewManager builds a Manager with sane defaults; wire collaborators with
// the With* chainers.
func NewManager(store AccountStore, config Config) *Manager {
	return &Manager{
		store:    store,
		config:   config.normalized(),
		mailer:   MailerFunc(nil),
		keygen:   RandomKeyGenerator{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithMailer sets the outbound mail collaborator.
func (m *Manager) WithMailer(mailer Mailer) *Manager {
	if mailer != nil {
		m.mailer = mailer
	}
	return m
}

// WithLogger overrides the logger used by the manager.
func (m *Manager) WithLogger(logger Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithActivitySink sets the sink used to emit account lifecycle events.
func (m *Manager) WithActivitySink(sink ActivitySink) *Manager {
	m.activity = normalizeActivitySink(sink)
	return m
}

// WithKeyGenerator overrides the secret source (useful for tests).
func (m *Manager) WithKeyGenerator(keygen KeyGenerator) *Manager {
	if keygen != nil {
		m.keygen = keygen
	}
	return m
}

// WithClock injects a custom clock (useful for tests).
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	if clock != nil {
		m.now = clock
	}
	return m
}

// Create registers a new account: email validated and normalized,
// password hashed, record persisted, verification cycle started and the
// activation mail dispatched. A mail delivery failure does not roll back
// the persisted account; it surfaces as a DispatchError next to the
// created record so the caller can apply its retry policy.
func (m *Manager) Create(ctx context.Context, email, password, displayName string, opts ...AccountOption) (*Account, error) {
	return m.create(ctx, email, password, displayName, false, opts...)
}

// CreatePrivileged registers a staff account. It walks the exact same
// validation, password and verification path as Create; privilege does
// not bypass the verification mail.
func (m *Manager) CreatePrivileged(ctx context.Context, email, password string, opts ...AccountOption) (*Account, error) {
	return m.create(ctx, email, password, "", true, opts...)
}

func (m *Manager) create(ctx context.Context, email, password, displayName string, staff bool, opts ...AccountOption) (*Account, error) {
	email, err := m.validateEmail(email)
	if err != nil {
		return nil, err
	}

	if err := m.validateDisplayName(displayName); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		IsActive:     true,
		IsStaff:      staff,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(account)
		}
	}

	created, err := m.store.Register(ctx, account)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist account")
	}

	m.recordActivity(ctx, ActivityEventAccountCreated, created, nil)

	return m.StartVerification(ctx, created)
}

// StartVerification issues a fresh activation key, sets its expiry, and
// clears the verified flag. Any previously pending key becomes invalid
// the moment the write commits; only one key is valid at a time. The
// key is then mailed to the account's address.
func (m *Manager) StartVerification(ctx context.Context, account *Account) (*Account, error) {
	key, err := m.keygen.Generate(ActivationKeyLength)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate activation key")
	}

	expiresAt := m.now().Add(m.config.ActivationKeyTTL)

	updated, err := m.store.StartVerification(ctx, account.ID, key, expiresAt)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist verification key")
	}

	m.recordActivity(ctx, ActivityEventVerificationRequested, updated, nil)

	body := fmt.Sprintf(
		"Here is your activation key: %s. It will be valid for %s.",
		updated.ActivationKey,
		formatKeyTTL(m.config.ActivationKeyTTL),
	)

	return updated, m.dispatch(ctx, updated.Email, VerificationMailSubject, body)
}

// ConfirmVerification checks the supplied key against the persisted key
// and expiry in a single consistent step. On success the address is
// marked verified and the key is cleared, so a repeated confirm with the
// same key fails. Wrong key, expired key, and no pending verification
// are indistinguishable to the caller.
func (m *Manager) ConfirmVerification(ctx context.Context, account *Account, suppliedKey string) (*Account, error) {
	updated, err := m.store.ConfirmVerification(ctx, account.ID, suppliedKey, m.now())
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm verification")
	}

	m.recordActivity(ctx, ActivityEventMailVerified, updated, nil)

	return updated, nil
}

// SetPassword hashes the plaintext and persists it.
func (m *Manager) SetPassword(ctx context.Context, account *Account, plaintext string) (*Account, error) {
	hash, err := HashPassword(plaintext)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	updated, err := m.store.SetPassword(ctx, account.ID, hash)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist password")
	}

	m.recordActivity(ctx, ActivityEventPasswordChanged, updated, nil)

	return updated, nil
}

// ResetPassword replaces the account password with a generated temporary
// one and mails the plaintext to the account address. The temporary
// password has no forced expiry and is not technically single use; that
// is inherited behavior, kept deliberately until the requirement owner
// decides otherwise.
func (m *Manager) ResetPassword(ctx context.Context, account *Account) (*Account, error) {
	temp, err := m.keygen.Generate(TempPasswordLength)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate temporary password")
	}

	updated, err := m.SetPassword(ctx, account, temp)
	if err != nil {
		return nil, err
	}

	m.recordActivity(ctx, ActivityEventPasswordReset, updated, nil)

	body := fmt.Sprintf(
		"Here is your new temporary password: %s. You can use it to login. Please change it soon.",
		temp,
	)

	return updated, m.dispatch(ctx, updated.Email, ResetMailSubject, body)
}

// FindByEmail looks up an account by its normalized address.
func (m *Manager) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return m.store.GetByEmail(ctx, email)
}

func (m *Manager) validateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (m *Manager) validateDisplayName(displayName string) error {
	max := m.config.DisplayNameMaxLength
	if max <= 0 || max > MaxDisplayNameLength {
		max = MaxDisplayNameLength
	}

	if err := validation.Validate(displayName, validation.RuneLength(0, max)); err != nil {
		return goerrors.New("display name exceeds the configured length", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"max_length": max})
	}

	return nil
}

// dispatch sends mail after the state change committed. Failures are
// wrapped so callers can tell a delivery problem from a persistence one.
func (m *Manager) dispatch(ctx context.Context, to, subject, body string) error {
	if err := m.mailer.Send(ctx, to, subject, body); err != nil {
		m.logger.Warn("mail dispatch to %s failed (%s): %v", to, subject, err)
		return NewDispatchError(to, err)
	}
	return nil
}

func (m *Manager) recordActivity(ctx context.Context, eventType ActivityEventType, account *Account, metadata map[string]any) {
	if account == nil {
		return
	}

	event := ActivityEvent{
		EventType:  eventType,
		AccountID:  account.ID.String(),
		Email:      account.Email,
		Metadata:   metadata,
		OccurredAt: m.now(),
	}

	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink error: %v", err)
	}
}

func formatKeyTTL(ttl time.Duration) string {
	days := int(ttl.Hours() / 24)
	if days >= 1 && time.Duration(days)*24*time.Hour == ttl {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return ttl.String()
}
