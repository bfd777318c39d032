package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// AccountFinder is the lookup surface the authentication service needs.
type AccountFinder interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

// AuthenticationService checks a password against the stored hash and
// gates on is_active. It replaces any framework-provided base auth
// class; there is no implicit field injection anywhere.
type AuthenticationService struct {
	store    AccountFinder
	activity ActivitySink
	logger   Logger
}

// NewAuthenticationService will create a new AuthenticationService
func NewAuthenticationService(store AccountFinder) *AuthenticationService {
	return &AuthenticationService{
		store:    store,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the service.
func (s *AuthenticationService) WithLogger(logger Logger) *AuthenticationService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink sets the sink used to emit login events.
func (s *AuthenticationService) WithActivitySink(sink ActivitySink) *AuthenticationService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// VerifyIdentity will find the account, compare the password, and return
// the identity. Unknown addresses and wrong passwords both come back as
// ErrMismatchedHashAndPassword so callers cannot enumerate accounts.
func (s *AuthenticationService) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	account, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		s.recordLogin(ctx, ActivityEventLoginFailure, account)
		return nil, ErrMismatchedHashAndPassword
	}

	if !account.IsActive {
		s.recordLogin(ctx, ActivityEventLoginFailure, account)
		return nil, ErrAccountInactive
	}

	s.recordLogin(ctx, ActivityEventLoginSuccess, account)

	return accountIdentity{
		id:          account.ID.String(),
		email:       account.Email,
		displayName: account.DisplayName,
		staff:       account.IsStaff,
	}, nil
}

func (s *AuthenticationService) recordLogin(ctx context.Context, eventType ActivityEventType, account *Account) {
	event := ActivityEvent{
		EventType:  eventType,
		AccountID:  account.ID.String(),
		Email:      account.Email,
		OccurredAt: time.Now(),
	}

	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error during login: %v", err)
	}
}

type accountIdentity struct {
	id          string
	email       string
	displayName string
	staff       bool
}

func (a accountIdentity) ID() string {
	return a.id
}

func (a accountIdentity) Email() string {
	return a.email
}

func (a accountIdentity) DisplayName() string {
	return a.displayName
}

func (a accountIdentity) Staff() bool {
	return a.staff
}

var _ Identity = accountIdentity{}
