package identity_test

import (
	"context"
	"sync"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// fakeAccountStore is an in-memory AccountStore that mirrors the
// semantics of the bun repository: unique emails, unconditional key
// overwrite, and a compare-and-set confirm.
type fakeAccountStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*identity.Account

	registerErr error
	setPassErr  error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		byID: map[uuid.UUID]*identity.Account{},
	}
}

func cloneAccount(a *identity.Account) *identity.Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.KeyExpiresAt != nil {
		t := *a.KeyExpiresAt
		c.KeyExpiresAt = &t
	}
	return &c
}

func (s *fakeAccountStore) GetByEmail(_ context.Context, email string) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = identity.NormalizeEmail(email)
	for _, a := range s.byID {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}

	return nil, repository.NewRecordNotFound()
}

func (s *fakeAccountStore) Register(_ context.Context, account *identity.Account) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registerErr != nil {
		return nil, s.registerErr
	}

	account = cloneAccount(account)
	account.Email = identity.NormalizeEmail(account.Email)
	account.EnsureVisibility()

	for _, a := range s.byID {
		if a.Email == account.Email {
			return nil, identity.ErrDuplicateEmail
		}
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	s.byID[account.ID] = account
	return cloneAccount(account), nil
}

func (s *fakeAccountStore) SetPassword(_ context.Context, id uuid.UUID, passwordHash string) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setPassErr != nil {
		return nil, s.setPassErr
	}

	account, ok := s.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	account.PasswordHash = passwordHash
	return cloneAccount(account), nil
}

func (s *fakeAccountStore) StartVerification(_ context.Context, id uuid.UUID, key string, expiresAt time.Time) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	account.MailVerified = false
	account.ActivationKey = key
	t := expiresAt
	account.KeyExpiresAt = &t

	return cloneAccount(account), nil
}

func (s *fakeAccountStore) ConfirmVerification(_ context.Context, id uuid.UUID, key string, now time.Time) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok || key == "" || account.ActivationKey == "" ||
		account.ActivationKey != key ||
		account.KeyExpiresAt == nil || account.KeyExpiresAt.Before(now) {
		return nil, identity.ErrInvalidOrExpiredKey
	}

	account.MailVerified = true
	account.ActivationKey = ""
	account.KeyExpiresAt = nil

	return cloneAccount(account), nil
}

var _ identity.AccountStore = (*fakeAccountStore)(nil)

// failingMailer always fails delivery.
type failingMailer struct {
	err error
}

func (m failingMailer) Send(context.Context, string, string, string) error {
	return m.err
}

// captureSink records activity events in order.
type captureSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Types() []identity.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
