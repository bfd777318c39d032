package identity

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SetAccountPasswordSQL updates the password hash in a single statement.
var SetAccountPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

// StartVerificationSQL unconditionally overwrites any pending key. Once
// the statement commits the previous key can never be accepted again;
// only one key is valid at a time.
var StartVerificationSQL = `UPDATE "accounts" AS "acc"
SET
	"mail_verified" = FALSE,
	"activation_key" = ?,
	"key_expires_at" = ?,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

// ConfirmVerificationSQL is a compare-and-set: the supplied key is matched
// against the persisted key and its expiry in the same statement, so the
// check and the mutation see one consistent row. Zero rows means wrong
// key, expired key, or no pending verification; callers must not learn
// which.
var ConfirmVerificationSQL = `UPDATE "accounts" AS "acc"
SET
	"mail_verified" = TRUE,
	"activation_key" = '',
	"key_expires_at" = NULL,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."activation_key" <> ''
AND (
	"acc"."id" = ?
)
AND (
	"acc"."activation_key" = ?
)
AND (
	"acc"."key_expires_at" >= ?
) RETURNING *;`

// Accounts is the persistence collaborator for Account records. The
// email unique index is enforced here atomically.
type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) (*Account, error)
	SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*Account, error)

	StartVerification(ctx context.Context, id uuid.UUID, key string, expiresAt time.Time) (*Account, error)
	StartVerificationTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string, expiresAt time.Time) (*Account, error)

	ConfirmVerification(ctx context.Context, id uuid.UUID, key string, now time.Time) (*Account, error)
	ConfirmVerificationTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string, now time.Time) (*Account, error)
}

type accounts struct {
	repository.Repository[*Account]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// AccountsOption customizes the repository.
type AccountsOption func(*accounts)

// WithAccountsClock injects a custom clock (useful for tests).
func WithAccountsClock(clock func() time.Time) AccountsOption {
	return func(a *accounts) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewAccountsRepository builds the bun-backed Accounts repository.
func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoAccounts := &accounts{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoAccounts)
		}
	}

	return repoAccounts
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}

	err := tx.NewSelect().Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	return a.CreateTx(ctx, tx, account)
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		// two simultaneous registrations resolve here: exactly one row
		// wins the unique index, the other observes the violation
		if IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return created, nil
}

func (a *accounts) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) (*Account, error) {
	return a.SetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *accounts) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, SetAccountPasswordSQL, passwordHash, a.now(), id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *accounts) StartVerification(ctx context.Context, id uuid.UUID, key string, expiresAt time.Time) (*Account, error) {
	return a.StartVerificationTx(ctx, a.db, id, key, expiresAt)
}

func (a *accounts) StartVerificationTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string, expiresAt time.Time) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, StartVerificationSQL, key, expiresAt, a.now(), id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *accounts) ConfirmVerification(ctx context.Context, id uuid.UUID, key string, now time.Time) (*Account, error) {
	return a.ConfirmVerificationTx(ctx, a.db, id, key, now)
}

func (a *accounts) ConfirmVerificationTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string, now time.Time) (*Account, error) {
	if key == "" {
		return nil, ErrInvalidOrExpiredKey
	}

	res, err := a.Repository.RawTx(ctx, tx, ConfirmVerificationSQL, a.now(), id.String(), key, now)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrInvalidOrExpiredKey
	}

	return res[0], nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)
	record.EnsureVisibility()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// NormalizeEmail folds whitespace and lowercases the domain part of the
// address. The local part is preserved as given.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}

	return email[:at+1] + strings.ToLower(email[at+1:])
}
