package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxDisplayNameLength is the hard ceiling enforced at the data layer. A
// smaller validation bound can be configured (Config.DisplayNameMaxLength)
// but never a larger one.
const MaxDisplayNameLength = 80

// ActivationKeyLength is the length of mail verification keys.
const ActivationKeyLength = 40

// TempPasswordLength is the length of generated temporary passwords.
const TempPasswordLength = 20

// VerificationState describes where an account sits in the mail
// verification lifecycle. It is derived from the persisted columns,
// never stored on its own.
type VerificationState string

const (
	// VerificationUnverified means no verification cycle has started.
	VerificationUnverified VerificationState = "unverified"
	// VerificationPending means a key was issued and has not expired.
	VerificationPending VerificationState = "pending"
	// VerificationExpired means a key was issued but its window passed.
	VerificationExpired VerificationState = "expired"
	// VerificationVerified means the address was confirmed.
	VerificationVerified VerificationState = "verified"
)

// Account is the authenticatable identity entity. Email is the login
// identifier and is unique across all accounts.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`

	DisplayName string `bun:"display_name" json:"display_name,omitempty"`
	FirstName   string `bun:"first_name,nullzero" json:"first_name,omitempty"`
	LastName    string `bun:"last_name,nullzero" json:"last_name,omitempty"`
	Description string `bun:"description,notnull,default:''" json:"description"`

	IsActive bool `bun:"is_active,notnull" json:"is_active"`
	IsStaff  bool `bun:"is_staff,notnull,default:false" json:"is_staff"`

	MailVerified  bool       `bun:"mail_verified,notnull,default:false" json:"mail_verified"`
	ActivationKey string     `bun:"activation_key" json:"-"`
	KeyExpiresAt  *time.Time `bun:"key_expires_at,nullzero" json:"-"`

	ProfileVisibility ProfileVisibility `bun:"profile_visibility,notnull" json:"profile_visibility,omitempty"`

	// WallID links the account to its wall. The account owns the link,
	// not the wall's lifecycle.
	WallID *uuid.UUID `bun:"wall_id,nullzero,unique" json:"wall_id,omitempty"`

	// Location columns inherited from the location-capable base. Opaque
	// to this package, read and written by the location subsystem.
	Latitude  *float64 `bun:"latitude,nullzero" json:"latitude,omitempty"`
	Longitude *float64 `bun:"longitude,nullzero" json:"longitude,omitempty"`
	Address   string   `bun:"address,nullzero" json:"address,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// FullName returns the name we display for the account.
func (a *Account) FullName() string {
	return a.DisplayName
}

// ShortName returns the short form of the account name.
func (a *Account) ShortName() string {
	return a.DisplayName
}

// HasPendingVerification reports whether a verification key is
// outstanding, expired or not.
func (a *Account) HasPendingVerification() bool {
	return a.ActivationKey != "" && a.KeyExpiresAt != nil
}

// VerificationState derives the verification lifecycle state as of now.
func (a *Account) VerificationState(now time.Time) VerificationState {
	if a.MailVerified {
		return VerificationVerified
	}

	if !a.HasPendingVerification() {
		return VerificationUnverified
	}

	if now.After(*a.KeyExpiresAt) {
		return VerificationExpired
	}

	return VerificationPending
}

// EnsureVisibility applies the default visibility when none was set.
func (a *Account) EnsureVisibility() {
	if a.ProfileVisibility == "" {
		a.ProfileVisibility = VisibilityPrivate
	}
}
