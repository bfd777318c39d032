package identity

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/mailer"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the settings this package consumes. Values are injected
// explicitly at construction, never read from ambient global state.
type Config struct {
	// FromAddress is the sender identity for outgoing mail.
	FromAddress string `envconfig:"FROM_ADDRESS" default:"noreply@localhost"`

	// DisplayNameMaxLength is the validation bound for display names.
	// The storage ceiling (MaxDisplayNameLength) is a separate, larger
	// hard cap enforced at the data layer.
	DisplayNameMaxLength int `envconfig:"DISPLAY_NAME_MAX_LENGTH" default:"80"`

	// ActivationKeyTTL is how long a verification key stays valid.
	ActivationKeyTTL time.Duration `envconfig:"ACTIVATION_KEY_TTL" default:"168h"`

	// MailgunDomain and MailgunAPIKey configure the production mailer.
	// Leave empty when wiring a custom Mailer.
	MailgunDomain string `envconfig:"MAILGUN_DOMAIN"`
	MailgunAPIKey string `envconfig:"MAILGUN_API_KEY"`
}

// DefaultConfig returns the settings we use when nothing is configured.
func DefaultConfig() Config {
	return Config{
		FromAddress:          "noreply@localhost",
		DisplayNameMaxLength: MaxDisplayNameLength,
		ActivationKeyTTL:     7 * 24 * time.Hour,
	}
}

// LoadConfig reads configuration from IDENTITY_* environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if err := envconfig.Process("identity", &cfg); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load identity configuration")
	}
	return cfg.normalized(), nil
}

// NewMailgunMailer builds the production mailer from the configured
// Mailgun credentials, sending as FromAddress.
func NewMailgunMailer(cfg Config) *mailer.Mailgun {
	return mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.FromAddress)
}

func (c Config) normalized() Config {
	if c.DisplayNameMaxLength <= 0 || c.DisplayNameMaxLength > MaxDisplayNameLength {
		c.DisplayNameMaxLength = MaxDisplayNameLength
	}
	if c.ActivationKeyTTL <= 0 {
		c.ActivationKeyTTL = 7 * 24 * time.Hour
	}
	return c
}
