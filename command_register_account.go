package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// RegisterAccountMessage carries everything needed to create an account.
type RegisterAccountMessage struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Description string `json:"description"`
	Staff       bool   `json:"staff"`
	UseHashid   bool
	OnResponse  func(account *Account)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// RegisterAccountHandler funnels registrations through the Manager, the
// only account creation path.
type RegisterAccountHandler struct {
	manager *Manager
}

// NewRegisterAccountHandler creates the handler.
func NewRegisterAccountHandler(manager *Manager) *RegisterAccountHandler {
	return &RegisterAccountHandler{manager: manager}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	opts := []AccountOption{
		WithName(event.FirstName, event.LastName),
		WithDescription(event.Description),
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			opts = append(opts, func(a *Account) { a.ID = id })
		}
	}

	var account *Account
	var err error

	if event.Staff {
		account, err = h.manager.CreatePrivileged(ctx, event.Email, event.Password, opts...)
	} else {
		account, err = h.manager.Create(ctx, event.Email, event.Password, event.DisplayName, opts...)
	}

	// the account persisted even when the activation mail bounced; hand
	// it to the caller before surfacing the dispatch failure
	if account != nil && event.OnResponse != nil {
		event.OnResponse(account)
	}

	if err != nil {
		if IsDispatchFailure(err) {
			return err
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration failed")
	}

	return nil
}
