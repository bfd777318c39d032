package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// InitializePasswordResetMessage requests a temporary password for an
// address.
type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset" }

// InitializePasswordResetResponse reports the reset outcome. Success is
// true for unknown addresses too so the endpoint cannot be used to probe
// which accounts exist.
type InitializePasswordResetResponse struct {
	Account *Account
	Success bool
}

// InitializePasswordResetHandler issues temporary passwords through the
// Manager's reset flow.
type InitializePasswordResetHandler struct {
	manager *Manager
}

// NewInitializePasswordResetHandler creates the handler.
func NewInitializePasswordResetHandler(manager *Manager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{manager: manager}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.manager.FindByEmail(ctx, event.Email)
	if err != nil {
		// an unknown address is part of the expected flow, not an
		// application error
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			resp.Success = true
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	account, err = h.manager.ResetPassword(ctx, account)

	resp.Account = account
	resp.Success = err == nil || IsDispatchFailure(err)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	if err != nil {
		if IsDispatchFailure(err) {
			return err
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	return nil
}
