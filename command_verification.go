package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RequestVerificationMessage restarts the verification cycle for an
// address. Any pending key is superseded.
type RequestVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(account *Account)
}

func (e RequestVerificationMessage) Type() string { return "account.verification_request" }

// RequestVerificationHandler re-issues activation keys.
type RequestVerificationHandler struct {
	manager *Manager
}

// NewRequestVerificationHandler creates the handler.
func NewRequestVerificationHandler(manager *Manager) *RequestVerificationHandler {
	return &RequestVerificationHandler{manager: manager}
}

func (h *RequestVerificationHandler) Execute(ctx context.Context, event RequestVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestVerificationHandler) execute(ctx context.Context, event RequestVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.manager.FindByEmail(ctx, event.Email)
	if err != nil {
		// an unknown address is part of the expected flow; do not leak
		// which addresses exist
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification request")
	}

	account, err = h.manager.StartVerification(ctx, account)

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

		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to restart verification")
	}

	return nil
}

// ConfirmVerificationMessage carries a supplied activation key.
type ConfirmVerificationMessage struct {
	Email      string `json:"email"`
	Key        string `json:"key"`
	OnResponse func(account *Account)
}

func (e ConfirmVerificationMessage) Type() string { return "account.verification_confirm" }

// ConfirmVerificationHandler validates activation keys. The lookup and
// the compare-and-set run in one transaction so the supplied key is
// checked against a single consistent read of the account.
type ConfirmVerificationHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewConfirmVerificationHandler creates a handler with sane defaults.
func NewConfirmVerificationHandler(repo RepositoryManager) *ConfirmVerificationHandler {
	return &ConfirmVerificationHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit verification events.
func (h *ConfirmVerificationHandler) WithActivitySink(sink ActivitySink) *ConfirmVerificationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmVerificationHandler) WithLogger(logger Logger) *ConfirmVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ConfirmVerificationHandler) WithClock(clock func() time.Time) *ConfirmVerificationHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ConfirmVerificationHandler) Execute(ctx context.Context, event ConfirmVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification confirm",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmVerificationHandler) execute(ctx context.Context, event ConfirmVerificationMessage) error {
	confirmed := &Account{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			// an unknown address gets the same answer as a wrong key
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return ErrInvalidOrExpiredKey
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification confirm")
		}

		confirmed, err = h.repo.Accounts().ConfirmVerificationTx(ctx, tx, account.ID, event.Key, h.now())
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm verification")
	}

	h.recordActivity(ctx, confirmed)

	if event.OnResponse != nil {
		event.OnResponse(confirmed)
	}

	return nil
}

func (h *ConfirmVerificationHandler) recordActivity(ctx context.Context, account *Account) {
	if account == nil {
		return
	}

	event := ActivityEvent{
		EventType:  ActivityEventMailVerified,
		AccountID:  account.ID.String(),
		Email:      account.Email,
		OccurredAt: h.now(),
	}

	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during verification confirm: %v", err)
	}
}
