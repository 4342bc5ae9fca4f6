package api

import (
	"errors"
	"fmt"

	"qna-coin-ledger-go/internal/session"
	"qna-coin-ledger-go/internal/store"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRateLimited        = errors.New("too many attempts")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// UserMessage turns an error from LedgerService into a short message safe to show
// to the person who triggered it.
func UserMessage(err error) string {
	var funds *store.InsufficientFundsError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &funds):
		return fmt.Sprintf("You need %d coins for this, but you have %d.", funds.Required, funds.Current)
	case errors.Is(err, store.ErrInsufficientFunds):
		return "You do not have enough coins for this."
	case errors.Is(err, store.ErrSelfActionForbidden):
		return "You cannot do that to your own account or content."
	case errors.Is(err, store.ErrPermissionDenied):
		return "You do not have permission to do that."
	case errors.Is(err, store.ErrNameTaken):
		return "That name is already taken."
	case errors.Is(err, store.ErrActionInProgress):
		return "That action is already in progress."
	case errors.Is(err, store.ErrConflict):
		return "Someone else changed this at the same time. Please try again."
	case errors.Is(err, store.ErrNetwork):
		return "The server is not responding. Please try again."
	case errors.Is(err, store.ErrNotFound):
		return "That no longer exists."
	case errors.Is(err, store.ErrAlreadyExists):
		return "That already exists."
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please wait and try again."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, session.ErrInvalidSession):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	}
	return "Something went wrong. Please try again."
}
