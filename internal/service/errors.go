package service

import (
	"errors"
	"fmt"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPeer     = errors.New("invalid peer")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
)

// classify maps storage and model errors onto the service taxonomy. Errors
// that already belong to the taxonomy pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidPeer),
		errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInternal):
		return err
	case errors.Is(err, repositories.ErrChatNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrDialogNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repositories.ErrSelfChat), errors.Is(err, models.ErrInvalidPeer):
		return fmt.Errorf("%w: %v", ErrInvalidPeer, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}
