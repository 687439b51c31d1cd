package chat

import (
	"errors"
	"fmt"

	"wschat/internal/models"
	"wschat/internal/services"
)

var (
	ErrValidation           = services.ErrValidation
	ErrAuthenticationFailed = services.ErrAuthenticationFailed
	ErrAuthorizationFailed  = services.ErrAuthorizationFailed

	ErrRoomNotFound     = errors.New("room not found")
	ErrUserNotFound     = errors.New("user not found in this room")
	ErrBanned           = errors.New("you are banned from this room")
	ErrRoomFull         = models.ErrRoomFull
	ErrPseudonymInUse   = errors.New("pseudonym is already in use")
	ErrWrongPassword    = errors.New("wrong room password")
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrNotInRoom        = errors.New("you are not in this room")
	ErrPrivateRoomAuth  = errors.New("a valid room password is required for this private room")
	ErrUnknownRecipient = errors.New("recipient is not in this room")
)

// userErrors are reported to clients as is.
var userErrors = []error{
	ErrRoomNotFound,
	ErrUserNotFound,
	ErrBanned,
	ErrRoomFull,
	ErrPseudonymInUse,
	ErrWrongPassword,
	ErrEmptyMessage,
	ErrNotInRoom,
	ErrPrivateRoomAuth,
	ErrUnknownRecipient,
}

func wrapValidation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
