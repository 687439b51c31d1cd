package services

import "errors"

var (
	ErrValidation           = errors.New("invalid request")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAuthorizationFailed  = errors.New("you do not have the right to do this")
	ErrAlreadyRunning       = errors.New("service is already running")
	ErrNotRunning           = errors.New("service is not running")
	ErrUnknownService       = errors.New("unknown service")
	ErrInternal             = errors.New("internal error")
)
