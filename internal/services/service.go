// Package services routes decoded client messages to the named services
// and implements the manageServer control protocol.
package services

import (
	"errors"

	"wschat/internal/models"
	"wschat/pkg/logger"
)

// Conn is the part of a client connection services use.
type Conn interface {
	ID() string
	RemoteIP() string
	SendJSON(v interface{}) error
}

type Service interface {
	Name() string
	// Process handles one envelope addressed to the service.
	Process(conn Conn, env *models.Envelope)
	// Disconnect releases everything the service holds for conn.
	Disconnect(conn Conn)
}

// Factory builds a service when it is enabled.
type Factory func() Service

const UnknownActionText = "Unknown action"

// Send writes a response and logs delivery failures.
func Send(conn Conn, resp models.Response) {
	if err := conn.SendJSON(resp); err != nil {
		logger.Debug("Failed to send %s/%s to %s: %v", resp.Service, resp.Action, conn.ID(), err)
	}
}

// Fail answers action with a failure. Errors outside the known set are
// logged and reported as an internal error.
func Fail(conn Conn, service, action string, err error, known ...error) {
	text := err.Error()
	if !isKnown(err, known) {
		logger.Error("%s/%s failed for %s: %v", service, action, conn.ID(), err)
		text = "Internal error"
	}
	Send(conn, models.Response{
		Service: service,
		Action:  action,
		Success: false,
		Text:    text,
	})
}

func UnknownAction(conn Conn, service, action string) {
	Send(conn, models.Response{
		Service: service,
		Action:  action,
		Success: false,
		Text:    UnknownActionText,
	})
}

var registryErrors = []error{
	ErrValidation,
	ErrAuthenticationFailed,
	ErrAuthorizationFailed,
	ErrAlreadyRunning,
	ErrNotRunning,
	ErrUnknownService,
}

func isKnown(err error, known []error) bool {
	for _, k := range known {
		if errors.Is(err, k) {
			return true
		}
	}
	for _, k := range registryErrors {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
