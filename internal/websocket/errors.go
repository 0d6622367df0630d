package websocket

import "errors"

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnknownConnection    = errors.New("unknown connection")
	ErrAccessDenied         = errors.New("access denied")
	ErrValidation           = errors.New("validation error")
	ErrPersistence          = errors.New("persistence error")
	ErrDuplicateConnection  = errors.New("duplicate connection")
	ErrInvalidMessage       = errors.New("invalid message format")
)

// ErrorKind is the wire name for an error sent back to a connection.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrDuplicateConnection):
		return "duplicate_connection"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	default:
		return "internal_error"
	}
}
