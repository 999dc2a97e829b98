package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no censored words loaded")

	ErrInvalidEnvelope      = fmt.Errorf("invalid envelope")
	ErrUnknownAction        = fmt.Errorf("unknown action")
	ErrConversationMismatch = fmt.Errorf("conversation id does not match session")
	ErrSenderMismatch       = fmt.Errorf("sender id does not match authenticated user")
	ErrInvalidMessageType   = fmt.Errorf("invalid message type")
	ErrInvalidID            = fmt.Errorf("invalid identifier")
	ErrContentTooLong       = fmt.Errorf("content too long")
	ErrEmptyMessage         = fmt.Errorf("message has neither content nor file")

	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrConversationExists   = fmt.Errorf("conversation already exists")
	ErrInvalidConversation  = fmt.Errorf("invalid conversation")

	ErrSinkFull   = fmt.Errorf("sink buffer is full")
	ErrSinkClosed = fmt.Errorf("sink is closed")

	ErrInvalidToken    = fmt.Errorf("invalid or expired token")
	ErrMissingToken    = fmt.Errorf("authorization token is missing")
	ErrStorageDisabled = fmt.Errorf("file storage is not configured")
	ErrFileTooLarge    = fmt.Errorf("file too large")
	ErrSearchDisabled  = fmt.Errorf("search index is not configured")

	ErrStoreFailed     = fmt.Errorf("message store failure")
	ErrDirectoryFailed = fmt.Errorf("conversation directory failure")
	ErrPublishFailed   = fmt.Errorf("event could not be published")
)

// Is forwards to the standard library so callers importing this package keep a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// MapToHTTPStatus translates domain errors into HTTP status codes for the REST surface.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConversationExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidConversation),
		errors.Is(err, ErrInvalidMessageType):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrStorageDisabled), errors.Is(err, ErrSearchDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
