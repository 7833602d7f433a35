package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewConnectionError creates a transport connection error. Connection
// failures are transient: the conversation stays usable for composing.
func NewConnectionError(err error, message string) *AppError {
	return WrapRetryable(err, ErrCodeConnection, message).
		WithUserMessage("Connection lost, trying to reconnect")
}

// NewSendTimeoutError creates the error recorded when no ack or error frame
// arrived for a message before its deadline
func NewSendTimeoutError(localKey string, timeout string) *AppError {
	return New(ErrCodeSendTimeout, fmt.Sprintf("no delivery confirmation within %s", timeout)).
		WithContext("local_key", localKey).
		WithContext("timeout", timeout).
		WithUserMessage("Message not delivered, tap to retry")
}

// NewDeliveryError creates an error for a server-reported send failure
func NewDeliveryError(localKey, reason string) *AppError {
	return New(ErrCodeDeliveryFailed, "server rejected message").
		WithContext("local_key", localKey).
		WithContext("reason", reason).
		WithUserMessage(reason)
}

// NewHistoryLoadError wraps a failed history fetch; callers treat it as
// non-fatal and proceed with whatever history loaded
func NewHistoryLoadError(err error) *AppError {
	return WrapRetryable(err, ErrCodeHistoryLoad, "failed to load conversation history").
		WithUserMessage("Could not load earlier messages")
}

// NewDuplicateKeyError reports a store insert whose key is already present
func NewDuplicateKeyError(keyKind, key string) *AppError {
	return New(ErrCodeDuplicateKey, fmt.Sprintf("%s already present in store", keyKind)).
		WithContext(keyKind, key)
}

// NewNotFoundError reports a store update against a missing entry
func NewNotFoundError(keyKind, key string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("no entry for %s", keyKind)).
		WithContext(keyKind, key)
}
