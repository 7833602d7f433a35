package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	err := New(ErrCodeSendTimeout, "no confirmation")
	assert.Equal(t, "SEND_TIMEOUT: no confirmation", err.Error())

	wrapped := Wrap(fmt.Errorf("boom"), ErrCodeConnection, "dial failed")
	assert.Equal(t, "CONNECTION: dial failed: boom", wrapped.Error())
	assert.Equal(t, "boom", wrapped.Unwrap().Error())
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(fmt.Errorf("x"), ErrCodeConnection, "dropped")))
	assert.False(t, IsRetryable(New(ErrCodeInvalidInput, "empty content")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeDuplicateKey, GetCode(NewDuplicateKeyError("localKey", "k1")))
	assert.Equal(t, ErrCodeNotFound, GetCode(NewNotFoundError("localKey", "k1")))
	assert.Equal(t, ErrCodeInternalError, GetCode(fmt.Errorf("plain error")))
}

func TestUserMessages(t *testing.T) {
	err := NewDeliveryError("k1", "recipient blocked you")
	assert.Equal(t, "recipient blocked you", GetUserMessage(err))

	assert.Equal(t, "An internal error occurred", GetUserMessage(fmt.Errorf("plain")))
}

func TestHelperCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"connection", NewConnectionError(fmt.Errorf("refused"), "dial failed"), ErrCodeConnection},
		{"send timeout", NewSendTimeoutError("k1", "10s"), ErrCodeSendTimeout},
		{"delivery", NewDeliveryError("k1", "blocked"), ErrCodeDeliveryFailed},
		{"history", NewHistoryLoadError(fmt.Errorf("502")), ErrCodeHistoryLoad},
		{"validation", NewValidationError("content", "empty"), ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}
