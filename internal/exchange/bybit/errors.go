package bybit

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a Bybit API error with its return code
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit error codes
const (
	ErrCodeInvalidAPIKey     = 10003
	ErrCodeInvalidSignature  = 10004
	ErrCodeInvalidTimestamp  = 10005
	ErrCodeRateLimitExceeded = 10006
	ErrCodeOrderNotFound     = 110001
	ErrCodeSymbolNotFound    = 110009
	ErrCodeInvalidPrice      = 110021
	ErrCodeMarketClosed      = 110043
)

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrCodeRateLimitExceeded,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	// Network and transport errors are retryable
	return true
}
