package service

// Error is a coded error. Code is safe to expose; Message is for logs.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

// NewError creates a new error
func NewError(code, message string) Error {
	return Error{Code: code, Message: message}
}

var (
	ErrEmptyKey           = NewError("invalid_key", "limiter key is empty")
	ErrCircuitBreakerOpen = NewError("circuit_breaker_open", "counter store circuit breaker is open")
)
