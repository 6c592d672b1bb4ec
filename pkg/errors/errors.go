package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

var (
	ErrNotFound     = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation   = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal     = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrConflict     = NewError("CONFLICT", "resource conflict", http.StatusConflict)
	ErrTooLarge     = NewError("PAYLOAD_TOO_LARGE", "payload too large", http.StatusRequestEntityTooLarge)
	ErrTimeout      = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout)
	ErrUnavailable  = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
	ErrInvalidEvent = NewError("INVALID_EVENT", "event could not be decoded", http.StatusUnprocessableEntity)

	// Delivery pipeline taxonomy.
	ErrStorageUnavailable   = NewError("STORAGE_UNAVAILABLE", "blob store unavailable", http.StatusServiceUnavailable)
	ErrWriteFailed          = NewError("WRITE_FAILED", "blob write rejected", http.StatusBadGateway)
	ErrBlobNotFound         = NewError("BLOB_NOT_FOUND", "blob not found", http.StatusNotFound)
	ErrPublishFailed        = NewError("PUBLISH_FAILED", "event publish failed", http.StatusServiceUnavailable)
	ErrRecordNotFound       = NewError("RECORD_NOT_FOUND", "message record not found", http.StatusNotFound)
	ErrOutOfOrderTransition = NewError("OUT_OF_ORDER_TRANSITION", "status transition rejected", http.StatusConflict)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so sentinel comparisons survive WithCause/WithDetail copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	switch e.Code {
	case ErrValidation.Code, ErrNotFound.Code, ErrInvalidEvent.Code, ErrOutOfOrderTransition.Code, ErrConflict.Code:
		return false
	}
	return true
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) WithMessage(msg string) *Error {
	return e.WithDetail("message", msg)
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool       { return hasCode(err, ErrNotFound.Code) }
func IsValidation(err error) bool     { return hasCode(err, ErrValidation.Code) }
func IsConflict(err error) bool       { return hasCode(err, ErrConflict.Code) }
func IsRecordNotFound(err error) bool { return hasCode(err, ErrRecordNotFound.Code) }
func IsOutOfOrder(err error) bool     { return hasCode(err, ErrOutOfOrderTransition.Code) }
func IsBlobNotFound(err error) bool   { return hasCode(err, ErrBlobNotFound.Code) }
func IsWriteFailed(err error) bool    { return hasCode(err, ErrWriteFailed.Code) }

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func ToErrorResponse(err error) ErrorResponse {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	msg := appErr.Message
	details := make(map[string]interface{}, len(appErr.Details))
	for k, v := range appErr.Details {
		if k == "message" {
			if s, ok := v.(string); ok && s != "" {
				msg = s
			}
			continue
		}
		details[k] = v
	}

	resp := ErrorResponse{Error: msg, ErrorCode: appErr.Code}
	if len(details) > 0 {
		resp.Details = details
	}
	return resp
}

// RecoverPanic turns a value recovered from a handler panic into a fatal
// INTERNAL_ERROR so the consumer parks the message instead of retrying it.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}
	return ErrInternal.
		WithCause(cause).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}
