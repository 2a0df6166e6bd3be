package myerrors

import (
	"fmt"
	"net/http"
)

type httpErrorCoder interface {
	error
	GetHTTPErrorCode() int
}

type httpError struct {
	httpCode int
	err      error
}

func (e httpError) Error() string {
	return fmt.Sprintf("status: %d, err: %s", e.httpCode, e.err.Error())
}

func (e httpError) GetHTTPErrorCode() int {
	return e.httpCode
}

func (e httpError) Unwrap() error {
	return e.err
}

func newError(httpCode int, err error) *httpError {
	return &httpError{
		httpCode: httpCode,
		err:      err,
	}
}

func NewInvalidInputError(err error) *httpError {
	return newError(http.StatusBadRequest, err)
}

func NewInvalidInputErrorf(format string, args ...interface{}) *httpError {
	return NewInvalidInputError(fmt.Errorf(format, args...))
}

func NewNotFoundError(err error) *httpError {
	return newError(http.StatusNotFound, err)
}

func NewAuthenticationError(err error) *httpError {
	return newError(http.StatusForbidden, err)
}

// NewConflictError indicates that the remote resource has moved on and the
// caller is acting on a stale assumption.
func NewConflictError(err error) *httpError {
	return newError(http.StatusConflict, err)
}

// NewDeclinedError indicates a definitive payment decline. Not retryable
// with the same card.
func NewDeclinedError(err error) *httpError {
	return newError(http.StatusPaymentRequired, err)
}

func NewTooManyRequestsError(err error) *httpError {
	return newError(http.StatusTooManyRequests, err)
}

func NewInternalError(err error) *httpError {
	return newError(http.StatusInternalServerError, err)
}

func NewNotImplementedError(err error) *httpError {
	return newError(http.StatusNotImplemented, err)
}

func NewUnavailableError(err error) *httpError {
	return newError(http.StatusServiceUnavailable, err)
}

func GetHttpStatus(err error) int {
	if err != nil {
		myError, ok := err.(httpErrorCoder)
		if ok {
			return myError.GetHTTPErrorCode()
		}
	}
	return http.StatusInternalServerError
}

func IsInvalidInputError(err error) bool {
	return GetHttpStatus(err) == http.StatusBadRequest
}

func IsNotFoundError(err error) bool {
	return GetHttpStatus(err) == http.StatusNotFound
}

func IsAuthenticationError(err error) bool {
	return GetHttpStatus(err) == http.StatusForbidden
}

func IsConflictError(err error) bool {
	return GetHttpStatus(err) == http.StatusConflict
}

func IsDeclinedError(err error) bool {
	return GetHttpStatus(err) == http.StatusPaymentRequired
}

func IsTooManyRequestsError(err error) bool {
	return GetHttpStatus(err) == http.StatusTooManyRequests
}

// IsRetryable reports whether resubmitting the same, unmodified request can
// succeed. Only network-ish failures qualify.
func IsRetryable(err error) bool {
	status := GetHttpStatus(err)
	return status == http.StatusInternalServerError ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusTooManyRequests
}
