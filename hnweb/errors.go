package hnweb

import "fmt"

// Code classifies why a tool call failed.
type Code string

const (
	CodeAuthRequired  Code = "AUTH_REQUIRED"
	CodeAuthFailed    Code = "AUTH_FAILED"
	CodeCSRFExpired   Code = "CSRF_EXPIRED"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeNotFound      Code = "NOT_FOUND"
	CodeNetworkError  Code = "NETWORK_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeSubmitFailed  Code = "SUBMIT_FAILED"
	CodeVoteFailed    Code = "VOTE_FAILED"
	CodeCommentFailed Code = "COMMENT_FAILED"
)

// Retryable reports whether the same call may succeed if repeated later.
func (c Code) Retryable() bool {
	switch c {
	case CodeRateLimited, CodeCSRFExpired, CodeNetworkError:
		return true
	}
	return false
}

// Error is a classified write failure. Errors of any other type returned by Client
// are transport faults.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Retryable() bool { return e.Code.Retryable() }

func fail(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
