package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is a closed classification of submission and upstream failures.
// It is produced once at the point an error originates and never re-parsed
// downstream.
type ErrorKind string

const (
	ErrKindNetwork             ErrorKind = "network"
	ErrKindTimeout             ErrorKind = "timeout"
	ErrKindTemporary           ErrorKind = "temporary"
	ErrKindRateLimited         ErrorKind = "rate_limited"
	ErrKindCaptcha             ErrorKind = "captcha"
	ErrKindAuthentication      ErrorKind = "authentication"
	ErrKindInvalidForm         ErrorKind = "invalid_form"
	ErrKindUnsupportedPlatform ErrorKind = "unsupported_platform"
	ErrKindUnknown             ErrorKind = "unknown"
)

// Retryable reports whether the dispatcher may retry a failure of this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindNetwork, ErrKindTimeout, ErrKindTemporary, ErrKindRateLimited:
		return true
	}
	return false
}

// SubmissionError carries a classified failure from an adapter or upstream client.
type SubmissionError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// NewSubmissionError builds a classified error at the point of origin.
func NewSubmissionError(kind ErrorKind, msg string, err error) *SubmissionError {
	return &SubmissionError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the classification from err. Errors produced outside our
// adapter boundary (third-party adapters wrapping raw messages) fall back to
// keyword inspection, once, here.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "captcha"):
		return ErrKindCaptcha
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication"), strings.Contains(msg, "login"):
		return ErrKindAuthentication
	case strings.Contains(msg, "invalid form"), strings.Contains(msg, "validation failed"), strings.Contains(msg, "missing required"):
		return ErrKindInvalidForm
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return ErrKindRateLimited
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ErrKindTimeout
	case strings.Contains(msg, "temporar"):
		return ErrKindTemporary
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"), strings.Contains(msg, "dns"), strings.Contains(msg, "refused"):
		return ErrKindNetwork
	default:
		return ErrKindUnknown
	}
}
