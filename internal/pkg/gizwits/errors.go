package gizwits

import (
	"errors"
	"fmt"
)

var (
	ErrTokenInvalid   = errors.New("token invalid or expired")
	ErrUserNotFound   = errors.New("user does not exist")
	ErrWrongPassword  = errors.New("incorrect password")
	ErrDeviceOffline  = errors.New("device offline")
	ErrDeviceNotBound = errors.New("device not bound to this account")
	ErrSessionExpired = errors.New("session expired and re-authentication failed")
	ErrBindingFetch   = errors.New("failed to fetch device bindings")
	ErrUpdateFailed   = errors.New("poll cycle failed")
	ErrTimeout        = errors.New("request timed out")
	ErrConnect        = errors.New("connection failed")
	ErrMalformedFrame = errors.New("malformed socket frame")
)

// Vendor error codes carried in the {"error_code": N} envelope.
const (
	codeTokenInvalid  = 9004
	codeUserNotFound  = 9005
	codeWrongPassword = 9020
	codeDeviceOffline = 9042
)

// APIError is returned for non-2xx responses whose error code has no
// dedicated sentinel.
type APIError struct {
	StatusCode int
	Code       int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d error_code=%d", e.StatusCode, e.Code)
}

func errorForCode(statusCode, code int) error {
	switch code {
	case codeTokenInvalid:
		return ErrTokenInvalid
	case codeUserNotFound:
		return ErrUserNotFound
	case codeWrongPassword:
		return ErrWrongPassword
	case codeDeviceOffline:
		return ErrDeviceOffline
	}
	return &APIError{StatusCode: statusCode, Code: code}
}
