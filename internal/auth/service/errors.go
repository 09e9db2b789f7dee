package service

import "errors"

// Sentinel errors shared by the protocol services. The HTTP layer maps these
// to OAuth-shaped error bodies; everything else surfaces as a server error.
var (
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidRedirectURI = errors.New("invalid_redirect_uri")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrInvalidChallenge   = errors.New("invalid_code_challenge")
	ErrInvalidGrant       = errors.New("invalid_grant")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidCode        = errors.New("invalid_verification_code")
	ErrRequestNotFound    = errors.New("request_not_found")
	ErrRequestNotPending  = errors.New("request_not_pending")
	ErrRequestExpired     = errors.New("request_expired")
)
