package oidcrp

import (
	"errors"
	"fmt"
)

var (
	// ErrTokensExpired means both the access token and the refresh
	// token are spent. User flows must re-authenticate; service
	// accounts recover with a fresh client-credentials exchange.
	ErrTokensExpired = errors.New("oidcrp: access and refresh tokens expired")

	// ErrEntitlementUnavailable means the realm has no authorization
	// services enabled for the client, or the RPT request failed.
	ErrEntitlementUnavailable = errors.New("oidcrp: entitlement unavailable")

	// ErrProfileNotFound is returned by ProfileStore implementations
	// when no profile exists for the (realm, subject) key.
	ErrProfileNotFound = errors.New("oidcrp: profile not found")
)

// GrantExchangeError is a non-2xx response from the token endpoint.
// Body carries the raw response so callers can log the OAuth2 error
// payload.
type GrantExchangeError struct {
	Status int
	Body   string
}

func (e *GrantExchangeError) Error() string {
	return fmt.Sprintf("oidcrp: grant exchange failed with status %d: %s", e.Status, e.Body)
}

// TokenInvalidReason classifies why a token failed validation.
type TokenInvalidReason string

const (
	TokenMalformed        TokenInvalidReason = "malformed"
	TokenBadSignature     TokenInvalidReason = "bad_signature"
	TokenExpired          TokenInvalidReason = "expired"
	TokenIssuerMismatch   TokenInvalidReason = "issuer_mismatch"
	TokenAudienceMismatch TokenInvalidReason = "audience_mismatch"
)

// TokenInvalidError reports a token that failed signature or claim
// validation, with the reason kept machine-readable.
type TokenInvalidError struct {
	Reason TokenInvalidReason
	cause  error
}

func (e *TokenInvalidError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("oidcrp: token invalid (%s): %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("oidcrp: token invalid (%s)", e.Reason)
}

func (e *TokenInvalidError) Unwrap() error { return e.cause }

// ResourceRegistrationError is a non-2xx response from the UMA
// resource-registration endpoint. Not retried; the caller decides.
type ResourceRegistrationError struct {
	Status int
	Body   string
}

func (e *ResourceRegistrationError) Error() string {
	return fmt.Sprintf("oidcrp: resource registration failed with status %d", e.Status)
}

// AuthFailureReason classifies an inbound bearer authentication
// failure for the host's 401 response.
type AuthFailureReason string

const (
	AuthMissingHeader  AuthFailureReason = "missing_header"
	AuthInvalidScheme  AuthFailureReason = "invalid_scheme"
	AuthMalformedToken AuthFailureReason = "malformed_token"
	AuthTokenInvalid   AuthFailureReason = "token_invalid"
)

// AuthError is returned by AuthenticateBearer when the request cannot
// be authenticated.
type AuthError struct {
	Reason AuthFailureReason
	cause  error
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("oidcrp: authentication failed (%s): %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("oidcrp: authentication failed (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.cause }
