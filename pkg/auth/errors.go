package auth

import (
	"errors"
	"fmt"
)

// SigningError reports a key or claim-construction failure. It is never
// transient: retrying the same call fails the same way.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signing error: %s", e.Op)
	}
	return fmt.Sprintf("signing error: %s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// Reasons a token is refused. Match with errors.Is against a *VerificationError.
var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformedClaims  = errors.New("malformed token claims")
	ErrURIMismatch      = errors.New("token uri does not match request path")
	ErrSubjectMismatch  = errors.New("token subject does not match api key")
	ErrBodyHashMismatch = errors.New("token bodyHash does not match request body")
	ErrInvalidLifetime  = errors.New("token lifetime is out of bounds")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not valid yet")
	ErrMissingNonce     = errors.New("token has no nonce")
	ErrNonceReplayed    = errors.New("token nonce has already been used")
)

// VerificationError carries the reason a token was refused plus, when one
// exists, the underlying cause.
type VerificationError struct {
	Reason error
	Detail string
	Err    error
}

func (e *VerificationError) Error() string {
	msg := "token verification failed: " + e.Reason.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

func refuse(reason error, detail string) *VerificationError {
	return &VerificationError{Reason: reason, Detail: detail}
}
