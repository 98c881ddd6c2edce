package domain

import "errors"

var (
	ErrTokenNotFound      = errors.New("token_not_found")
	ErrTokenAlreadyUsed   = errors.New("token_already_used")
	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenVoided        = errors.New("token_voided")
	ErrTokenOrderMismatch = errors.New("token_order_mismatch")
	ErrInvalidRequest     = errors.New("invalid_request")
)
