package service

import "errors"

// Auth flow domain errors. Expected and recoverable by the caller; handlers
// map them to stable error_type values. Infrastructure failures are never
// surfaced through these.
var (
	ErrEmailTaken         = errors.New("email_taken")
	ErrAccountNotFound    = errors.New("account_not_found")
	ErrAlreadyVerified    = errors.New("already_verified")
	ErrNoActiveCode       = errors.New("no_active_code")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
	ErrCodeExpired        = errors.New("code_expired")
	ErrWrongCode          = errors.New("wrong_code")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrNotVerified        = errors.New("not_verified")
	ErrResendCooldown     = errors.New("resend_cooldown")
)
