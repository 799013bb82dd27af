package repository

import (
	"time"

	"github.com/yourusername/accounts-api/internal/domain/entity"
)

// VerificationCodeRepository persists one-time verification codes.
type VerificationCodeRepository interface {
	// CreateSuperseding marks every active code of code.AccountID as used
	// (used_at = now) and inserts the new record, all in one transaction,
	// preserving the at-most-one-active invariant.
	CreateSuperseding(code *entity.VerificationCode, now time.Time) error

	// GetLatestActiveByAccountID returns the most recently created code with
	// used_at IS NULL, or apperrors.ErrNotFound. Ordering by creation time
	// tolerates the (buggy) case of more than one active row.
	GetLatestActiveByAccountID(accountID uint) (*entity.VerificationCode, error)

	IncrementFailedAttempts(id uint) error

	// MarkUsed soft-invalidates a single code.
	MarkUsed(id uint, usedAt time.Time) error

	// ConsumeAndVerify soft-invalidates the code and sets the account's
	// verified_at in a single all-or-nothing transaction.
	ConsumeAndVerify(codeID, accountID uint, now time.Time) error
}
