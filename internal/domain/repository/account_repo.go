package repository

import "github.com/yourusername/accounts-api/internal/domain/entity"

// AccountRepository persists accounts. Create must surface a unique-email
// violation as apperrors.ErrConflict: the database constraint, not a prior
// existence check, is the authoritative conflict signal under concurrent
// registration of the same address.
type AccountRepository interface {
	Create(account *entity.Account) error
	GetByID(id uint) (*entity.Account, error)
	GetByEmail(email string) (*entity.Account, error)

	// DeleteWithCodes hard-deletes the account together with all of its
	// verification codes in one transaction. Used only as the compensating
	// action when the first verification email for a brand-new signup
	// cannot be sent.
	DeleteWithCodes(accountID uint) error
}
