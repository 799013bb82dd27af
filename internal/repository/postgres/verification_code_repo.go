package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/accounts-api/internal/domain/entity"
	apperrors "github.com/yourusername/accounts-api/internal/pkg/errors"
)

// VerificationCodeRepo implements repository.VerificationCodeRepository.
type VerificationCodeRepo struct {
	db *gorm.DB
}

func NewVerificationCodeRepo(db *gorm.DB) *VerificationCodeRepo {
	return &VerificationCodeRepo{db: db}
}

// CreateSuperseding soft-invalidates every active code of the account and
// inserts the new record in a single transaction, so at most one active code
// exists per account at any observation point.
func (r *VerificationCodeRepo) CreateSuperseding(code *entity.VerificationCode, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.VerificationCode{}).
			Where("account_id = ? AND used_at IS NULL", code.AccountID).
			Update("used_at", now).Error; err != nil {
			return fmt.Errorf("failed to supersede active codes: %w", err)
		}
		return tx.Create(code).Error
	})
}

func (r *VerificationCodeRepo) GetLatestActiveByAccountID(accountID uint) (*entity.VerificationCode, error) {
	var code entity.VerificationCode
	err := r.db.
		Where("account_id = ? AND used_at IS NULL", accountID).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest active verification code: %w", err)
	}
	return &code, nil
}

func (r *VerificationCodeRepo) IncrementFailedAttempts(id uint) error {
	return r.db.Model(&entity.VerificationCode{}).
		Where("id = ?", id).
		Update("failed_attempts", gorm.Expr("failed_attempts + 1")).Error
}

func (r *VerificationCodeRepo) MarkUsed(id uint, usedAt time.Time) error {
	return r.db.Model(&entity.VerificationCode{}).
		Where("id = ?", id).
		Update("used_at", usedAt).Error
}

// ConsumeAndVerify marks the code as used and sets the account's verified_at
// atomically. Both writes succeed or neither does.
func (r *VerificationCodeRepo) ConsumeAndVerify(codeID, accountID uint, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.VerificationCode{}).
			Where("id = ? AND used_at IS NULL", codeID).
			Update("used_at", now).Error; err != nil {
			return err
		}
		return tx.Model(&entity.Account{}).
			Where("id = ? AND verified_at IS NULL", accountID).
			Updates(map[string]interface{}{
				"verified_at": now,
				"updated_at":  now,
			}).Error
	})
}
