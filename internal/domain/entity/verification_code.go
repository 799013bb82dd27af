package entity

import "time"

// VerificationCode stores a hashed one-time email verification code.
// A code is "active" while UsedAt is nil; at most one active code is expected
// per account at any time. Codes are soft-invalidated (UsedAt set) on
// consumption, expiry and supersession so the row remains as audit history.
type VerificationCode struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	AccountID      uint       `gorm:"not null;index" json:"account_id"`
	CodeHash       string     `gorm:"size:255;not null" json:"-"`
	ExpiresAt      time.Time  `gorm:"not null;index" json:"expires_at"`
	FailedAttempts int        `gorm:"not null;default:0" json:"failed_attempts"`
	UsedAt         *time.Time `gorm:"index" json:"used_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (VerificationCode) TableName() string {
	return "verification_codes"
}

func (c *VerificationCode) IsUsed() bool {
	return c.UsedAt != nil
}

func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
