package entity

import "time"

// Account is a registered user account. VerifiedAt is nil until the owner
// confirms the address with a verification code; once set it is never cleared.
type Account struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"size:100;not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	VerifiedAt   *time.Time `gorm:"type:timestamp;index" json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// IsVerified reports whether the account has completed email verification.
func (a *Account) IsVerified() bool {
	return a.VerifiedAt != nil
}

// Identity is the minimal account view returned after a successful login.
type Identity struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// Identity strips the account down to what the caller may see.
func (a *Account) Identity() Identity {
	return Identity{
		ID:       a.ID,
		Email:    a.Email,
		Verified: a.IsVerified(),
	}
}
