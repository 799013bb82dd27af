package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/yourusername/accounts-api/internal/domain/entity"
	"github.com/yourusername/accounts-api/internal/domain/repository"
	"github.com/yourusername/accounts-api/pkg/hash"
)

const (
	defaultCodeTTL = 10 * time.Minute
	minCodeTTL     = 1 * time.Minute
	maxCodeTTL     = 120 * time.Minute
)

// CodeIssuer generates and persists one-time verification codes. Issuing a
// new code supersedes any prior active code for the account in the same
// transaction; the Account row itself is never touched here.
type CodeIssuer struct {
	codeRepo repository.VerificationCodeRepository
	hasher   hash.Hasher
	codeTTL  time.Duration
	now      func() time.Time
}

func NewCodeIssuer(codeRepo repository.VerificationCodeRepository, hasher hash.Hasher, codeTTL time.Duration) (*CodeIssuer, error) {
	if codeRepo == nil {
		return nil, fmt.Errorf("verification code repository is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if codeTTL <= 0 {
		codeTTL = defaultCodeTTL
	}
	if codeTTL < minCodeTTL || codeTTL > maxCodeTTL {
		return nil, fmt.Errorf("code TTL must be between %s and %s, got %s", minCodeTTL, maxCodeTTL, codeTTL)
	}

	return &CodeIssuer{
		codeRepo: codeRepo,
		hasher:   hasher,
		codeTTL:  codeTTL,
		now:      time.Now,
	}, nil
}

// IssueNewActiveCode creates a fresh code for the account and returns the
// plaintext (held only in memory, never persisted) together with the new
// record so the caller can compensate if the follow-up email send fails.
func (i *CodeIssuer) IssueNewActiveCode(accountID uint) (string, *entity.VerificationCode, error) {
	code, err := generateVerificationCode()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	codeHash, err := i.hasher.Hash(code)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash verification code: %w", err)
	}

	now := i.now()
	record := &entity.VerificationCode{
		AccountID:      accountID,
		CodeHash:       codeHash,
		ExpiresAt:      now.Add(i.codeTTL),
		FailedAttempts: 0,
	}
	if err := i.codeRepo.CreateSuperseding(record, now); err != nil {
		return "", nil, fmt.Errorf("failed to create verification record: %w", err)
	}

	return code, record, nil
}

// generateVerificationCode returns a uniformly random fixed-width 6-digit
// decimal code, leading zeros preserved.
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
