package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/accounts-api/internal/domain/entity"
	"github.com/yourusername/accounts-api/internal/domain/repository"
	apperrors "github.com/yourusername/accounts-api/internal/pkg/errors"
	"github.com/yourusername/accounts-api/pkg/hash"
)

const (
	defaultMaxAttempts     = 5
	minMaxAttempts         = 1
	maxMaxAttempts         = 20
	defaultResendCooldown  = 60 * time.Second
	defaultMailSendTimeout = 10 * time.Second
)

// AuthService orchestrates registration, code resend, code verification and
// login. It owns the business invariants and the compensating actions that
// undo partial state when the verification email cannot be sent.
type AuthService struct {
	accountRepo     repository.AccountRepository
	codeRepo        repository.VerificationCodeRepository
	cacheRepo       repository.CacheRepository // optional resend throttle
	issuer          *CodeIssuer
	mail            MailSender
	hasher          hash.Hasher
	maxAttempts     int
	resendCooldown  time.Duration
	mailSendTimeout time.Duration
	now             func() time.Time
}

func NewAuthService(
	accountRepo repository.AccountRepository,
	codeRepo repository.VerificationCodeRepository,
	cacheRepo repository.CacheRepository,
	issuer *CodeIssuer,
	mail MailSender,
	hasher hash.Hasher,
	maxAttempts int,
	resendCooldown time.Duration,
	mailSendTimeout time.Duration,
) (*AuthService, error) {
	if accountRepo == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if codeRepo == nil {
		return nil, fmt.Errorf("verification code repository is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("code issuer is required")
	}
	if mail == nil {
		return nil, fmt.Errorf("mail sender is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	// cacheRepo may be nil: the cooldown throttle then stays disabled.
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	if maxAttempts < minMaxAttempts || maxAttempts > maxMaxAttempts {
		return nil, fmt.Errorf("max attempts must be between %d and %d, got %d", minMaxAttempts, maxMaxAttempts, maxAttempts)
	}
	if resendCooldown <= 0 {
		resendCooldown = defaultResendCooldown
	}
	if mailSendTimeout <= 0 {
		mailSendTimeout = defaultMailSendTimeout
	}

	return &AuthService{
		accountRepo:     accountRepo,
		codeRepo:        codeRepo,
		cacheRepo:       cacheRepo,
		issuer:          issuer,
		mail:            mail,
		hasher:          hasher,
		maxAttempts:     maxAttempts,
		resendCooldown:  resendCooldown,
		mailSendTimeout: mailSendTimeout,
		now:             time.Now,
	}, nil
}

// RegisterResult is returned when registration completed and the verification
// email was accepted for sending.
type RegisterResult struct {
	AccountID uint   `json:"account_id"`
	Email     string `json:"email"`
	CodeSent  bool   `json:"code_sent"`
}

// VerifyResult distinguishes a first-time verification from the idempotent
// repeat of an already verified account.
type VerifyResult struct {
	AlreadyVerified bool `json:"already_verified"`
}

// Register creates an unverified account for a brand-new email, or reissues a
// code for an existing unverified one (recovery path). A failed email send is
// fully compensated: a brand-new signup leaves no account and no codes
// behind, a recovery signup keeps the account but no active code.
func (s *AuthService) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	var errs FieldErrors
	email = normalizeEmail(email)
	checkEmail(&errs, email)
	checkPassword(&errs, password)
	if err := errs.orNil(); err != nil {
		return nil, err
	}

	account, isNew, err := s.findOrCreateAccount(email, password)
	if err != nil {
		return nil, err
	}

	if err := s.reserveCooldown(account.ID); err != nil {
		return nil, err
	}

	if err := s.issueAndSend(ctx, account, isNew); err != nil {
		return nil, err
	}

	return &RegisterResult{AccountID: account.ID, Email: account.Email, CodeSent: true}, nil
}

// ResendCode issues a fresh code for an existing unverified account. A failed
// send leaves the account with no active code.
func (s *AuthService) ResendCode(ctx context.Context, email string) error {
	var errs FieldErrors
	email = normalizeEmail(email)
	checkEmail(&errs, email)
	if err := errs.orNil(); err != nil {
		return err
	}

	account, err := s.accountRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if account.IsVerified() {
		return ErrAlreadyVerified
	}

	if err := s.reserveCooldown(account.ID); err != nil {
		return err
	}

	return s.issueAndSend(ctx, account, false)
}

// VerifyCode consumes the account's active code. On a match the code is
// soft-invalidated and the account's verified_at is set in one transaction.
// Verifying an already verified account succeeds idempotently.
func (s *AuthService) VerifyCode(ctx context.Context, email, submittedCode string) (*VerifyResult, error) {
	var errs FieldErrors
	email = normalizeEmail(email)
	checkEmail(&errs, email)
	checkCodeFormat(&errs, submittedCode)
	if err := errs.orNil(); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account.IsVerified() {
		return &VerifyResult{AlreadyVerified: true}, nil
	}

	record, err := s.codeRepo.GetLatestActiveByAccountID(account.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNoActiveCode
		}
		return nil, err
	}

	now := s.now()
	if record.FailedAttempts >= s.maxAttempts {
		return nil, ErrTooManyAttempts
	}
	if record.IsExpired(now) {
		if markErr := s.codeRepo.MarkUsed(record.ID, now); markErr != nil {
			log.Printf("[AuthService] failed to invalidate expired code id=%d: %v", record.ID, markErr)
		}
		return nil, ErrCodeExpired
	}

	if !s.hasher.Verify(record.CodeHash, submittedCode) {
		if incErr := s.codeRepo.IncrementFailedAttempts(record.ID); incErr != nil {
			log.Printf("[AuthService] failed to increment attempts for code id=%d: %v", record.ID, incErr)
		}
		if record.FailedAttempts+1 >= s.maxAttempts {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrWrongCode
	}

	if err := s.codeRepo.ConsumeAndVerify(record.ID, account.ID, now); err != nil {
		return nil, fmt.Errorf("failed to mark account verified: %w", err)
	}

	log.Printf("[AuthService] account ID=%d (%s) verified", account.ID, account.Email)
	return &VerifyResult{AlreadyVerified: false}, nil
}

// Login checks credentials and returns the minimal account identity. A
// missing account and a wrong password produce the same error so the endpoint
// cannot be used for account enumeration.
func (s *AuthService) Login(ctx context.Context, email, password string) (*entity.Identity, error) {
	email = normalizeEmail(email)

	account, err := s.accountRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if !s.hasher.Verify(account.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !account.IsVerified() {
		return nil, ErrNotVerified
	}

	identity := account.Identity()
	return &identity, nil
}

// VerificationStatus reports the verification state of an account for a
// status endpoint: read-only, no state is touched.
type VerificationStatus struct {
	Email                string     `json:"email"`
	Verified             bool       `json:"verified"`
	CanSendCode          bool       `json:"can_send_code"`
	CooldownRemainingSec int        `json:"cooldown_remaining_sec"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	AttemptsLeft         int        `json:"attempts_left"`
}

func (s *AuthService) VerificationStatus(ctx context.Context, email string) (*VerificationStatus, error) {
	email = normalizeEmail(email)

	account, err := s.accountRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	status := &VerificationStatus{
		Email:        account.Email,
		Verified:     account.IsVerified(),
		CanSendCode:  !account.IsVerified(),
		AttemptsLeft: s.maxAttempts,
	}
	if account.IsVerified() {
		status.CanSendCode = false
		status.AttemptsLeft = 0
		return status, nil
	}

	record, err := s.codeRepo.GetLatestActiveByAccountID(account.ID)
	if err == nil {
		now := s.now()
		if !record.IsExpired(now) {
			exp := record.ExpiresAt
			status.ExpiresAt = &exp
			status.AttemptsLeft = s.maxAttempts - record.FailedAttempts
			if status.AttemptsLeft < 0 {
				status.AttemptsLeft = 0
			}
		}
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if s.cacheRepo != nil {
		if ttl, ttlErr := s.cacheRepo.TTL(s.cooldownKey(account.ID)); ttlErr == nil && ttl > 0 {
			status.CanSendCode = false
			status.CooldownRemainingSec = int(ttl.Round(time.Second).Seconds())
		}
	}

	return status, nil
}

// findOrCreateAccount resolves the Register target. The unique constraint on
// email is the authoritative conflict signal: a concurrent insert that wins
// the race shows up as ErrConflict and is re-routed, never duplicated.
func (s *AuthService) findOrCreateAccount(email, password string) (*entity.Account, bool, error) {
	existing, err := s.accountRepo.GetByEmail(email)
	if err == nil {
		if existing.IsVerified() {
			return nil, false, ErrEmailTaken
		}
		// Recovery path: unverified account registered earlier.
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up account: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &entity.Account{
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := s.accountRepo.Create(account); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost the race to a concurrent Register for this email.
			winner, getErr := s.accountRepo.GetByEmail(email)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to resolve registration conflict: %w", getErr)
			}
			if winner.IsVerified() {
				return nil, false, ErrEmailTaken
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	return account, true, nil
}

// issueAndSend issues a new active code and dispatches it. On a failed or
// timed-out send it compensates: a brand-new account is hard-deleted together
// with its codes, a pre-existing account keeps its state but the just-issued
// code is soft-invalidated. The original send failure is always the error
// returned; compensation failures are logged as second-order faults.
func (s *AuthService) issueAndSend(ctx context.Context, account *entity.Account, isNew bool) error {
	code, record, err := s.issuer.IssueNewActiveCode(account.ID)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.mailSendTimeout)
	defer cancel()

	idempotencyKey := fmt.Sprintf("verify:%d:%s", account.ID, uuid.NewString())
	if sendErr := s.mail.SendVerificationCode(sendCtx, account.Email, code, idempotencyKey); sendErr != nil {
		s.compensateFailedSend(account, record, isNew)
		return fmt.Errorf("failed to send verification email: %w", sendErr)
	}

	return nil
}

func (s *AuthService) compensateFailedSend(account *entity.Account, record *entity.VerificationCode, isNew bool) {
	if isNew {
		if err := s.accountRepo.DeleteWithCodes(account.ID); err != nil {
			log.Printf("[AuthService] compensation failed: could not roll back account ID=%d: %v", account.ID, err)
		}
	} else {
		if err := s.codeRepo.MarkUsed(record.ID, s.now()); err != nil {
			log.Printf("[AuthService] compensation failed: could not invalidate code id=%d: %v", record.ID, err)
		}
	}

	if s.cacheRepo != nil {
		if err := s.cacheRepo.Delete(s.cooldownKey(account.ID)); err != nil {
			log.Printf("[AuthService] compensation failed: could not clear cooldown for account ID=%d: %v", account.ID, err)
		}
	}
}

// reserveCooldown claims the resend-cooldown slot for the account. The
// throttle fails open: a cache error is logged and the send proceeds, since
// the cooldown is a courtesy limit, not a security boundary.
func (s *AuthService) reserveCooldown(accountID uint) error {
	if s.cacheRepo == nil {
		return nil
	}

	ok, err := s.cacheRepo.SetNX(s.cooldownKey(accountID), 1, s.resendCooldown)
	if err != nil {
		log.Printf("[AuthService] cooldown check unavailable for account ID=%d: %v", accountID, err)
		return nil
	}
	if !ok {
		return ErrResendCooldown
	}
	return nil
}

func (s *AuthService) cooldownKey(accountID uint) string {
	return fmt.Sprintf("auth:resend-cooldown:%d", accountID)
}
