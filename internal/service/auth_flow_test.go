package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/accounts-api/internal/domain/entity"
	apperrors "github.com/yourusername/accounts-api/internal/pkg/errors"
	"github.com/yourusername/accounts-api/pkg/hash"
)

// memStore is an in-memory stand-in for the postgres repositories satisfying
// the same transactional contract, so the full state machine can be exercised
// end to end without a database.
type memStore struct {
	mu         sync.Mutex
	accounts   map[uint]*entity.Account
	codes      map[uint]*entity.VerificationCode
	nextAccID  uint
	nextCodeID uint
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uint]*entity.Account),
		codes:    make(map[uint]*entity.VerificationCode),
	}
}

func (s *memStore) Create(account *entity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return apperrors.ErrConflict
		}
	}
	s.nextAccID++
	account.ID = s.nextAccID
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *memStore) GetByID(id uint) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) GetByEmail(email string) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memStore) DeleteWithCodes(accountID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.codes {
		if c.AccountID == accountID {
			delete(s.codes, id)
		}
	}
	delete(s.accounts, accountID)
	return nil
}

func (s *memStore) CreateSuperseding(code *entity.VerificationCode, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.AccountID == code.AccountID && c.UsedAt == nil {
			usedAt := now
			c.UsedAt = &usedAt
		}
	}
	s.nextCodeID++
	code.ID = s.nextCodeID
	code.CreatedAt = now
	cp := *code
	s.codes[code.ID] = &cp
	return nil
}

func (s *memStore) GetLatestActiveByAccountID(accountID uint) (*entity.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *entity.VerificationCode
	for _, c := range s.codes {
		if c.AccountID != accountID || c.UsedAt != nil {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *memStore) IncrementFailedAttempts(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codes[id]; ok {
		c.FailedAttempts++
	}
	return nil
}

func (s *memStore) MarkUsed(id uint, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codes[id]; ok && c.UsedAt == nil {
		at := usedAt
		c.UsedAt = &at
	}
	return nil
}

func (s *memStore) ConsumeAndVerify(codeID, accountID uint, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codes[codeID]; ok && c.UsedAt == nil {
		at := now
		c.UsedAt = &at
	}
	if a, ok := s.accounts[accountID]; ok && a.VerifiedAt == nil {
		at := now
		a.VerifiedAt = &at
	}
	return nil
}

// activeCodeCount reports how many codes with used_at IS NULL exist for the
// account, the invariant being at most one at any observation point.
func (s *memStore) activeCodeCount(accountID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes {
		if c.AccountID == accountID && c.UsedAt == nil {
			n++
		}
	}
	return n
}

func (s *memStore) accountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *memStore) codeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// recordingMailSender captures the plaintext codes it is asked to deliver.
type recordingMailSender struct {
	mu       sync.Mutex
	lastCode string
	sent     int
	fail     error
}

func (m *recordingMailSender) SendVerificationCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.lastCode = code
	m.sent++
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newFlowFixture(t *testing.T, mail MailSender) (*AuthService, *memStore, *fakeClock) {
	t.Helper()

	store := newMemStore()
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	hasher := hash.NewArgon2idHasher()

	issuer, err := NewCodeIssuer(store, hasher, 10*time.Minute)
	require.NoError(t, err)
	issuer.now = clk.Now

	svc, err := NewAuthService(store, store, nil, issuer, mail, hasher, 5, time.Minute, time.Second)
	require.NoError(t, err)
	svc.now = clk.Now

	return svc, store, clk
}

// wrongCodeFor returns a well-formed 6-digit code different from actual.
func wrongCodeFor(actual string) string {
	if actual == "000000" {
		return "000001"
	}
	return "000000"
}

func TestAuthFlow_FullScenario(t *testing.T) {
	// TTL=10min, maxAttempts=5: register, exhaust a code with wrong
	// submissions, resend, verify with the fresh code, then log in.
	ctx := context.Background()
	mail := &recordingMailSender{}
	svc, store, _ := newFlowFixture(t, mail)

	// Register a brand-new account.
	result, err := svc.Register(ctx, "a@x.com", "Passw0rdCorrect")
	require.NoError(t, err)
	assert.True(t, result.CodeSent)
	assert.Equal(t, 1, mail.sent)
	assert.Equal(t, 1, store.activeCodeCount(result.AccountID))

	firstCode := mail.lastCode
	require.Len(t, firstCode, 6)

	// Four wrong submissions fail with WrongCode, the fifth exhausts the
	// code.
	wrong := wrongCodeFor(firstCode)
	for i := 0; i < 4; i++ {
		_, err = svc.VerifyCode(ctx, "a@x.com", wrong)
		assert.ErrorIs(t, err, ErrWrongCode)
	}
	_, err = svc.VerifyCode(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// Even the correct code is rejected now.
	_, err = svc.VerifyCode(ctx, "a@x.com", firstCode)
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// Resend: a fresh code supersedes the exhausted one and starts at zero
	// attempts.
	require.NoError(t, svc.ResendCode(ctx, "a@x.com"))
	assert.Equal(t, 2, mail.sent)
	assert.Equal(t, 1, store.activeCodeCount(result.AccountID))

	record, err := store.GetLatestActiveByAccountID(result.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 0, record.FailedAttempts)

	// The new code verifies the account.
	verify, err := svc.VerifyCode(ctx, "a@x.com", mail.lastCode)
	require.NoError(t, err)
	assert.False(t, verify.AlreadyVerified)
	assert.Equal(t, 0, store.activeCodeCount(result.AccountID))

	account, err := store.GetByID(result.AccountID)
	require.NoError(t, err)
	require.NotNil(t, account.VerifiedAt)

	// Verifying again succeeds idempotently without touching state.
	verify, err = svc.VerifyCode(ctx, "a@x.com", mail.lastCode)
	require.NoError(t, err)
	assert.True(t, verify.AlreadyVerified)

	// Login with the registration password.
	identity, err := svc.Login(ctx, "a@x.com", "Passw0rdCorrect")
	require.NoError(t, err)
	assert.True(t, identity.Verified)
	assert.Equal(t, "a@x.com", identity.Email)

	_, err = svc.Login(ctx, "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthFlow_RegisterRollbackLeavesNothingBehind(t *testing.T) {
	// A failed first send for a brand-new signup must leave zero accounts
	// and zero codes.
	ctx := context.Background()
	mail := &recordingMailSender{fail: context.DeadlineExceeded}
	svc, store, _ := newFlowFixture(t, mail)

	_, err := svc.Register(ctx, "a@x.com", "Passw0rdCorrect")
	require.Error(t, err)

	assert.Equal(t, 0, store.accountCount())
	assert.Equal(t, 0, store.codeCount())
}

func TestAuthFlow_ResendRollbackPreservesAccount(t *testing.T) {
	// A failed resend keeps the account but leaves it with no active code.
	ctx := context.Background()
	mail := &recordingMailSender{}
	svc, store, _ := newFlowFixture(t, mail)

	result, err := svc.Register(ctx, "a@x.com", "Passw0rdCorrect")
	require.NoError(t, err)

	mail.fail = context.DeadlineExceeded
	err = svc.ResendCode(ctx, "a@x.com")
	require.Error(t, err)

	assert.Equal(t, 1, store.accountCount())
	assert.Equal(t, 0, store.activeCodeCount(result.AccountID))
}

func TestAuthFlow_RecoveryRegisterSupersedesOldCode(t *testing.T) {
	// Registering again with an unverified email issues a fresh code and
	// keeps the single-active-code invariant.
	ctx := context.Background()
	mail := &recordingMailSender{}
	svc, store, _ := newFlowFixture(t, mail)

	result, err := svc.Register(ctx, "a@x.com", "Passw0rdCorrect")
	require.NoError(t, err)
	first := mail.lastCode

	result2, err := svc.Register(ctx, "a@x.com", "AnotherPassw0rd")
	require.NoError(t, err)
	assert.Equal(t, result.AccountID, result2.AccountID, "no second account may appear")
	assert.Equal(t, 1, store.accountCount())
	assert.Equal(t, 1, store.activeCodeCount(result.AccountID))

	// The superseded code no longer verifies.
	if first != mail.lastCode {
		_, err = svc.VerifyCode(ctx, "a@x.com", first)
		assert.Error(t, err)
	}

	// The fresh one does.
	verify, err := svc.VerifyCode(ctx, "a@x.com", mail.lastCode)
	require.NoError(t, err)
	assert.False(t, verify.AlreadyVerified)
}

func TestAuthFlow_ExpiredCodeBecomesInactive(t *testing.T) {
	ctx := context.Background()
	mail := &recordingMailSender{}
	svc, store, clk := newFlowFixture(t, mail)

	result, err := svc.Register(ctx, "a@x.com", "Passw0rdCorrect")
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)

	_, err = svc.VerifyCode(ctx, "a@x.com", mail.lastCode)
	assert.ErrorIs(t, err, ErrCodeExpired)

	// The expired code was soft-invalidated on the way out.
	assert.Equal(t, 0, store.activeCodeCount(result.AccountID))

	_, err = svc.VerifyCode(ctx, "a@x.com", mail.lastCode)
	assert.ErrorIs(t, err, ErrNoActiveCode)
}

func TestAuthFlow_VerifiedAtNeverReverts(t *testing.T) {
	ctx := context.Background()
	mail := &recordingMailSender{}
	svc, store, _ := newFlowFixture(t, mail)

	result, err := svc.Register(ctx, "a@x.com", "Passw0rdCorrect")
	require.NoError(t, err)

	_, err = svc.VerifyCode(ctx, "a@x.com", mail.lastCode)
	require.NoError(t, err)

	account, err := store.GetByID(result.AccountID)
	require.NoError(t, err)
	require.NotNil(t, account.VerifiedAt)
	verifiedAt := *account.VerifiedAt

	// Re-registering or resending cannot touch a verified account.
	_, err = svc.Register(ctx, "a@x.com", "AnotherPassw0rd")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, svc.ResendCode(ctx, "a@x.com"), ErrAlreadyVerified)

	account, err = store.GetByID(result.AccountID)
	require.NoError(t, err)
	require.NotNil(t, account.VerifiedAt)
	assert.Equal(t, verifiedAt, *account.VerifiedAt)
}
