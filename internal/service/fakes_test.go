package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cashback-service/internal/cache"
	"cashback-service/internal/ephemeral"
	"cashback-service/internal/hashing"
	"cashback-service/internal/identity"
	"cashback-service/internal/models"
	"cashback-service/internal/notify"
	"cashback-service/internal/repository"
	"cashback-service/internal/token"
)

// memDB stands in for Postgres. Every method holds mu for its whole body,
// which gives the same atomicity as the conditional SQL statements.
type memDB struct {
	mu          sync.Mutex
	users       map[string]*models.User
	referrals   map[string]*models.ReferralRecord
	withdrawals map[string]*models.WithdrawalRequest
	events      map[string]bool

	failUserCreate error
	failDebit      error
}

func newMemDB() *memDB {
	return &memDB{
		users:       map[string]*models.User{},
		referrals:   map[string]*models.ReferralRecord{},
		withdrawals: map[string]*models.WithdrawalRequest{},
		events:      map[string]bool{},
	}
}

func (db *memDB) seedUser(t *testing.T, email, code string, available int64) *models.User {
	t.Helper()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Seed",
		ReferralCode: code,
		Role:         models.RoleUser,
		IsActive:     true,
		IsVerified:   true,
		WalletState: models.WalletState{
			TotalCashback:     decimal.NewFromInt(available),
			AvailableCashback: decimal.NewFromInt(available),
			PendingCashback:   decimal.Zero,
		},
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
	cp := *u
	return &cp
}

func (db *memDB) wallet(id string) models.WalletState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.users[id].WalletState
}

func (db *memDB) userCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users)
}

func (db *memDB) withdrawalCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.withdrawals)
}

type memUsers struct{ *memDB }

func (r memUsers) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUserCreate != nil {
		return r.failUserCreate
	}
	if _, ok := r.users[u.ID]; ok {
		return repository.ErrDuplicateUserID
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
		if strings.EqualFold(existing.ReferralCode, u.ReferralCode) {
			return repository.ErrDuplicateReferralCode
		}
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r memUsers) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r memUsers) GetByReferralCode(_ context.Context, code string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return strings.EqualFold(u.ReferralCode, code) })
}

type memWallets struct{ *memDB }

func (r memWallets) Get(_ context.Context, id string) (*models.WalletState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	w := u.WalletState
	return &w, nil
}

func (r memWallets) Debit(_ context.Context, id string, amt decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDebit != nil {
		return false, r.failDebit
	}
	u, ok := r.users[id]
	if !ok || u.AvailableCashback.LessThan(amt) {
		return false, nil
	}
	u.AvailableCashback = u.AvailableCashback.Sub(amt)
	return true, nil
}

func (r memWallets) Credit(_ context.Context, id string, amt decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.AvailableCashback = u.AvailableCashback.Add(amt)
	u.TotalCashback = u.TotalCashback.Add(amt)
	return nil
}

func (r memWallets) once(orderID, kind, id string, apply func(u *models.User) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := orderID + "|" + kind
	if r.events[key] {
		return false, nil
	}
	u, ok := r.users[id]
	if !ok {
		return false, errors.New("user not found")
	}
	if kind != models.CashbackKindPending {
		other := models.CashbackKindConfirmed
		if kind == models.CashbackKindConfirmed {
			other = models.CashbackKindCancelled
		}
		if !r.events[orderID+"|"+models.CashbackKindPending] || r.events[orderID+"|"+other] {
			return false, repository.ErrInsufficientPending
		}
	}
	if !apply(u) {
		return false, repository.ErrInsufficientPending
	}
	r.events[key] = true
	return true, nil
}

func (r memWallets) AddPending(_ context.Context, orderID, id string, amt decimal.Decimal) (bool, error) {
	return r.once(orderID, models.CashbackKindPending, id, func(u *models.User) bool {
		u.PendingCashback = u.PendingCashback.Add(amt)
		u.TotalCashback = u.TotalCashback.Add(amt)
		return true
	})
}

func (r memWallets) ConfirmPending(_ context.Context, orderID, id string, amt decimal.Decimal) (bool, error) {
	return r.once(orderID, models.CashbackKindConfirmed, id, func(u *models.User) bool {
		if u.PendingCashback.LessThan(amt) {
			return false
		}
		u.PendingCashback = u.PendingCashback.Sub(amt)
		u.AvailableCashback = u.AvailableCashback.Add(amt)
		return true
	})
}

func (r memWallets) CancelPending(_ context.Context, orderID, id string, amt decimal.Decimal) (bool, error) {
	return r.once(orderID, models.CashbackKindCancelled, id, func(u *models.User) bool {
		if u.PendingCashback.LessThan(amt) {
			return false
		}
		u.PendingCashback = u.PendingCashback.Sub(amt)
		u.TotalCashback = u.TotalCashback.Sub(amt)
		return true
	})
}

type memReferrals struct{ *memDB }

func (r memReferrals) Create(_ context.Context, rec *models.ReferralRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.referrals[rec.ReferredUserID]; ok {
		return false, nil
	}
	rec.CreatedAt = time.Now().UTC()
	cp := *rec
	r.referrals[rec.ReferredUserID] = &cp
	return true, nil
}

func (r memReferrals) Confirm(_ context.Context, referredUserID string) (*models.ReferralRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.referrals[referredUserID]
	if !ok || rec.Status != models.ReferralPending {
		return nil, nil
	}
	now := time.Now().UTC()
	rec.Status = models.ReferralConfirmed
	rec.ConfirmedAt = &now
	if u, ok := r.users[rec.ReferrerID]; ok {
		u.AvailableCashback = u.AvailableCashback.Add(rec.BonusAmount)
		u.TotalCashback = u.TotalCashback.Add(rec.BonusAmount)
	}
	cp := *rec
	return &cp, nil
}

func (r memReferrals) GetByReferredUser(_ context.Context, referredUserID string) (*models.ReferralRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.referrals[referredUserID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r memReferrals) ListByReferrer(_ context.Context, referrerID string, limit int) ([]models.ReferralRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReferralRecord
	for _, rec := range r.referrals {
		if rec.ReferrerID == referrerID && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r memReferrals) Stats(_ context.Context, referrerID string) (*models.ReferralStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &models.ReferralStats{PendingBonus: decimal.Zero, ConfirmedBonus: decimal.Zero}
	for _, rec := range r.referrals {
		if rec.ReferrerID != referrerID {
			continue
		}
		st.Total++
		if rec.Status == models.ReferralConfirmed {
			st.Confirmed++
			st.ConfirmedBonus = st.ConfirmedBonus.Add(rec.BonusAmount)
		} else {
			st.Pending++
			st.PendingBonus = st.PendingBonus.Add(rec.BonusAmount)
		}
	}
	return st, nil
}

type memWithdrawals struct{ *memDB }

func (r memWithdrawals) Create(_ context.Context, w *models.WithdrawalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.CreatedAt = time.Now().UTC()
	w.UpdatedAt = w.CreatedAt
	cp := *w
	r.withdrawals[w.ID] = &cp
	return nil
}

func (r memWithdrawals) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.withdrawals, id)
	return nil
}

func (r memWithdrawals) GetByID(_ context.Context, id string) (*models.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r memWithdrawals) list(match func(*models.WithdrawalRequest) bool, limit int) []models.WithdrawalRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, w := range r.withdrawals {
		if match(w) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r memWithdrawals) ListByUser(_ context.Context, userID string, limit int) ([]models.WithdrawalRequest, error) {
	return r.list(func(w *models.WithdrawalRequest) bool { return w.UserID == userID }, limit), nil
}

func (r memWithdrawals) ListByStatus(_ context.Context, statuses []models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error) {
	return r.list(func(w *models.WithdrawalRequest) bool { return hasStatus(statuses, w.Status) }, limit), nil
}

func hasStatus(in []models.WithdrawalStatus, s models.WithdrawalStatus) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}

func (r memWithdrawals) transitionLocked(id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, notes *string) (*models.WithdrawalRequest, error) {
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !hasStatus(from, w.Status) {
		return nil, repository.ErrStatusConflict
	}
	w.Status = to
	if notes != nil {
		n := *notes
		w.AdminNotes = &n
	}
	if to.Terminal() {
		now := time.Now().UTC()
		w.ProcessedAt = &now
	}
	cp := *w
	return &cp, nil
}

func (r memWithdrawals) Transition(_ context.Context, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, notes *string) (*models.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(id, from, to, notes)
}

func (r memWithdrawals) Reject(_ context.Context, id string, from []models.WithdrawalStatus, notes string) (*models.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, err := r.transitionLocked(id, from, models.WithdrawalFailed, &notes)
	if err != nil {
		return nil, err
	}
	u := r.users[w.UserID]
	u.AvailableCashback = u.AvailableCashback.Add(w.Amount)
	return w, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
}

func (l *memLedger) Append(_ context.Context, e models.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) List(_ context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.LedgerEntry
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].UserID == userID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

func (l *memLedger) kinds(userID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e.Kind)
		}
	}
	return out
}

type fakeProvider struct {
	mu        sync.Mutex
	byEmail   map[string]string
	passwords map[string]string
	deleted   []string
	createErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{byEmail: map[string]string{}, passwords: map[string]string{}}
}

func (p *fakeProvider) CreateUser(_ context.Context, in identity.CreateUserInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	if _, ok := p.byEmail[in.Email]; ok {
		return "", identity.ErrUserExists
	}
	id := uuid.NewString()
	p.byEmail[in.Email] = id
	p.passwords[id] = in.Password
	return id, nil
}

func (p *fakeProvider) DeleteUser(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for email, v := range p.byEmail {
		if v == id {
			delete(p.byEmail, email)
		}
	}
	delete(p.passwords, id)
	p.deleted = append(p.deleted, id)
	return nil
}

func (p *fakeProvider) SignIn(_ context.Context, email, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[email]
	if !ok || p.passwords[id] != password {
		return "", identity.ErrInvalidCredentials
	}
	return id, nil
}

func (p *fakeProvider) UpdatePassword(_ context.Context, id, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.passwords[id]; !ok {
		return identity.ErrUserNotFound
	}
	p.passwords[id] = password
	return nil
}

// register adds an identity directly, for users seeded into memDB.
func (p *fakeProvider) register(id, email, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byEmail[email] = id
	p.passwords[id] = password
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byEmail)
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return uuid.NewString(), nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type chanDispatcher chan notify.Notification

func (c chanDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	c <- n
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testOTP = "123456"

type harness struct {
	db        *memDB
	ledger    *memLedger
	provider  *fakeProvider
	mailer    *fakeMailer
	notified  chanDispatcher
	clock     *testClock
	tokens    *token.Issuer
	auth      *AuthService
	referrals *ReferralService
	wallet    *WalletService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:       newMemDB(),
		ledger:   &memLedger{},
		provider: newFakeProvider(),
		mailer:   &fakeMailer{},
		notified: make(chanDispatcher, 16),
		clock:    &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	h.tokens, err = token.NewIssuer(key, &key.PublicKey, "test", "test", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	hasher, err := hashing.NewHasher("test-pepper")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	store := ephemeral.NewMemoryStoreWithClock(h.clock.Now)

	factory := NewServiceFactory(Dependencies{
		Users:       memUsers{h.db},
		Wallets:     memWallets{h.db},
		Referrals:   memReferrals{h.db},
		Withdrawals: memWithdrawals{h.db},
		Ledger:      h.ledger,
		Provider:    h.provider,
		OTPs:        cache.NewOTPCache(store, hasher, 10*time.Minute),
		Signups:     cache.NewSignupCache(store, nil, 30*time.Minute),
		Sessions:    cache.NewSessionCache(store),
		Limiter:     cache.NewRateLimitCache(store),
		Tokens:      h.tokens,
		Mailer:      h.mailer,
		Notifier:    h.notified,
	}, AuthSettings{
		OTPSendLimit:  5,
		OTPSendWindow: 15 * time.Minute,
		ReferralBonus: decimal.NewFromInt(50),
	}, zap.NewNop())

	h.auth = factory.AuthService()
	h.auth.generateOTP = func() (string, error) { return testOTP, nil }
	h.referrals = factory.ReferralService()
	h.wallet = factory.WalletService()
	return h
}

func (h *harness) signup(t *testing.T, email, name, referralCode string) *AuthResult {
	t.Helper()
	ctx := context.Background()
	_, err := h.auth.SendOTP(ctx, SendOTPRequest{
		Email:      email,
		Name:       name,
		SignupData: SignupData{Password: "Xx1!aaaa", ReferralCode: referralCode},
	})
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	res, err := h.auth.VerifyOTP(ctx, email, testOTP)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	return res
}

func (h *harness) waitNotification(t *testing.T) notify.Notification {
	t.Helper()
	select {
	case n := <-h.notified:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification dispatched")
		return notify.Notification{}
	}
}
