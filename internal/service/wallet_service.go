package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cashback-service/internal/audit"
	"cashback-service/internal/mailer"
	"cashback-service/internal/models"
	"cashback-service/internal/notify"
	"cashback-service/internal/repository"
	"cashback-service/internal/util"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	amountScale      = 2
)

var (
	openStatuses    = []models.WithdrawalStatus{models.WithdrawalPending, models.WithdrawalProcessing}
	pendingStatuses = []models.WithdrawalStatus{models.WithdrawalPending}
)

type WithdrawalInput struct {
	Amount         decimal.Decimal         `json:"amount"`
	Method         models.WithdrawalMethod `json:"method"`
	AccountDetails models.AccountDetails   `json:"accountDetails"`
}

type WalletSummary struct {
	models.WalletState
	WithdrawnCashback decimal.Decimal `json:"withdrawnCashback"`
}

// WalletDeps groups WalletService collaborators. Ledger, Notifier and
// Audit may be nil.
type WalletDeps struct {
	Users       repository.UserRepository
	Wallets     repository.WalletRepository
	Withdrawals repository.WithdrawalRepository
	Ledger      repository.LedgerRepository
	Notifier    notify.Dispatcher
	Audit       audit.Recorder
}

// WalletService moves cashback between the balance columns and runs the
// withdrawal state machine. Every balance change is a single conditional
// statement in the repository.
type WalletService struct {
	WalletDeps
	logger *zap.Logger
}

func NewWalletService(deps WalletDeps, logger *zap.Logger) *WalletService {
	if deps.Ledger == nil {
		deps.Ledger = repository.DiscardLedger{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopRecorder{}
	}
	return &WalletService{WalletDeps: deps, logger: logger}
}

func (s *WalletService) GetWallet(ctx context.Context, userID string) (*WalletSummary, error) {
	w, err := s.Wallets.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if w == nil {
		return nil, ErrNotFound
	}
	return &WalletSummary{WalletState: *w, WithdrawnCashback: w.Withdrawn()}, nil
}

// RequestWithdrawal records a pending request and reserves its amount. The
// caller sees either both or neither.
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID string, in WithdrawalInput) (*models.WithdrawalRequest, error) {
	if err := validateWithdrawal(in); err != nil {
		return nil, err
	}

	w, err := s.Wallets.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if w == nil {
		return nil, ErrNotFound
	}
	if in.Amount.GreaterThan(w.AvailableCashback) {
		return nil, ErrInsufficientBalance
	}

	req := &models.WithdrawalRequest{
		ID:             uuid.NewString(),
		UserID:         userID,
		Amount:         in.Amount,
		Method:         in.Method,
		AccountDetails: in.AccountDetails,
		Status:         models.WithdrawalPending,
	}
	if err := s.Withdrawals.Create(ctx, req); err != nil {
		s.logger.Error("failed to create withdrawal", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: create withdrawal", ErrInternal)
	}

	debited, err := s.Wallets.Debit(ctx, userID, in.Amount)
	if err != nil || !debited {
		s.discardRequest(req.ID, err)
		if err != nil {
			return nil, fmt.Errorf("%w: debit wallet", ErrInternal)
		}
		return nil, ErrInsufficientBalance
	}

	journal(ctx, s.Ledger, s.logger, models.LedgerEntry{
		UserID:      userID,
		Kind:        models.EntryWithdrawalDebit,
		Amount:      in.Amount,
		Reference:   req.ID,
		Description: string(in.Method) + " withdrawal",
	})
	s.Audit.Record(ctx, event(models.EventWithdrawalRequest, userID, "", map[string]string{
		"withdrawal_id": req.ID,
		"amount":        in.Amount.String(),
		"method":        string(in.Method),
	}))
	s.logger.Info("withdrawal requested",
		zap.String("user_id", userID),
		zap.String("withdrawal_id", req.ID),
		util.Amount("amount", in.Amount))
	return req, nil
}

// discardRequest deletes a request whose debit did not happen.
func (s *WalletService) discardRequest(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()
	if err := s.Withdrawals.Delete(ctx, id); err != nil {
		s.logger.Error("COMPENSATION FAILED: withdrawal row without debit",
			zap.String("withdrawal_id", id),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

func validateWithdrawal(in WithdrawalInput) error {
	minimum, ok := in.Method.Minimum()
	if !ok {
		return fmt.Errorf("%w: unknown withdrawal method %q", ErrInvalidInput, in.Method)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !in.Amount.Equal(in.Amount.Round(amountScale)) {
		return fmt.Errorf("%w: amount has more than %d decimals", ErrInvalidInput, amountScale)
	}
	if in.Amount.LessThan(minimum) {
		return fmt.Errorf("%w: minimum for %s is %s", ErrBelowMinimum, in.Method, minimum)
	}
	if err := in.AccountDetails.Validate(in.Method); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *WalletService) ListWithdrawals(ctx context.Context, userID string, limit int) ([]models.WithdrawalRequest, error) {
	rows, err := s.Withdrawals.ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if rows == nil {
		rows = []models.WithdrawalRequest{}
	}
	return rows, nil
}

// ListPendingWithdrawals is the admin queue, oldest first.
func (s *WalletService) ListPendingWithdrawals(ctx context.Context, limit int) ([]models.WithdrawalRequest, error) {
	rows, err := s.Withdrawals.ListByStatus(ctx, openStatuses, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if rows == nil {
		rows = []models.WithdrawalRequest{}
	}
	return rows, nil
}

func (s *WalletService) Transactions(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	entries, err := s.Ledger.List(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}

func (s *WalletService) MarkProcessing(ctx context.Context, adminID, id string) (*models.WithdrawalRequest, error) {
	w, err := s.Withdrawals.Transition(ctx, id, pendingStatuses, models.WithdrawalProcessing, nil)
	if err != nil {
		return nil, transitionError(err)
	}
	s.decided(ctx, adminID, w)
	return w, nil
}

// AdminApprove completes a request. The amount was reserved at request
// time, so the balance is untouched.
func (s *WalletService) AdminApprove(ctx context.Context, adminID, id, notes string) (*models.WithdrawalRequest, error) {
	var notesPtr *string
	if notes = strings.TrimSpace(notes); notes != "" {
		notesPtr = &notes
	}
	w, err := s.Withdrawals.Transition(ctx, id, openStatuses, models.WithdrawalCompleted, notesPtr)
	if err != nil {
		return nil, transitionError(err)
	}
	s.decided(ctx, adminID, w)
	s.notifyUser(ctx, w)
	return w, nil
}

// AdminReject fails a request and returns the reserved amount to the
// user's available balance.
func (s *WalletService) AdminReject(ctx context.Context, adminID, id, reason string) (*models.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}
	w, err := s.Withdrawals.Reject(ctx, id, openStatuses, reason)
	if err != nil {
		return nil, transitionError(err)
	}
	journal(ctx, s.Ledger, s.logger, models.LedgerEntry{
		UserID:      w.UserID,
		Kind:        models.EntryWithdrawalRefund,
		Amount:      w.Amount,
		Reference:   w.ID,
		Description: reason,
	})
	s.decided(ctx, adminID, w)
	s.notifyUser(ctx, w)
	return w, nil
}

func transitionError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrStatusConflict):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

func (s *WalletService) decided(ctx context.Context, adminID string, w *models.WithdrawalRequest) {
	s.logger.Info("withdrawal status changed",
		zap.String("withdrawal_id", w.ID),
		zap.String("status", string(w.Status)),
		zap.String("admin_id", adminID))
	s.Audit.Record(ctx, event(models.EventWithdrawalDecided, w.UserID, "", map[string]string{
		"withdrawal_id": w.ID,
		"status":        string(w.Status),
		"admin_id":      adminID,
	}))
}

func (s *WalletService) notifyUser(ctx context.Context, w *models.WithdrawalRequest) {
	if s.Notifier == nil || s.Users == nil {
		return
	}
	user, err := s.Users.GetByID(ctx, w.UserID)
	if err != nil || user == nil {
		s.logger.Warn("withdrawal notification skipped", zap.String("withdrawal_id", w.ID), zap.Error(err))
		return
	}
	subject, body := mailer.WithdrawalStatusEmail(string(w.Status), w.Amount.StringFixed(amountScale))
	notify.DispatchAsync(s.Notifier, notify.New(notify.CategoryWithdrawal, user.Email, subject, body))
}

// ManualCredit adds a goodwill credit outside the request flow.
func (s *WalletService) ManualCredit(ctx context.Context, adminID, userID string, amount decimal.Decimal, description string) (*WalletSummary, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(amountScale)) {
		return nil, fmt.Errorf("%w: amount must be positive with at most %d decimals", ErrInvalidInput, amountScale)
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if err := s.Wallets.Credit(ctx, userID, amount); err != nil {
		return nil, fmt.Errorf("%w: credit: %v", ErrInternal, err)
	}

	s.logger.Info("manual credit applied",
		zap.String("admin_id", adminID),
		zap.String("user_id", userID),
		util.Amount("amount", amount),
		zap.String("description", description))
	journal(ctx, s.Ledger, s.logger, models.LedgerEntry{
		UserID:      userID,
		Kind:        models.EntryManualCredit,
		Amount:      amount,
		Reference:   adminID,
		Description: description,
	})
	s.Audit.Record(ctx, event(models.EventManualCredit, userID, user.Email, map[string]string{
		"admin_id":    adminID,
		"amount":      amount.String(),
		"description": description,
	}))
	return s.GetWallet(ctx, userID)
}

// AddPendingCashback books cashback for a placed order. Repeats for the same
// order are no-ops.
func (s *WalletService) AddPendingCashback(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error) {
	return s.cashback(ctx, orderID, userID, amount, models.EntryCashbackPending, s.Wallets.AddPending)
}

// ConfirmPendingCashback moves an order's cashback from pending to
// available.
func (s *WalletService) ConfirmPendingCashback(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error) {
	return s.cashback(ctx, orderID, userID, amount, models.EntryCashbackConfirm, s.Wallets.ConfirmPending)
}

// CancelPendingCashback drops an order's pending cashback.
func (s *WalletService) CancelPendingCashback(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error) {
	return s.cashback(ctx, orderID, userID, amount, models.EntryCashbackCancel, s.Wallets.CancelPending)
}

type cashbackOp func(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error)

func (s *WalletService) cashback(ctx context.Context, orderID, userID string, amount decimal.Decimal, kind string, op cashbackOp) (bool, error) {
	if orderID == "" || userID == "" || !amount.IsPositive() {
		return false, fmt.Errorf("%w: order, user and a positive amount are required", ErrInvalidInput)
	}
	applied, err := op(ctx, orderID, userID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientPending) {
			return false, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !applied {
		return false, nil
	}
	journal(ctx, s.Ledger, s.logger, models.LedgerEntry{
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Reference: orderID,
		CreatedAt: time.Now().UTC(),
	})
	return true, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
