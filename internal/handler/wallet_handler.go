package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cashback-service/internal/models"
	"cashback-service/internal/service"
	"cashback-service/internal/util"
)

// WalletAPI is the slice of service.WalletService used by the wallet and
// admin handlers.
type WalletAPI interface {
	GetWallet(ctx context.Context, userID string) (*service.WalletSummary, error)
	RequestWithdrawal(ctx context.Context, userID string, in service.WithdrawalInput) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, userID string, limit int) ([]models.WithdrawalRequest, error)
	Transactions(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error)

	ListPendingWithdrawals(ctx context.Context, limit int) ([]models.WithdrawalRequest, error)
	MarkProcessing(ctx context.Context, adminID, id string) (*models.WithdrawalRequest, error)
	AdminApprove(ctx context.Context, adminID, id, notes string) (*models.WithdrawalRequest, error)
	AdminReject(ctx context.Context, adminID, id, reason string) (*models.WithdrawalRequest, error)
	ManualCredit(ctx context.Context, adminID, userID string, amount decimal.Decimal, description string) (*service.WalletSummary, error)
}

type WalletHandler struct {
	responder
	wallet WalletAPI
}

func NewWalletHandler(wallet WalletAPI, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{responder: responder{logger: logger}, wallet: wallet}
}

// RegisterRoutes mounts /wallet; every route needs an authenticated user.
func (h *WalletHandler) RegisterRoutes(router chi.Router) {
	router.Route("/wallet", func(r chi.Router) {
		r.Get("/", h.GetWallet)
		r.Post("/withdraw", h.Withdraw)
		r.Get("/withdrawals", h.ListWithdrawals)
		r.Get("/transactions", h.ListTransactions)
	})
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	summary, err := h.wallet.GetWallet(r.Context(), userID(r))
	if err != nil {
		h.fail(w, err, "Failed to load wallet")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(summary, ""))
}

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req service.WithdrawalInput
	if !h.decode(w, r, &req) {
		return
	}

	withdrawal, err := h.wallet.RequestWithdrawal(r.Context(), userID(r), req)
	if err != nil {
		h.fail(w, err, "Failed to request withdrawal")
		return
	}

	h.logger.Info("Withdrawal requested via API",
		util.String("withdrawal_id", withdrawal.ID),
		util.Amount("amount", withdrawal.Amount),
		util.Duration("duration", time.Since(start)),
	)
	h.respondWithJSON(w, http.StatusCreated, successResponse(
		map[string]interface{}{"withdrawal": withdrawal},
		"Withdrawal request submitted",
	))
}

func (h *WalletHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	items, err := h.wallet.ListWithdrawals(r.Context(), userID(r), limit)
	if err != nil {
		h.fail(w, err, "Failed to list withdrawals")
		return
	}
	resp := successResponse(items, "")
	resp.Meta = &Meta{Total: len(items), Limit: limit}
	h.respondWithJSON(w, http.StatusOK, resp)
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	entries, err := h.wallet.Transactions(r.Context(), userID(r), limit)
	if err != nil {
		h.fail(w, err, "Failed to list transactions")
		return
	}
	resp := successResponse(entries, "")
	resp.Meta = &Meta{Total: len(entries), Limit: limit}
	h.respondWithJSON(w, http.StatusOK, resp)
}
