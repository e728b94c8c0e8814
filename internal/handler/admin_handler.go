package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cashback-service/internal/models"
	"cashback-service/internal/service"
	"cashback-service/internal/util"
)

// AdminHandler drains the withdrawal queue and posts manual credits.
type AdminHandler struct {
	responder
	wallet WalletAPI
}

func NewAdminHandler(wallet WalletAPI, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{responder: responder{logger: logger}, wallet: wallet}
}

type decisionRequest struct {
	Notes string `json:"notes"`
}

type creditRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// RegisterRoutes mounts /admin. Callers wrap it with Authenticate and
// RequireAdmin.
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Get("/withdrawals/pending", h.ListPending)
		r.Post("/withdrawals/{id}/processing", h.MarkProcessing)
		r.Post("/withdrawals/{id}/approve", h.Approve)
		r.Post("/withdrawals/{id}/reject", h.Reject)
		r.Post("/users/{id}/credit", h.Credit)
	})
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	items, err := h.wallet.ListPendingWithdrawals(r.Context(), limit)
	if err != nil {
		h.fail(w, err, "Failed to list pending withdrawals")
		return
	}
	resp := successResponse(items, "")
	resp.Meta = &Meta{Total: len(items), Limit: limit}
	h.respondWithJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withdrawalID(w, r)
	if !ok {
		return
	}
	wd, err := h.wallet.MarkProcessing(r.Context(), userID(r), id)
	if err != nil {
		h.fail(w, err, "Failed to update withdrawal")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(wd, "Withdrawal is processing"))
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.WithdrawalCompleted)
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.WithdrawalFailed)
}

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, to models.WithdrawalStatus) {
	id, ok := h.withdrawalID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	req.Notes = util.SanitizeInput(req.Notes)

	var (
		wd  *models.WithdrawalRequest
		err error
	)
	if to == models.WithdrawalCompleted {
		wd, err = h.wallet.AdminApprove(r.Context(), userID(r), id, req.Notes)
	} else {
		wd, err = h.wallet.AdminReject(r.Context(), userID(r), id, req.Notes)
	}
	if err != nil {
		h.fail(w, err, "Failed to update withdrawal")
		return
	}

	h.logger.Info("Withdrawal decided via API",
		util.String("withdrawal_id", id),
		util.String("status", string(wd.Status)),
		util.String("admin_id", userID(r)),
	)
	h.respondWithJSON(w, http.StatusOK, successResponse(wd, "Withdrawal "+string(wd.Status)))
}

func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "id")
	if target == "" {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "User ID is required")
		return
	}
	var req creditRequest
	if !h.decode(w, r, &req) {
		return
	}

	summary, err := h.wallet.ManualCredit(r.Context(), userID(r), target, req.Amount, util.SanitizeInput(req.Description))
	if err != nil {
		h.fail(w, err, "Failed to credit wallet")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(summary, "Wallet credited"))
}

func (h *AdminHandler) withdrawalID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Invalid withdrawal ID")
		return "", false
	}
	return id, true
}
