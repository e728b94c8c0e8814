package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cashback-service/internal/service"
)

type ReferralAPI interface {
	Stats(ctx context.Context, referrerID string) (*service.ReferralSummary, error)
}

type ReferralHandler struct {
	responder
	referrals ReferralAPI
}

func NewReferralHandler(referrals ReferralAPI, logger *zap.Logger) *ReferralHandler {
	return &ReferralHandler{responder: responder{logger: logger}, referrals: referrals}
}

func (h *ReferralHandler) RegisterRoutes(router chi.Router) {
	router.Get("/referrals", h.GetReferrals)
}

func (h *ReferralHandler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	summary, err := h.referrals.Stats(r.Context(), userID(r))
	if err != nil {
		h.fail(w, err, "Failed to load referrals")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(summary, ""))
}
