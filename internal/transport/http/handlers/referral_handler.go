package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	referralsvc "github.com/contentgate/backend/internal/services/referral"
	"github.com/contentgate/backend/internal/transport/http/dto"
	httperrors "github.com/contentgate/backend/internal/transport/http/errors"
)

type ReferralHandler struct {
	engine *referralsvc.Engine
}

func NewReferralHandler(engine *referralsvc.Engine) *ReferralHandler {
	return &ReferralHandler{engine: engine}
}

func (h *ReferralHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeInternal(w, "REFERRAL_SERVICE_UNAVAILABLE", "referral engine is unavailable")
		return
	}

	referrerID, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || referrerID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid referrer id")
		return
	}

	stats, err := h.engine.Stats(r.Context(), referrerID)
	if err != nil {
		if errors.Is(err, referralsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid referrer id")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load referral stats")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ReferralStatsResponse{
		ReferrerID:     referrerID,
		ReferredUsers:  stats.ReferredUsers,
		PendingCount:   stats.PendingCount,
		PendingAmount:  stats.PendingAmount,
		CreditedCount:  stats.CreditedCount,
		CreditedAmount: stats.CreditedAmount,
	})
}
