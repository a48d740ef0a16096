package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	ledgersvc "github.com/contentgate/backend/internal/services/ledger"
	"github.com/contentgate/backend/internal/transport/http/dto"
	httperrors "github.com/contentgate/backend/internal/transport/http/errors"

	"github.com/contentgate/backend/internal/domain/model"
)

type Deliverer interface {
	AttemptDelivery(ctx context.Context, requestID string) error
}

type RequestsHandler struct {
	ledger    *ledgersvc.Service
	deliverer Deliverer
}

func NewRequestsHandler(ledger *ledgersvc.Service) *RequestsHandler {
	return &RequestsHandler{ledger: ledger}
}

func (h *RequestsHandler) AttachDeliverer(deliverer Deliverer) {
	h.deliverer = deliverer
}

func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "LEDGER_SERVICE_UNAVAILABLE", "ledger service is unavailable")
		return
	}

	request, err := h.ledger.Request(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ledgersvc.ErrRequestNotFound) {
			httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
				Code:    "NOT_FOUND",
				Message: "payment request not found",
			})
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load payment request")
		return
	}

	httperrors.Write(w, http.StatusOK, requestToDTO(request))
}

// Pending lists paid requests whose content has not been delivered yet.
func (h *RequestsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "LEDGER_SERVICE_UNAVAILABLE", "ledger service is unavailable")
		return
	}

	requests, err := h.ledger.ListPendingDelivery(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list pending deliveries")
		return
	}

	resp := dto.PendingDeliveryListResponse{Requests: make([]dto.PaymentRequestResponse, 0, len(requests))}
	for _, request := range requests {
		resp.Requests = append(resp.Requests, requestToDTO(request))
	}

	httperrors.Write(w, http.StatusOK, resp)
}

// Deliver triggers a delivery attempt for one paid request.
func (h *RequestsHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "LEDGER_SERVICE_UNAVAILABLE", "ledger service is unavailable")
		return
	}
	if h.deliverer == nil {
		writeInternal(w, "DELIVERY_SERVICE_UNAVAILABLE", "delivery coordinator is unavailable")
		return
	}

	requestID := chi.URLParam(r, "id")
	if err := h.deliverer.AttemptDelivery(r.Context(), requestID); err != nil {
		if errors.Is(err, ledgersvc.ErrRequestNotFound) {
			httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
				Code:    "NOT_FOUND",
				Message: "payment request not found",
			})
			return
		}
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "DELIVERY_FAILED",
			Message: err.Error(),
		})
		return
	}

	request, err := h.ledger.Request(r.Context(), requestID)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to reload payment request")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.DeliverResponse{
		OK:        true,
		RequestID: request.ID,
		Status:    string(request.Status),
	})
}

func (h *RequestsHandler) Refund(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "LEDGER_SERVICE_UNAVAILABLE", "ledger service is unavailable")
		return
	}

	request, err := h.ledger.Refund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, ledgersvc.ErrRequestNotFound):
			httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
				Code:    "NOT_FOUND",
				Message: "payment request not found",
			})
		case errors.Is(err, ledgersvc.ErrInvalidTransition):
			httperrors.Write(w, http.StatusConflict, httperrors.APIError{
				Code:    "INVALID_TRANSITION",
				Message: "only paid or delivered requests can be refunded",
			})
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to refund payment request")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.RefundResponse{
		OK:        true,
		RequestID: request.ID,
		Status:    string(request.Status),
	})
}

func (h *RequestsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "LEDGER_SERVICE_UNAVAILABLE", "ledger service is unavailable")
		return
	}

	counts, err := h.ledger.CountsByStatus(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to count requests")
		return
	}

	resp := dto.StatusCountsResponse{Counts: make(map[string]int64, len(counts))}
	for status, count := range counts {
		resp.Counts[string(status)] = count
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func requestToDTO(request model.PaymentRequest) dto.PaymentRequestResponse {
	return dto.PaymentRequestResponse{
		ID:            request.ID,
		UserID:        request.UserID,
		Query:         request.Query,
		ContentID:     request.ContentID,
		Status:        string(request.Status),
		Amount:        request.Amount,
		Currency:      request.Currency,
		ProviderTxID:  request.ProviderTxID,
		MatchAttempts: request.MatchAttempts,
		CreatedAt:     request.CreatedAt,
		ExpiresAt:     request.ExpiresAt,
		PaidAt:        request.PaidAt,
		DeliveredAt:   request.DeliveredAt,
	}
}
