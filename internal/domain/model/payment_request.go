package model

import (
	"time"

	"github.com/contentgate/backend/internal/domain/enums"
)

type PaymentRequest struct {
	ID            string              `json:"id"`
	UserID        int64               `json:"user_id"`
	Query         string              `json:"query"`
	ContentID     *string             `json:"content_id,omitempty"`
	Status        enums.RequestStatus `json:"status"`
	Amount        int64               `json:"amount"`
	Currency      string              `json:"currency"`
	ProviderTxID  *string             `json:"provider_tx_id,omitempty"`
	MatchAttempts int                 `json:"match_attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt   *time.Time          `json:"delivered_at,omitempty"`
}
