package dto

import "time"

type PaymentRequestResponse struct {
	ID            string     `json:"id"`
	UserID        int64      `json:"user_id"`
	Query         string     `json:"query"`
	ContentID     *string    `json:"content_id,omitempty"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	ProviderTxID  *string    `json:"provider_tx_id,omitempty"`
	MatchAttempts int        `json:"match_attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

type PendingDeliveryListResponse struct {
	Requests []PaymentRequestResponse `json:"requests"`
}

type DeliverResponse struct {
	OK        bool   `json:"ok"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type RefundResponse struct {
	OK        bool   `json:"ok"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type StatusCountsResponse struct {
	Counts map[string]int64 `json:"counts"`
}
