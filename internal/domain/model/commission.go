package model

import (
	"time"

	"github.com/contentgate/backend/internal/domain/enums"
)

type ReferralCommission struct {
	ID         string                 `json:"id"`
	ReferrerID int64                  `json:"referrer_id"`
	ReferredID int64                  `json:"referred_id"`
	RequestID  string                 `json:"request_id"`
	Amount     int64                  `json:"amount"`
	Status     enums.CommissionStatus `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}
