package dto

type ReferralStatsResponse struct {
	ReferrerID     int64 `json:"referrer_id"`
	ReferredUsers  int64 `json:"referred_users"`
	PendingCount   int64 `json:"pending_count"`
	PendingAmount  int64 `json:"pending_amount"`
	CreditedCount  int64 `json:"credited_count"`
	CreditedAmount int64 `json:"credited_amount"`
}
