package enums

type RequestStatus string

const (
	RequestStatusPendingMatch    RequestStatus = "pending_match"
	RequestStatusAwaitingPayment RequestStatus = "awaiting_payment"
	RequestStatusPaid            RequestStatus = "paid"
	RequestStatusDelivered       RequestStatus = "delivered"
	RequestStatusExpired         RequestStatus = "expired"
	RequestStatusRefunded        RequestStatus = "refunded"
)

// Terminal reports whether a request in this status can never transition again.
// Refunds from DELIVERED are the one admin-driven exception.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusDelivered, RequestStatusExpired, RequestStatusRefunded:
		return true
	default:
		return false
	}
}

func (s RequestStatus) Active() bool {
	return !s.Terminal()
}
