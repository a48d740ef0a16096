package enums

type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "pending"
	CommissionStatusCredited CommissionStatus = "credited"
	CommissionStatusReversed CommissionStatus = "reversed"
)
