package payments

// Status is the lifecycle state of a payment
type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusPending           Status = "PENDING"
	StatusPaid              Status = "PAID"
	StatusCancelled         Status = "CANCELLED"
	StatusFailed            Status = "FAILED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
)

// IsValid checks if the payment status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusPending, StatusPaid, StatusCancelled, StatusFailed, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// Providers
const (
	ProviderPayme = "PAYME"
	ProviderClick = "CLICK"
)

// Payme transaction states
const (
	PaymeStateCreated            = 1
	PaymeStatePerformed          = 2
	PaymeStateCancelled          = -1
	PaymeStateCancelledAfterPaid = -2
)
