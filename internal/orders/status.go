package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentRefund    PaymentStatus = "refund"
)

type PaymentMethod string

const (
	MethodMoMo  PaymentMethod = "MoMo"
	MethodVNPay PaymentMethod = "VNPay"
	MethodCash  PaymentMethod = "Cash"
)

// expired -> confirmed covers a gateway success that lands after the sweep.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true, StatusExpired: true},
	StatusConfirmed: {StatusCompleted: true, StatusCancelled: true},
	StatusExpired:   {StatusConfirmed: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentExpired, PaymentRefund:
		return true
	}
	return false
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodMoMo, MethodVNPay, MethodCash:
		return true
	}
	return false
}

// ReleasesStock reports whether entering s gives the seats back.
func (s Status) ReleasesStock() bool {
	return s == StatusCancelled || s == StatusExpired
}
