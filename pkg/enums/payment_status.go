package enums

// PaymentStatus tracks the gateway outcome recorded on an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

var paymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return known(paymentStatuses, p) }

// Settled reports whether the gateway has reported a final outcome.
func (p PaymentStatus) Settled() bool { return p != PaymentStatusPending }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(paymentStatuses, "payment status", value)
}
