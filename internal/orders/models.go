package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/google/uuid"
)

// Bucket is the seat capacity of one tour departure date.
type Bucket struct {
	ID            string
	TourID        string
	DepartureDate time.Time
	Stock         int
	UpdatedAt     time.Time
}

type Item struct {
	BucketID string `json:"bucket_id"`
	Adults   int    `json:"adults"`
	Children int    `json:"children"`
	Infants  int    `json:"infants"`
}

// Seats is the number of seats the item occupies; infants count too.
func (it Item) Seats() int { return it.Adults + it.Children + it.Infants }

type Order struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id,omitempty"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	Amount        int64         `json:"amount"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Items         []Item        `json:"items"`
	StockDeducted bool          `json:"stock_deducted"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`

	ReviewToken          string     `json:"-"`
	ReviewTokenExpiredAt *time.Time `json:"-"`
	Reviewed             bool       `json:"reviewed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Review struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Update carries the fields a caller wants to change; nil means untouched.
type Update struct {
	Status        *Status
	PaymentStatus *PaymentStatus
	PaymentMethod *PaymentMethod
	PaymentRef    *string
	TransactionID *string
	FailureReason *string
	PaidAt        *time.Time
}

// AwaitingPayment is the pending/pending quadrant, the only one with an expiry.
func (o *Order) AwaitingPayment() bool {
	return o.Status == StatusPending && o.PaymentStatus == PaymentPending
}

// PaymentAbandoned is a pending order whose payment failed. It has no
// expiry, so it must not hold seats.
func (o *Order) PaymentAbandoned() bool {
	return o.Status == StatusPending && o.PaymentStatus == PaymentFailed
}

func (o *Order) Apply(u Update, now time.Time) {
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.PaymentStatus != nil {
		o.PaymentStatus = *u.PaymentStatus
	}
	if u.PaymentMethod != nil {
		o.PaymentMethod = *u.PaymentMethod
	}
	if u.PaymentRef != nil {
		o.PaymentRef = *u.PaymentRef
	}
	if u.TransactionID != nil {
		o.TransactionID = *u.TransactionID
	}
	if u.FailureReason != nil {
		o.FailureReason = *u.FailureReason
	}
	if u.PaidAt != nil {
		t := *u.PaidAt
		o.PaidAt = &t
	}
	if !o.AwaitingPayment() {
		o.ExpiresAt = nil
	}
	o.UpdatedAt = now
}

func (o *Order) Validate() error {
	if err := ValidateOrderID(o.OrderID); err != nil {
		return err
	}
	if o.Amount <= 0 {
		return apperr.Validation("INVALID_AMOUNT", "amount must be positive")
	}
	if !o.Status.Valid() {
		return apperr.Validation("INVALID_STATUS", fmt.Sprintf("unknown status %q", o.Status))
	}
	if !o.PaymentStatus.Valid() {
		return apperr.Validation("INVALID_PAYMENT_STATUS", fmt.Sprintf("unknown payment status %q", o.PaymentStatus))
	}
	if o.PaymentMethod != "" && !o.PaymentMethod.Valid() {
		return apperr.Validation("INVALID_PAYMENT_METHOD", fmt.Sprintf("unknown payment method %q", o.PaymentMethod))
	}
	if o.PaymentStatus == PaymentCompleted && o.Status != StatusConfirmed && o.Status != StatusCompleted {
		return apperr.Validation("INVALID_STATE", "a paid order must be confirmed or completed")
	}
	for _, it := range o.Items {
		if it.BucketID == "" {
			return apperr.Validation("INVALID_ITEM", "item without bucket")
		}
		if it.Adults < 0 || it.Children < 0 || it.Infants < 0 || it.Seats() == 0 {
			return apperr.Validation("INVALID_ITEM", fmt.Sprintf("invalid passenger counts for bucket %s", it.BucketID))
		}
	}
	return nil
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.ExpiresAt = cloneTime(o.ExpiresAt)
	c.PaidAt = cloneTime(o.PaidAt)
	c.ReviewTokenExpiredAt = cloneTime(o.ReviewTokenExpiredAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RefSeparator joins an order id with a gateway-specific suffix
// (VNPay txnRef, re-minted MoMo order ids).
const RefSeparator = "_"

func ValidateOrderID(id string) error {
	if id == "" {
		return apperr.Validation("INVALID_ORDER_ID", "order id is required")
	}
	if len(id) > 64 {
		return apperr.Validation("INVALID_ORDER_ID", "order id too long")
	}
	if strings.Contains(id, RefSeparator) {
		return apperr.Validation("INVALID_ORDER_ID", "order id must not contain "+RefSeparator)
	}
	return nil
}

// OrderIDFromRef strips a gateway suffix from a payment reference.
func OrderIDFromRef(ref string) string {
	if i := strings.Index(ref, RefSeparator); i >= 0 {
		return ref[:i]
	}
	return ref
}

// NewOrderID mints a human-readable id, e.g. ORD250114093012A1B2.
func NewOrderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return "ORD" + now.Format("060102150405") + suffix
}
