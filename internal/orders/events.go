package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventPaymentSucceeded = "PaymentSucceeded"
	EventPaymentFailed    = "PaymentFailed"
	EventOrderExpired     = "OrderExpired"
	EventReviewInvitation = "ReviewInvitation"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "booking-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, orderID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}

type OrderCreatedPayload struct {
	OrderID       string `json:"order_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
	Amount        int64  `json:"amount"`
	Items         []Item `json:"items"`
}

type PaymentSucceededPayload struct {
	OrderID       string        `json:"order_id"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	Amount        int64         `json:"amount"`
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transaction_id,omitempty"`
	PaidAt        time.Time     `json:"paid_at"`
}

type PaymentFailedPayload struct {
	OrderID       string        `json:"order_id"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	Method        PaymentMethod `json:"method"`
	Reason        string        `json:"reason"`
	RetryURL      string        `json:"retry_url,omitempty"`
}

type OrderExpiredPayload struct {
	OrderID string `json:"order_id"`
}

type ReviewInvitationPayload struct {
	OrderID       string    `json:"order_id"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerEmail string    `json:"customer_email"`
	ReviewURL     string    `json:"review_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}
