package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

// errSkip marks events that produce no mail.
var errSkip = errors.New("no mail for event")

func vnd(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String() + " VND"
}

// Compose renders the customer mail for an event.
func Compose(env orders.Envelope) (Mail, error) {
	switch env.EventType {
	case orders.EventPaymentSucceeded:
		p, err := kafkax.UnwrapPayload[orders.PaymentSucceededPayload](env.Payload)
		if err != nil {
			return Mail{}, err
		}
		return Mail{
			To:      p.CustomerEmail,
			Subject: fmt.Sprintf("Xác nhận thanh toán đơn %s", p.OrderID),
			Text: fmt.Sprintf("Xin chào %s,\n\nChúng tôi đã nhận %s qua %s cho đơn %s.\nMã giao dịch: %s\n",
				p.CustomerName, vnd(p.Amount), p.Method, p.OrderID, p.TransactionID),
			Tag: env.EventType,
		}, nil
	case orders.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[orders.PaymentFailedPayload](env.Payload)
		if err != nil {
			return Mail{}, err
		}
		text := fmt.Sprintf("Thanh toán qua %s cho đơn %s không thành công: %s.\n", p.Method, p.OrderID, p.Reason)
		if p.RetryURL != "" {
			text += "Thử lại tại: " + p.RetryURL + "\n"
		}
		return Mail{To: p.CustomerEmail, Subject: fmt.Sprintf("Thanh toán đơn %s thất bại", p.OrderID), Text: text, Tag: env.EventType}, nil
	case orders.EventReviewInvitation:
		p, err := kafkax.UnwrapPayload[orders.ReviewInvitationPayload](env.Payload)
		if err != nil {
			return Mail{}, err
		}
		return Mail{
			To:      p.CustomerEmail,
			Subject: "Đánh giá chuyến đi của bạn",
			Text: fmt.Sprintf("Xin chào %s,\n\nCảm ơn bạn đã đi tour cùng chúng tôi. Hãy đánh giá tại %s (hết hạn %s).\n",
				p.CustomerName, p.ReviewURL, p.ExpiresAt.Format("02/01/2006")),
			Tag: env.EventType,
		}, nil
	}
	return Mail{}, errSkip
}

func decodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
