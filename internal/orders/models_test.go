package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder(now time.Time) *Order {
	exp := now.Add(time.Hour)
	return &Order{
		OrderID:       "ORD001",
		Amount:        1_500_000,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Items:         []Item{{BucketID: "b1", Adults: 2}},
		ExpiresAt:     &exp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestApplyClearsExpiryOnceOutOfPending(t *testing.T) {
	now := time.Now()
	o := pendingOrder(now)

	failed := PaymentFailed
	o.Apply(Update{PaymentStatus: &failed}, now)
	assert.Nil(t, o.ExpiresAt)
	assert.Equal(t, StatusPending, o.Status)
}

func TestApplyKeepsExpiryWhilePending(t *testing.T) {
	now := time.Now()
	o := pendingOrder(now)
	ref := "ORD001_20250101"
	o.Apply(Update{PaymentRef: &ref}, now)
	require.NotNil(t, o.ExpiresAt)
	assert.Equal(t, ref, o.PaymentRef)
}

func TestValidatePaidMustBeConfirmed(t *testing.T) {
	o := pendingOrder(time.Now())
	o.PaymentStatus = PaymentCompleted

	err := o.Validate()
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "INVALID_STATE", apperr.CodeOf(err))

	o.Status = StatusConfirmed
	assert.NoError(t, o.Validate())
}

func TestValidateRejectsBadItems(t *testing.T) {
	o := pendingOrder(time.Now())
	o.Items = []Item{{BucketID: "b1"}}
	assert.Equal(t, "INVALID_ITEM", apperr.CodeOf(o.Validate()))

	o.Items = []Item{{Adults: 1}}
	assert.Equal(t, "INVALID_ITEM", apperr.CodeOf(o.Validate()))
}

func TestOrderIDSeparator(t *testing.T) {
	assert.Error(t, ValidateOrderID("ORD_1"))
	assert.Error(t, ValidateOrderID(""))
	assert.NoError(t, ValidateOrderID("ORD001"))

	assert.Equal(t, "ORD001", OrderIDFromRef("ORD001_20250101123000"))
	assert.Equal(t, "ORD001", OrderIDFromRef("ORD001"))
}

func TestNewOrderID(t *testing.T) {
	now := time.Date(2025, 1, 14, 9, 30, 12, 0, time.UTC)
	id := NewOrderID(now)
	assert.True(t, strings.HasPrefix(id, "ORD250114093012"))
	assert.Len(t, id, len("ORD250114093012")+4)
	assert.NoError(t, ValidateOrderID(id))
}

func TestCloneIsDeep(t *testing.T) {
	o := pendingOrder(time.Now())
	c := o.Clone()
	c.Items[0].Adults = 9
	*c.ExpiresAt = c.ExpiresAt.Add(time.Hour)
	assert.Equal(t, 2, o.Items[0].Adults)
	assert.NotEqual(t, *o.ExpiresAt, *c.ExpiresAt)
}
