package payment

import (
	"strings"
	"testing"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/stretchr/testify/assert"
)

func TestHMACKnownVectors(t *testing.T) {
	// RFC 4231 test case 2
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		HMACSHA256Hex("Jefe", "what do ya want for nothing?"))
	assert.True(t, strings.HasPrefix(
		HMACSHA512Hex("Jefe", "what do ya want for nothing?"),
		"164b7a7bfcf819e2e395fbe73b56e0a387bd64222e831fd610270cd7ea250554"))
}

func TestSignatureEqual(t *testing.T) {
	sig := HMACSHA256Hex("k", "data")
	assert.True(t, SignatureEqual(sig, sig))
	assert.True(t, SignatureEqual(sig, strings.ToUpper(sig)))
	assert.False(t, SignatureEqual(sig, HMACSHA256Hex("k", "datA")))
	assert.False(t, SignatureEqual(sig, "zz"))
	assert.False(t, SignatureEqual(sig, ""))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(orders.MethodCash)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "UNSUPPORTED_PAYMENT_METHOD", apperr.CodeOf(err))
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{OrderID: "ORD1", Amount: 10}.Validate())
	assert.Error(t, Request{OrderID: "ORD_1", Amount: 10}.Validate())
	assert.Error(t, Request{OrderID: "ORD1"}.Validate())
}
