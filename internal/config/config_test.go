package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PUBLIC_BASE_URL", "https://tours.example.vn")
	cfg := Load()

	assert.Equal(t, time.Hour, cfg.OrderTTL)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 100, cfg.CleanupBatch)
	assert.Equal(t, 15*time.Second, cfg.GatewayTimeout)
	assert.False(t, cfg.DedupNotifications)
	assert.Equal(t, "https://tours.example.vn/payments/momo/ipn", cfg.MoMo.IPNURL)
	assert.Equal(t, "https://tours.example.vn/payments/vnpay/return", cfg.VNPay.ReturnURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CLEANUP_INTERVAL", "30s")
	t.Setenv("CALLBACK_DEDUP_NOTIFICATIONS", "true")
	t.Setenv("ORDER_TTL", "not-a-duration")
	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.True(t, cfg.DedupNotifications)
	assert.Equal(t, time.Hour, cfg.OrderTTL)
}
