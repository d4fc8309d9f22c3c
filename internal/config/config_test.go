package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	t.Setenv("EVENT_TRANSPORT", "")
	t.Setenv("CACHE_TTL_SHORT", "")

	cfg := Load("catalog")

	assert.Equal(t, "catalog", cfg.ServiceName)
	assert.Equal(t, "redis", cfg.EventTransport)
	assert.Equal(t, 5*time.Minute, cfg.Cache.Short)
	assert.Equal(t, 30*time.Minute, cfg.Cache.Medium)
	assert.Equal(t, time.Hour, cfg.Cache.Long)
	assert.True(t, cfg.Pricing.TaxRate.IsZero())
	assert.Contains(t, cfg.PostgresDSN, "/catalog?")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("EVENT_TRANSPORT", "Kafka")
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("CACHE_TTL_LONG", "90m")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg := Load("orders")

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "kafka", cfg.EventTransport)
	assert.True(t, decimal.RequireFromString("0.08").Equal(cfg.Pricing.TaxRate))
	assert.Equal(t, 90*time.Minute, cfg.Cache.Long)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_TTL_MEDIUM", "soon")
	t.Setenv("SHIPPING_FLAT", "five")

	cfg := Load("orders")

	assert.Equal(t, 30*time.Minute, cfg.Cache.Medium)
	assert.True(t, cfg.Pricing.ShippingFlat.IsZero())
}
