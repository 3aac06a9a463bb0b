package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults should succeed: %v", err)
	}

	if cfg.Price.CacheTTL != 60*time.Second {
		t.Fatalf("price cache TTL default wrong: %s", cfg.Price.CacheTTL)
	}
	if cfg.Price.Currency != "ils" {
		t.Fatalf("currency default wrong: %s", cfg.Price.Currency)
	}
	if cfg.Ton.Lookback != 15*time.Minute {
		t.Fatalf("lookback default wrong: %s", cfg.Ton.Lookback)
	}
	if cfg.Providers.PageLimit != 50 {
		t.Fatalf("page limit default wrong: %d", cfg.Providers.PageLimit)
	}
	if cfg.HTTP.RequestsPerMin != 120 {
		t.Fatalf("rate limit default wrong: %d", cfg.HTTP.RequestsPerMin)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load should succeed: %v", err)
	}

	cfg.Ton.MinDonationTon = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero minimum donation should fail validation")
	}
	cfg.Ton.MinDonationTon = 1

	cfg.Notify.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("telegram enabled without credentials should fail validation")
	}
	cfg.Notify.Telegram.BotToken = "t"
	cfg.Notify.Telegram.ChatID = "c"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validation should pass with credentials: %v", err)
	}
}
