package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"TIMER_DURATION_SEC", "LEAD_TIME", "DISPLAY_UTC_OFFSET_HOURS", "PAGE_SIZE", "HOLODEX_ORG", "DB_MAX_CONNS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.PollInterval)
	}
	if cfg.LeadTime != 22*time.Minute {
		t.Errorf("LeadTime = %v, want 22m", cfg.LeadTime)
	}
	if cfg.DisplayOffset != 3*time.Hour {
		t.Errorf("DisplayOffset = %v, want 3h", cfg.DisplayOffset)
	}
	if cfg.PageSize != 50 || cfg.LookaheadHours != 1 {
		t.Errorf("unexpected query defaults: page=%d lookahead=%d", cfg.PageSize, cfg.LookaheadHours)
	}
	if cfg.HolodexOrg != "Nijisanji" {
		t.Errorf("HolodexOrg = %q", cfg.HolodexOrg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TIMER_DURATION_SEC", "30")
	t.Setenv("LEAD_TIME", "15m")
	t.Setenv("DISPLAY_UTC_OFFSET_HOURS", "-5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.LeadTime != 15*time.Minute {
		t.Errorf("LeadTime = %v", cfg.LeadTime)
	}
	if cfg.DisplayOffset != -5*time.Hour {
		t.Errorf("DisplayOffset = %v", cfg.DisplayOffset)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"TIMER_DURATION_SEC": "soon",
		"LEAD_TIME":          "22",
		"PAGE_SIZE":          "fifty",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", k, v)
			}
		})
	}
	t.Run("non-positive interval", func(t *testing.T) {
		t.Setenv("TIMER_DURATION_SEC", "0")
		if _, err := Load(); err == nil {
			t.Error("expected error for zero interval")
		}
	})
}

func TestValidateBotReady(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("HOLODEX_API_KEY", "key")
	cfg, _ := Load()
	if err := cfg.ValidateBotReady(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
	t.Setenv("HOLODEX_API_KEY", "")
	cfg, _ = Load()
	if err := cfg.ValidateBotReady(); err == nil {
		t.Error("expected error when HOLODEX_API_KEY is missing")
	}
}
