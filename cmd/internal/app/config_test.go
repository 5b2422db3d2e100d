package app

import (
	"slices"
	"testing"
	"time"

	"eatsoon/cmd/internal/invitation"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"EATSOON_HTTP_ADDR", "EATSOON_DB_SCHEMA", "EATSOON_NOTIFY_CHANNEL",
		"EATSOON_ACCEPT_MAX_ATTEMPTS", "EATSOON_CORS_ALLOWED_ORIGINS", "EATSOON_LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("addr=%q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "eatsoon" || cfg.NotifyChannel != invitation.DefaultNotifyChannel {
		t.Fatalf("schema=%q channel=%q", cfg.DBSchema, cfg.NotifyChannel)
	}
	if cfg.AcceptMaxAttempts != 5 || cfg.CallableMaxBodyBytes != 16<<10 {
		t.Fatalf("attempts=%d body=%d", cfg.AcceptMaxAttempts, cfg.CallableMaxBodyBytes)
	}
	if cfg.CORSAllowedOrigins != nil || cfg.prettyLogs() {
		t.Fatalf("unexpected cors=%v pretty=%v", cfg.CORSAllowedOrigins, cfg.prettyLogs())
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("EATSOON_DB_SCHEMA", "eatsoon001")
	t.Setenv("EATSOON_ACCEPT_MAX_ATTEMPTS", "9")
	t.Setenv("EATSOON_HTTP_WRITE_TIMEOUT", "45s")
	t.Setenv("EATSOON_CORS_ALLOWED_ORIGINS", " https://a.example , ,http://127.0.0.1:* ")
	t.Setenv("EATSOON_LOG_FORMAT", "pretty")
	t.Setenv("EATSOON_DB_MAX_CONNS", "-3")

	cfg := LoadConfig()
	if cfg.DBSchema != "eatsoon001" || cfg.AcceptMaxAttempts != 9 {
		t.Fatalf("schema=%q attempts=%d", cfg.DBSchema, cfg.AcceptMaxAttempts)
	}
	if cfg.WriteTimeout != 45*time.Second {
		t.Fatalf("write timeout=%v", cfg.WriteTimeout)
	}
	if !slices.Equal(cfg.CORSAllowedOrigins, []string{"https://a.example", "http://127.0.0.1:*"}) {
		t.Fatalf("cors=%v", cfg.CORSAllowedOrigins)
	}
	if !cfg.prettyLogs() {
		t.Fatalf("expected pretty logs")
	}
	if cfg.DBMaxConns != 10 {
		t.Fatalf("negative max conns should fall back to default, got %d", cfg.DBMaxConns)
	}
}
