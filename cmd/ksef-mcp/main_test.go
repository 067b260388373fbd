package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ksefmcp/ksef-mcp/pkg/models"
)

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ksef.yaml")
	if err := os.WriteFile(path, []byte("base_url: https://file.example/v2\nsession_token: file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KSEF_SESSION_TOKEN", "env")
	t.Setenv("KSEF_BASE_URL", "")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://file.example/v2" {
		t.Errorf("base url = %s", cfg.BaseURL)
	}
	if cfg.SessionToken != "env" {
		t.Errorf("session token = %s, want env override", cfg.SessionToken)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestFormatAuditEntries(t *testing.T) {
	if got := formatAuditEntries(nil); got != "No audit entries found.\n" {
		t.Errorf("empty = %q", got)
	}
	out := formatAuditEntries([]models.AuditEntry{{
		CallID:     "c1",
		Tool:       "get_invoice",
		IsError:    true,
		StatusCode: 404,
		ErrorText:  "API error (404):\n" + strings.Repeat("x", 100),
		LatencyMs:  12,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	for _, want := range []string{"get_invoice", "yes", "404", "12ms", "2026-01-02 03:04:05", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n") != 3 {
		t.Errorf("error text newline leaked into table:\n%s", out)
	}
}

func TestFormatAuditStats(t *testing.T) {
	out := formatAuditStats([]models.AuditStat{{Tool: "get_rate_limits", Day: "2026-01-02", Count: 3, Errors: 1}})
	if !strings.Contains(out, "get_rate_limits") || !strings.Contains(out, "2026-01-02") {
		t.Errorf("output:\n%s", out)
	}
}
