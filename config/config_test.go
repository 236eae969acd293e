package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.EmailBackend != "console" {
		t.Errorf("EmailBackend = %q, want console", cfg.EmailBackend)
	}
	if cfg.BulkDay1 != 1 || cfg.BulkDay2 != 15 {
		t.Errorf("digest days = %d/%d, want 1/15", cfg.BulkDay1, cfg.BulkDay2)
	}
	if cfg.Retention() != 30*24*time.Hour {
		t.Errorf("Retention = %v, want 720h", cfg.Retention())
	}
	if cfg.CheckInterval != time.Hour {
		t.Errorf("CheckInterval = %v, want 1h", cfg.CheckInterval)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location = %v, %v, want UTC", loc, err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COMPLIANCE_PORT", "9091")
	t.Setenv("COMPLIANCE_NOTIFY_HOUR", "6")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9091 {
		t.Errorf("Port = %d, want 9091", cfg.Port)
	}
	if cfg.NotifyHour != 6 {
		t.Errorf("NotifyHour = %d, want 6", cfg.NotifyHour)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"COMPLIANCE_EMAIL_BACKEND": "smtp"}},
		{"sendgrid without key", map[string]string{"COMPLIANCE_EMAIL_BACKEND": "sendgrid"}},
		{"digest day out of range", map[string]string{"COMPLIANCE_BULK_DAY1": "31"}},
		{"notify hour out of range", map[string]string{"COMPLIANCE_NOTIFY_HOUR": "24"}},
		{"bad timezone", map[string]string{"COMPLIANCE_TIMEZONE": "Mars/Olympus"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Errorf("Load accepted %v", tc.env)
			}
		})
	}
}
