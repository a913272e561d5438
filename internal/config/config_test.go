package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabasePath != "muster.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "muster.db")
	}
	if cfg.SessionTTL != 720*time.Hour {
		t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, 720*time.Hour)
	}
	if !cfg.RSVP.PendingEnabled {
		t.Error("RSVP.PendingEnabled should default to true")
	}
	if cfg.RSVP.AllowPrimaryRemoval {
		t.Error("RSVP.AllowPrimaryRemoval should default to false")
	}
	if cfg.Snapshot.Retain != 14 {
		t.Errorf("Snapshot.Retain = %d, want 14", cfg.Snapshot.Retain)
	}
	if cfg.Email.FromEmail != "noreply@muster.app" {
		t.Errorf("Email.FromEmail = %q, want default", cfg.Email.FromEmail)
	}
	if cfg.Tunnel.Enabled {
		t.Error("Tunnel.Enabled should default to false")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MUSTER_PORT", "9090")
	t.Setenv("MUSTER_LOG_FORMAT", "json")
	t.Setenv("MUSTER_RSVP_PENDING_ENABLED", "false")
	t.Setenv("MUSTER_REMINDER_LEAD", "30m")
	t.Setenv("MUSTER_S3_BUCKET", "muster-snapshots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
	}
	if cfg.RSVP.PendingEnabled {
		t.Error("RSVP.PendingEnabled should be false")
	}
	if cfg.Push.ReminderLead != 30*time.Minute {
		t.Errorf("Push.ReminderLead = %v, want %v", cfg.Push.ReminderLead, 30*time.Minute)
	}
	if cfg.Snapshot.S3Bucket != "muster-snapshots" {
		t.Errorf("Snapshot.S3Bucket = %q, want %q", cfg.Snapshot.S3Bucket, "muster-snapshots")
	}
}
