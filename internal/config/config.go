package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration, loaded from MUSTER_* environment
// variables.
type Config struct {
	Port         string `env:"MUSTER_PORT" envDefault:"8080"`
	BaseURL      string `env:"MUSTER_BASE_URL" envDefault:"http://localhost:8080"`
	DatabasePath string `env:"MUSTER_DB_PATH" envDefault:"muster.db"`

	LogLevel  string `env:"MUSTER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"MUSTER_LOG_FORMAT" envDefault:"text"`

	SessionTTL     time.Duration `env:"MUSTER_SESSION_TTL" envDefault:"720h"`
	AuthRateLimit  int           `env:"MUSTER_AUTH_RATE_LIMIT" envDefault:"10"`
	AuthRateWindow time.Duration `env:"MUSTER_AUTH_RATE_WINDOW" envDefault:"1m"`

	InviteSigningKey string `env:"MUSTER_INVITE_SIGNING_KEY"`

	RSVP     RSVPConfig
	Push     PushConfig
	Email    EmailConfig
	Tunnel   TunnelConfig
	Snapshot SnapshotConfig
}

// RSVPConfig controls optional RSVP engine behavior.
type RSVPConfig struct {
	PendingEnabled      bool `env:"MUSTER_RSVP_PENDING_ENABLED" envDefault:"true"`
	AllowPrimaryRemoval bool `env:"MUSTER_RSVP_ALLOW_PRIMARY_REMOVAL" envDefault:"false"`
	AutoPromoteWaitlist bool `env:"MUSTER_RSVP_AUTO_PROMOTE" envDefault:"true"`
}

// PushConfig holds web push settings. Push is disabled when the VAPID key
// pair is empty.
type PushConfig struct {
	VAPIDPublicKey   string        `env:"MUSTER_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey  string        `env:"MUSTER_VAPID_PRIVATE_KEY"`
	Subscriber       string        `env:"MUSTER_VAPID_SUBSCRIBER" envDefault:"mailto:noreply@muster.app"`
	ReminderLead     time.Duration `env:"MUSTER_REMINDER_LEAD" envDefault:"24h"`
	ReminderInterval time.Duration `env:"MUSTER_REMINDER_INTERVAL" envDefault:"1h"`
}

// EmailConfig holds Postmark settings. Invite emails are disabled when the
// server token is empty.
type EmailConfig struct {
	PostmarkToken string `env:"MUSTER_POSTMARK_TOKEN"`
	FromEmail     string `env:"MUSTER_EMAIL_FROM" envDefault:"noreply@muster.app"`
}

// TunnelConfig holds Cloudflare tunnel settings. The tunnel is disabled when
// the token is empty.
type TunnelConfig struct {
	Token           string `env:"MUSTER_TUNNEL_TOKEN"`
	Enabled         bool   `env:"MUSTER_TUNNEL_ENABLED" envDefault:"false"`
	CloudflaredPath string `env:"MUSTER_CLOUDFLARED_PATH"`
}

// SnapshotConfig holds encrypted database snapshot settings. Snapshots are
// disabled when the bucket or credentials are empty.
type SnapshotConfig struct {
	S3Endpoint  string        `env:"MUSTER_S3_ENDPOINT"`
	S3Region    string        `env:"MUSTER_S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string        `env:"MUSTER_S3_BUCKET"`
	S3AccessKey string        `env:"MUSTER_S3_ACCESS_KEY"`
	S3SecretKey string        `env:"MUSTER_S3_SECRET_KEY"`
	Passphrase  string        `env:"MUSTER_SNAPSHOT_PASSPHRASE"`
	Interval    time.Duration `env:"MUSTER_SNAPSHOT_INTERVAL" envDefault:"24h"`
	Retain      int           `env:"MUSTER_SNAPSHOT_RETAIN" envDefault:"14"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
