package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/monitoring"
	"github.com/jwhitden/muster/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds snapshot manager configuration.
type Config struct {
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	DBPath     string
	Passphrase string
	Interval   time.Duration
	Retain     int
}

// State represents the snapshot manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current snapshot manager status.
type Status struct {
	State      State      `json:"state"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the snapshot state changes.
type StatusCallback func(Status)

// Manager uploads encrypted database snapshots to S3-compatible storage.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback

	db        *sql.DB
	snapshots *store.SnapshotStore
	client    s3Client
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a snapshot manager. It stays disabled until bucket,
// credentials, and passphrase are all configured.
func NewManager(cfg Config, db *sql.DB, snapshots *store.SnapshotStore, callback StatusCallback, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		db:        db,
		snapshots: snapshots,
		callback:  callback,
		logger:    logger,
		status:    Status{State: StateDisabled},
	}

	if cfg.S3Bucket != "" && cfg.S3AccessKey != "" && cfg.S3SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg)
		m.status.State = StateIdle
	}

	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.S3Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether the manager is configured to run.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Start begins the scheduled snapshot loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cfg.Interval <= 0 {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.run(ctx); err != nil {
					m.logger.Error("scheduled snapshot failed", "error", err)
				}
				if err := m.prune(ctx); err != nil {
					m.logger.Error("snapshot prune failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the snapshot manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current snapshot status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// RunNow runs a snapshot immediately and returns the snapshot record id.
func (m *Manager) RunNow(ctx context.Context) (int64, error) {
	id, err := m.run(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.prune(ctx); err != nil {
		m.logger.Error("snapshot prune failed", "error", err)
	}
	return id, nil
}

func (m *Manager) run(ctx context.Context) (int64, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3Bucket
	passphrase := m.cfg.Passphrase
	dbPath := m.cfg.DBPath
	m.mu.RUnlock()

	if client == nil {
		return 0, fmt.Errorf("snapshots not configured: S3 credentials or passphrase missing")
	}

	m.setStatus(Status{State: StateRunning, InProgress: true})

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	filename := fmt.Sprintf("snapshot-%s.db.enc", timestamp)
	s3Key := fmt.Sprintf("snapshots/%s/%s", uuid.NewString(), filename)

	record, err := m.snapshots.Create(filename, s3Key)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		monitoring.TrackSnapshotRun("error")
		return 0, fmt.Errorf("create snapshot record: %w", err)
	}

	m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusUploading, "")

	tmpDir := os.TempDir()
	dbCopy := filepath.Join(tmpDir, fmt.Sprintf("muster-snapshot-%d.db", record.ID))
	encFile := filepath.Join(tmpDir, fmt.Sprintf("muster-snapshot-%d.db.enc", record.ID))
	defer os.Remove(dbCopy)
	defer os.Remove(encFile)

	// Checkpoint WAL and copy database
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusFailed, err.Error())
		m.setStatus(Status{State: StateError, Error: err.Error()})
		monitoring.TrackSnapshotRun("error")
		return 0, fmt.Errorf("wal checkpoint: %w", err)
	}

	if err := copyFile(dbPath, dbCopy); err != nil {
		m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusFailed, err.Error())
		m.setStatus(Status{State: StateError, Error: err.Error()})
		monitoring.TrackSnapshotRun("error")
		return 0, fmt.Errorf("copy database: %w", err)
	}

	// Encrypt
	if err := EncryptFile(dbCopy, encFile, passphrase); err != nil {
		m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusFailed, err.Error())
		m.setStatus(Status{State: StateError, Error: err.Error()})
		monitoring.TrackSnapshotRun("error")
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	// Upload to S3 with exponential backoff
	encData, err := os.Open(encFile)
	if err != nil {
		m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusFailed, err.Error())
		m.setStatus(Status{State: StateError, Error: err.Error()})
		monitoring.TrackSnapshotRun("error")
		return 0, fmt.Errorf("open encrypted file: %w", err)
	}
	defer encData.Close()

	stat, _ := encData.Stat()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := encData.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(s3Key),
			Body:          encData,
			ContentLength: aws.Int64(stat.Size()),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusFailed, err.Error())
		m.setStatus(Status{State: StateError, Error: err.Error()})
		monitoring.TrackSnapshotRun("error")
		return 0, fmt.Errorf("upload to s3: %w", err)
	}

	m.snapshots.UpdateCompleted(record.ID, stat.Size())

	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastRun: &now})
	monitoring.TrackSnapshotRun("ok")

	return record.ID, nil
}

// prune deletes completed snapshots beyond the configured retention count.
func (m *Manager) prune(ctx context.Context) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3Bucket
	retain := m.cfg.Retain
	m.mu.RUnlock()

	if client == nil || retain <= 0 {
		return nil
	}

	old, err := m.snapshots.CompletedBeyond(retain)
	if err != nil {
		return fmt.Errorf("list prunable snapshots: %w", err)
	}

	for _, snap := range old {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(snap.S3Key),
		}); err != nil {
			m.logger.Warn("delete s3 object", "key", snap.S3Key, "error", err)
			continue
		}
		if err := m.snapshots.Delete(snap.ID); err != nil {
			m.logger.Warn("delete snapshot record", "id", snap.ID, "error", err)
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
