package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// State represents the tunnel connection state.
type State string

const (
	StateDisabled     State = "disabled"
	StateStopped      State = "stopped"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Config holds the tunnel configuration.
type Config struct {
	Token           string
	Enabled         bool
	CloudflaredPath string
}

// Status holds the current tunnel status.
type Status struct {
	State     State     `json:"state"`
	Hostname  string    `json:"hostname,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// StatusCallback is called whenever the tunnel state changes.
type StatusCallback func(Status)

// Manager supervises a cloudflared subprocess that exposes the local server
// through a Cloudflare tunnel.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback
	logger   *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	failures int
}

// NewManager creates a tunnel manager. The manager is inert until Start.
func NewManager(cfg Config, cb StatusCallback, logger *slog.Logger) *Manager {
	if cfg.CloudflaredPath == "" {
		cfg.CloudflaredPath = "cloudflared"
	}

	m := &Manager{
		cfg:      cfg,
		callback: cb,
		logger:   logger,
	}
	if cfg.Token == "" {
		m.status = Status{State: StateDisabled}
	} else {
		m.status = Status{State: StateStopped}
	}
	return m
}

// Enabled reports whether the manager is configured to run.
func (m *Manager) Enabled() bool {
	return m.cfg.Token != "" && m.cfg.Enabled
}

// Status returns the current tunnel status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Start launches the cloudflared subprocess. No-op if already running or
// not configured.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return nil
	}

	if m.cfg.Token == "" {
		m.setState(Status{State: StateDisabled})
		return nil
	}

	if _, err := exec.LookPath(m.cfg.CloudflaredPath); err != nil {
		m.setState(Status{State: StateError, Error: "cloudflared not found in PATH"})
		return fmt.Errorf("cloudflared not found: %w", err)
	}

	m.failures = 0
	childCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.setState(Status{State: StateConnecting, StartedAt: time.Now()})

	go m.run(childCtx)
	return nil
}

// Stop terminates the cloudflared subprocess and waits for the supervisor
// loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()

	if done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			m.logger.Warn("tunnel stop timed out")
		}
	}
}

// setState must be called with m.mu held.
func (m *Manager) setState(s Status) {
	m.status = s
	m.logger.Info("tunnel state changed", "state", s.State)
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		close(m.done)
		m.cancel = nil
		m.done = nil
		m.mu.Unlock()
	}()

	backoff := time.Second
	const maxBackoff = 60 * time.Second
	const maxFailures = 10

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.setState(Status{State: StateStopped})
			m.mu.Unlock()
			return
		default:
		}

		err := m.runOnce(ctx)

		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.setState(Status{State: StateStopped})
			m.mu.Unlock()
			return
		default:
		}

		m.mu.Lock()
		m.failures++
		failures := m.failures
		if failures >= maxFailures {
			errMsg := "too many consecutive failures"
			if err != nil {
				errMsg = err.Error()
			}
			m.setState(Status{State: StateError, Error: errMsg})
			m.mu.Unlock()
			return
		}
		m.setState(Status{State: StateReconnecting})
		m.mu.Unlock()

		m.logger.Warn("cloudflared exited, retrying",
			"error", err, "backoff", backoff, "attempt", failures, "max", maxFailures)

		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.setState(Status{State: StateStopped})
			m.mu.Unlock()
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) error {
	m.mu.RLock()
	token := m.cfg.Token
	path := m.cfg.CloudflaredPath
	m.mu.RUnlock()

	cmd := exec.CommandContext(ctx, path, "tunnel", "run", "--token", token)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start cloudflared: %w", err)
	}

	events := make(chan logEvent, 16)
	go watchLogs(stderr, events)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case ev := <-events:
			m.mu.Lock()
			switch ev.state {
			case StateConnected:
				s := Status{State: StateConnected, StartedAt: m.status.StartedAt}
				if ev.hostname != "" {
					s.Hostname = ev.hostname
				} else {
					s.Hostname = m.status.Hostname
				}
				m.failures = 0
				m.setState(s)
			case StateReconnecting:
				m.setState(Status{
					State:     StateReconnecting,
					StartedAt: m.status.StartedAt,
					Hostname:  m.status.Hostname,
				})
			}
			m.mu.Unlock()

		case err := <-done:
			return err
		}
	}
}
