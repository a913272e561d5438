package tunnel

import (
	"log/slog"
	"strings"
	"testing"
)

func TestNewManagerEmptyToken(t *testing.T) {
	m := NewManager(Config{}, nil, slog.Default())
	if s := m.Status(); s.State != StateDisabled {
		t.Errorf("expected StateDisabled, got %s", s.State)
	}
}

func TestNewManagerTokenDisabled(t *testing.T) {
	m := NewManager(Config{Token: "test-token", Enabled: false}, nil, slog.Default())
	if s := m.Status(); s.State != StateStopped {
		t.Errorf("expected StateStopped, got %s", s.State)
	}
}

func TestNewManagerDefaultCloudflaredPath(t *testing.T) {
	m := NewManager(Config{Token: "test-token"}, nil, slog.Default())
	if m.cfg.CloudflaredPath != "cloudflared" {
		t.Errorf("expected default cloudflared path, got %q", m.cfg.CloudflaredPath)
	}
}

func TestEnabled(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"token and enabled", Config{Token: "tok", Enabled: true}, true},
		{"token only", Config{Token: "tok"}, false},
		{"enabled without token", Config{Enabled: true}, false},
		{"neither", Config{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(tc.cfg, nil, slog.Default())
			if got := m.Enabled(); got != tc.want {
				t.Errorf("Enabled() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStatusCallbackInvoked(t *testing.T) {
	var called bool
	var gotStatus Status
	cb := func(s Status) {
		called = true
		gotStatus = s
	}

	m := NewManager(Config{Token: "test-token", Enabled: true}, cb, slog.Default())
	m.mu.Lock()
	m.setState(Status{State: StateConnecting})
	m.mu.Unlock()

	if !called {
		t.Error("expected callback to be called")
	}
	if gotStatus.State != StateConnecting {
		t.Errorf("expected StateConnecting, got %s", gotStatus.State)
	}
}

func TestStopNoOpWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Token: "test-token", Enabled: false}, nil, slog.Default())
	m.Stop()
	if s := m.Status(); s.State != StateStopped {
		t.Errorf("expected StateStopped, got %s", s.State)
	}
}

func TestParseLineRegistered(t *testing.T) {
	line := `2026-01-01T00:00:00Z INF registered connIndex=0 connection=abc123`
	ev := parseLine(line)
	if ev == nil {
		t.Fatal("expected event, got nil")
	}
	if ev.state != StateConnected {
		t.Errorf("expected StateConnected, got %s", ev.state)
	}
}

func TestParseLineUnregistered(t *testing.T) {
	line := `2026-01-01T00:00:00Z INF Unregistered tunnel connection connIndex=0`
	ev := parseLine(line)
	if ev == nil {
		t.Fatal("expected event, got nil")
	}
	if ev.state != StateReconnecting {
		t.Errorf("expected StateReconnecting, got %s", ev.state)
	}
}

func TestParseLineHostnameExtraction(t *testing.T) {
	line := `2026-01-01T00:00:00Z INF | https://muster-demo.trycloudflare.com`
	ev := parseLine(line)
	if ev == nil {
		t.Fatal("expected event, got nil")
	}
	if ev.hostname != "muster-demo.trycloudflare.com" {
		t.Errorf("expected quick tunnel hostname, got %q", ev.hostname)
	}
}

func TestParseLineNoMatch(t *testing.T) {
	line := `2026-01-01T00:00:00Z DBG some debug message`
	if ev := parseLine(line); ev != nil {
		t.Errorf("expected nil, got %+v", ev)
	}
}

func TestWatchLogs(t *testing.T) {
	input := strings.NewReader(
		"2026-01-01T00:00:00Z INF registered connIndex=0\n" +
			"2026-01-01T00:00:01Z DBG something\n" +
			"2026-01-01T00:00:02Z INF Unregistered tunnel connection\n",
	)

	events := make(chan logEvent, 10)
	watchLogs(input, events)
	close(events)

	var collected []logEvent
	for ev := range events {
		collected = append(collected, ev)
	}

	if len(collected) != 2 {
		t.Fatalf("expected 2 events, got %d", len(collected))
	}
	if collected[0].state != StateConnected {
		t.Errorf("event 0: expected StateConnected, got %s", collected[0].state)
	}
	if collected[1].state != StateReconnecting {
		t.Errorf("event 1: expected StateReconnecting, got %s", collected[1].state)
	}
}
