package tunnel

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

var hostnamePattern = regexp.MustCompile(`https?://([a-zA-Z0-9-]+\.trycloudflare\.com)`)

// logEvent is a state change parsed from cloudflared output.
type logEvent struct {
	state    State
	hostname string
}

// parseLine examines a single cloudflared stderr line and returns a logEvent
// if the line indicates a state change, or nil otherwise.
func parseLine(line string) *logEvent {
	switch {
	case strings.Contains(line, "Registered tunnel connection") ||
		strings.Contains(line, "registered connIndex="):
		ev := &logEvent{state: StateConnected}
		if m := hostnamePattern.FindStringSubmatch(line); len(m) > 1 {
			ev.hostname = m[1]
		}
		return ev

	case strings.Contains(line, "Unregistered tunnel connection"):
		return &logEvent{state: StateReconnecting}

	case strings.Contains(line, "failed to connect"):
		return &logEvent{state: StateReconnecting}

	default:
		// Quick tunnels print their assigned hostname on a plain INF line.
		if strings.Contains(line, "INF") {
			if m := hostnamePattern.FindStringSubmatch(line); len(m) > 1 {
				return &logEvent{state: StateConnected, hostname: m[1]}
			}
		}
		return nil
	}
}

// watchLogs reads lines from r and forwards parsed events. It returns when r
// is exhausted, typically because the process exited.
func watchLogs(r io.Reader, events chan<- logEvent) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ev := parseLine(scanner.Text()); ev != nil {
			events <- *ev
		}
	}
}
