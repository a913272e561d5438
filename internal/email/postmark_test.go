package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendInvite(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", WithAPIURL(server.URL))

	startsAt := time.Date(2026, time.September, 12, 18, 30, 0, 0, time.UTC)
	err := client.SendInvite("alice@example.com", "Game Night", "https://muster.test/invites/abc123", startsAt)
	if err != nil {
		t.Fatalf("send invite: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", received.To, "alice@example.com")
	}
	if received.From != "noreply@example.com" {
		t.Errorf("From = %q, want %q", received.From, "noreply@example.com")
	}
	if received.Subject != "You're invited to Game Night" {
		t.Errorf("Subject = %q, want invite subject", received.Subject)
	}
	if !strings.Contains(received.TextBody, "https://muster.test/invites/abc123") {
		t.Errorf("expected invite link in text body, got %q", received.TextBody)
	}
	if !strings.Contains(received.HtmlBody, `href="https://muster.test/invites/abc123"`) {
		t.Errorf("expected invite link in html body, got %q", received.HtmlBody)
	}
	if !strings.Contains(received.TextBody, "Saturday, September 12") {
		t.Errorf("expected event date in text body, got %q", received.TextBody)
	}
}

func TestSendInviteNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@example.com")

	err := client.SendInvite("alice@example.com", "Game Night", "https://muster.test/invites/abc123", time.Now())
	if err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

func TestSendInviteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", WithAPIURL(server.URL))

	err := client.SendInvite("alice@example.com", "Game Night", "https://muster.test/invites/abc123", time.Now())
	if err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestConfigured(t *testing.T) {
	if !NewClient("token", "from@example.com").Configured() {
		t.Error("expected Configured() = true")
	}
	if NewClient("", "from@example.com").Configured() {
		t.Error("expected Configured() = false")
	}
}
