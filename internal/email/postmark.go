package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

// Client sends transactional email through the Postmark API.
type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint, for tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendInvite emails an event invite link.
func (c *Client) SendInvite(toEmail, eventTitle, inviteURL string, startsAt time.Time) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	subject := fmt.Sprintf("You're invited to %s", eventTitle)
	when := startsAt.Format("Monday, January 2 at 3:04 PM")

	textBody := fmt.Sprintf("You've been invited to %s on %s.\n\nRSVP here:\n\n%s\n\nThe link expires when the event starts.",
		eventTitle, when, inviteURL)
	htmlBody := fmt.Sprintf(
		`<p>You've been invited to <strong>%s</strong> on %s.</p><p><a href="%s">RSVP here</a></p><p>The link expires when the event starts.</p>`,
		eventTitle, when, inviteURL,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
