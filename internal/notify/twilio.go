package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// twilioAPI is the messages endpoint, parameterised by account SID.
const twilioAPI = "https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json"

// TwilioConfig carries the REST API credentials and sending number.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

// Enabled reports whether the config is complete enough to send.
func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// Twilio sends SMS via the Twilio REST API.
type Twilio struct {
	cfg    TwilioConfig
	client *http.Client
}

var _ Sender = (*Twilio)(nil)

// NewTwilio creates a Twilio sender.
func NewTwilio(cfg TwilioConfig) *Twilio {
	return &Twilio{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send implements Sender.
func (t *Twilio) Send(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", t.cfg.From)
	form.Set("Body", message)

	endpoint := fmt.Sprintf(twilioAPI, t.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: build twilio request: %w", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Logged is the fallback sender when no SMS credentials are configured: it
// logs the message instead of delivering it.
type Logged struct {
	Log *slog.Logger
}

var _ Sender = (*Logged)(nil)

// Send implements Sender.
func (l *Logged) Send(_ context.Context, phone, message string) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("simulated sms", "to", phone, "message", message)
	return nil
}
