// Package personaplex implements the s2s provider for a PersonaPlex
// full-duplex speech model server.
//
// PersonaPlex speaks a small websocket protocol: binary frames carry raw
// PCM audio in both directions, and text frames carry JSON control
// messages. The client sends a "config" message to set the prompt and
// voice; the server sends "transcript" and "speaking" messages alongside
// the synthesised audio.
package personaplex

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"

	"github.com/hostline-ai/hostline/pkg/provider/s2s"
)

// Config is the configuration for the PersonaPlex provider.
type Config struct {
	// URL is the websocket endpoint of the model server, e.g.
	// "wss://localhost:8998/api/chat".
	URL string

	// InsecureSkipVerify disables TLS certificate verification. Model
	// servers are commonly reached over self-signed certificates on a
	// private network.
	InsecureSkipVerify bool

	// DialTimeout bounds each connection attempt. Defaults to 10 seconds.
	DialTimeout time.Duration

	// MaxDialElapsed bounds the total time spent retrying the initial
	// dial. Defaults to 30 seconds.
	MaxDialElapsed time.Duration

	// Log receives connection lifecycle messages. Defaults to
	// slog.Default.
	Log *slog.Logger
}

// Provider connects to a PersonaPlex server.
type Provider struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

var _ s2s.Provider = (*Provider)(nil)

// New creates a PersonaPlex provider. Returns an error if the endpoint URL
// is empty.
func New(cfg Config) (*Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("personaplex: endpoint URL is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MaxDialElapsed <= 0 {
		cfg.MaxDialElapsed = 30 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	hc := &http.Client{}
	if cfg.InsecureSkipVerify {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Provider{cfg: cfg, http: hc, log: cfg.Log}, nil
}

// Connect dials the model server, sends the initial configuration, and
// starts the receive loop. Transient dial failures are retried with
// exponential backoff until ctx is done or MaxDialElapsed passes.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("personaplex: connect: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:    conn,
		log:     p.log,
		audioCh: make(chan []byte, 64),
		events:  make(chan s2s.Event, 16),
		ctx:     sessCtx,
		cancel:  cancel,
	}

	if err := s.sendConfig(ctx, cfg); err != nil {
		s.Close()
		return nil, fmt.Errorf("personaplex: send config: %w", err)
	}

	go s.receiveLoop()

	p.log.Info("personaplex session established", "url", p.cfg.URL)
	return s, nil
}

func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = p.cfg.MaxDialElapsed

	var conn *websocket.Conn
	op := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()

		c, _, err := websocket.Dial(dialCtx, p.cfg.URL, &websocket.DialOptions{
			HTTPClient: p.http,
		})
		if err != nil {
			p.log.Warn("personaplex dial failed, retrying", "url", p.cfg.URL, "error", err)
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	// Audio frames are small; the default read limit is fine, but raise it
	// for servers that batch transcript history into one message.
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// configMessage matches the server's expected configuration payload.
type configMessage struct {
	Type       string `json:"type"`
	TextPrompt string `json:"text_prompt"`
	VoiceID    string `json:"voice_id"`
}

// serverMessage is the union of text frames the server sends.
type serverMessage struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
	Agent   bool   `json:"agent,omitempty"`
	User    bool   `json:"user,omitempty"`
}

// session implements s2s.SessionHandle over a PersonaPlex connection.
type session struct {
	conn *websocket.Conn
	log  *slog.Logger

	audioCh chan []byte
	events  chan s2s.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	writeMu   sync.Mutex
}

var _ s2s.SessionHandle = (*session)(nil)

func (s *session) sendConfig(ctx context.Context, cfg s2s.SessionConfig) error {
	return s.writeJSON(ctx, configMessage{
		Type:       "config",
		TextPrompt: cfg.Instructions,
		VoiceID:    cfg.VoiceID,
	})
}

// SendAudio forwards a caller PCM chunk to the model.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("personaplex: session closed")
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("personaplex: send audio: %w", err)
	}
	return nil
}

// Audio returns the agent speech channel.
func (s *session) Audio() <-chan []byte { return s.audioCh }

// Events returns the transcript and speaking indicator channel.
func (s *session) Events() <-chan s2s.Event { return s.events }

// Err returns the error that terminated the session, if any.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// UpdateConfig resends the configuration message. PersonaPlex applies the
// new prompt and voice from the model's next turn onward.
func (s *session) UpdateConfig(cfg s2s.SessionConfig) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("personaplex: session closed")
	}
	s.mu.Unlock()

	if err := s.sendConfig(s.ctx, cfg); err != nil {
		return fmt.Errorf("personaplex: update config: %w", err)
	}
	return nil
}

// Close terminates the session. Safe to call multiple times.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil && !s.closed {
		s.errVal = err
	}
}

// receiveLoop reads frames from the server until the connection drops or
// the session is closed. It owns the audio and event channels and closes
// them on exit.
func (s *session) receiveLoop() {
	defer func() {
		close(s.audioCh)
		close(s.events)
	}()

	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.setErr(fmt.Errorf("personaplex: read: %w", err))
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			select {
			case s.audioCh <- data:
			case <-s.ctx.Done():
				return
			}
		case websocket.MessageText:
			var msg serverMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.log.Debug("skipping malformed server message", "error", err)
				continue
			}
			ev, ok := toEvent(msg)
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func toEvent(msg serverMessage) (s2s.Event, bool) {
	switch msg.Type {
	case "transcript":
		if msg.Text == "" {
			return s2s.Event{}, false
		}
		return s2s.Event{
			Type:    s2s.EventTranscript,
			Speaker: msg.Speaker,
			Text:    msg.Text,
		}, true
	case "speaking":
		return s2s.Event{
			Type:          s2s.EventSpeaking,
			AgentSpeaking: msg.Agent,
			UserSpeaking:  msg.User,
		}, true
	default:
		return s2s.Event{}, false
	}
}
