package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/hostline-ai/hostline/internal/orchestrator"
)

// maxControlFrame bounds inbound frames. Control messages are tiny; audio
// chunks top out well under a megabyte.
const maxControlFrame = 1 << 20

// handleSessionSocket upgrades to WebSocket and runs the duplex session
// stream: inbound binary frames are caller audio, inbound text frames are
// control messages, outbound binary frames are agent audio, and outbound
// text frames are JSON call events.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.cfg.CORSOrigins) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = s.cfg.CORSOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.log.Debug("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxControlFrame)

	id := r.PathValue("id")
	ctx := r.Context()

	call, err := s.orch.Call(id)
	if err != nil {
		_ = writeFrame(ctx, conn, Frame{Type: frameError, Message: "unknown or inactive session"})
		_ = conn.Close(websocket.StatusPolicyViolation, "unknown session")
		return
	}

	snap := call.Session().Snapshot()
	if err := writeFrame(ctx, conn, Frame{Type: frameSession, Session: &snap}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return
	}

	s.log.Info("session socket open", "session_id", id)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writePump(ctx, conn, call) })
	g.Go(func() error { return s.readPump(ctx, conn, call) })

	err = g.Wait()
	switch {
	case err == nil:
		_ = conn.Close(websocket.StatusNormalClosure, "session ended")
	case errors.Is(err, context.Canceled):
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		s.log.Debug("session socket closed", "session_id", id, "error", err)
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
	s.log.Info("session socket closed", "session_id", id)
}

// writePump forwards call events and agent audio to the client until both
// channels are drained or the client goes away.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, call *orchestrator.Call) error {
	events := call.Events()
	audio := call.Audio()

	for events != nil || audio != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := writeFrame(ctx, conn, frameFromEvent(ev)); err != nil {
				return fmt.Errorf("gateway: write event: %w", err)
			}
		case chunk, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return fmt.Errorf("gateway: write audio: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// readPump consumes client frames: audio to the call, control messages to
// the dispatcher. Returns nil on a clean client close.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, call *orchestrator.Call) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return fmt.Errorf("gateway: read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			if err := call.SendAudio(data); err != nil {
				s.log.Warn("caller audio dropped",
					"session_id", call.Session().ID, "error", err)
			}
		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = writeFrame(ctx, conn, Frame{Type: frameError, Message: "malformed control message"})
				continue
			}
			if err := s.applyControl(call, msg); err != nil {
				_ = writeFrame(ctx, conn, Frame{Type: frameError, Message: err.Error()})
			}
		}
	}
}

// applyControl dispatches one client control message. Session controls
// (inject_fact, set_persona, set_voice, confirm) arrive on the "action"
// key; conversation input (text_input, clear_transcript, reset_extraction)
// on the "type" key.
func (s *Server) applyControl(call *orchestrator.Call, msg controlMessage) error {
	if msg.Action != "" {
		switch msg.Action {
		case controlInjectFact:
			if msg.Fact == "" {
				return errors.New("inject_fact requires a fact")
			}
			return call.InjectFact(msg.Fact)
		case controlSetPersona:
			_, err := s.orch.SetPersona(call.Session().ID, msg.Persona)
			return err
		case controlSetVoice:
			return s.orch.SetVoice(call.Session().ID, msg.VoiceID)
		case controlConfirm:
			return call.Confirm()
		default:
			return fmt.Errorf("unknown control action %q", msg.Action)
		}
	}

	switch msg.Type {
	case controlTextInput:
		if msg.Text == "" {
			return errors.New("text_input requires text")
		}
		return call.HandleText(msg.Text)
	case controlClearTranscript:
		return call.ClearTranscript()
	case controlResetExtraction:
		return call.ResetExtraction()
	default:
		return fmt.Errorf("unknown control type %q", msg.Type)
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("gateway: marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
