package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hostline-ai/hostline/internal/dialog"
	"github.com/hostline-ai/hostline/internal/persona"
	"github.com/hostline-ai/hostline/internal/reserve"
	"github.com/hostline-ai/hostline/internal/session"
	"github.com/hostline-ai/hostline/pkg/audio"
	"github.com/hostline-ai/hostline/pkg/provider/s2s"
)

const (
	// eventBuffer bounds the per-call event channel. A console that stops
	// reading loses events rather than stalling the call.
	eventBuffer = 64

	// audioBuffer bounds outbound agent audio. At 24kHz mono PCM a slot is
	// roughly 40ms, so the window absorbs jitter without adding latency.
	audioBuffer = 64

	// speechLevel is the RMS threshold above which client audio counts as
	// active speech when no model peer is reporting speaking state.
	speechLevel = 0.01
)

// callerFormat and peerFormat are the PCM formats on either side of the
// relay: browsers capture 48kHz mono, the speech model consumes 24kHz mono.
var (
	callerFormat = audio.Format{SampleRate: 48000, Channels: 1}
	peerFormat   = audio.Format{SampleRate: 24000, Channels: 1}
)

// Call is the runtime of one attached session: the relay pumps, the
// serialized mutation queue, the conversation state machine, and the
// reservation side effects. Control methods are safe for concurrent use;
// everything they do is funneled through the queue.
type Call struct {
	orch *Orchestrator
	sess *session.Session

	queue   *session.Queue
	machine *dialog.Machine

	// bridge is nil in simulation mode.
	bridge s2s.SessionHandle

	// conv normalises caller PCM to the peer's format on the way in.
	conv audio.FormatConverter

	events   chan Event
	audioOut chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	pumps  *errgroup.Group
	once   sync.Once

	userSpeaking bool // simulation speech gate, queue goroutine only

	// Flow progress, touched only from the queue goroutine.
	alternatives []reserve.Slot
	reservation  *reserve.Reservation
	cancelled    bool
	modified     bool
	waitlisted   bool
}

func newCall(o *Orchestrator, sess *session.Session) *Call {
	ctx, cancel := context.WithCancel(context.Background())
	return &Call{
		orch:     o,
		sess:     sess,
		queue:    session.NewQueue(),
		machine:  dialog.Restore(sess.State(), sess.ResumeState()),
		conv:     audio.FormatConverter{Target: peerFormat},
		events:   make(chan Event, eventBuffer),
		audioOut: make(chan []byte, audioBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// start launches the relay pumps. No-op in simulation mode, where the only
// input source is text submitted through the queue.
func (c *Call) start() {
	if c.bridge == nil {
		return
	}
	g := new(errgroup.Group)
	g.Go(c.pumpAudio)
	g.Go(c.pumpEvents)
	c.pumps = g
}

// close tears the call down: the bridge first so the pumps drain and exit,
// then the queue so pending mutations run, then the outward channels.
func (c *Call) close() {
	c.once.Do(func() {
		if c.bridge != nil {
			if err := c.bridge.Close(); err != nil {
				c.orch.log.Debug("bridge close", "session_id", c.sess.ID, "error", err)
			}
		}
		if c.pumps != nil {
			if err := c.pumps.Wait(); err != nil {
				c.orch.log.Warn("relay pump exited",
					"session_id", c.sess.ID, "error", err)
			}
		}
		c.queue.Close()
		c.cancel()
		close(c.events)
		close(c.audioOut)
	})
}

// Events returns the call's fan-out channel. Closed when the call is
// detached.
func (c *Call) Events() <-chan Event { return c.events }

// Audio returns agent audio for the client, in arrival order. Closed when
// the call is detached. Empty for simulated calls.
func (c *Call) Audio() <-chan []byte { return c.audioOut }

// Session returns the call's session.
func (c *Call) Session() *session.Session { return c.sess }

// SendAudio forwards one chunk of caller PCM to the model peer, resampled
// from the browser capture rate to the peer's. Torn chunks are dropped
// rather than forwarded, so one bad websocket read cannot shift every later
// sample. In simulation mode no peer exists and the chunk is only
// level-metered to drive the user-speaking indicator.
func (c *Call) SendAudio(chunk []byte) error {
	if c.bridge != nil {
		frame := c.conv.Convert(audio.AudioFrame{
			Data:       chunk,
			SampleRate: callerFormat.SampleRate,
			Channels:   callerFormat.Channels,
		})
		if len(frame.Data) == 0 {
			return nil
		}
		return c.bridge.SendAudio(frame.Data)
	}

	speaking := audio.Level(chunk) >= speechLevel
	return c.queue.Submit(func() {
		if speaking == c.userSpeaking {
			return
		}
		c.userSpeaking = speaking
		_, agent := c.sess.Speaking()
		c.sess.SetSpeaking(speaking, agent)
		c.emit(Event{Kind: EventSpeaking, UserSpeaking: speaking, AgentSpeaking: agent})
	})
}

// HandleText injects a typed caller utterance. This is the input path for
// simulated calls and the console's text_input control for live ones.
func (c *Call) HandleText(text string) error {
	return c.queue.Submit(func() {
		c.processUserTurn(session.Fragment{
			Speaker: session.SpeakerUser,
			Text:    text,
		})
	})
}

// InjectFact adds an operator fact to the session context. Live bridges get
// a refreshed prompt; duplicates are acknowledged but not re-added.
func (c *Call) InjectFact(fact string) error {
	return c.queue.Submit(func() {
		if !c.sess.AddFact(fact) {
			c.emit(Event{Kind: EventInfo, Message: "fact already present"})
			return
		}
		c.emit(Event{Kind: EventFacts, Facts: c.sess.Facts()})
		c.refreshBridge()
	})
}

// ClearTranscript wipes the session transcript.
func (c *Call) ClearTranscript() error {
	return c.queue.Submit(func() {
		c.sess.ClearTranscript()
		c.emit(Event{Kind: EventTranscriptCleared})
	})
}

// ResetExtraction clears the extracted fields and restarts the conversation
// from the greeting state. Reservation side effects already taken are not
// undone.
func (c *Call) ResetExtraction() error {
	return c.queue.Submit(func() {
		c.sess.ResetExtraction()
		c.machine = dialog.New()
		c.alternatives = nil
		c.reservation = nil
		c.cancelled = false
		c.modified = false
		c.waitlisted = false
		c.emit(Event{Kind: EventExtractionReset})
		c.emit(Event{Kind: EventState, State: session.StateGreeting})
	})
}

// Confirm applies an operator confirmation. It completes the reservation
// only when the call is at the confirming step with all required fields in
// hand; otherwise the caller is told there is nothing to confirm yet.
func (c *Call) Confirm() error {
	return c.queue.Submit(func() {
		st, changed := c.machine.Confirm(c.sess.Extracted().Complete())
		if !changed {
			c.emit(Event{Kind: EventInfo, Message: "nothing to confirm yet"})
			return
		}
		c.applyState(st)
		if c.reservation == nil {
			c.completeReservation()
		}
	})
}

// personaChanged pushes a persona switch to the bridge and the console.
// The registry has already validated and stored the new selection.
func (c *Call) personaChanged(key, voice string) {
	_ = c.queue.Submit(func() {
		c.refreshBridge()
		c.emit(Event{Kind: EventPersona, Persona: key, Voice: voice})
	})
}

// voiceChanged pushes a voice switch to the bridge and the console.
func (c *Call) voiceChanged(voice string) {
	_ = c.queue.Submit(func() {
		c.refreshBridge()
		c.emit(Event{Kind: EventVoice, Voice: voice})
	})
}

// refreshBridge re-sends the session config to the live bridge so prompt or
// voice changes apply from the next agent turn. Queue goroutine only.
func (c *Call) refreshBridge() {
	if c.bridge == nil {
		return
	}
	prompt := persona.BuildSystemPrompt(c.sess.Persona(), c.orch.Restaurant(), c.sess.Facts())
	err := c.bridge.UpdateConfig(s2s.SessionConfig{
		Instructions: prompt,
		VoiceID:      c.sess.VoiceID(),
	})
	if err != nil {
		c.orch.log.Warn("bridge config update failed",
			"session_id", c.sess.ID, "error", err)
		c.emit(Event{Kind: EventError, Message: "model peer rejected config update"})
	}
}

// pumpAudio forwards agent audio from the bridge to the client channel,
// dropping chunks when the client falls behind. Loss there degrades
// playback; stalling would desync the whole call.
func (c *Call) pumpAudio() error {
	for chunk := range c.bridge.Audio() {
		select {
		case c.audioOut <- chunk:
		default:
			c.orch.log.Debug("client audio chunk dropped", "session_id", c.sess.ID)
		}
	}
	return nil
}

// pumpEvents routes bridge events onto the mutation queue. The pump itself
// never touches the session.
func (c *Call) pumpEvents() error {
	for ev := range c.bridge.Events() {
		ev := ev
		var err error
		switch ev.Type {
		case s2s.EventTranscript:
			err = c.queue.Submit(func() { c.handlePeerTranscript(ev) })
		case s2s.EventSpeaking:
			err = c.queue.Submit(func() {
				c.sess.SetSpeaking(ev.UserSpeaking, ev.AgentSpeaking)
				c.emit(Event{
					Kind:          EventSpeaking,
					UserSpeaking:  ev.UserSpeaking,
					AgentSpeaking: ev.AgentSpeaking,
				})
			})
		}
		if err != nil {
			return nil // queue closed, call is shutting down
		}
	}

	if err := c.bridge.Err(); err != nil {
		c.orch.peerDown.Store(true)
		c.orch.metrics.PeerErrors.Add(c.ctx, 1)
		c.orch.log.Warn("model peer connection lost",
			"session_id", c.sess.ID, "error", err)
		_ = c.queue.Submit(func() {
			c.emit(Event{Kind: EventError, Message: "model peer connection lost"})
		})
	}
	return nil
}

// handlePeerTranscript folds one peer transcript fragment into the session.
// Agent turns are display-only; user turns drive the full pipeline.
func (c *Call) handlePeerTranscript(ev s2s.Event) {
	speaker := session.SpeakerAgent
	if ev.Speaker == "user" {
		speaker = session.SpeakerUser
	}
	frag := session.Fragment{Speaker: speaker, Text: ev.Text}

	if speaker == session.SpeakerUser {
		c.processUserTurn(frag)
		return
	}
	entry, ok := c.sess.MergeFragment(frag)
	if !ok {
		return
	}
	c.orch.metrics.RecordTurn(c.ctx, string(speaker))
	c.emit(Event{Kind: EventTranscript, Entry: entry})
}

// processUserTurn is the heart of the call: merge the fragment, extract,
// advance the state machine, resolve availability, and execute whatever
// side effect the resulting state calls for. Queue goroutine only.
func (c *Call) processUserTurn(frag session.Fragment) {
	entry, ok := c.sess.MergeFragment(frag)
	if !ok {
		return
	}
	c.orch.metrics.RecordTurn(c.ctx, string(session.SpeakerUser))
	c.emit(Event{Kind: EventTranscript, Entry: entry})

	prior := c.sess.Extracted()
	start := time.Now()
	fields, signals, err := c.orch.extractor.Extract(
		c.ctx, prior, c.sess.Transcript(), c.sess.Facts())
	if err != nil {
		c.orch.metrics.RecordExtraction(c.ctx, "pipeline", "error", time.Since(start).Seconds())
		c.orch.log.Error("extraction failed",
			"session_id", c.sess.ID, "error", err)
		c.emit(Event{Kind: EventError, Message: "extraction unavailable for this turn"})
		return
	}
	c.orch.metrics.RecordExtraction(c.ctx, "pipeline", "ok", time.Since(start).Seconds())

	c.sess.SetExtracted(fields)
	c.emit(Event{Kind: EventExtraction, Fields: fields, Missing: fields.Missing()})

	st, changed := c.machine.Advance(dialog.Input{
		Intent:         fields.IntentOrEmpty(),
		FieldsComplete: fields.Complete(),
		Question:       signals.Question,
		Affirmative:    signals.Affirmative,
		SlotAccepted:   signals.SlotAccepted,
	})
	if changed {
		c.applyState(st)
	}

	if st == session.StateCheckingAvailability {
		c.checkAvailability(fields)
		st = c.machine.State()
	}

	switch st {
	case session.StateComplete:
		if c.reservation == nil {
			c.completeReservation()
		}
	case session.StateCancelFlow:
		if !c.cancelled {
			c.tryCancel(fields)
		}
	case session.StateModifyFlow:
		if !c.modified {
			c.tryModify(fields)
		}
	case session.StateWaitlistFlow:
		if !c.waitlisted {
			c.tryWaitlist(fields)
		}
	}

	if c.sess.Mode() == session.ModeSimulation {
		c.respond(entry.Text)
	}
}

// applyState records a state transition on the session, the metrics, and
// the event stream.
func (c *Call) applyState(st session.State) {
	c.sess.SetState(st)
	c.sess.SetResumeState(c.machine.ResumeState())
	c.orch.metrics.RecordStateTransition(c.ctx, string(st))
	c.emit(Event{Kind: EventState, State: st})
}

// checkAvailability runs the availability collaborator for the completed
// field set and resolves the machine with the result. On an availability
// error the machine is left where it is, so the next utterance retries the
// check instead of pushing the caller toward empty alternatives.
func (c *Call) checkAvailability(fields session.Fields) {
	area := ""
	if fields.AreaPref != nil {
		area = *fields.AreaPref
	}
	avail, err := c.orch.reservations.CheckAvailability(
		c.ctx, c.restaurantID(), *fields.DateTime, *fields.PartySize, area)
	if err != nil {
		c.orch.metrics.RecordReservationOp(c.ctx, "availability", "error")
		c.orch.log.Error("availability check failed",
			"session_id", c.sess.ID, "error", err)
		c.emit(Event{Kind: EventError, Message: "availability check failed"})
		return
	}
	c.orch.metrics.RecordReservationOp(c.ctx, "availability", "ok")
	c.alternatives = avail.Alternatives

	if st, changed := c.machine.ResolveAvailability(avail.Available); changed {
		c.applyState(st)
	}
}

// completeReservation commits the reservation, stores the confirmation code
// into the extracted fields, and sends the SMS confirmation when a notifier
// is wired.
func (c *Call) completeReservation() {
	fields := c.sess.Extracted()
	if !fields.Complete() {
		return
	}
	r := reserve.Reservation{
		RestaurantID: c.restaurantID(),
		GuestName:    *fields.GuestName,
		Phone:        *fields.Phone,
		PartySize:    *fields.PartySize,
		StartTime:    *fields.DateTime,
	}
	if fields.AreaPref != nil {
		r.AreaPref = *fields.AreaPref
	}
	if fields.Notes != nil {
		r.Notes = *fields.Notes
	}

	created, err := c.orch.reservations.Create(c.ctx, r)
	if err != nil {
		c.orch.metrics.RecordReservationOp(c.ctx, "create", "error")
		c.orch.log.Error("reservation create failed",
			"session_id", c.sess.ID, "error", err)
		c.emit(Event{Kind: EventError, Message: "reservation could not be saved"})
		return
	}
	c.orch.metrics.RecordReservationOp(c.ctx, "create", "ok")
	c.reservation = created

	code := created.ConfirmationCode
	fields.ConfirmationCode = &code
	c.sess.SetExtracted(fields)
	c.emit(Event{Kind: EventExtraction, Fields: fields, Missing: fields.Missing()})
	c.emit(Event{Kind: EventInfo, Message: "reservation confirmed, code " + code})

	c.notifyConfirmation(created)
}

func (c *Call) notifyConfirmation(r *reserve.Reservation) {
	if c.orch.notifier == nil {
		return
	}
	if err := c.orch.notifier.Confirmation(c.ctx, r); err != nil {
		c.orch.metrics.RecordSMS(c.ctx, "error")
		c.orch.log.Warn("confirmation SMS failed",
			"session_id", c.sess.ID, "error", err)
		return
	}
	c.orch.metrics.RecordSMS(c.ctx, "ok")
}

// tryCancel cancels an existing reservation once the caller has supplied
// enough to find it. Until then the flow stays open and the agent keeps
// asking.
func (c *Call) tryCancel(fields session.Fields) {
	q, ok := lookupQuery(fields)
	if !ok {
		return
	}
	res, err := c.orch.reservations.Cancel(c.ctx, c.restaurantID(), q)
	if err != nil {
		c.orch.metrics.RecordReservationOp(c.ctx, "cancel", "error")
		c.orch.log.Info("cancellation lookup failed",
			"session_id", c.sess.ID, "error", err)
		return
	}
	c.orch.metrics.RecordReservationOp(c.ctx, "cancel", "ok")
	c.cancelled = true
	c.emit(Event{Kind: EventInfo,
		Message: "reservation " + res.ConfirmationCode + " cancelled"})

	if c.orch.notifier != nil {
		if err := c.orch.notifier.Cancellation(c.ctx, res); err != nil {
			c.orch.metrics.RecordSMS(c.ctx, "error")
		} else {
			c.orch.metrics.RecordSMS(c.ctx, "ok")
		}
	}
}

// tryModify applies the caller's new details to an existing reservation once
// it can be found and at least one change has been extracted.
func (c *Call) tryModify(fields session.Fields) {
	q, ok := lookupQuery(fields)
	if !ok {
		return
	}
	u := reserve.Update{
		PartySize: fields.PartySize,
		StartTime: fields.DateTime,
		AreaPref:  fields.AreaPref,
		Notes:     fields.Notes,
	}
	if u.PartySize == nil && u.StartTime == nil && u.AreaPref == nil && u.Notes == nil {
		return
	}

	existing, err := c.orch.reservations.Find(c.ctx, c.restaurantID(), q)
	if err != nil {
		c.orch.log.Info("modification lookup failed",
			"session_id", c.sess.ID, "error", err)
		return
	}
	res, err := c.orch.reservations.Modify(c.ctx, existing.ID, u)
	if err != nil {
		c.orch.metrics.RecordReservationOp(c.ctx, "modify", "error")
		c.orch.log.Error("modification failed",
			"session_id", c.sess.ID, "error", err)
		c.emit(Event{Kind: EventError, Message: "reservation could not be updated"})
		return
	}
	c.orch.metrics.RecordReservationOp(c.ctx, "modify", "ok")
	c.modified = true
	c.emit(Event{Kind: EventInfo,
		Message: "reservation " + res.ConfirmationCode + " updated"})
}

// tryWaitlist joins the waitlist once name, phone, and party size are known.
func (c *Call) tryWaitlist(fields session.Fields) {
	if fields.GuestName == nil || fields.Phone == nil || fields.PartySize == nil {
		return
	}
	e := reserve.WaitlistEntry{
		RestaurantID: c.restaurantID(),
		GuestName:    *fields.GuestName,
		Phone:        *fields.Phone,
		PartySize:    *fields.PartySize,
	}
	if fields.Notes != nil {
		e.Notes = *fields.Notes
	}
	_, pos, wait, err := c.orch.reservations.Waitlist(c.ctx, e)
	if err != nil {
		c.orch.metrics.RecordReservationOp(c.ctx, "waitlist", "error")
		c.orch.log.Error("waitlist join failed",
			"session_id", c.sess.ID, "error", err)
		c.emit(Event{Kind: EventError, Message: "waitlist is unavailable"})
		return
	}
	c.orch.metrics.RecordReservationOp(c.ctx, "waitlist", "ok")
	c.waitlisted = true
	c.emit(Event{Kind: EventInfo,
		Message: "joined waitlist at position " + strconv.Itoa(pos) +
			", estimated wait " + wait.String()})
}

// lookupQuery builds a reservation lookup from whatever identifying fields
// have been extracted so far.
func lookupQuery(fields session.Fields) (reserve.Query, bool) {
	var q reserve.Query
	if fields.ConfirmationCode != nil {
		q.ConfirmationCode = *fields.ConfirmationCode
	}
	if fields.Phone != nil {
		q.Phone = *fields.Phone
	}
	if fields.GuestName != nil {
		q.GuestName = *fields.GuestName
	}
	return q, q.ConfirmationCode != "" || q.Phone != "" || q.GuestName != ""
}

func (c *Call) restaurantID() string {
	return strconv.Itoa(c.sess.RestaurantID)
}

// emit delivers ev to the console channel without ever blocking the queue
// goroutine.
func (c *Call) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.orch.log.Warn("console event dropped",
			"session_id", c.sess.ID, "kind", ev.Kind)
	}
}
