package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hostline-ai/hostline/internal/extract"
	"github.com/hostline-ai/hostline/internal/gateway"
	"github.com/hostline-ai/hostline/internal/health"
	"github.com/hostline-ai/hostline/internal/menu"
	"github.com/hostline-ai/hostline/internal/orchestrator"
	"github.com/hostline-ai/hostline/internal/persona"
	"github.com/hostline-ai/hostline/internal/reserve"
	"github.com/hostline-ai/hostline/internal/session"
)

// stubExtractor classifies every utterance as a reservation request.
type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, prior session.Fields, _ []session.TranscriptEntry, _ []string) (session.Fields, extract.Signals, error) {
	intent := session.IntentReserve
	prior.Intent = &intent
	return prior, extract.Signals{}, nil
}

type testEnv struct {
	srv          *httptest.Server
	reservations *reserve.Service
}

func testMenu() []menu.Item {
	return []menu.Item{
		{Name: "Margherita Pizza", Description: "Tomato, mozzarella, basil", Price: 12, Category: "pizza", Size: "Small", Vegetarian: true},
		{Name: "Margherita Pizza", Description: "Tomato, mozzarella, basil", Price: 18, Category: "pizza", Size: "Large", Vegetarian: true},
		{Name: "Garden Salad", Description: "Seasonal greens", Price: 9, Category: "salad", Vegetarian: true, Vegan: true},
		{Name: "Tiramisu", Description: "Espresso-soaked classic", Price: 8, Category: "dessert", Unavailable: true},
	}
}

func startServer(t *testing.T) *testEnv {
	t.Helper()

	voices := make(map[string]string)
	for _, p := range persona.All() {
		voices[p.Key] = p.DefaultVoice
	}
	registry := session.NewRegistry(session.RegistryConfig{PersonaVoices: voices})
	reservations := reserve.NewService(reserve.NewMemory(reserve.DefaultLayout()))

	orch := orchestrator.New(orchestrator.Config{
		Registry:     registry,
		Extractor:    stubExtractor{},
		Reservations: reservations,
	})

	s, err := gateway.New(gateway.Config{
		Orchestrator: orch,
		Registry:     registry,
		Reservations: reservations,
		Menu:         menu.New(testMenu()),
		Health:       health.New(),
	})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, reservations: reservations}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (e *testEnv) createSession(t *testing.T) session.Snapshot {
	t.Helper()
	resp := e.post(t, "/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", resp.StatusCode)
	}
	return decodeJSON[session.Snapshot](t, resp)
}

func TestCreateAndGetSession(t *testing.T) {
	t.Parallel()
	env := startServer(t)

	snap := env.createSession(t)
	if snap.ID == "" {
		t.Fatal("created session has no id")
	}
	if snap.State != session.StateGreeting {
		t.Errorf("state = %q, want greeting", snap.State)
	}
	if snap.Mode != session.ModeSimulation {
		t.Errorf("mode = %q, want simulation with no peer configured", snap.Mode)
	}

	resp := env.get(t, "/api/sessions/"+snap.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session status = %d, want 200", resp.StatusCode)
	}
	got := decodeJSON[session.Snapshot](t, resp)
	if got.ID != snap.ID {
		t.Errorf("id = %q, want %q", got.ID, snap.ID)
	}

	resp = env.get(t, "/api/sessions")
	list := decodeJSON[[]session.Snapshot](t, resp)
	if len(list) != 1 {
		t.Errorf("session list length = %d, want 1", len(list))
	}
}

func TestGetSession_Unknown(t *testing.T) {
	t.Parallel()
	env := startServer(t)

	resp := env.get(t, "/api/sessions/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEndSession(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	snap := env.createSession(t)

	req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/sessions/"+snap.ID, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	got := decodeJSON[session.Snapshot](t, env.get(t, "/api/sessions/"+snap.ID))
	if got.Active {
		t.Error("session still active after delete")
	}
}

func TestSetPersonaAndVoice(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	snap := env.createSession(t)

	resp := env.post(t, "/api/sessions/"+snap.ID+"/persona", map[string]string{"persona": "fine_dining"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("persona status = %d, want 200", resp.StatusCode)
	}
	body := decodeJSON[map[string]string](t, resp)
	if body["voice_id"] == "" {
		t.Error("persona update returned no voice")
	}

	resp = env.post(t, "/api/sessions/"+snap.ID+"/persona", map[string]string{"persona": "nonsense"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown persona status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "/api/sessions/"+snap.ID+"/voice", map[string]string{"voice_id": "NATM0"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("voice status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "/api/sessions/nope/persona", map[string]string{"persona": "family"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session persona status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListPersonasAndVoices(t *testing.T) {
	t.Parallel()
	env := startServer(t)

	personas := decodeJSON[[]map[string]string](t, env.get(t, "/api/personas"))
	if len(personas) == 0 {
		t.Fatal("no personas listed")
	}

	voices := decodeJSON[[]map[string]string](t, env.get(t, "/api/voices"))
	if len(voices) == 0 {
		t.Fatal("no voices listed")
	}
	for i := 1; i < len(voices); i++ {
		if voices[i-1]["id"] > voices[i]["id"] {
			t.Fatalf("voices not sorted: %q before %q", voices[i-1]["id"], voices[i]["id"])
		}
	}
}

func TestListReservations(t *testing.T) {
	t.Parallel()
	env := startServer(t)

	_, err := env.reservations.Create(context.Background(), reserve.Reservation{
		RestaurantID: "1",
		GuestName:    "Dana Reyes",
		Phone:        "5550123",
		PartySize:    2,
		StartTime:    time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := decodeJSON[[]reserve.Reservation](t, env.get(t, "/api/reservations"))
	if len(list) != 1 || list[0].GuestName != "Dana Reyes" {
		t.Errorf("reservations = %+v, want one for Dana Reyes", list)
	}

	resp := env.get(t, "/api/reservations?limit=zero")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMenuEndpoints(t *testing.T) {
	t.Parallel()
	env := startServer(t)

	items := decodeJSON[[]menu.Item](t, env.get(t, "/api/menu"))
	if len(items) != 3 {
		t.Errorf("GET /api/menu = %d items, want 3 available", len(items))
	}

	items = decodeJSON[[]menu.Item](t, env.get(t, "/api/menu?dietary=vegan"))
	if len(items) != 1 || items[0].Name != "Garden Salad" {
		t.Errorf("vegan filter = %+v, want just the salad", items)
	}

	items = decodeJSON[[]menu.Item](t, env.get(t, "/api/menu?include_unavailable=true&category=dessert"))
	if len(items) != 1 || !items[0].Unavailable {
		t.Errorf("dessert listing = %+v, want the 86'd tiramisu", items)
	}

	resp := env.get(t, "/api/menu?max_price=banana")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad max_price status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	cats := decodeJSON[[]menu.CategorySummary](t, env.get(t, "/api/menu/categories"))
	if len(cats) != 3 {
		t.Errorf("categories = %+v, want 3", cats)
	}

	items = decodeJSON[[]menu.Item](t, env.get(t, "/api/menu/search?q=basil"))
	if len(items) != 2 {
		t.Errorf("search basil = %d items, want both pizza sizes", len(items))
	}

	resp = env.get(t, "/api/menu/items/does-not-exist")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown item status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	variants := decodeJSON[[]menu.Item](t, env.get(t, "/api/menu/by-name/margherita%20pizza"))
	if len(variants) != 2 || variants[0].Price > variants[1].Price {
		t.Errorf("by-name = %+v, want both sizes cheapest first", variants)
	}

	facts := decodeJSON[map[string]any](t, env.get(t, "/api/menu/facts?category=pizza"))
	if facts["category_summary"] == "" || facts["total_items"].(float64) != 2 {
		t.Errorf("facts = %+v, want a summary over 2 pizza rows", facts)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	t.Parallel()
	env := startServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := env.get(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

// wsURL converts the test server's http URL to a ws URL for path.
func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dialSession(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, wsURL(env.srv, "/ws/sessions/"+id), nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) gateway.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f gateway.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func readFrameOfType(t *testing.T, conn *websocket.Conn, typ string) gateway.Frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f := readFrame(t, conn)
		if f.Type == typ {
			return f
		}
	}
	t.Fatalf("never received a %q frame", typ)
	return gateway.Frame{}
}

func writeControl(t *testing.T, conn *websocket.Conn, msg map[string]string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal control: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write control: %v", err)
	}
}

func TestSessionSocket_SnapshotAndTextInput(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	snap := env.createSession(t)
	conn := dialSession(t, env, snap.ID)

	first := readFrame(t, conn)
	if first.Type != "session" || first.Session == nil || first.Session.ID != snap.ID {
		t.Fatalf("first frame = %+v, want session snapshot", first)
	}

	writeControl(t, conn, map[string]string{"type": "text_input", "text": "I'd like a table"})

	turn := readFrameOfType(t, conn, "transcript")
	if turn.Speaker != "user" || !strings.Contains(turn.Text, "table") {
		t.Errorf("transcript frame = %+v, want the user turn", turn)
	}

	extraction := readFrameOfType(t, conn, "extraction")
	if extraction.Data == nil || extraction.Data.IntentOrEmpty() != session.IntentReserve {
		t.Errorf("extraction frame = %+v, want reserve intent", extraction)
	}

	state := readFrameOfType(t, conn, "state")
	if state.State == "" {
		t.Errorf("state frame carries no state: %+v", state)
	}
}

func TestSessionSocket_ControlErrors(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	snap := env.createSession(t)
	conn := dialSession(t, env, snap.ID)
	readFrame(t, conn) // snapshot

	writeControl(t, conn, map[string]string{"type": "warp_core_breach"})
	errFrame := readFrameOfType(t, conn, "error")
	if !strings.Contains(errFrame.Message, "unknown control type") {
		t.Errorf("error frame = %+v, want unknown control type", errFrame)
	}

	writeControl(t, conn, map[string]string{"action": "warp_core_breach"})
	errFrame = readFrameOfType(t, conn, "error")
	if !strings.Contains(errFrame.Message, "unknown control action") {
		t.Errorf("error frame = %+v, want unknown control action", errFrame)
	}

	writeControl(t, conn, map[string]string{"action": "inject_fact"})
	errFrame = readFrameOfType(t, conn, "error")
	if !strings.Contains(errFrame.Message, "fact") {
		t.Errorf("error frame = %+v, want missing fact complaint", errFrame)
	}
}

func TestSessionSocket_InjectFact(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	snap := env.createSession(t)
	conn := dialSession(t, env, snap.ID)
	readFrame(t, conn) // snapshot

	writeControl(t, conn, map[string]string{"action": "inject_fact", "fact": "tonight's special is salmon"})
	facts := readFrameOfType(t, conn, "facts_updated")
	if len(facts.Facts) != 1 {
		t.Errorf("facts = %v, want exactly one", facts.Facts)
	}
}

func TestSessionSocket_SetPersonaAction(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	snap := env.createSession(t)
	conn := dialSession(t, env, snap.ID)
	readFrame(t, conn) // snapshot

	writeControl(t, conn, map[string]string{"action": "set_persona", "persona": "fine_dining"})
	f := readFrameOfType(t, conn, "persona_updated")
	if f.Persona != "fine_dining" || f.VoiceID == "" {
		t.Errorf("persona frame = %+v, want fine_dining with a voice", f)
	}
}

func TestSessionSocket_ConfirmBeforeRecapRefused(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	snap := env.createSession(t)
	conn := dialSession(t, env, snap.ID)
	readFrame(t, conn) // snapshot

	writeControl(t, conn, map[string]string{"action": "confirm"})
	info := readFrameOfType(t, conn, "info")
	if !strings.Contains(info.Message, "nothing to confirm") {
		t.Errorf("info frame = %+v, want nothing-to-confirm notice", info)
	}
}

func TestSpeakingFrameWireNames(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(gateway.Frame{Type: "speaking", UserSpeaking: true, AgentSpeaking: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"user_speaking":true`, `"agent_speaking":true`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("speaking frame %s is missing %s", data, key)
		}
	}
}

func TestSessionSocket_UnknownSession(t *testing.T) {
	t.Parallel()
	env := startServer(t)
	conn := dialSession(t, env, "does-not-exist")

	f := readFrame(t, conn)
	if f.Type != "error" {
		t.Fatalf("frame = %+v, want error for unknown session", f)
	}
}
