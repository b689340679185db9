package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostline-ai/hostline/internal/persona"
	"github.com/hostline-ai/hostline/internal/reserve"
	"github.com/hostline-ai/hostline/internal/session"
)

func (s *Server) routes(mux *http.ServeMux) {
	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("POST /api/sessions/{id}/persona", s.handleSetPersona)
	mux.HandleFunc("POST /api/sessions/{id}/voice", s.handleSetVoice)

	mux.HandleFunc("GET /api/personas", s.handleListPersonas)
	mux.HandleFunc("GET /api/voices", s.handleListVoices)
	mux.HandleFunc("GET /api/reservations", s.handleListReservations)

	if s.cfg.Menu != nil {
		mux.HandleFunc("GET /api/menu", s.handleListMenu)
		mux.HandleFunc("GET /api/menu/categories", s.handleMenuCategories)
		mux.HandleFunc("GET /api/menu/search", s.handleSearchMenu)
		mux.HandleFunc("GET /api/menu/facts", s.handleMenuFacts)
		mux.HandleFunc("GET /api/menu/items/{id}", s.handleGetMenuItem)
		mux.HandleFunc("GET /api/menu/by-name/{name}", s.handleMenuByName)
	}

	mux.HandleFunc("GET /ws/sessions/{id}", s.handleSessionSocket)
}

type createSessionRequest struct {
	RestaurantID int `json:"restaurant_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.RestaurantID == 0 {
		req.RestaurantID = 1
	}

	sess, err := s.cfg.Registry.Create(req.RestaurantID)
	if err != nil {
		if errors.Is(err, session.ErrRegistryFull) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	if _, err := s.orch.Attach(r.Context(), sess); err != nil {
		s.cfg.Registry.Remove(sess.ID)
		s.log.Error("attach failed", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not start call")
		return
	}

	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	active := s.cfg.Registry.Active()
	out := make([]session.Snapshot, 0, len(active))
	for _, sess := range active {
		out = append(out, sess.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.cfg.Registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.cfg.Registry.Get(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.orch.Detach(r.Context(), id); err != nil {
		s.log.Debug("detach on end", "session_id", id, "error", err)
	}
	if err := s.cfg.Registry.End(id); err != nil && !errors.Is(err, session.ErrEnded) {
		writeError(w, http.StatusInternalServerError, "could not end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type personaRequest struct {
	Persona string `json:"persona"`
}

func (s *Server) handleSetPersona(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Persona == "" {
		writeError(w, http.StatusBadRequest, "persona is required")
		return
	}
	voice, err := s.orch.SetPersona(r.PathValue("id"), req.Persona)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"persona":  req.Persona,
		"voice_id": voice,
	})
}

type voiceRequest struct {
	VoiceID string `json:"voice_id"`
}

func (s *Server) handleSetVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VoiceID == "" {
		writeError(w, http.StatusBadRequest, "voice_id is required")
		return
	}
	if err := s.orch.SetVoice(r.PathValue("id"), req.VoiceID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"voice_id": req.VoiceID})
}

type personaInfo struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DefaultVoice string `json:"default_voice"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	all := persona.All()
	out := make([]personaInfo, 0, len(all))
	for _, p := range all {
		out = append(out, personaInfo{Key: p.Key, Name: p.Name, DefaultVoice: p.DefaultVoice})
	}
	writeJSON(w, http.StatusOK, out)
}

type voiceInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	out := make([]voiceInfo, 0, len(persona.Voices))
	for id, desc := range persona.Voices {
		out = append(out, voiceInfo{ID: id, Description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		restaurantID = "1"
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	upcoming, err := s.cfg.Reservations.Upcoming(r.Context(), restaurantID, limit)
	if err != nil {
		s.log.Error("list reservations", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list reservations")
		return
	}
	if upcoming == nil {
		upcoming = []reserve.Reservation{}
	}
	writeJSON(w, http.StatusOK, upcoming)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
