package gateway

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/hostline-ai/hostline/internal/menu"
)

// menuFilter parses the shared listing filters from the query string.
func menuFilter(r *http.Request) (menu.Filter, error) {
	q := r.URL.Query()
	f := menu.Filter{
		Category: q.Get("category"),
		Dietary:  q.Get("dietary"),
		Size:     q.Get("size"),
	}
	if raw := q.Get("max_price"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p <= 0 {
			return f, fmt.Errorf("max_price must be a positive number")
		}
		f.MaxPrice = p
	}
	if raw := q.Get("include_unavailable"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("include_unavailable must be a boolean")
		}
		f.IncludeUnavailable = b
	}
	return f, nil
}

func (s *Server) handleListMenu(w http.ResponseWriter, r *http.Request) {
	f, err := menuFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Menu.Items(f))
}

func (s *Server) handleMenuCategories(w http.ResponseWriter, _ *http.Request) {
	cats := s.cfg.Menu.Categories()
	if cats == nil {
		cats = []menu.CategorySummary{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleSearchMenu(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Menu.Search(q))
}

func (s *Server) handleGetMenuItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.cfg.Menu.Item(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "menu item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleMenuByName(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	variants := s.cfg.Menu.Variants(name)
	if len(variants) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no items found with name %q", name))
		return
	}
	writeJSON(w, http.StatusOK, variants)
}

// handleMenuFacts returns the menu pre-formatted for injection into the
// agent's context: one spoken line per dish plus a category overview.
func (s *Server) handleMenuFacts(w http.ResponseWriter, r *http.Request) {
	f, err := menuFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxItems := 10
	if raw := r.URL.Query().Get("max_items"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeError(w, http.StatusBadRequest, "max_items must be between 1 and 50")
			return
		}
		maxItems = n
	}

	items := s.cfg.Menu.Items(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"facts":            menu.Facts(items, maxItems),
		"category_summary": menu.SummaryLine(s.cfg.Menu.Categories()),
		"total_items":      len(items),
	})
}
