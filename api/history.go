package api

import (
	"net/http"

	"github.com/genqr/genqr/store"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusOK, []store.Entry{})
		return
	}

	limit := queryInt(r, "limit", s.HistoryLimit)

	entries, err := s.Store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	if s.Store == nil {
		writeJSON(w, http.StatusOK, []store.Entry{})
		return
	}

	limit := queryInt(r, "limit", 20)

	entries, err := s.Store.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}
