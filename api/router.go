package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/skip2/go-qrcode"

	"github.com/genqr/genqr/preview"
	"github.com/genqr/genqr/store"
)

// Server holds the dependencies for all HTTP handlers.
type Server struct {
	// Store is nil when history is disabled.
	Store           *store.HistoryStore
	Log             *slog.Logger
	Version         string
	Level           qrcode.RecoveryLevel
	Debounce        time.Duration
	DefaultFilename string
	HistoryLimit    int
	RateRPS         float64
	RateBurst       int
	// WriteTimeout bounds each websocket write; zero means 10s.
	WriteTimeout time.Duration

	startTime time.Time
	mu        sync.RWMutex
	sessions  map[string]*preview.Session
}

// NewRouter returns a fully configured chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}
	if s.sessions == nil {
		s.sessions = make(map[string]*preview.Session)
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(requestLogger(s.Log))

	r.Get("/status", s.handleStatus)

	// Web UI
	r.Get("/", s.handlePage)
	r.Get("/ws", s.handleWebSocket)

	// Rendering
	r.Group(func(r chi.Router) {
		if s.RateRPS > 0 {
			r.Use(newIPLimiter(s.RateRPS, s.RateBurst).middleware)
		}
		r.Get("/qr/data", s.handleQRData)
		r.Get("/qr.png", s.handleQRPNG)
		r.Get("/download", s.handleDownload)
		r.Post("/download", s.handleDownloadImage)
	})

	// History
	r.Get("/history", s.handleHistory)
	r.Get("/history/search", s.handleHistorySearch)

	return r
}

func (s *Server) addSession(sess *preview.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) session(id string) *preview.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Server) sessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// --- helpers ----------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// --- middleware --------------------------------------------------------------

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}
