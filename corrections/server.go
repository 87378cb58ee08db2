// Package corrections exposes the mapping feedback loop over HTTP:
// operators record corrections, review pending suggestions, apply them to
// the catalog, and inspect unmatched sticker text.
package corrections

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/stickermatch/learn"
)

// Config configures the corrections API.
type Config struct {
	// Username and PasswordHash (bcrypt) guard all endpoints with HTTP
	// Basic auth. An empty PasswordHash disables auth; meant for tests
	// and loopback-only deployments.
	Username     string
	PasswordHash string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the corrections HTTP API.
type Server struct {
	cfg     Config
	learner *learn.Learner
	db      *sql.DB
}

// New creates a Server over the learner and the run store (for unmatched
// feature queries).
func New(learner *learn.Learner, db *sql.DB, cfg Config) *Server {
	cfg.defaults()
	return &Server{cfg: cfg, learner: learner, db: db}
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.basicAuth)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/corrections", s.handleRecordCorrection)
		r.Get("/corrections", s.handleHistory)
		r.Get("/suggestions", s.handleSuggestions)
		r.Post("/suggestions/apply", s.handleApplySuggestions)
		r.Get("/unmatched", s.handleUnmatched)
	})

	return r
}

// basicAuth enforces HTTP Basic auth against the configured bcrypt hash.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.PasswordHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="corrections"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRecordCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeatureText    string `json:"feature_text"`
		PreviousLabel  string `json:"previous_label"`
		CorrectedLabel string `json:"corrected_label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.FeatureText == "" || req.CorrectedLabel == "" {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "feature_text and corrected_label are required"})
		return
	}

	err := s.learner.RecordCorrection(r.Context(), req.FeatureText, req.PreviousLabel, req.CorrectedLabel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	feature := r.URL.Query().Get("feature")
	if feature == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "feature query parameter is required"})
		return
	}
	history, err := s.learner.History(r.Context(), feature)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if history == nil {
		history = []learn.Correction{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.learner.SuggestImprovements(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleApplySuggestions(w http.ResponseWriter, r *http.Request) {
	applied, err := s.learner.ApplySuggestions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

// unmatchedRow is one audit row of sticker text no catalog entry absorbed.
type unmatchedRow struct {
	RunID       string    `json:"run_id"`
	VehicleID   string    `json:"vehicle_id"`
	FeatureText string    `json:"feature_text"`
	BestScore   float64   `json:"best_score"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT run_id, vehicle_id, feature_text, best_score, created_at
		FROM unmatched_features ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	out := []unmatchedRow{}
	for rows.Next() {
		var u unmatchedRow
		var ts int64
		if err := rows.Scan(&u.RunID, &u.VehicleID, &u.FeatureText, &u.BestScore, &ts); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		u.CreatedAt = time.Unix(ts, 0)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
