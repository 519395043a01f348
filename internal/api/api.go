// Package api serves the read-only status endpoints: run health, row
// counts and checkpoint progress. It never mutates scrape state.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/database"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

// Reader is the query surface the handlers need from the database.
type Reader interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*database.Stats, error)
	Checkpoints(ctx context.Context) ([]models.Checkpoint, error)
	Hosts(ctx context.Context) ([]models.HostProfile, error)
}

type Server struct {
	reader Reader
	logger *slog.Logger
}

func NewServer(reader Reader) *Server {
	return &Server{
		reader: reader,
		logger: slog.Default().With("component", "api"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/targets", s.handleTargets)
		r.Get("/hosts", s.handleHosts)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reader.Stats(r.Context())
	if err != nil {
		s.logger.Error("query stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type targetStageView struct {
	TargetKey string    `json:"target_key"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Cursor    string    `json:"cursor,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	cps, err := s.reader.Checkpoints(r.Context())
	if err != nil {
		s.logger.Error("query checkpoints", "error", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	views := make([]targetStageView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, targetStageView{
			TargetKey: cp.TargetKey,
			Stage:     cp.Stage,
			Status:    string(cp.Status),
			Cursor:    cp.Cursor,
			UpdatedAt: cp.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

type hostView struct {
	UserID        string   `json:"user_id"`
	URL           string   `json:"url"`
	Name          *string  `json:"name,omitempty"`
	IsSuperhost   *bool    `json:"is_superhost,omitempty"`
	RatingAverage *float64 `json:"rating_average,omitempty"`
	RatingCount   *int     `json:"rating_count,omitempty"`
	TotalListings *int     `json:"total_listings,omitempty"`
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.reader.Hosts(r.Context())
	if err != nil {
		s.logger.Error("query hosts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	views := make([]hostView, 0, len(hosts))
	for _, h := range hosts {
		views = append(views, hostView{
			UserID:        h.UserID,
			URL:           h.URL,
			Name:          h.Name,
			IsSuperhost:   h.IsSuperhost,
			RatingAverage: h.RatingAverage,
			RatingCount:   h.RatingCount,
			TotalListings: h.TotalListings,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
