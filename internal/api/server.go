// Package api exposes the engine's HTTP surface: health and stats, the
// email provider webhook, the application event endpoints, and trip
// invitations.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/pkg/logger"
	"github.com/pxlchk1/trailnotify/internal/provider/email"
)

// EventSink receives application domain events.
type EventSink interface {
	HandleUserCreated(ctx context.Context, ev domain.UserCreatedEvent) error
	HandleTripCreated(ctx context.Context, ev domain.TripCreatedEvent) error
	HandleTripUpdated(ctx context.Context, ev domain.TripUpdatedEvent) error
	RecordGearAdded(ctx context.Context, userID string) error
}

// InvitationCreator issues trip invitations.
type InvitationCreator interface {
	Create(ctx context.Context, tripID, inviterUserID, inviteeEmail string) (*domain.TripInvitation, error)
}

// InviteMailer delivers the transactional invitation email.
type InviteMailer interface {
	Send(ctx context.Context, msg *email.Message) (*email.SendResult, error)
}

// TemplateRenderer renders the invitation email body.
type TemplateRenderer interface {
	Render(templateID string, data map[string]any) (subject, html, text string, err error)
}

// StatsSource is anything exposing pass counters.
type StatsSource interface {
	Stats() map[string]int64
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	db       *sql.DB
	events   EventSink
	invites  InvitationCreator
	mailer   InviteMailer
	renderer TemplateRenderer
	webhook  http.Handler
	stats    map[string]StatsSource
}

// NewServer creates the API server. webhook handles the provider event
// endpoint; stats maps a component name to its counter source.
func NewServer(db *sql.DB, events EventSink, invites InvitationCreator, mailer InviteMailer, renderer TemplateRenderer, webhook http.Handler, stats map[string]StatsSource) *Server {
	return &Server{
		db:       db,
		events:   events,
		invites:  invites,
		mailer:   mailer,
		renderer: renderer,
		webhook:  webhook,
		stats:    stats,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.HealthCheck)
	r.Get("/stats", s.GetStats)

	r.Method(http.MethodPost, "/webhook/email-events", s.webhook)

	r.Route("/events", func(r chi.Router) {
		r.Post("/user-created", s.HandleUserCreated)
		r.Post("/trip-created", s.HandleTripCreated)
		r.Post("/trip-updated", s.HandleTripUpdated)
		r.Post("/gear-added", s.HandleGearAdded)
	})

	r.Post("/invitations", s.CreateInvitation)

	return r
}

// HealthCheck reports process and database health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			status = "degraded: " + err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStats returns the counters of every registered component.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]map[string]int64, len(s.stats))
	for name, src := range s.stats {
		out[name] = src.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUserCreated ingests a user-created event.
func (s *Server) HandleUserCreated(w http.ResponseWriter, r *http.Request) {
	var ev domain.UserCreatedEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if ev.UserID == "" || ev.Email == "" {
		http.Error(w, "user_id and email are required", http.StatusBadRequest)
		return
	}
	if err := s.events.HandleUserCreated(r.Context(), ev); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleTripCreated ingests a trip-created event.
func (s *Server) HandleTripCreated(w http.ResponseWriter, r *http.Request) {
	var ev domain.TripCreatedEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if ev.UserID == "" || ev.TripID == "" {
		http.Error(w, "user_id and trip_id are required", http.StatusBadRequest)
		return
	}
	if err := s.events.HandleTripCreated(r.Context(), ev); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleTripUpdated ingests a trip-updated event.
func (s *Server) HandleTripUpdated(w http.ResponseWriter, r *http.Request) {
	var ev domain.TripUpdatedEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if ev.UserID == "" || ev.TripID == "" {
		http.Error(w, "user_id and trip_id are required", http.StatusBadRequest)
		return
	}
	if err := s.events.HandleTripUpdated(r.Context(), ev); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleGearAdded ingests a gear-added event.
func (s *Server) HandleGearAdded(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if err := s.events.RecordGearAdded(r.Context(), req.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// CreateInvitation issues a trip invitation and emails the invitee. The
// invitation email is transactional: it goes out immediately rather than
// through the campaign queue, and its delivery failure does not undo the
// invitation itself.
func (s *Server) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TripID        string `json:"trip_id"`
		TripName      string `json:"trip_name"`
		InviterUserID string `json:"inviter_user_id"`
		InviterName   string `json:"inviter_name"`
		InviteeEmail  string `json:"invitee_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.TripID == "" || req.InviterUserID == "" || req.InviteeEmail == "" {
		http.Error(w, "trip_id, inviter_user_id, and invitee_email are required", http.StatusBadRequest)
		return
	}

	inv, err := s.invites.Create(r.Context(), req.TripID, req.InviterUserID, req.InviteeEmail)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	emailed := false
	subject, html, text, err := s.renderer.Render("trip_invitation", map[string]any{
		"trip_name":    req.TripName,
		"inviter_name": req.InviterName,
	})
	if err == nil {
		result, sendErr := s.mailer.Send(r.Context(), &email.Message{
			To:          req.InviteeEmail,
			Subject:     subject,
			HTMLContent: html,
			TextContent: text,
			EmailType:   "trip_invitation",
			UserID:      req.InviterUserID,
		})
		emailed = sendErr == nil && result.Success
	}
	if emailed {
		logger.Info("invitation email sent", "trip_id", req.TripID, "invitee_email", req.InviteeEmail)
	} else {
		logger.Warn("invitation created but email not delivered", "trip_id", req.TripID, "invitee_email", req.InviteeEmail)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"invitation": inv,
		"emailed":    emailed,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
