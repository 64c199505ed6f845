package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// EntitlementEvents is the lifecycle surface fed by order administration
type EntitlementEvents interface {
	OnEntitlementActivated(ctx context.Context, channelID, userID int64, product string, friendAdded bool) error
	OnEntitlementEnded(ctx context.Context, channelID, userID int64, product string, endDate time.Time) error
	OnRepurchase(ctx context.Context, channelID, userID int64, product string) error
}

// Pinger reports whether the database is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server exposes the health check and the entitlement webhook.
type Server struct {
	events EntitlementEvents
	db     Pinger
	logger *logrus.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(events EntitlementEvents, db Pinger, logger *logrus.Logger) *Server {
	s := &Server{events: events, db: db, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /hooks/entitlements", s.handleEntitlement)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads the request body into dst and returns an error message on
// failure. The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// respondServiceError maps model sentinels onto HTTP status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Message, "code": vErr.Code})
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflict):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.WithError(err).Error("entitlement event failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.WithError(err).Warn("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Entitlements
// ---------------------------------------------------------------------------

const (
	eventActivated   = "activated"
	eventEnded       = "ended"
	eventRepurchased = "repurchased"
)

type entitlementRequest struct {
	Event       string `json:"event"`
	ChannelID   int64  `json:"channel_id"`
	UserID      int64  `json:"user_id"`
	Product     string `json:"product"`
	FriendAdded bool   `json:"friend_added"`
	EndDate     string `json:"end_date"` // YYYY-MM-DD, ended only
}

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	var req entitlementRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if req.ChannelID == 0 {
		s.respondError(w, http.StatusBadRequest, "channel_id is required")
		return
	}
	if req.UserID == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()
	var err error
	switch strings.ToLower(req.Event) {
	case eventActivated:
		err = s.events.OnEntitlementActivated(ctx, req.ChannelID, req.UserID, req.Product, req.FriendAdded)
	case eventEnded:
		endDate, perr := models.ParseDate(req.EndDate)
		if perr != nil {
			s.respondError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
			return
		}
		err = s.events.OnEntitlementEnded(ctx, req.ChannelID, req.UserID, req.Product, endDate)
	case eventRepurchased:
		err = s.events.OnRepurchase(ctx, req.ChannelID, req.UserID, req.Product)
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown event %q", req.Event))
		return
	}
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"event":      req.Event,
		"channel_id": req.ChannelID,
		"user_id":    req.UserID,
		"product":    req.Product,
	}).Info("Applied entitlement event")

	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
