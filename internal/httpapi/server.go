package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hajjtech/mawkib/internal/mawkib/service"
	"github.com/hajjtech/mawkib/internal/mawkib/store"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

type Dependencies struct {
	Logger     *log.Logger
	Addr       string
	Controller *service.TripController
	Enroller   *service.Enroller
	Trips      store.TripStore
	Registry   *prometheus.Registry
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	controller *service.TripController
	enroller   *service.Enroller
	trips      store.TripStore
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger:     d.Logger,
		controller: d.Controller,
		enroller:   d.Enroller,
		trips:      d.Trips,
	}

	r := chi.NewRouter()
	r.Use(loggingMiddleware(d.Logger))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/boarding/open", s.handleBoardingOpen)
		r.Post("/boarding/close", s.handleBoardingClose)
		r.Post("/authenticate", s.handleAuthenticate)
		r.Post("/trip/start", s.handleTripStart)
		r.Post("/trip/end", s.handleTripEnd)
		r.Post("/trip/abort", s.handleTripAbort)
		r.Get("/trip", s.handleTripStatus)
		r.Get("/trips", s.handleTripHistory)
		r.Post("/enroll", s.handleEnroll)
		r.Post("/reissue", s.handleReissue)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── handlers ───────────────────────────────────────────────────────────

func (s *Server) handleBoardingOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.controller.OpenBoarding(r.Context(), req.PIN)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPINRejected):
			writeError(w, http.StatusUnauthorized, "pin_rejected", "supervisor pin rejected")
		case errors.Is(err, service.ErrSessionConflict):
			writeError(w, http.StatusConflict, "session_conflict", "a trip session is already active")
		default:
			s.internalError(w, "boarding/open", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardPayload string `json:"card_payload"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CardPayload == "" {
		writeError(w, http.StatusBadRequest, "missing_payload", "card_payload is required")
		return
	}

	att, err := s.controller.Admit(r.Context(), req.CardPayload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "not_boarding", "no boarding session is open")
		case att.Outcome == types.OutcomeError:
			// Sensor or store fault. The attempt is audit-logged and the
			// operator decides whether to re-present.
			writeJSON(w, http.StatusBadGateway, attemptView(att))
		default:
			s.internalError(w, "authenticate", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, attemptView(att))
}

func (s *Server) handleBoardingClose(w http.ResponseWriter, r *http.Request) {
	sess, err := s.controller.CloseBoarding(r.Context())
	if err != nil {
		s.writeTransitionError(w, "boarding/close", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleTripStart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.controller.StartTrip(r.Context())
	if err != nil {
		s.writeTransitionError(w, "trip/start", err)
		return
	}
	// An abort during reconciliation or the door wait is a normal
	// verdict, reported with 200 and the aborted session state.
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleTripEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := s.controller.EndTrip(r.Context())
	if err != nil {
		s.writeTransitionError(w, "trip/end", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleTripAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.controller.Abort(r.Context(), types.AbortReason(req.Reason))
	if err != nil {
		s.writeTransitionError(w, "trip/abort", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleTripStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.controller.Session()
	if err != nil {
		if errors.Is(err, service.ErrNoSession) {
			writeError(w, http.StatusNotFound, "no_session", "no trip session on this terminal")
			return
		}
		s.internalError(w, "trip", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleTripHistory(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.trips.List(r.Context(), 50)
	if err != nil {
		s.internalError(w, "trips", err)
		return
	}

	views := make([]tripSessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": views})
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HajjID string `json:"hajj_id"`
		Name   string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.enroller.Enroll(r.Context(), req.HajjID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyEnrolled):
			writeError(w, http.StatusConflict, "already_enrolled", err.Error())
		case errors.Is(err, service.ErrNoFreeTemplateSlot):
			writeError(w, http.StatusConflict, "no_free_slot", err.Error())
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		default:
			// Enrollment is an attended admin flow; the message is safe
			// to show at the terminal.
			writeError(w, http.StatusBadRequest, "enroll_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, pilgrimView(rec))
}

func (s *Server) handleReissue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HajjID string `json:"hajj_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.enroller.Reissue(r.Context(), req.HajjID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_pilgrim", "no active enrollment for hajj_id")
			return
		}
		writeError(w, http.StatusBadRequest, "reissue_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, pilgrimView(rec))
}

func (s *Server) writeTransitionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNoSession):
		writeError(w, http.StatusNotFound, "no_session", "no trip session on this terminal")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "operation not allowed in the current trip state")
	default:
		s.internalError(w, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Printf("%s error: %v", op, err)
	writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}
