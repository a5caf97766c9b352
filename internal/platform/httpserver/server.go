package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	protocolengine "parley/contexts/meeting-collaboration/protocol-engine"
	engineerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	enginehttp "parley/contexts/meeting-collaboration/protocol-engine/transport/http"
	realtimecoordinator "parley/contexts/meeting-collaboration/realtime-coordinator"
	websocketadapter "parley/contexts/meeting-collaboration/realtime-coordinator/adapters/websocket"
	realtimeerrors "parley/contexts/meeting-collaboration/realtime-coordinator/domain/errors"
	_ "parley/internal/platform/httpserver/docs"
	"parley/internal/platform/observability"
)

const moduleName = "internal/platform/httpserver"

type Options struct {
	Addr           string
	AllowedOrigins []string
	EnableSwagger  bool
	Conn           websocketadapter.Options
	RequestTimeout time.Duration
}

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	opts     Options
	engine   protocolengine.Module
	realtime realtimecoordinator.Module
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	http     *http.Server
}

func New(
	engine protocolengine.Module,
	realtime realtimecoordinator.Module,
	metrics *observability.Metrics,
	logger *slog.Logger,
	opts Options,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Conn.Logger == nil {
		opts.Conn.Logger = logger
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		opts:     opts,
		engine:   engine,
		realtime: realtime,
		metrics:  metrics,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx ends, then drains in-flight requests and closes
// every live connection.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", moduleName,
		"layer", "platform",
		"addr", s.opts.Addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.realtime.Coordinator.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped",
		"event", "http_server_stopped",
		"module", moduleName,
		"layer", "platform",
	)
	return nil
}

func (s *Server) registerRoutes() {
	if s.opts.EnableSwagger {
		s.mux.Handle("/swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	s.handle("GET /healthz", s.handleHealth)

	s.handle("GET /api/v1/protocol-types/{type_id}", s.handleGetProtocolType)
	s.handle("GET /api/v1/protocols/{protocol_id}", s.handleGetProtocol)
	s.handle("GET /api/v1/protocols/{protocol_id}/items", s.handleListItems)
	s.handle("GET /api/v1/protocols/{protocol_id}/results", s.handleReviewResults)

	// The live route hijacks the connection, so it stays outside the
	// instrumented wrapper.
	s.mux.HandleFunc("GET /api/v1/meetings/{meeting_id}/live", s.handleLive)
}

func (s *Server) handle(pattern string, handler http.HandlerFunc) {
	s.mux.Handle(pattern, s.instrument(pattern, handler))
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.metrics.RecordHTTPRequest(r.Method, route, recorder.status, time.Since(started))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handleHealth godoc
// @Summary Liveness check
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.realtime.Coordinator.ConnectionCount(),
	})
}

// handleGetProtocolType godoc
// @Summary Get a protocol type with its phases
// @Tags protocols
// @Produce json
// @Param type_id path string true "Protocol type ID"
// @Success 200 {object} enginehttp.ProtocolTypeResponse
// @Failure 404 {object} enginehttp.ErrorResponse
// @Router /api/v1/protocol-types/{type_id} [get]
func (s *Server) handleGetProtocolType(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.GetProtocolTypeHandler(r.Context(), r.PathValue("type_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetProtocol godoc
// @Summary Get a protocol and its current phase
// @Tags protocols
// @Produce json
// @Param protocol_id path string true "Protocol ID"
// @Param meeting_id query string false "Restrict to a meeting"
// @Success 200 {object} enginehttp.ProtocolResponse
// @Failure 404 {object} enginehttp.ErrorResponse
// @Router /api/v1/protocols/{protocol_id} [get]
func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.GetProtocolHandler(r.Context(), meetingScope(r), r.PathValue("protocol_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListItems godoc
// @Summary List a protocol's items in creation order
// @Tags protocols
// @Produce json
// @Param protocol_id path string true "Protocol ID"
// @Param meeting_id query string false "Restrict to a meeting"
// @Success 200 {object} enginehttp.ItemsResponse
// @Failure 404 {object} enginehttp.ErrorResponse
// @Router /api/v1/protocols/{protocol_id}/items [get]
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.ListItemsHandler(r.Context(), meetingScope(r), r.PathValue("protocol_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReviewResults godoc
// @Summary Review results computed with the protocol type's strategy
// @Tags protocols
// @Produce json
// @Param protocol_id path string true "Protocol ID"
// @Param meeting_id query string false "Restrict to a meeting"
// @Success 200 {object} enginehttp.ReviewResultsResponse
// @Failure 404 {object} enginehttp.ErrorResponse
// @Router /api/v1/protocols/{protocol_id}/results [get]
func (s *Server) handleReviewResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.ReviewResultsHandler(r.Context(), meetingScope(r), r.PathValue("protocol_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func meetingScope(r *http.Request) string {
	if fromQuery := strings.TrimSpace(r.URL.Query().Get("meeting_id")); fromQuery != "" {
		return fromQuery
	}
	return strings.TrimSpace(r.Header.Get("X-Meeting-Id"))
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, code, message := s.classify(err)
	writeError(w, status, code, message)
}

// classify maps domain errors of both contexts to a status, a stable code and
// the message shown to the caller. Unknown errors are logged and hidden.
func (s *Server) classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, engineerrors.ErrInvalidID):
		return http.StatusBadRequest, "invalid_id", err.Error()
	case errors.Is(err, engineerrors.ErrInvalidRequest),
		errors.Is(err, realtimeerrors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, engineerrors.ErrConflictingOverride):
		return http.StatusBadRequest, "conflicting_override", err.Error()
	case errors.Is(err, engineerrors.ErrGroupNesting):
		return http.StatusUnprocessableEntity, "group_nesting", err.Error()
	case errors.Is(err, engineerrors.ErrProtocolTypeEmpty):
		return http.StatusUnprocessableEntity, "protocol_type_empty", err.Error()
	case errors.Is(err, engineerrors.ErrPhaseDisallowsVoting):
		return http.StatusConflict, "phase_disallows_voting", err.Error()
	case errors.Is(err, engineerrors.ErrVoteBudgetExceeded):
		return http.StatusConflict, "vote_budget_exceeded", err.Error()
	case errors.Is(err, engineerrors.ErrAlreadyVoted):
		return http.StatusConflict, "already_voted", err.Error()
	case errors.Is(err, engineerrors.ErrPhaseNotReady):
		return http.StatusConflict, "phase_not_ready", err.Error()
	case errors.Is(err, engineerrors.ErrProtocolCompleted):
		return http.StatusConflict, "protocol_completed", err.Error()
	case errors.Is(err, engineerrors.ErrPhaseInconsistent):
		return http.StatusConflict, "phase_inconsistent", err.Error()
	case errors.Is(err, engineerrors.ErrConflict):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, engineerrors.ErrProtocolNotFound):
		return http.StatusNotFound, "protocol_not_found", err.Error()
	case errors.Is(err, engineerrors.ErrProtocolTypeNotFound):
		return http.StatusNotFound, "protocol_type_not_found", err.Error()
	case errors.Is(err, engineerrors.ErrPhaseNotFound):
		return http.StatusNotFound, "phase_not_found", err.Error()
	case errors.Is(err, engineerrors.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found", err.Error()
	case errors.Is(err, engineerrors.ErrActionNotFound):
		return http.StatusNotFound, "action_not_found", err.Error()
	case errors.Is(err, engineerrors.ErrMeetingNotFound):
		return http.StatusNotFound, "meeting_not_found", err.Error()
	case errors.Is(err, engineerrors.ErrForbidden):
		return http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, realtimeerrors.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated", err.Error()
	case errors.Is(err, realtimeerrors.ErrNotJoined):
		return http.StatusConflict, "not_joined", err.Error()
	case errors.Is(err, realtimeerrors.ErrUnknownConnection),
		errors.Is(err, realtimeerrors.ErrConnectionClosed):
		return http.StatusGone, "connection_closed", err.Error()
	case errors.Is(err, realtimeerrors.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", err.Error()
	default:
		s.logger.Error("request failed",
			"event", "http_request_failed",
			"module", moduleName,
			"layer", "platform",
			"error", err.Error(),
		)
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, enginehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
