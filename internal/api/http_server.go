package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tenantdesk/internal/backend"
	"tenantdesk/internal/config"
	"tenantdesk/internal/customer"
	"tenantdesk/internal/domain"
	"tenantdesk/internal/export"
	"tenantdesk/internal/metrics"
	"tenantdesk/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer exposes the owner dashboard over HTTP: the two customer lists,
// the lifecycle transitions and the local audit trail.
type HTTPServer struct {
	cfg       config.APIConfig
	customers domain.CustomerService
	audit     domain.AuditRecorder
	confirms  domain.ConfirmationRepository
	exporter  *export.Writer
	logger    *zerolog.Logger
	server    *http.Server
	auth      *HTTPAuth
}

func NewHTTPServer(
	cfg config.APIConfig,
	customers domain.CustomerService,
	audit domain.AuditRecorder,
	confirms domain.ConfirmationRepository,
	exporter *export.Writer,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:       cfg,
		customers: customers,
		audit:     audit,
		confirms:  confirms,
		exporter:  exporter,
		logger:    logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/customers/active", srv.handleActive)
	mux.HandleFunc("/api/v1/customers/history", srv.handleHistory)
	mux.HandleFunc("/api/v1/customers/export", srv.handleExport)
	mux.HandleFunc("/api/v1/customers/", srv.handleTransition)
	mux.HandleFunc("/api/v1/refresh", srv.handleRefresh)
	mux.HandleFunc("/api/v1/audit", srv.handleAudit)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ensureLoaded performs the initial snapshot load lazily on the first read.
func (s *HTTPServer) ensureLoaded(ctx context.Context) error {
	if s.customers.Loaded() {
		return nil
	}
	return s.customers.Load(ctx)
}

func (s *HTTPServer) handleActive(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customers_active")
	s.handleList(w, r, s.customers.SearchActive)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customers_history")
	s.handleList(w, r, s.customers.SearchHistory)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request, search func(query, status string) []models.CustomerRecord) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.ensureLoaded(r.Context()); err != nil {
		s.writeBackendError(w, err)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	results := search(query, status)

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("refresh")

	if err := s.customers.Load(r.Context()); err != nil {
		s.writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_count":  len(s.customers.Active()),
		"history_count": len(s.customers.History()),
	})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("customers_export")

	if err := s.ensureLoaded(r.Context()); err != nil {
		s.writeBackendError(w, err)
		return
	}

	fileName := fmt.Sprintf("customers_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	if err := s.exporter.WriteTo(w, s.customers.Active(), s.customers.History()); err != nil {
		s.logger.Error().Err(err).Msg("export write error")
	}
}

// handleTransition routes /api/v1/customers/{id}/checkout and the hide
// sub-resource.
func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/customers/"
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	bookingID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || bookingID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	if err := s.checkTransitionRate(r); err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	action := strings.Join(parts[1:], "/")
	switch {
	case action == "checkout" && r.Method == http.MethodPost:
		metrics.IncHTTP("customer_checkout")
		s.doCheckOut(w, r, bookingID)
	case action == "hide" && r.Method == http.MethodPost:
		metrics.IncHTTP("customer_hide_request")
		s.doRequestHide(w, r, bookingID)
	case action == "hide/confirm" && r.Method == http.MethodPost:
		metrics.IncHTTP("customer_hide_confirm")
		s.doConfirmHide(w, r, bookingID)
	case action == "hide" && r.Method == http.MethodDelete:
		metrics.IncHTTP("customer_hide_cancel")
		s.doCancelHide(w, r, bookingID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) doCheckOut(w http.ResponseWriter, r *http.Request, bookingID int64) {
	if err := s.customers.CheckOut(r.Context(), bookingID); err != nil {
		if errors.Is(err, customer.ErrCheckOutInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id":    bookingID,
		"status":        "checked_out",
		"active_count":  len(s.customers.Active()),
		"history_count": len(s.customers.History()),
	})
}

func (s *HTTPServer) doRequestHide(w http.ResponseWriter, r *http.Request, bookingID int64) {
	token, err := s.customers.RequestHide(r.Context(), bookingID)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"booking_id": bookingID,
		"token":      token,
	})
}

func (s *HTTPServer) doConfirmHide(w http.ResponseWriter, r *http.Request, bookingID int64) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.customers.ConfirmHide(r.Context(), bookingID, body.Token); err != nil {
		switch {
		case errors.Is(err, customer.ErrConfirmationNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, customer.ErrConfirmationMismatch):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeBackendError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id": bookingID,
		"status":     "hidden",
	})
}

func (s *HTTPServer) doCancelHide(w http.ResponseWriter, r *http.Request, bookingID int64) {
	if err := s.customers.CancelHide(r.Context(), bookingID); err != nil {
		s.writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id": bookingID,
		"status":     "cancelled",
	})
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("audit")

	limit := models.DefaultAuditLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit trail unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}

// checkTransitionRate applies the shared windowed limit on lifecycle
// transitions, keyed per API client. The shared store keeps the window
// consistent across replicas.
func (s *HTTPServer) checkTransitionRate(r *http.Request) error {
	if s.confirms == nil {
		return nil
	}

	key := "transitions:" + s.auth.clientKey(r)
	allowed, err := s.confirms.CheckRateLimit(r.Context(), key, models.RateLimitRequests, models.RateLimitWindow*time.Second)
	if err != nil {
		s.logger.Warn().Err(err).Msg("transition rate check error")
		return nil
	}
	if !allowed {
		return fmt.Errorf("transition rate limit exceeded")
	}
	return nil
}

// writeBackendError maps upstream failures onto this API's error envelope.
// Backend rejections carry their own status and message; anything else is a
// plain bad gateway.
func (s *HTTPServer) writeBackendError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		writeError(w, status, apiErr.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = "x-api-extra"
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case path == "/api/v1/audit":
		return "read:audit"
	case path == "/api/v1/refresh":
		return "read:customers"
	case strings.HasPrefix(path, "/api/v1/customers/"):
		if r.Method == http.MethodGet {
			return "read:customers"
		}
		return "write:transitions"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}

	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
