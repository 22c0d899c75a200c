package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	apimw "github.com/hamed0406/pingbase/internal/httpapi/middleware"
	"github.com/hamed0406/pingbase/internal/repo"
	"github.com/hamed0406/pingbase/internal/scheduler"
)

const (
	defaultCheckLimit = 50
	maxCheckLimit     = 500
)

type SchedulerStats interface {
	Stats() scheduler.Stats
}

type Server struct {
	Logger    *zap.Logger
	Store     repo.Store
	Scheduler SchedulerStats
}

func NewServer(l *zap.Logger, store repo.Store, sched SchedulerStats) *Server {
	return &Server{Logger: l, Store: store, Scheduler: sched}
}

// Router wires the ops API. Reads need any configured key, writes need an
// admin key; with no keys configured everything is open (local dev).
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RequireAny(keys))

		r.Get("/monitors", s.handleListMonitors)
		r.Get("/monitors/{id}", s.handleGetMonitor)
		r.Get("/monitors/{id}/checks", s.handleListChecks)
		r.Get("/incidents", s.handleListIncidents)
		r.Get("/incidents/{id}", s.handleGetIncident)
		r.Get("/scheduler", s.handleSchedulerStats)

		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/monitors", s.handleAddMonitor)
			r.Patch("/monitors/{id}/active", s.handleSetActive)
			r.Delete("/monitors/{id}", s.handleDeleteMonitor)
			r.Post("/channels", s.handleAddChannel)
			r.Put("/owners/{owner}/email", s.handleSetOwnerEmail)
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

// ---- monitors ----

type addMonitorPayload struct {
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	Method         string          `json:"method"`
	ExpectedStatus int             `json:"expected_status"`
	CheckInterval  int             `json:"check_interval"`
	TimeoutMS      int             `json:"timeout_ms"`
	Headers        json.RawMessage `json:"headers"`
	Body           string          `json:"body"`
	Active         *bool           `json:"active"`
}

func (s *Server) handleAddMonitor(w http.ResponseWriter, r *http.Request) {
	var p addMonitorPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if !isValidHTTPURL(p.URL) {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	if p.ExpectedStatus != 0 && (p.ExpectedStatus < 100 || p.ExpectedStatus > 599) {
		writeError(w, http.StatusBadRequest, "expected_status out of range")
		return
	}

	m := &domain.Monitor{
		OwnerID:        p.OwnerID,
		Name:           strings.TrimSpace(p.Name),
		URL:            normalizeHTTPURL(p.URL),
		Method:         p.Method,
		ExpectedStatus: p.ExpectedStatus,
		CheckIntervalS: p.CheckInterval,
		TimeoutMS:      p.TimeoutMS,
		Headers:        headersJSON(p.Headers),
		Body:           p.Body,
		Active:         p.Active == nil || *p.Active,
	}
	if m.OwnerID == "" {
		m.OwnerID = "default"
	}
	if m.Name == "" {
		m.Name = m.URL
	}
	if err := s.Store.AddMonitor(r.Context(), m); err != nil {
		s.Logger.Error("add_monitor_failed", zap.String("url", m.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	s.Logger.Info("monitor_added",
		zap.String("monitor_id", string(m.ID)),
		zap.String("url", m.URL),
		zap.Int("check_interval", m.CheckIntervalS),
	)
	writeJSON(w, http.StatusCreated, m)
}

// headersJSON keeps a JSON object as given and unwraps a JSON string; the
// prober tolerates whatever ends up stored.
func headersJSON(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Store.ListMonitors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.Store.GetMonitor(r.Context(), domain.MonitorID(chi.URLParam(r, "id")))
	if s.storeError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type activePayload struct {
	Active *bool `json:"active"`
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var p activePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Active == nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	id := domain.MonitorID(chi.URLParam(r, "id"))
	if s.storeError(w, s.Store.SetActive(r.Context(), id, *p.Active)) {
		return
	}
	m, err := s.Store.GetMonitor(r.Context(), id)
	if s.storeError(w, err) {
		return
	}
	s.Logger.Info("monitor_active_changed", zap.String("monitor_id", string(id)), zap.Bool("active", *p.Active))
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	if s.storeError(w, s.Store.DeleteMonitor(r.Context(), id)) {
		return
	}
	s.Logger.Info("monitor_deleted", zap.String("monitor_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	if _, err := s.Store.GetMonitor(r.Context(), id); s.storeError(w, err) {
		return
	}
	limit := queryInt(r, "limit", defaultCheckLimit)
	if limit > maxCheckLimit {
		limit = maxCheckLimit
	}
	checks, err := s.Store.ListChecks(r.Context(), id, limit)
	if s.storeError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

// ---- incidents ----

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.IncidentFilter{
		MonitorID: domain.MonitorID(q.Get("monitor_id")),
		Limit:     queryInt(r, "limit", 0),
	}
	switch st := domain.IncidentStatus(q.Get("status")); st {
	case "", domain.IncidentOngoing, domain.IncidentResolved:
		f.Status = st
	default:
		writeError(w, http.StatusBadRequest, "status must be ongoing or resolved")
		return
	}
	incs, err := s.Store.ListIncidents(r.Context(), f)
	if s.storeError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, incs)
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.Store.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if s.storeError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// ---- alert config ----

type channelPayload struct {
	OwnerID string            `json:"owner_id"`
	Type    string            `json:"type"`
	Config  map[string]string `json:"config"`
	Active  *bool             `json:"active"`
}

var channelKey = map[domain.ChannelType]string{
	domain.ChannelEmail:   "email",
	domain.ChannelWebhook: "url",
	domain.ChannelSlack:   "webhookUrl",
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var p channelPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	t := domain.ChannelType(strings.ToLower(p.Type))
	key, ok := channelKey[t]
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be email, webhook or slack")
		return
	}
	if strings.TrimSpace(p.Config[key]) == "" {
		writeError(w, http.StatusBadRequest, "config."+key+" is required")
		return
	}
	ch := &domain.AlertChannel{
		OwnerID: p.OwnerID,
		Type:    t,
		Config:  p.Config,
		Active:  p.Active == nil || *p.Active,
	}
	if err := s.Store.AddChannel(r.Context(), ch); err != nil {
		s.Logger.Error("add_channel_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleSetOwnerEmail(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || !strings.Contains(p.Email, "@") {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	owner := chi.URLParam(r, "owner")
	if err := s.Store.SetOwnerEmail(r.Context(), owner, p.Email); err != nil {
		s.Logger.Error("set_owner_email_failed", zap.String("owner_id", owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- scheduler ----

func (s *Server) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	writeJSON(w, http.StatusOK, s.Scheduler.Stats())
}

// ---- helpers ----

func (s *Server) storeError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.Logger.Error("store_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Hostname() != ""
}

// normalizeHTTPURL lower-cases scheme and host, drops default ports and a
// bare "/" path.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}
	if u.Path == "/" && u.RawQuery == "" && u.Fragment == "" {
		u.Path = ""
	}
	return u.String()
}
