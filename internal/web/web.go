package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"festsched/internal/config"
	"festsched/internal/ics"
	appLog "festsched/internal/log"
	"festsched/internal/model"
	"festsched/internal/refresh"
	"festsched/internal/schedule"
	"festsched/internal/status"
)

//go:embed templates/board.html
var templateFS embed.FS

var boardTemplate = template.Must(template.ParseFS(templateFS, "templates/board.html"))

// Server exposes the event collection to the presentation layer: a JSON
// API, an HTML board and an iCalendar feed. Admin routes mutate the
// collection and are guarded by Basic Auth when credentials are set.
type Server struct {
	cfg     *config.Config
	coll    *schedule.Collection
	refresh Refresher
	mux     *http.ServeMux

	// boardRefresh is the board's meta-refresh period in seconds, kept in
	// step with the status poller.
	boardRefresh int
}

// Refresher runs one status recompute pass on demand.
type Refresher interface {
	Tick() []schedule.Change
}

func NewServer(cfg *config.Config, coll *schedule.Collection, refresher Refresher) *Server {
	s := &Server{
		cfg:          cfg,
		coll:         coll,
		refresh:      refresher,
		mux:          http.NewServeMux(),
		boardRefresh: boardRefreshSeconds(cfg.Refresh),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.Handle("POST /api/events", s.admin(http.HandlerFunc(s.handleAddEvent)))
	s.mux.Handle("PATCH /api/events/{id}", s.admin(http.HandlerFunc(s.handleUpdateEvent)))
	s.mux.Handle("POST /api/refresh", s.admin(http.HandlerFunc(s.handleRefresh)))
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /board", s.handleBoard)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.Handle("GET /{$}", http.RedirectHandler("/board", http.StatusFound))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "admin_auth", s.cfg.AdminEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// admin wraps mutating routes with HTTP Basic Auth. Without configured
// credentials the routes are open.
func (s *Server) admin(next http.Handler) http.Handler {
	if !s.cfg.AdminEnabled() {
		return next
	}
	username := s.cfg.Admin.Username
	password := s.cfg.Admin.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="festsched admin", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of an event. time_start/time_end use the same
// zone-less local form the admin submits.
type eventDTO struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	TimeStart   string       `json:"time_start"`
	TimeEnd     string       `json:"time_end"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at"`
	Status      model.Status `json:"status"`
	Label       string       `json:"label"`
	Color       string       `json:"color"`
}

type eventsResponse struct {
	Events   []eventDTO `json:"events"`
	Timezone string     `json:"timezone"`
	Now      time.Time  `json:"now"`
}

type updateRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type refreshResponse struct {
	Changes []schedule.Change `json:"changes"`
}

func (s *Server) toDTO(ev model.Event) eventDTO {
	engine := s.coll.Engine()
	return eventDTO{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		TimeStart:   engine.Format(ev.TimeStart),
		TimeEnd:     engine.Format(ev.TimeEnd),
		StartsAt:    ev.TimeStart,
		EndsAt:      ev.TimeEnd,
		Status:      ev.Status,
		Label:       ev.Status.Label(),
		Color:       ev.Status.Color(),
	}
}

func (s *Server) snapshotDTOs() []eventDTO {
	events := s.coll.Snapshot()
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, s.toDTO(ev))
	}
	return out
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	engine := s.coll.Engine()
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:   s.snapshotDTOs(),
		Timezone: engine.Zone().String(),
		Now:      engine.Now(),
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, found := s.coll.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, s.toDTO(ev))
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var cand model.Candidate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&cand); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev, err := s.coll.Add(cand)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toDTO(ev))
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev, err := s.coll.Update(id, model.Field(req.Field), req.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDTO(ev))
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	changes := s.refresh.Tick()
	if changes == nil {
		changes = []schedule.Change{}
	}
	writeJSON(w, http.StatusOK, refreshResponse{Changes: changes})
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.coll.Snapshot(), s.cfg.Festival.Name, time.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="festival.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type boardData struct {
	Festival       string
	Now            string
	Timezone       string
	RefreshSeconds int
	Events         []eventDTO
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	engine := s.coll.Engine()
	name := s.cfg.Festival.Name
	if name == "" {
		name = "Festival"
	}
	data := boardData{
		Festival:       name,
		Now:            engine.Format(engine.Now()),
		Timezone:       engine.Zone().String(),
		RefreshSeconds: s.boardRefresh,
		Events:         s.snapshotDTOs(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := boardTemplate.Execute(w, data); err != nil {
		appLog.Error("board render failed", err)
	}
}

func boardRefreshSeconds(spec string) int {
	d, err := refresh.Interval(spec, time.Now())
	if err != nil {
		appLog.Warn("board refresh falls back to default", "refresh", spec, "reason", err)
		d, _ = refresh.Interval(refresh.DefaultSpec, time.Now())
	}
	return max(1, int(d.Round(time.Second)/time.Second))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return 0, false
	}
	return id, true
}

type errResp struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// writeDomainError maps collection errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *schedule.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errResp{Error: ve.Error(), Fields: ve.Fields})
	case errors.Is(err, status.ErrMalformedTimeRange):
		writeJSON(w, http.StatusUnprocessableEntity, errResp{Error: err.Error(), Fields: []string{"time_start", "time_end"}})
	case errors.Is(err, schedule.ErrEventNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, schedule.ErrReadOnlyField), errors.Is(err, schedule.ErrUnknownField):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("admin operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errResp{Error: msg})
}
