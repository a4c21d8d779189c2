package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"vocalis/internal/api"
	"vocalis/internal/config"
	"vocalis/internal/logging"
	"vocalis/internal/services"
)

const maxUploadBytes = 64 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux.HandleFunc("/api/submissions", requireBearer(token, srv.handleSubmissions))
	mux.HandleFunc("/api/submissions/", requireBearer(token, srv.handleSubmission))
	mux.HandleFunc("/api/events", requireBearer(token, srv.handleEvents))
	mux.HandleFunc("/api/status", requireBearer(token, srv.handleStatus))
	mux.HandleFunc("/api/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No write timeout: the event stream holds connections open.
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contentType := r.Header.Get("Content-Type")

	var (
		resp *api.SubmitResponse
		err  error
	)
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if parseErr := r.ParseMultipartForm(maxUploadBytes); parseErr != nil {
			s.writeError(w, http.StatusBadRequest, "invalid multipart payload")
			return
		}
		file, header, formErr := r.FormFile("file")
		if formErr != nil {
			s.writeError(w, http.StatusBadRequest, "recording file is required")
			return
		}
		defer file.Close()
		owner := r.FormValue("owner")
		priority := 0
		if raw := r.FormValue("priority"); raw != "" {
			priority, formErr = strconv.Atoi(raw)
			if formErr != nil {
				s.writeError(w, http.StatusBadRequest, "priority must be an integer")
				return
			}
		}
		resp, err = s.daemon.service.Ingest(ctx, owner, header.Filename, file, header.Size, header.Header.Get("Content-Type"), priority)
	} else {
		var req api.SubmitRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		resp, err = s.daemon.service.Submit(ctx, req)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	subs, err := s.daemon.service.List(r.Context(), owner, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SubmissionListResponse{Submissions: subs})
}

func (s *apiServer) handleSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	resp, err := s.daemon.service.Describe(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	owner := strings.TrimSpace(query.Get("owner"))
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}
	// Without an explicit cursor delivery starts at the current sequence,
	// so past events are never replayed to a fresh subscriber. Clients
	// resuming after a disconnect pass the cursor they last saw.
	since := s.daemon.hub.Sequence()
	if query.Has("since") {
		since, _ = strconv.ParseUint(query.Get("since"), 10, 64)
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	if wantsEventStream(r) {
		s.streamEvents(w, r, owner, since)
		return
	}

	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")
	events, next, err := s.daemon.hub.Fetch(r.Context(), owner, since, limit, wait)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventStreamResponse{
		Events: api.FromEvents(events),
		Next:   next,
	})
}

func wantsEventStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "1" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamEvents serves the owner's events as server-sent events until the
// client disconnects.
func (s *apiServer) streamEvents(w http.ResponseWriter, r *http.Request, owner string, since uint64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		events, next, err := s.daemon.hub.Fetch(r.Context(), owner, since, 64, true)
		if err != nil {
			return
		}
		for _, event := range events {
			payload, marshalErr := json.Marshal(api.FromEvent(event))
			if marshalErr != nil {
				s.log().Error("failed to encode event", logging.Error(marshalErr))
				continue
			}
			if _, writeErr := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Sequence, event.Type, payload); writeErr != nil {
				return
			}
		}
		flusher.Flush()
		since = next
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:          status.Running,
		PID:              status.PID,
		QueueDBPath:      status.QueueDBPath,
		SubmissionDBPath: status.SubmissionDBPath,
		LockFilePath:     status.LockFilePath,
		Queue:            api.MergeQueueStats(status.Queue),
		Submissions:      api.MergeSubmissionStats(status.Submissions),
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := api.HealthResponse{Status: "ok"}
	health, err := s.daemon.analysis.Health(r.Context())
	if err != nil {
		resp.Error = services.UserMessage(err)
	} else {
		resp.Analysis = &api.AnalysisHealth{
			Status:      health.Status,
			ModelLoaded: health.ModelLoaded,
			Version:     health.Version,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, services.UserMessage(err))
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, services.UserMessage(err))
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
