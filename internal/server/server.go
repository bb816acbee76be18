// Package server exposes the pipeline over HTTP: job submission,
// status, cancellation, and a websocket feed of state transitions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"autoblogger/internal/domain"
	"autoblogger/internal/infrastructure/storage"
)

// Pipeline is the slice of the orchestration engine the HTTP layer
// needs.
type Pipeline interface {
	Submit(ctx context.Context, source domain.SourceRef) (string, error)
	Status(ctx context.Context, jobID string) (*domain.ArticleJob, error)
	Cancel(ctx context.Context, jobID string) error
	Updates() <-chan *domain.ArticleJob
}

type Server struct {
	pipeline Pipeline
	hub      *Hub
	logger   *slog.Logger
	addr     string
	upgrader websocket.Upgrader
}

func New(pipeline Pipeline, addr string, logger *slog.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		hub:      NewHub(logger),
		logger:   logger,
		addr:     addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", s.handleSubmit)
	mux.HandleFunc("GET /jobs/{id}", s.handleStatus)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleCancel)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Run serves until the context is cancelled, then shuts down
// gracefully. It also pumps engine updates into the websocket hub.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-s.pipeline.Updates():
				s.hub.BroadcastJob(job)
			}
		}
	}()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type submitRequest struct {
	URL           string `json:"url"`
	RawText       string `json:"raw_text"`
	Title         string `json:"title"`
	StyleTemplate string `json:"style_template"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.URL == "" && req.RawText == "" {
		writeError(w, http.StatusBadRequest, "either url or raw_text is required")
		return
	}

	jobID, err := s.pipeline.Submit(r.Context(), domain.SourceRef{
		URL:           req.URL,
		RawText:       req.RawText,
		Title:         req.Title,
		StyleTemplate: req.StyleTemplate,
	})
	if err != nil {
		s.logger.Error("submit job", "error", err)
		writeError(w, http.StatusInternalServerError, "could not accept job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.pipeline.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("job status", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := s.pipeline.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancelling"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "error", err)
		return
	}
	select {
	case s.hub.register <- conn:
	case <-s.hub.done:
		conn.Close()
		return
	}

	// Drain client reads so closes are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case s.hub.unregister <- conn:
				case <-s.hub.done:
				}
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
