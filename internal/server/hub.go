package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"autoblogger/internal/domain"
)

// Hub fans job updates out to connected websocket clients. Clients
// that fail a write are dropped; a slow consumer never blocks the
// pipeline.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until the context ends. All map access
// happens on this goroutine. Closing done lets connection handlers
// bail out once nobody is receiving on register or unregister.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return
		case conn := <-h.register:
			h.clients[conn] = true
			h.logger.Debug("websocket client connected", "clients", len(h.clients))
		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case message := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Debug("dropping websocket client", "error", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

// BroadcastJob pushes a compact job-state event to every client.
func (h *Hub) BroadcastJob(job *domain.ArticleJob) {
	event := map[string]any{
		"type":       "job_update",
		"job_id":     job.ID,
		"state":      job.State,
		"updated_at": job.UpdatedAt,
	}
	if len(job.Errors) > 0 {
		last := job.Errors[len(job.Errors)-1]
		event["error"] = last.Message
		event["error_kind"] = last.Kind
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal job update", "job_id", job.ID, "error", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
	}
}
