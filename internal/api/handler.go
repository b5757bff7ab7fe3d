// Package api exposes the controller to the browser shell: a small REST
// surface for session management and a websocket that carries one chat turn's
// streaming updates.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/RichardoC/streampad/internal/chat"
	"github.com/RichardoC/streampad/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	controller *chat.Controller
	commands   chan<- chat.Command
	input      *InputBuffer
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewHandler(controller *chat.Controller, commands chan<- chat.Command, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: controller,
		commands:   commands,
		input:      &InputBuffer{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Input returns the server-side mirror of the browser's input box, consumed
// by the voice-command loop.
func (h *Handler) Input() *InputBuffer {
	return h.input
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.GetState)
	mux.HandleFunc("/api/sessions", h.DeleteSession)
	mux.HandleFunc("/api/sessions/select", h.SelectSession)
	mux.HandleFunc("/api/sessions/new", h.NewChat)
	mux.HandleFunc("/api/command", h.PostCommand)
	mux.HandleFunc("/api/input", h.PutInput)
	mux.HandleFunc("/api/chat/ws", h.HandleChat)
}

type stateResponse struct {
	Sessions []models.ChatSession `json:"sessions"`
	ActiveID string               `json:"active_id"`
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, activeID := h.controller.Snapshot()
	h.writeJSON(w, stateResponse{Sessions: sessions, ActiveID: activeID})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Query parameter 'id' is required", http.StatusBadRequest)
		return
	}
	if err := h.controller.DeleteSession(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type selectRequest struct {
	ID string `json:"id"`
}

func (h *Handler) SelectSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.controller.SelectSession(req.ID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) NewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.controller.NewChat()
	w.WriteHeader(http.StatusOK)
}

// PostCommand forwards a voice-command token to the controller's command
// loop. The command is queued, not executed inline, so a long send does not
// hold the HTTP request open.
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var cmd chat.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	select {
	case h.commands <- cmd:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "Command queue full", http.StatusServiceUnavailable)
	}
}

type inputRequest struct {
	Text string `json:"text"`
}

// PutInput keeps the server-side input mirror in sync with the browser, so a
// bare "send message" voice command has text to send.
func (h *Handler) PutInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.input.Set(req.Text)
	w.WriteHeader(http.StatusOK)
}

type chatRequest struct {
	Content string `json:"content"`
}

type chatFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleChat upgrades to a websocket and serves chat turns over it. For each
// {"content":...} message from the client it streams "delta" frames carrying
// the full text so far, then a terminal "done", "busy" or "error" frame. All
// writes happen on this goroutine.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		err := h.controller.SendMessage(r.Context(), req.Content, func(full string) {
			if err := conn.WriteJSON(chatFrame{Type: "delta", Content: full}); err != nil {
				h.logger.Debug("failed to push delta", zap.Error(err))
			}
		})

		var frame chatFrame
		switch {
		case err == nil:
			frame = chatFrame{Type: "done"}
		case errors.Is(err, chat.ErrSendInFlight):
			frame = chatFrame{Type: "busy"}
		case errors.Is(err, chat.ErrEmptyMessage):
			frame = chatFrame{Type: "error", Message: "message is empty"}
		default:
			frame = chatFrame{Type: "error", Message: err.Error()}
		}
		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Debug("failed to write terminal frame", zap.Error(err))
			return
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// InputBuffer mirrors the browser's input box for the voice-command path.
type InputBuffer struct {
	mu   sync.Mutex
	text string
}

func (b *InputBuffer) Set(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}

func (b *InputBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *InputBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = ""
}
