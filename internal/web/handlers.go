package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/control"
	"github.com/cjeanneret/VoxArm/internal/debug"
	"github.com/cjeanneret/VoxArm/internal/voice"
)

// MaxUtteranceLen bounds the text accepted for one utterance, in bytes.
const MaxUtteranceLen = 256

const submitTimeout = 2 * time.Second

// Submitter queues utterances for the control loop.
type Submitter interface {
	Submit(ctx context.Context, text string) error
}

// StateSource reports the control loop state.
type StateSource interface {
	State() control.State
}

// PoseSource reports the last-known arm pose.
type PoseSource interface {
	Snapshot() arm.Waypoint
}

// PresetLister lists stored presets.
type PresetLister interface {
	List(ctx context.Context) ([]string, error)
}

// Deps are the collaborators behind the HTTP handlers. Any of them may be
// nil; the matching routes then answer 503.
type Deps struct {
	Broadcaster *StatusBroadcaster
	Submitter   Submitter
	State       StateSource
	Pose        PoseSource
	Presets     PresetLister
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	deps     Deps
	staticFS fs.FS
	upgrader websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(deps Deps, staticFS fs.FS) *Handlers {
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewStatusBroadcaster()
	}
	return &Handlers{
		deps:     deps,
		staticFS: staticFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// UtteranceRequest is the body of POST /utterance.
type UtteranceRequest struct {
	Text string `json:"text"`
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	State string         `json:"state"`
	Pose  map[string]int `json:"pose,omitempty"`
}

// ValidateUtterance trims text and rejects empty, oversized or non-UTF-8
// input.
func ValidateUtterance(text string) (string, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "", errors.New("text is required")
	case len(text) > MaxUtteranceLen:
		return "", fmt.Errorf("text longer than %d bytes", MaxUtteranceLen)
	case !utf8.ValidString(text):
		return "", errors.New("text is not valid UTF-8")
	}
	return text, nil
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleUtterance handles POST /utterance: the text is queued for the
// control loop as if it had been spoken.
func (h *Handlers) HandleUtterance(w http.ResponseWriter, r *http.Request) {
	var req UtteranceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4*MaxUtteranceLen)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	text, err := ValidateUtterance(req.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.deps.Submitter == nil {
		http.Error(w, "voice input not configured", http.StatusServiceUnavailable)
		return
	}

	if err := h.submit(r.Context(), text); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "text": text})
}

func (h *Handlers) submit(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if err := h.deps.Submitter.Submit(ctx, text); err != nil {
		if errors.Is(err, voice.ErrClosed) {
			return errors.New("control loop stopped")
		}
		return err
	}
	debug.Live("Web utterance queued: %q", text)
	return nil
}

// HandleState handles GET /state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.deps.State == nil {
		http.Error(w, "control loop not running", http.StatusServiceUnavailable)
		return
	}
	resp := StateResponse{State: h.deps.State.State().String()}
	if h.deps.Pose != nil {
		resp.Pose = h.deps.Pose.Snapshot().Named()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePresets handles GET /presets.
func (h *Handlers) HandlePresets(w http.ResponseWriter, r *http.Request) {
	if h.deps.Presets == nil {
		http.Error(w, "preset store not configured", http.StatusServiceUnavailable)
		return
	}
	names, err := h.deps.Presets.List(r.Context())
	if err != nil {
		debug.Error(fmt.Errorf("listing presets: %w", err))
		http.Error(w, "preset store unavailable", http.StatusBadGateway)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"presets": names})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.deps.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleWebSocket handles GET /ws. Text frames from the client are queued
// as utterances; status events are pushed back as text frames.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error(fmt.Errorf("websocket upgrade: %w", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(4 * MaxUtteranceLen)

	ch, unsub := h.deps.Broadcaster.Subscribe()
	defer unsub()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: one utterance per text frame. Errors are reported on the
	// same socket as log events.
	replies := make(chan StatusEvent, 4)
	go func() {
		defer cancel()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			reply := StatusEvent{Kind: KindLog, Level: "info"}
			text, err := ValidateUtterance(string(data))
			switch {
			case err != nil:
				reply.Level, reply.Msg = "error", err.Error()
			case h.deps.Submitter == nil:
				reply.Level, reply.Msg = "error", "voice input not configured"
			default:
				if err := h.submit(ctx, text); err != nil {
					reply.Level, reply.Msg = "error", err.Error()
				} else {
					reply.Msg = "queued: " + text
				}
			}
			select {
			case replies <- reply:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case reply := <-replies:
			reply.Time = time.Now().Format(time.RFC3339)
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
