package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/VoxArm/internal/control"
)

// Event kinds.
const (
	KindLog      = "log"
	KindState    = "state"
	KindAnnounce = "announce"
)

// StatusEvent is one message pushed to status stream clients.
type StatusEvent struct {
	Time        string `json:"t"`
	Kind        string `json:"k"`
	Level       string `json:"l,omitempty"`
	Msg         string `json:"msg"`
	State       string `json:"state,omitempty"`
	UtteranceID string `json:"id,omitempty"`
}

// subscriberBuffer is how many events a slow client may lag behind before
// events are dropped for it.
const subscriberBuffer = 64

// StatusBroadcaster fans status events out to SSE and websocket clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of JSON-encoded events and a cleanup
// function the caller must call when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Subscribers returns the number of connected clients.
func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends evt to every client. Slow clients miss events rather than
// block the publisher.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = time.Now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Broadcast sends a log line at the given level.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Publish(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// PublishTransition reports a control loop state change.
func (b *StatusBroadcaster) PublishTransition(t control.Transition) {
	b.Publish(StatusEvent{
		Time:        t.At.Format(time.RFC3339),
		Kind:        KindState,
		Msg:         t.From.String() + " -> " + t.To.String(),
		State:       t.To.String(),
		UtteranceID: t.UtteranceID,
	})
}

// PublishAnnouncement reports a message spoken to the operator.
func (b *StatusBroadcaster) PublishAnnouncement(a control.Announcement) {
	b.Publish(StatusEvent{
		Time:        a.At.Format(time.RFC3339),
		Kind:        KindAnnounce,
		Msg:         a.Text,
		UtteranceID: a.UtteranceID,
	})
}

// BroadcastWriter adapts the broadcaster to io.Writer so debug output can
// be teed into the status stream.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.b.Broadcast("info", line)
		}
	}
	return len(p), nil
}
