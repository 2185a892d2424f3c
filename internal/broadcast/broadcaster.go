// Package broadcast fans newly stored readings out to connected live
// viewers over server-sent events.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airsense/airsense/internal/reading"
)

// DefaultSessionBuffer is the per-session outbound event buffer. A
// viewer that falls this many events behind is dropped.
const DefaultSessionBuffer = 16

// Session is one live viewer connection. It is created by Subscribe and
// destroyed on Unsubscribe or when a send fails.
type Session struct {
	ID       string
	OpenedAt time.Time
	ch       chan []byte
}

// Events returns the session's outbound event stream. The channel is
// closed when the session is unsubscribed or dropped.
func (s *Session) Events() <-chan []byte {
	return s.ch
}

// Broadcaster owns the set of live viewer sessions. All mutation and
// iteration happens under its mutex, so sessions can be removed while a
// publish is in flight without tripping the iteration.
type Broadcaster struct {
	mu       sync.Mutex
	sessions map[string]*Session
	buffer   int
	offset   float64
}

// New creates a Broadcaster. offset is the named display calibration
// applied to outbound predicted IAQ values; stored values are untouched.
func New(offset float64) *Broadcaster {
	return &Broadcaster{
		sessions: make(map[string]*Session),
		buffer:   DefaultSessionBuffer,
		offset:   offset,
	}
}

// Subscribe registers a new viewer session. An initial keepalive event
// is queued immediately so the client sees the stream is live.
func (b *Broadcaster) Subscribe() *Session {
	s := &Session{
		ID:       uuid.NewString(),
		OpenedAt: time.Now().UTC(),
		ch:       make(chan []byte, b.buffer),
	}
	// Queue the keepalive before the session is visible to Publish.
	s.ch <- formatEvent("ping", []byte(`{"ok":true}`))

	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()

	return s
}

// Unsubscribe removes a session and closes its event channel. It is
// idempotent; unsubscribing an unknown or already-removed handle is a
// no-op.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		delete(b.sessions, id)
		close(s.ch)
	}
}

// Publish serializes the reading once and sends it to every subscribed
// session. Delivery is best effort: a session whose buffer is full is
// dropped rather than retried or blocked on.
func (b *Broadcaster) Publish(r reading.Reading) {
	payload, err := json.Marshal(r.Calibrated(b.offset))
	if err != nil {
		log.Printf("broadcast: failed to encode reading id=%d: %v", r.ID, err)
		return
	}
	b.send(formatEvent("reading", payload))
}

// Ping sends a keepalive event to all sessions, pruning any that can no
// longer receive.
func (b *Broadcaster) Ping() {
	b.send(formatEvent("ping", []byte(`{"ok":true}`)))
}

// Len returns the number of currently subscribed sessions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// send delivers one event to every session. Sends never block: a
// session whose buffer is full is removed and closed in place, which is
// safe because closes only ever happen under the mutex.
func (b *Broadcaster) send(event []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.sessions {
		select {
		case s.ch <- event:
		default:
			// Slow or dead viewer; drop it.
			log.Printf("broadcast: dropping slow session %s", id)
			delete(b.sessions, id)
			close(s.ch)
		}
	}
}

// formatEvent renders one SSE frame.
func formatEvent(name string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}
