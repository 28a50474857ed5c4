// Package broadcast implements the per-session progress log registry: an
// append-only buffered log per generation session, streamable by any number
// of readers, with idle eviction for sessions whose pipeline died without a
// terminal entry.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Entry is one human-readable progress event. Terminal marks the final entry
// of a session; streams end after delivering it.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Terminal  bool      `json:"terminal,omitempty"`
}

// Sink is the write side handed to pipeline stages so they can report
// progress without knowing about sessions.
type Sink interface {
	Append(sev Severity, format string, args ...any)
}

type session struct {
	mu       sync.Mutex
	cond     *sync.Cond
	entries  []Entry
	closed   bool
	lastSeen time.Time
}

// Registry maps session IDs to their logs. It is the only state shared
// across concurrent generation pipelines; a single pipeline writes each
// session, any number of streaming readers may attach.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*session
	idleTimeout time.Duration
}

// NewRegistry creates a registry that evicts sessions idle for longer than
// idleTimeout. Eviction runs lazily from Sweep; callers typically start
// StartEvictor in the background.
func NewRegistry(idleTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*session),
		idleTimeout: idleTimeout,
	}
}

// Open creates a new empty session log and returns its opaque ID.
func (r *Registry) Open() string {
	id := uuid.NewString()
	s := &session{lastSeen: time.Now()}
	s.cond = sync.NewCond(&s.mu)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	log.Debug().Str("session_id", id).Msg("session opened")
	return id
}

func (r *Registry) get(id string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Append adds an entry to the session log. Appending to an unknown or
// already-terminated session is a no-op: the pipeline outlives its
// observability, not the other way around.
func (r *Registry) Append(id string, sev Severity, format string, args ...any) {
	r.append(id, sev, fmt.Sprintf(format, args...), false)
}

// Close appends the terminal entry for a session. Streams attached to the
// session finish once they have delivered it.
func (r *Registry) Close(id string, sev Severity, format string, args ...any) {
	r.append(id, sev, fmt.Sprintf(format, args...), true)
}

func (r *Registry) append(id string, sev Severity, msg string, terminal bool) {
	s, ok := r.get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.entries = append(s.entries, Entry{
		Timestamp: time.Now(),
		Severity:  sev,
		Message:   msg,
		Terminal:  terminal,
	})
	s.lastSeen = time.Now()
	if terminal {
		s.closed = true
	}
	s.cond.Broadcast()
}

// Stream returns a channel delivering the session's entries from the start,
// in append order, including entries appended before the call. The channel
// closes after the terminal entry, when ctx is done, or when the session is
// evicted.
func (r *Registry) Stream(ctx context.Context, id string) (<-chan Entry, error) {
	s, ok := r.get(id)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}

	out := make(chan Entry)

	// cond.Wait cannot observe ctx directly; a watcher wakes the reader so
	// it can notice cancellation.
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	go func() {
		defer close(out)
		next := 0
		for {
			s.mu.Lock()
			for next >= len(s.entries) && !s.closed && ctx.Err() == nil {
				s.cond.Wait()
			}
			if ctx.Err() != nil {
				s.mu.Unlock()
				return
			}
			batch := make([]Entry, len(s.entries)-next)
			copy(batch, s.entries[next:])
			next = len(s.entries)
			done := s.closed && next >= len(s.entries)
			s.mu.Unlock()

			for _, e := range batch {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
			if done {
				return
			}
		}
	}()

	return out, nil
}

// Sweep evicts sessions idle for longer than the registry's timeout and
// returns how many were removed. Evicted sessions are closed first so any
// attached readers terminate instead of waiting forever.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var stale []string
	for id, s := range r.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		s := r.sessions[id]
		delete(r.sessions, id)
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}
	r.mu.Unlock()

	if len(stale) > 0 {
		log.Debug().Int("evicted", len(stale)).Msg("swept idle sessions")
	}
	return len(stale)
}

// StartEvictor sweeps periodically until ctx is cancelled.
func (r *Registry) StartEvictor(ctx context.Context) {
	interval := r.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Sink returns a write handle bound to one session.
func (r *Registry) Sink(id string) Sink {
	return boundSink{r: r, id: id}
}

type boundSink struct {
	r  *Registry
	id string
}

func (b boundSink) Append(sev Severity, format string, args ...any) {
	b.r.Append(b.id, sev, format, args...)
}

// NopSink discards everything; useful for callers that do not track sessions.
type NopSink struct{}

func (NopSink) Append(Severity, string, ...any) {}
