// Package session implements the Session Store (spec §4.7): the sole owner
// of conversation state, living in the Gateway process. Grounded on
// hector's pkg/session package (in-memory map + per-entity mutex) and its
// convention of exposing a narrow verb-shaped API rather than a generic
// CRUD interface.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shuaitravel/agent/pkg/obs"
)

// Role is a Message's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable turn in a session's log. Reasoning is only ever
// populated on assistant messages.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
	Reasoning string
}

// Session is the per-conversation record the store owns exclusively.
type Session struct {
	ID         string
	Name       string
	ModelID    string
	Messages   []Message
	CreatedAt  time.Time
	LastActive time.Time
}

// MessageCount mirrors spec §3's invariant that message_count == len(messages).
func (s Session) MessageCount() int {
	return len(s.Messages)
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// Store is the in-memory Session Store. All mutating operations on a given
// id are serialized via that id's own mutex; operations on distinct ids
// proceed independently.
type Store struct {
	mu      sync.RWMutex
	items   map[string]*entry
	metrics *obs.Metrics
}

// New creates an empty Store.
func New() *Store {
	return &Store{items: make(map[string]*entry)}
}

// WithMetrics attaches the process-wide Prometheus instruments. Optional —
// a Store built without it simply records nothing.
func (s *Store) WithMetrics(m *obs.Metrics) *Store {
	s.metrics = m
	return s
}

// Create makes a new session, or — if id is non-empty and already known —
// idempotently returns the existing one unchanged (spec §8's session
// creation idempotence law: the message log is not cleared).
func (s *Store) Create(id, name, modelID string) Session {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	if e, ok := s.items[id]; ok {
		s.mu.Unlock()
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.session
	}

	now := time.Now()
	e := &entry{session: Session{
		ID:         id,
		Name:       name,
		ModelID:    modelID,
		CreatedAt:  now,
		LastActive: now,
	}}
	s.items[id] = e
	count := len(s.items)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SessionsActive.Set(float64(count))
	}
	return e.session
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	return e, ok
}

// Get returns a copy of the session, if it exists.
func (s *Store) Get(id string) (Session, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, true
}

// Delete removes a session entirely.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	count := len(s.items)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SessionsActive.Set(float64(count))
	}
}

// Rename sets a session's display name.
func (s *Store) Rename(id, name string) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Name = name
	return true
}

// SetModel rebinds a session to a different model id.
func (s *Store) SetModel(id, modelID string) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.ModelID = modelID
	return true
}

// AppendMessage appends an immutable Message and advances LastActive.
func (s *Store) AppendMessage(id string, msg Message) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	e.session.Messages = append(e.session.Messages, msg)
	if msg.Timestamp.After(e.session.LastActive) {
		e.session.LastActive = msg.Timestamp
	}
	return true
}

// ClearMessages empties a session's log without deleting the session.
func (s *Store) ClearMessages(id string) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Messages = nil
	return true
}

// List returns sessions ordered by last-active descending. When
// includeEmpty is false, a session is included only if it has at least one
// message or was active within the last hour (spec §4.7's eviction rule —
// this is a read-side filter; nothing is deleted by listing).
func (s *Store) List(includeEmpty bool) []Session {
	s.mu.RLock()
	snapshot := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		snapshot = append(snapshot, e)
	}
	s.mu.RUnlock()

	now := time.Now()
	out := make([]Session, 0, len(snapshot))
	for _, e := range snapshot {
		e.mu.Lock()
		sess := e.session
		e.mu.Unlock()

		if includeEmpty || sess.MessageCount() > 0 || now.Sub(sess.LastActive) < time.Hour {
			out = append(out, sess)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}
