package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"legalrag/internal/metrics"
)

// ErrUnknownSession is returned for session ids the manager does not hold.
var ErrUnknownSession = errors.New("session: unknown session")

// Manager keeps the state of many concurrent sessions. Turns of the same
// session run one at a time; different sessions run in parallel.
type Manager struct {
	orch    *Orchestrator
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	state    State
	lastUsed time.Time
}

// NewManager creates an empty session manager.
func NewManager(o *Orchestrator, m *metrics.Metrics) *Manager {
	return &Manager{orch: o, metrics: m, sessions: map[string]*entry{}}
}

// Create opens a session and returns its id and initial state.
func (m *Manager) Create(task, model string) (string, State, error) {
	st, err := m.orch.StateFor(task, model)
	if err != nil {
		return "", State{}, err
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &entry{state: st, lastUsed: time.Now()}
	m.mu.Unlock()
	m.metrics.SessionOpened()
	return id, st, nil
}

// Turn answers question within session id.
func (m *Manager) Turn(ctx context.Context, id, question string) (string, State, Trace, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return "", State{}, Trace{}, ErrUnknownSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	answer, next, tr := m.orch.Answer(ctx, e.state, question)
	e.state = next
	e.lastUsed = time.Now()
	if tr.Path == PathExit {
		m.Delete(id)
	}
	return answer, next, tr, nil
}

// Delete closes a session. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Expire closes sessions idle for longer than idle and returns how many.
func (m *Manager) Expire(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunJanitor expires idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire(idle)
		}
	}
}
