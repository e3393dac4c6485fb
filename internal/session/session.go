// Package session tracks the single build that may be in flight and lets
// data producers reach its barrier once it exists.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/toastdotdev/toast/internal/barrier"
	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/routes"
)

// ErrBuildInFlight rejects a build started while another one runs.
var ErrBuildInFlight = errors.NewProtocolError(errors.ErrCodeBuildInFlight, "a build is already in flight")

// Session is one build's window for receiving route data.
type Session struct {
	ID        string
	Barrier   *barrier.Barrier
	StartedAt time.Time
}

// SetDataForSlug parses payload and registers it with the build.
func (s *Session) SetDataForSlug(payload []byte) error {
	rec, err := routes.Parse(payload)
	if err != nil {
		return err
	}
	return s.Barrier.Register(rec)
}

// DoneSourcingData tells the build that no more route data will come.
func (s *Session) DoneSourcingData() error {
	return s.Barrier.End()
}

// Manager hands out sessions, at most one at a time.
type Manager struct {
	mu      sync.Mutex
	current *Session
	ready   chan struct{}
	seq     uint64
}

// NewManager creates a manager with no session.
func NewManager() *Manager {
	return &Manager{ready: make(chan struct{})}
}

// Begin starts a session and wakes every producer waiting in Await.
func (m *Manager) Begin() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrBuildInFlight
	}
	m.seq++
	s := &Session{
		ID:        fmt.Sprintf("build-%d", m.seq),
		Barrier:   barrier.New(),
		StartedAt: time.Now(),
	}
	m.current = s
	close(m.ready)
	return s, nil
}

// Await blocks until a session exists or ctx is done.
func (m *Manager) Await(ctx context.Context) (*Session, error) {
	for {
		m.mu.Lock()
		if s := m.current; s != nil {
			m.mu.Unlock()
			return s, nil
		}
		ready := m.ready
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ready:
		}
	}
}

// Current returns the session in flight, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Finish releases s so a new build may begin. Finishing a session that is no
// longer current does nothing.
func (m *Manager) Finish(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || m.current != s {
		return
	}
	m.current = nil
	m.ready = make(chan struct{})
}

// SetDataForSlug waits for a build and registers payload with it.
func (m *Manager) SetDataForSlug(ctx context.Context, payload []byte) error {
	s, err := m.Await(ctx)
	if err != nil {
		return err
	}
	return s.SetDataForSlug(payload)
}

// DoneSourcingData waits for a build and ends its data sourcing.
func (m *Manager) DoneSourcingData(ctx context.Context) error {
	s, err := m.Await(ctx)
	if err != nil {
		return err
	}
	return s.DoneSourcingData()
}
