package app

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionActive is returned by [Gate.Acquire] while another recording
// session holds the capture device.
var ErrSessionActive = errors.New("app: a recording session is already active")

// SessionInfo holds metadata about the active recording session.
type SessionInfo struct {
	// SessionID is the recorder's unique identifier for the session.
	SessionID string

	// StartedAt is when the session was admitted.
	StartedAt time.Time

	// Remote is the client address that requested the session.
	Remote string
}

// Gate admits one recording session at a time so the capture device is always
// closed before it is opened again. All methods are safe for concurrent use.
type Gate struct {
	mu     sync.Mutex
	active bool
	info   SessionInfo
	now    func() time.Time
}

// NewGate returns an idle gate. now may be nil to use time.Now.
func NewGate(now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{now: now}
}

// Acquire marks a session as active. The returned release function frees the
// gate; calling it more than once is safe. Returns an error wrapping
// [ErrSessionActive] if a session is already active.
func (g *Gate) Acquire(sessionID, remote string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, g.info.SessionID)
	}
	g.active = true
	g.info = SessionInfo{
		SessionID: sessionID,
		StartedAt: g.now().UTC(),
		Remote:    remote,
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.active = false
			g.info = SessionInfo{}
		})
	}, nil
}

// IsActive reports whether a session is currently running.
func (g *Gate) IsActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Info returns the active session's metadata and true, or a zero value and
// false when idle.
func (g *Gate) Info() (SessionInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.info, g.active
}
