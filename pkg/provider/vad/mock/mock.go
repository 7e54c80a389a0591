// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame verdicts and inspect the frames that were
// submitted for processing.
//
// Example:
//
//	sess := &mock.Session{Verdicts: mock.Pattern(50, false, 30, true)}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Calls returns a snapshot of the recorded NewSession calls. Thread-safe.
func (e *Engine) Calls() []NewSessionCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]NewSessionCall(nil), e.NewSessionCalls...)
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// ProcessFrameCall records a single invocation of Session.ProcessFrame.
type ProcessFrameCall struct {
	// Frame is a copy of the bytes passed to ProcessFrame.
	Frame []byte
}

// Session is a mock implementation of vad.SessionHandle.
//
// The n-th ProcessFrame call returns Verdicts[n] when n is in range and
// Default otherwise. Classify, when set, replaces the script entirely.
type Session struct {
	mu sync.Mutex

	// Verdicts scripts per-call speech decisions.
	Verdicts []bool

	// Default is returned once Verdicts is exhausted.
	Default vad.VADEvent

	// Classify, if non-nil, decides every call.
	Classify func(frame []byte) (vad.VADEvent, error)

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessFrameCalls records every call to ProcessFrame in order.
	ProcessFrameCalls []ProcessFrameCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ProcessFrame records the call and returns the scripted verdict.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	n := len(s.ProcessFrameCalls)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{Frame: cp})

	if s.ProcessFrameErr != nil {
		return vad.Silence, s.ProcessFrameErr
	}
	if s.Classify != nil {
		return s.Classify(cp)
	}
	if n < len(s.Verdicts) {
		if s.Verdicts[n] {
			return vad.Speech, nil
		}
		return vad.Silence, nil
	}
	return s.Default, nil
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Processed returns how many frames have been classified. Thread-safe.
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ProcessFrameCalls)
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)

// Pattern expands (count, speech) pairs into a verdict script:
// Pattern(50, false, 30, true) is 50 silent frames followed by 30 speech
// frames. Arguments must alternate int and bool.
func Pattern(pairs ...any) []bool {
	var out []bool
	for i := 0; i+1 < len(pairs); i += 2 {
		n := pairs[i].(int)
		v := pairs[i+1].(bool)
		for range n {
			out = append(out, v)
		}
	}
	return out
}
