// Package endpoint implements the speech/silence endpointing state machine
// that decides when an utterance has started and finished.
//
// The machine consumes one verdict per classified frame via [Machine.Observe]
// and the session's elapsed time via [Machine.CheckTimeout]. It never reads
// the clock itself, which keeps it deterministic under test.
//
// Silence is only counted after the first speech frame, so a slow-starting
// speaker is never cut off; the overall timeout is the backstop for a
// microphone that never hears speech at all.
package endpoint

import (
	"fmt"
	"time"
)

// State is a position in the endpointing lifecycle.
type State int

const (
	// AwaitingSpeech is the initial state. Silence here is not counted.
	AwaitingSpeech State = iota

	// SpeechActive means the most recent classified frame was speech.
	SpeechActive

	// TrailingSilence means speech was heard and is now followed by silence.
	TrailingSilence

	// Stopped is terminal; see [Machine.Reason].
	Stopped
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case AwaitingSpeech:
		return "awaiting_speech"
	case SpeechActive:
		return "speech_active"
	case TrailingSilence:
		return "trailing_silence"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StopReason explains why a machine reached [Stopped].
type StopReason int

const (
	// StopNone is the zero value while the machine is still running.
	StopNone StopReason = iota

	// StopSilenceAfterSpeech: the trailing silence run exceeded the threshold.
	StopSilenceAfterSpeech

	// StopOverallTimeout: elapsed time exceeded the session ceiling.
	StopOverallTimeout

	// StopCancelled: the caller cancelled the session.
	StopCancelled

	// StopSourceExhausted: the frame source reported end of stream.
	StopSourceExhausted
)

// String returns the reason name used in logs, metrics and HTTP responses.
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopSilenceAfterSpeech:
		return "silence_after_speech"
	case StopOverallTimeout:
		return "overall_timeout"
	case StopCancelled:
		return "cancelled"
	case StopSourceExhausted:
		return "source_exhausted"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Decision is the machine's verdict after each input.
type Decision int

const (
	// Continue: keep reading frames.
	Continue Decision = iota
	// Stop: the machine reached Stopped; end the capture loop.
	Stop
)

// Config parameterises a Machine.
type Config struct {
	// SilenceTimeout is how much continuous silence after speech ends the
	// utterance.
	SilenceTimeout time.Duration

	// OverallTimeout is the hard ceiling on session length.
	OverallTimeout time.Duration

	// FrameDuration is the audio length of one classified frame.
	FrameDuration time.Duration
}

// SilenceThreshold is the number of trailing silent frames the machine
// tolerates. The frame after that many stops the session.
func (c Config) SilenceThreshold() int {
	if c.FrameDuration <= 0 {
		return 0
	}
	return int(c.SilenceTimeout / c.FrameDuration)
}

// Machine is the endpointing state machine. It is not safe for concurrent
// use; the capture loop owns it.
type Machine struct {
	cfg         Config
	threshold   int
	state       State
	reason      StopReason
	silenceRun  int
	speechSeen  bool
	observed    int
	firstSpeech int
}

// New returns a Machine in [AwaitingSpeech].
func New(cfg Config) *Machine {
	return &Machine{
		cfg:         cfg,
		threshold:   cfg.SilenceThreshold(),
		firstSpeech: -1,
	}
}

// Observe feeds the verdict for one classified frame.
func (m *Machine) Observe(speech bool) Decision {
	if m.state == Stopped {
		return Stop
	}
	idx := m.observed
	m.observed++

	switch m.state {
	case AwaitingSpeech:
		if speech {
			m.state = SpeechActive
			m.silenceRun = 0
			m.speechSeen = true
			m.firstSpeech = idx
		}
	case SpeechActive:
		if speech {
			m.silenceRun = 0
		} else {
			m.state = TrailingSilence
			m.silenceRun = 1
			// A zero threshold stops on the first trailing silent frame.
			if m.silenceRun > m.threshold {
				m.stop(StopSilenceAfterSpeech)
			}
		}
	case TrailingSilence:
		if speech {
			m.state = SpeechActive
			m.silenceRun = 0
		} else {
			m.silenceRun++
			if m.silenceRun > m.threshold {
				m.stop(StopSilenceAfterSpeech)
			}
		}
	}
	if m.state == Stopped {
		return Stop
	}
	return Continue
}

// CheckTimeout stops the machine with [StopOverallTimeout] once elapsed is
// strictly greater than the configured overall timeout.
func (m *Machine) CheckTimeout(elapsed time.Duration) Decision {
	if m.state == Stopped {
		return Stop
	}
	if elapsed > m.cfg.OverallTimeout {
		m.stop(StopOverallTimeout)
		return Stop
	}
	return Continue
}

// Halt stops the machine for a reason outside the classifier signal, such as
// cancellation or an exhausted source. It is a no-op once stopped.
func (m *Machine) Halt(reason StopReason) {
	if m.state == Stopped {
		return
	}
	m.stop(reason)
}

func (m *Machine) stop(reason StopReason) {
	m.state = Stopped
	m.reason = reason
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Reason returns the stop reason, or [StopNone] while running.
func (m *Machine) Reason() StopReason { return m.reason }

// SpeechDetected reports whether any classified frame was speech.
func (m *Machine) SpeechDetected() bool { return m.speechSeen }

// SilenceRun returns the current count of consecutive trailing silent frames.
func (m *Machine) SilenceRun() int { return m.silenceRun }

// Threshold returns the trailing-silence frame threshold.
func (m *Machine) Threshold() int { return m.threshold }

// Observed returns how many verdicts have been fed while running.
func (m *Machine) Observed() int { return m.observed }

// FirstSpeech returns the index, among observed verdicts, of the first
// speech frame, or -1 if none has been seen.
func (m *Machine) FirstSpeech() int { return m.firstSpeech }
