package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// StatusReporter exposes the breaker state of a provider chain.
// [resilience.TranscriberFallback] and [resilience.SynthesizerFallback]
// implement it.
type StatusReporter interface {
	Status() []resilience.ProviderStatus
}

// ProviderChecker fails when every provider in the chain has an open breaker.
// A half-open or closed entry means requests can still be served.
func ProviderChecker(name string, r StatusReporter) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			statuses := r.Status()
			if len(statuses) == 0 {
				return errors.New("no providers configured")
			}
			open := make([]string, 0, len(statuses))
			for _, s := range statuses {
				if s.State != resilience.StateOpen {
					return nil
				}
				open = append(open, s.Name)
			}
			return fmt.Errorf("all circuit breakers open: %s", strings.Join(open, ", "))
		},
	}
}

// VADChecker verifies that engine can start a session with format and
// classify one frame of silence.
func VADChecker(engine vad.Engine, format audio.Format) Checker {
	return Checker{
		Name: "vad",
		Check: func(context.Context) error {
			sess, err := engine.NewSession(vad.Config{
				SampleRate:     format.SampleRate,
				FrameSizeMs:    int(audio.FrameDuration / time.Millisecond),
				Aggressiveness: vad.AggressivenessLowBitrate,
			})
			if err != nil {
				return err
			}
			defer sess.Close()
			_, err = sess.ProcessFrame(make([]byte, format.FrameBytes()))
			return err
		},
	}
}

// Pinger is a dependency that can report its reachability, such as a
// database-backed store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps p as a readiness check.
func PingChecker(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}
