package api

import (
	"context"
	stderrors "errors"
	"net/url"
	"time"

	"cmonreports/internal/errors"
	"cmonreports/internal/logging"
	"cmonreports/internal/metrics"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	Name         string
	FailureRatio float64       // Trip when failures/requests reaches this ratio
	MinRequests  uint32        // ...and at least this many requests were seen
	OpenTimeout  time.Duration // Time spent open before probing again
}

// Breaker wraps a Getter with a circuit breaker.
//
// While open, calls fail immediately with a TransportError wrapping
// errors.ErrCircuitOpen instead of hitting a server that is already failing.
// Context cancellation does not count as a failure.
type Breaker struct {
	next Getter
	cb   *gobreaker.CircuitBreaker[[]byte]
	name string
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Getter, s BreakerSettings) *Breaker {
	if s.Name == "" {
		s.Name = "admin-api"
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 2 * time.Minute
	}

	log := logging.Component("circuit-breaker")
	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				log.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("🔌 Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("🔌 Circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled)
		},
	})

	return &Breaker{next: next, cb: cb, name: s.Name}
}

// Get forwards to the wrapped Getter unless the circuit is open.
func (b *Breaker) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	body, err := b.cb.Execute(func() ([]byte, error) {
		return b.next.Get(ctx, path, query)
	})
	if err == nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return body, nil
	}

	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, errors.NewTransportError("GET "+path, "", 0, errors.ErrCircuitOpen)
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	if !errors.IsTransport(err) {
		err = errors.NewTransportError("GET "+path, "", 0, err)
	}
	return nil, err
}

// State reports the current breaker state as a string.
func (b *Breaker) State() string {
	return stateToString(b.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
