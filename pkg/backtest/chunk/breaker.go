package chunk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker settings for candle-store re-fetches between chunks.
// Trimmed from the teacher's three-service (exchange/LLM/database) manager
// to the one service this module's hot path actually calls out to.
const (
	minRequests     = 5
	failureRatio    = 0.6
	openTimeout     = 15 * time.Second
	halfOpenMaxReqs = 3
	countInterval   = 10 * time.Second
)

var (
	metricsOnce   sync.Once
	breakerState  *prometheus.GaugeVec
	breakerEvents *prometheus.CounterVec
)

func initBreakerMetrics() {
	metricsOnce.Do(func() {
		breakerState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chunk_breaker_state",
				Help: "Candle-store re-fetch circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"chunk"},
		)
		breakerEvents = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_refetch_total",
				Help: "Candle-store re-fetch attempts, by chunk and result",
			},
			[]string{"chunk", "result"},
		)
	})
}

// RefetchBreaker guards the chunk executor's candle-store re-fetch calls
// (e.g. after a transient read error mid-run) so a flapping store doesn't
// retry every chunk indefinitely. One instance is shared across a run's
// chunks, unlike the teacher's per-service breaker manager.
type RefetchBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewRefetchBreaker builds the shared re-fetch breaker for one executor run.
func NewRefetchBreaker() *RefetchBreaker {
	initBreakerMetrics()
	name := "candle_refetch"

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpenMaxReqs,
		Interval:    countInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &RefetchBreaker{cb: cb}
}

// Do executes fn through the breaker, recording success/failure counters.
func (b *RefetchBreaker) Do(fn func() error) error {
	name := b.cb.Name()
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		breakerEvents.WithLabelValues(name, "failure").Inc()
	} else {
		breakerEvents.WithLabelValues(name, "success").Inc()
	}
	return err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
