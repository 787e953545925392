package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSet keeps one circuit breaker per provider name, opening after
// repeated transient supervisor failures so a misconfigured or down
// provider stops being dispatched to for a cooldown window rather than
// burning through every ready task in the queue.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerSet constructs an empty set; breakers are created lazily per
// provider name on first use.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *BreakerSet) forProvider(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	s.breakers[name] = b
	return b
}

// ErrBreakerOpen wraps gobreaker.ErrOpenState with the provider name.
type ErrBreakerOpen struct {
	Provider string
}

func (e *ErrBreakerOpen) Error() string {
	return fmt.Sprintf("worker: circuit open for provider %q", e.Provider)
}

// Run executes fn through the named provider's breaker. Only errors
// returned by fn (supervisor-level failures: spawn errors, I/O errors) trip
// the breaker — timeouts and nonzero exits classified by Classify are
// legitimate task outcomes, not provider health signals, and are reported
// back to the caller via the returned Result without tripping anything.
func (s *BreakerSet) Run(ctx context.Context, provider string, fn func(context.Context) (*Result, error)) (*Result, error) {
	b := s.forProvider(provider)
	out, err := b.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &ErrBreakerOpen{Provider: provider}
		}
		return nil, err
	}
	res, _ := out.(*Result)
	return res, nil
}
