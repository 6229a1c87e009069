package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Store is the read contract consumed by the analytics engine.
type Store interface {
	FetchBalances(ctx context.Context, office string, start, end time.Time, codes []string) ([]BalanceRow, error)
	FetchAccountNames(ctx context.Context, codes []string) ([]AccountName, error)
}

// GuardedStore wraps a Store with a circuit breaker. Three or more requests with a
// failure ratio of 60% open the breaker for 30s. Caller cancellations and deadlines
// do not count as failures.
type GuardedStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedStore wraps next with a breaker named name.
func NewGuardedStore(next Store, name string, logger *slog.Logger) *GuardedStore {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("balance store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	return &GuardedStore{next: next, breaker: cb}
}

// FetchBalances delegates to the wrapped store through the breaker.
func (s *GuardedStore) FetchBalances(ctx context.Context, office string, start, end time.Time, codes []string) ([]BalanceRow, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.next.FetchBalances(ctx, office, start, end, codes)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch balances: %w", err)
	}
	rows, _ := out.([]BalanceRow)
	return rows, nil
}

// FetchAccountNames delegates to the wrapped store through the breaker.
func (s *GuardedStore) FetchAccountNames(ctx context.Context, codes []string) ([]AccountName, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.next.FetchAccountNames(ctx, codes)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch account names: %w", err)
	}
	names, _ := out.([]AccountName)
	return names, nil
}

// State reports the breaker state for health output.
func (s *GuardedStore) State() string {
	return s.breaker.State().String()
}
