// pkg/network/circuit_breaker.go
package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/logging"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// NetworkService guards dialing the server with a circuit breaker. After
// enough consecutive failures it stops trying until the breaker's timeout
// passes, so a client does not hammer a server that is down.
type NetworkService struct {
	breaker    *gobreaker.CircuitBreaker
	logger     *logging.Logger
	maxRetries int
	retryDelay time.Duration
}

// NetworkOperation represents a function that performs a network operation.
type NetworkOperation func() error

// NewNetworkService creates a breaker from the CircuitBreaker* settings
func NewNetworkService(env *config.EnvironmentConfig, logger *logging.Logger) *NetworkService {
	if logger == nil {
		logger = logging.NewLogger()
	}
	logger = logger.With("component", "circuit_breaker")
	maxFails := uint32(max(env.CircuitBreakerMaxConsecutiveFails, 1))

	settings := gobreaker.Settings{
		Name:        "gravity-beats-network",
		MaxRequests: uint32(env.CircuitBreakerMaxRequests),
		Interval:    env.CircuitBreakerInterval,
		Timeout:     env.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &NetworkService{
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// Execute runs a network operation through the circuit breaker. An open
// breaker fails immediately with gobreaker.ErrOpenState.
func (ns *NetworkService) Execute(ctx context.Context, operation NetworkOperation) error {
	_, err := ns.breaker.Execute(func() (interface{}, error) {
		return nil, operation()
	})
	if err != nil {
		ns.logger.Debug(ctx, "operation failed", "error", err, "state", ns.breaker.State().String())
		return fmt.Errorf("circuit breaker: %w", err)
	}
	return nil
}

// ExecuteWithRetry retries a failing operation with a linearly growing
// delay. It stops early when the breaker opens or ctx is done.
func (ns *NetworkService) ExecuteWithRetry(ctx context.Context, operation NetworkOperation) error {
	var err error
	for attempt := 1; attempt <= ns.maxRetries; attempt++ {
		if err = ns.Execute(ctx, operation); err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			ns.logger.Warn(ctx, "circuit breaker is open, skipping retries", "attempt", attempt)
			return err
		}
		if attempt == ns.maxRetries {
			break
		}

		delay := time.Duration(attempt) * ns.retryDelay
		ns.logger.Warn(ctx, "operation failed, retrying",
			"attempt", attempt,
			"max_retries", ns.maxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	ns.logger.Error(ctx, "all retry attempts failed", err, "attempts", ns.maxRetries)
	return fmt.Errorf("max retries (%d) exceeded: %w", ns.maxRetries, err)
}

// GetState returns the current state of the circuit breaker.
func (ns *NetworkService) GetState() gobreaker.State {
	return ns.breaker.State()
}

// GetCounts returns the breaker's counts for the current interval
func (ns *NetworkService) GetCounts() gobreaker.Counts {
	return ns.breaker.Counts()
}
