// Package events delivers committed fund notifications to subscribers.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fundscope/internal/metrics"
	"fundscope/internal/model"
)

const (
	defaultWorkers         = 4
	defaultDeliveryTimeout = 30 * time.Second
)

// Handler consumes a request funded notification.
type Handler func(ctx context.Context, event model.RequestFunded) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus fans notifications out to subscribers on a bounded worker pool.
// Delivery is fire-and-forget: failures are logged and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	closed      bool

	workers *pool.Pool
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithWorkers bounds concurrent deliveries. Publish blocks while all workers
// are busy.
func WithWorkers(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.workers = pool.New().WithMaxGoroutines(n)
		}
	}
}

// WithDeliveryTimeout bounds each delivery.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMetrics records failed deliveries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// NewBus creates a bus with a logging subscriber registered.
func NewBus(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		workers: pool.New().WithMaxGoroutines(defaultWorkers),
		timeout: defaultDeliveryTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Subscribe("log", LogSubscriber(logger))
	return b
}

// Subscribe registers a handler under name.
func (b *Bus) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, subscriber{name: name, handler: h})
	b.mu.Unlock()
}

// Publish schedules delivery of event to every subscriber. Events published
// after Close are dropped.
func (b *Bus) Publish(ctx context.Context, event model.RequestFunded) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("bus closed, dropping notification", zap.Int64("request_id", event.RequestID))
		return
	}
	subs := append([]subscriber(nil), b.subscribers...)
	deliveryCtx := context.WithoutCancel(ctx)

	b.workers.Go(func() {
		if err := b.deliver(deliveryCtx, subs, event); err != nil {
			b.logger.Warn("notification delivery failed",
				zap.Int64("request_id", event.RequestID),
				zap.Int64("fund_id", event.Fund.ID),
				zap.Error(err),
			)
		}
	})
}

func (b *Bus) deliver(ctx context.Context, subs []subscriber, event model.RequestFunded) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	errs := make([]error, len(subs))
	iter.ForEachIdx(subs, func(i int, s *subscriber) {
		var catcher panics.Catcher
		var err error
		catcher.Try(func() { err = s.handler(ctx, event) })
		if r := catcher.Recovered(); r != nil {
			err = r.AsError()
		}
		if err != nil {
			b.metrics.NotificationFailed(s.name)
			errs[i] = fmt.Errorf("%s: %w", s.name, err)
		}
	})
	return multierr.Combine(errs...)
}

// Close stops accepting events and waits for in-flight deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.workers.Wait()
}

// LogSubscriber logs every notification.
func LogSubscriber(logger *zap.Logger) Handler {
	return func(_ context.Context, event model.RequestFunded) error {
		logger.Info("request funded",
			zap.Int64("request_id", event.RequestID),
			zap.Int64("fund_id", event.Fund.ID),
			zap.String("token", event.Fund.Token),
			zap.String("funder", event.Fund.FunderAddress),
			zap.Time("timestamp", event.Timestamp),
		)
		return nil
	}
}
