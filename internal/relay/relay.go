package relay

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"puppyspa/waitlist-service/internal/metrics"
	"puppyspa/waitlist-service/internal/store"
)

// Publisher delivers a single outbox event to a downstream consumer.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event store.OutboxEvent) error
}

type EventSource interface {
	ListEvents(ctx context.Context, offset store.EventOffset, limit int) ([]store.OutboxEvent, error)
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Timeout      time.Duration
	// Since skips events created at or before it. Zero replays the whole outbox.
	Since time.Time
}

// Relay polls the outbox and fans each new event out to its publishers. A
// publisher failure is logged and counted; the offset still advances past the
// event so one broken consumer cannot stall the others.
type Relay struct {
	source     EventSource
	publishers []Publisher
	cfg        Config
	logger     *zap.Logger
	offset     store.EventOffset
	running    int32
}

func New(source EventSource, cfg Config, logger *zap.Logger, publishers ...Publisher) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		source:     source,
		publishers: publishers,
		cfg:        cfg,
		logger:     logger,
		offset:     store.EventOffset{LastEventTime: cfg.Since.UTC()},
	}
}

func (r *Relay) Offset() store.EventOffset {
	return r.offset
}

// RunOnce relays one batch and returns the number of events read. It returns
// immediately when another batch is still in flight.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return 0, nil
	}
	defer atomic.StoreInt32(&r.running, 0)

	listCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	events, err := r.source.ListEvents(listCtx, r.offset, r.cfg.BatchSize)
	cancel()
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		r.publish(ctx, event)
		r.offset = store.EventOffset{LastEventTime: event.CreatedAt, LastEventID: event.EventID}
	}
	return len(events), nil
}

func (r *Relay) publish(ctx context.Context, event store.OutboxEvent) {
	for _, publisher := range r.publishers {
		pubCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		err := publisher.Publish(pubCtx, event)
		cancel()
		if err != nil {
			metrics.RelayPublishErrorsTotal.WithLabelValues(publisher.Name()).Inc()
			r.logger.Error("relay publish failed",
				zap.String("publisher", publisher.Name()),
				zap.String("event_id", event.EventID),
				zap.String("type", event.Type),
				zap.Error(err),
			)
			continue
		}
		metrics.RelayPublishedTotal.WithLabelValues(publisher.Name()).Inc()
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("publishers", len(r.publishers)),
	)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("relay poll failed", zap.Error(err))
			}
		}
	}
}
