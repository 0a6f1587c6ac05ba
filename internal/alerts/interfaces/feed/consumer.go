package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"velib-cloud/internal/changefeed"
	stations "velib-cloud/internal/stations/domain"
)

const defaultEvaluateTimeout = 10 * time.Second

// StateResolver resolves a single station's latest state.
type StateResolver interface {
	ResolveOne(ctx context.Context, stationID string) (*stations.StationState, error)
}

// StateHandler evaluates a station state.
type StateHandler interface {
	HandleStationState(ctx context.Context, state stations.StationState) error
}

// Consumer re-evaluates alerts when the change feed reports a new snapshot.
// Bursts per station collapse into one evaluation of the latest state.
type Consumer struct {
	resolver  StateResolver
	handler   StateHandler
	debouncer *changefeed.Debouncer
	timeout   time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	sub     *changefeed.Subscription
	stopped bool
	// in-flight evaluations; Add only happens under mu while !stopped.
	wg sync.WaitGroup
}

// Option customizes the consumer.
type Option func(*Consumer)

// WithDebounce sets the per-station quiet period.
func WithDebounce(delay time.Duration) Option {
	return func(c *Consumer) {
		c.debouncer = changefeed.NewDebouncer(delay)
	}
}

// WithEvaluateTimeout bounds a single evaluation.
func WithEvaluateTimeout(timeout time.Duration) Option {
	return func(c *Consumer) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer constructs a consumer.
func NewConsumer(resolver StateResolver, handler StateHandler, opts ...Option) (*Consumer, error) {
	if resolver == nil || handler == nil {
		return nil, errors.New("alerts feed: nil dependency")
	}
	c := &Consumer{
		resolver:  resolver,
		handler:   handler,
		debouncer: changefeed.NewDebouncer(500 * time.Millisecond),
		timeout:   defaultEvaluateTimeout,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start subscribes to every station on the hub. Evaluations stop when ctx is
// cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context, hub *changefeed.Hub) error {
	if hub == nil {
		return errors.New("alerts feed: nil hub")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return errors.New("alerts feed: already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.sub = hub.Subscribe(changefeed.ScopeAll, c.HandleEvent)
	return nil
}

// HandleEvent schedules an evaluation for the event's station.
func (c *Consumer) HandleEvent(event changefeed.Event) {
	stationID := event.StationID
	if stationID == "" {
		return
	}
	c.debouncer.Trigger(stationID, func() {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		c.wg.Add(1)
		base := c.ctx
		c.mu.Unlock()
		defer c.wg.Done()
		c.evaluate(base, stationID)
	})
}

func (c *Consumer) evaluate(base context.Context, stationID string) {
	if base == nil {
		base = context.Background()
	}
	if base.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(base, c.timeout)
	defer cancel()

	state, err := c.resolver.ResolveOne(ctx, stationID)
	if err != nil {
		c.logger.Warn().Err(err).Str("station_id", stationID).Msg("resolve station for alert evaluation failed")
		return
	}
	if state == nil {
		return
	}
	if err := c.handler.HandleStationState(ctx, *state); err != nil {
		c.logger.Warn().Err(err).Str("station_id", stationID).Msg("alert evaluation failed")
	}
}

// Stop releases the subscription and cancels pending evaluations.
func (c *Consumer) Stop() {
	c.mu.Lock()
	sub := c.sub
	cancel := c.cancel
	c.sub = nil
	c.stopped = true
	c.mu.Unlock()

	sub.Dispose()
	c.debouncer.Stop()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
