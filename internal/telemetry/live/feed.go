package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	telemetry "watertap/internal/telemetry/domain"
)

const (
	DefaultWindow   = 5 * time.Minute
	DefaultInterval = 15 * time.Second
)

// Source reloads recent telemetry.
type Source interface {
	Recent(ctx context.Context, window time.Duration) ([]telemetry.TelemetryPoint, error)
}

// Cache mirrors the latest snapshot outside the process.
type Cache interface {
	// Load returns false when nothing is cached.
	Load(ctx context.Context) ([]telemetry.TelemetryPoint, bool, error)
	Store(ctx context.Context, points []telemetry.TelemetryPoint) error
}

// Feed is the shared live telemetry producer. One loop reloads the recent
// window on every tick; readers take the latest result or subscribe to
// latest-only updates.
type Feed struct {
	source   Source
	cache    Cache
	window   time.Duration
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	latest  []telemetry.TelemetryPoint
	ready   bool
	subs    map[int]chan []telemetry.TelemetryPoint
	nextID  int
	reloads int
}

// Option configures the feed.
type Option func(*Feed)

// WithWindow sets how far back each reload reads.
func WithWindow(window time.Duration) Option {
	return func(f *Feed) {
		if window > 0 {
			f.window = window
		}
	}
}

// WithInterval sets the reload period.
func WithInterval(interval time.Duration) Option {
	return func(f *Feed) {
		if interval > 0 {
			f.interval = interval
		}
	}
}

// WithCache mirrors snapshots to cache.
func WithCache(cache Cache) Option {
	return func(f *Feed) {
		f.cache = cache
	}
}

// WithLogger sets the feed logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFeed constructs a feed.
func NewFeed(source Source, opts ...Option) (*Feed, error) {
	if source == nil {
		return nil, errors.New("live feed: nil source")
	}
	f := &Feed{
		source:   source,
		window:   DefaultWindow,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
		subs:     make(map[int]chan []telemetry.TelemetryPoint),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Start warms the feed from the cache, reloads immediately, then reloads on
// every tick until ctx ends.
func (f *Feed) Start(ctx context.Context) {
	f.warm(ctx)
	f.reload(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.closeSubscribers()
			return
		case <-ticker.C:
			f.reload(ctx)
		}
	}
}

// Refresh reloads once and publishes the result.
func (f *Feed) Refresh(ctx context.Context) error {
	points, err := f.source.Recent(ctx, f.window)
	if err != nil {
		return err
	}
	if points == nil {
		points = []telemetry.TelemetryPoint{}
	}
	f.publish(points)
	if f.cache != nil {
		if err := f.cache.Store(ctx, points); err != nil {
			f.logger.Warn("live cache store failed", zap.Error(err))
		}
	}
	return nil
}

// Latest returns the last snapshot. ok is false before the first load.
func (f *Feed) Latest() (points []telemetry.TelemetryPoint, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.ready
}

// Reloads returns how many reloads have been published.
func (f *Feed) Reloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

// Subscribe returns a channel that holds only the newest snapshot, primed
// with the current one when available. cancel releases it.
func (f *Feed) Subscribe() (updates <-chan []telemetry.TelemetryPoint, cancel func()) {
	ch := make(chan []telemetry.TelemetryPoint, 1)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	if f.ready {
		ch <- f.latest
	}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(ch)
			}
			f.mu.Unlock()
		})
	}
}

func (f *Feed) warm(ctx context.Context) {
	if f.cache == nil {
		return
	}
	points, ok, err := f.cache.Load(ctx)
	if err != nil {
		f.logger.Warn("live cache load failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	f.mu.Lock()
	if !f.ready {
		f.latest = points
		f.ready = true
	}
	f.mu.Unlock()
	f.logger.Info("live feed warmed from cache", zap.Int("points", len(points)))
}

func (f *Feed) reload(ctx context.Context) {
	if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
		f.logger.Warn("live feed reload failed", zap.Error(err))
	}
}

func (f *Feed) publish(points []telemetry.TelemetryPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = points
	f.ready = true
	f.reloads++
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- points
	}
}

func (f *Feed) closeSubscribers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
