package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

type countingSource struct {
	mu     sync.Mutex
	calls  int
	points []telemetry.TelemetryPoint
	err    error
}

func (s *countingSource) Recent(_ context.Context, window time.Duration) ([]telemetry.TelemetryPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.points, s.err
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memoryCache struct {
	mu     sync.Mutex
	points []telemetry.TelemetryPoint
	stored int
}

func (c *memoryCache) Load(context.Context) ([]telemetry.TelemetryPoint, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.points, c.points != nil, nil
}

func (c *memoryCache) Store(_ context.Context, points []telemetry.TelemetryPoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.points = points
	c.stored++
	return nil
}

func point(sensor int, ph float64) telemetry.TelemetryPoint {
	return telemetry.TelemetryPoint{
		At:       time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		SensorID: telemetry.Sensor(sensor),
		PH:       telemetry.Float(ph),
	}
}

func TestSubscribersShareOneReload(t *testing.T) {
	source := &countingSource{points: []telemetry.TelemetryPoint{point(1, 7.1)}}
	feed, err := NewFeed(source)
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	first, cancelFirst := feed.Subscribe()
	defer cancelFirst()
	second, cancelSecond := feed.Subscribe()
	defer cancelSecond()

	if err := feed.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if source.Calls() != 1 {
		t.Fatalf("expected a single source read, got %d", source.Calls())
	}
	for _, ch := range []<-chan []telemetry.TelemetryPoint{first, second} {
		select {
		case points := <-ch:
			if len(points) != 1 || *points[0].SensorID != 1 {
				t.Fatalf("unexpected snapshot %+v", points)
			}
		default:
			t.Fatalf("expected snapshot for every subscriber")
		}
	}
}

func TestSubscriberKeepsOnlyNewest(t *testing.T) {
	source := &countingSource{}
	feed, _ := NewFeed(source)
	updates, cancel := feed.Subscribe()
	defer cancel()

	source.points = []telemetry.TelemetryPoint{point(1, 7.0)}
	_ = feed.Refresh(context.Background())
	source.points = []telemetry.TelemetryPoint{point(2, 7.4)}
	_ = feed.Refresh(context.Background())

	points := <-updates
	if len(points) != 1 || *points[0].SensorID != 2 {
		t.Fatalf("expected newest snapshot, got %+v", points)
	}
	select {
	case extra := <-updates:
		t.Fatalf("expected no stale snapshot, got %+v", extra)
	default:
	}
}

func TestLateSubscriberIsPrimed(t *testing.T) {
	source := &countingSource{points: []telemetry.TelemetryPoint{point(4, 6.9)}}
	feed, _ := NewFeed(source)
	if _, ok := feed.Latest(); ok {
		t.Fatalf("expected no snapshot before first load")
	}
	_ = feed.Refresh(context.Background())

	updates, cancel := feed.Subscribe()
	defer cancel()
	select {
	case points := <-updates:
		if len(points) != 1 {
			t.Fatalf("unexpected primed snapshot %+v", points)
		}
	default:
		t.Fatalf("expected primed snapshot")
	}
}

func TestRefreshErrorKeepsPreviousSnapshot(t *testing.T) {
	source := &countingSource{points: []telemetry.TelemetryPoint{point(1, 7.2)}}
	feed, _ := NewFeed(source)
	_ = feed.Refresh(context.Background())

	source.err = errors.New("store down")
	if err := feed.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	points, ok := feed.Latest()
	if !ok || len(points) != 1 {
		t.Fatalf("expected previous snapshot to survive, got %+v", points)
	}
	if feed.Reloads() != 1 {
		t.Fatalf("expected one published reload, got %d", feed.Reloads())
	}
}

func TestStartWarmsFromCacheAndStores(t *testing.T) {
	cache := &memoryCache{points: []telemetry.TelemetryPoint{point(9, 7.7)}}
	source := &countingSource{err: errors.New("store down")}
	feed, _ := NewFeed(source, WithCache(cache), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for source.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("feed never reloaded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	points, ok := feed.Latest()
	if !ok || len(points) != 1 || *points[0].SensorID != 9 {
		t.Fatalf("expected cached snapshot, got %+v", points)
	}

	updates, unsubscribe := feed.Subscribe()
	defer unsubscribe()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("feed did not stop")
	}
	<-updates
	if _, open := <-updates; open {
		t.Fatalf("expected subscription closed on stop")
	}

	source.err = nil
	source.points = []telemetry.TelemetryPoint{point(3, 7.0)}
	_ = feed.Refresh(context.Background())
	if cache.stored != 1 {
		t.Fatalf("expected snapshot stored in cache, got %d", cache.stored)
	}
}
