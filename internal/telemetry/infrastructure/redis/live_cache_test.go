package redis

import (
	"context"
	"os"
	"testing"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

func TestNewLiveCacheRequiresClient(t *testing.T) {
	if _, err := NewLiveCache(nil, "", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewClient(" ", "", 0); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestLiveCacheRoundTrip_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := NewClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	key := "watertap:test:live:" + time.Now().UTC().Format("150405.000000")
	cache, err := NewLiveCache(client, key, time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ctx := context.Background()
	defer client.Del(ctx, key)

	if _, ok, err := cache.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty cache, got ok=%v err=%v", ok, err)
	}
	at := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	points := []telemetry.TelemetryPoint{{At: at, SensorID: telemetry.Sensor(2), PH: telemetry.Float(7.1)}}
	if err := cache.Store(ctx, points); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, ok, err := cache.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || !got[0].At.Equal(at) || *got[0].PH != 7.1 || got[0].Turbidity != nil {
		t.Fatalf("unexpected cached points %+v", got)
	}
}
