package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"watertap/internal/settings/infrastructure/memory"
)

func TestEnsureDefaultIsIdempotent(t *testing.T) {
	repo := memory.NewScheduleRepository()
	svc, err := NewService(repo, time.UTC, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.EnsureDefault(context.Background()); err != nil {
				t.Errorf("ensure default: %v", err)
			}
		}()
	}
	wg.Wait()

	if repo.Saves() != 1 {
		t.Fatalf("expected a single default record, got %d saves", repo.Saves())
	}
	s, _ := svc.Get(context.Background())
	if !s.AIEnabled || s.WorkStart.String() != "08:00" || s.WorkEnd.String() != "18:00" || !s.Friday || s.Saturday {
		t.Fatalf("unexpected default schedule: %+v", s)
	}
}

func TestSetAIEnabledAndSaveKeepID(t *testing.T) {
	repo := memory.NewScheduleRepository()
	svc, _ := NewService(repo, time.UTC, nil)
	ctx := context.Background()

	if _, err := svc.SetAIEnabled(ctx, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	enabled, err := svc.IsAIEnabled(ctx)
	if err != nil || enabled {
		t.Fatalf("expected disabled, got %v (%v)", enabled, err)
	}

	current, _ := svc.Get(ctx)
	next := current
	next.ID = 99
	next.Saturday = true
	saved, err := svc.Save(ctx, next)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != current.ID || !saved.Saturday {
		t.Fatalf("unexpected saved schedule: %+v", saved)
	}
}

func TestIsWorkTimeUsesServiceLocation(t *testing.T) {
	loc := time.FixedZone("COT", -5*3600)
	svc, _ := NewService(memory.NewScheduleRepository(), loc, nil)

	// 14:00 UTC Monday is 09:00 local.
	ok, err := svc.IsWorkTime(context.Background(), time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC))
	if err != nil || !ok {
		t.Fatalf("expected work time, got %v (%v)", ok, err)
	}
	// 01:00 UTC Tuesday is 20:00 Monday local.
	ok, _ = svc.IsWorkTime(context.Background(), time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC))
	if ok {
		t.Fatalf("expected off hours")
	}
}
