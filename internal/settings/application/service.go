package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	settings "watertap/internal/settings/domain"
)

// Service manages the singleton AI settings record.
type Service struct {
	repo     settings.Repository
	location *time.Location
	logger   *zap.Logger

	mu sync.Mutex
}

// NewService constructs a settings service. Working hours are evaluated in loc.
func NewService(repo settings.Repository, loc *time.Location, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("settings: nil repository")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, location: loc, logger: logger}, nil
}

// Location returns the zone working hours are evaluated in.
func (s *Service) Location() *time.Location {
	return s.location
}

// EnsureDefault returns the stored schedule, creating the default one when
// none exists. Concurrent calls create at most one record.
func (s *Service) EnsureDefault(ctx context.Context) (settings.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx)
}

func (s *Service) ensureLocked(ctx context.Context) (settings.Schedule, error) {
	current, err := s.repo.Get(ctx)
	if err != nil {
		return settings.Schedule{}, fmt.Errorf("settings: load: %w", err)
	}
	if current != nil {
		return *current, nil
	}
	def := settings.DefaultSchedule()
	if err := s.repo.Save(ctx, &def); err != nil {
		return settings.Schedule{}, fmt.Errorf("settings: create default: %w", err)
	}
	s.logger.Info("default ai settings created", zap.Int64("id", def.ID))
	return def, nil
}

// Get returns the schedule, creating the default when missing.
func (s *Service) Get(ctx context.Context) (settings.Schedule, error) {
	return s.EnsureDefault(ctx)
}

// Save replaces the schedule, keeping the stored record id.
func (s *Service) Save(ctx context.Context, next settings.Schedule) (settings.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.ensureLocked(ctx)
	if err != nil {
		return settings.Schedule{}, err
	}
	next.ID = current.ID
	if err := s.repo.Save(ctx, &next); err != nil {
		return settings.Schedule{}, fmt.Errorf("settings: save: %w", err)
	}
	return next, nil
}

// SetAIEnabled toggles AI detection.
func (s *Service) SetAIEnabled(ctx context.Context, enabled bool) (settings.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.ensureLocked(ctx)
	if err != nil {
		return settings.Schedule{}, err
	}
	current.AIEnabled = enabled
	if err := s.repo.Save(ctx, &current); err != nil {
		return settings.Schedule{}, fmt.Errorf("settings: save: %w", err)
	}
	s.logger.Info("ai detection toggled", zap.Bool("enabled", enabled))
	return current, nil
}

// IsAIEnabled reports whether AI detection is on.
func (s *Service) IsAIEnabled(ctx context.Context) (bool, error) {
	current, err := s.EnsureDefault(ctx)
	if err != nil {
		return false, err
	}
	return current.AIEnabled, nil
}

// IsWorkTime reports whether now falls inside working hours in the service location.
func (s *Service) IsWorkTime(ctx context.Context, now time.Time) (bool, error) {
	current, err := s.EnsureDefault(ctx)
	if err != nil {
		return false, err
	}
	return current.IsWorkTime(now.In(s.location)), nil
}
