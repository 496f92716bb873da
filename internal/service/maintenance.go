package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	sessionPurgeInterval = 10 * time.Minute
	eventPruneTime       = "03:30"
	jobTimeout           = 30 * time.Second
)

// MaintenanceConfig selects which background jobs run.
type MaintenanceConfig struct {
	HealthCheckInterval time.Duration
	EventRetention      time.Duration
}

// ScheduleMaintenance registers health probes, session purging and audit pruning.
func ScheduleMaintenance(s *SchedulerService, access *AccessService, cfg MaintenanceConfig, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HealthCheckInterval > 0 {
		if _, err := s.ScheduleInterval(cfg.HealthCheckInterval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			_ = access.CheckBackend(ctx)
		}); err != nil {
			return err
		}
	}

	if _, err := s.ScheduleInterval(sessionPurgeInterval, func() {
		access.PurgeSessions()
		access.PruneLimiters()
	}); err != nil {
		return err
	}

	if cfg.EventRetention > 0 {
		if _, err := s.ScheduleDaily(eventPruneTime, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, err := access.PruneEvents(ctx, time.Now(), cfg.EventRetention); err != nil {
				log.Warn("prune access events", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	return nil
}
