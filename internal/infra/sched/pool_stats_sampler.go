package sched

import (
	"context"
	"time"

	"weekly-snippets/internal/infra/metrics"
)

type StatsSource interface {
	Stats() (total, idle, inUse int32)
}

// PoolStatsSampler publishes connection pool gauges on an interval.
type PoolStatsSampler struct {
	driver   string
	source   StatsSource
	interval time.Duration
}

func NewPoolStatsSampler(driver string, source StatsSource, interval time.Duration) *PoolStatsSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PoolStatsSampler{driver: driver, source: source, interval: interval}
}

func (s *PoolStatsSampler) Sample() {
	total, idle, inUse := s.source.Stats()
	metrics.SetDBPoolStats(s.driver, total, idle, inUse)
}

func (s *PoolStatsSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Sample()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sample()
		}
	}
}
