// Package retention implements the Retention Manager (spec §4.E):
// environment-scoped retention policies, cutoff computation, and a
// scheduled cleanup pass over the Edge Store's segments.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/CodeForge/internal/store"
)

// DefaultInterval is how often the scheduler runs retention when no
// interval is configured (spec §4.E: "default hourly").
const DefaultInterval = time.Hour

// Manager drives retention cleanup for one Edge Store.
type Manager struct {
	store   *store.Store
	env     string
	metrics *Metrics
	log     *slog.Logger

	mu     sync.RWMutex
	config *Config
}

// NewManager builds a Manager that applies cfg's policy for env against s.
func NewManager(s *store.Store, cfg *Config, env string, metrics *Metrics, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{store: s, config: cfg, env: env, metrics: metrics, log: log}
	m.store.SetRetentionCutoff(m.cutoffUS(time.Now()))
	return m
}

// Config returns the manager's current retention configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig replaces the manager's retention configuration and immediately
// refreshes the store's query-time cutoff so reads reflect the new policy
// without waiting for the next ApplyRetention run or scheduler tick.
func (m *Manager) SetConfig(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	m.store.SetRetentionCutoff(m.cutoffUS(time.Now()))
}

// cutoffUS computes now - retention_days*86400*1e6 (spec §4.E). A
// retention window of 0 means unlimited, represented as cutoff 0 so every
// edge (timestamps are always > 0) survives.
func (m *Manager) cutoffUS(now time.Time) int64 {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()
	days := cfg.RetentionDays(m.env)
	if days <= 0 {
		return 0
	}
	return now.UnixMicro() - int64(days)*86_400*1_000_000
}

// ApplyRetention runs one cleanup pass across every tenant shard,
// compacting segments against the computed cutoff (spec §4.E:
// "apply_retention(store)"). It never returns early on a single tenant's
// failure; it aggregates the first error and keeps going so one bad shard
// doesn't starve the rest.
func (m *Manager) ApplyRetention(now time.Time) error {
	started := time.Now()
	cutoff := m.cutoffUS(now)
	m.store.SetRetentionCutoff(cutoff)

	var firstErr error
	for _, tenant := range m.store.Tenants() {
		before, _ := m.store.Usage(tenant)
		beforeEdges, _ := m.store.RangeScan(tenant, 0, now.UnixMicro(), store.Filters{})

		if err := m.store.Compact(tenant, cutoff); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		after, _ := m.store.Usage(tenant)
		afterEdges, _ := m.store.RangeScan(tenant, 0, now.UnixMicro(), store.Filters{})

		if m.metrics != nil {
			if deleted := len(beforeEdges) - len(afterEdges); deleted > 0 {
				m.metrics.TracesDeleted.Add(float64(deleted))
			}
			if freed := before - after; freed > 0 {
				m.metrics.BytesFreed.Add(float64(freed))
			}
		}
	}

	if m.metrics != nil {
		m.metrics.LastRunSeconds.Set(time.Since(started).Seconds())
		m.metrics.CleanupCount.Inc()
		if firstErr != nil {
			m.metrics.CleanupFailures.Inc()
		}
	}

	if firstErr != nil {
		m.log.Error("retention cleanup run had failures", "error", firstErr)
	}
	return firstErr
}

// RunScheduler runs ApplyRetention on interval until ctx is cancelled. A
// failed run does not block subsequent writes or the next scheduled run
// (spec §4.E).
func (m *Manager) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if err := m.ApplyRetention(t); err != nil {
				m.log.Warn("retention run failed, will retry next interval", "error", err)
			}
		}
	}
}
