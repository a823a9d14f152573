// Package reaper removes execution containers that outlived their maximum
// age and the session keys pointing at them. Container labels carry the
// creation time, so a sweep needs no session store reads and also catches
// containers whose Redis keys already expired.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/nomomon/sandbox-api/internal/docker"
	"github.com/nomomon/sandbox-api/internal/metrics"
)

type Reaper struct {
	runtime  Runtime
	store    Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	auditLog       AuditPruner
	auditRetention time.Duration
}

func New(rt Runtime, st Store, interval, maxAge time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		runtime:  rt,
		store:    st,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
	}
}

// SetAuditLog makes sweeps also prune execution records older than retention.
func (r *Reaper) SetAuditLog(aud AuditPruner, retention time.Duration) {
	r.auditLog = aud
	r.auditRetention = retention
}

func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval, "max_age", r.maxAge)

	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	containers, err := r.runtime.ListManaged(ctx)
	if err != nil {
		r.logger.Error("reaper: list containers", "error", err)
		return
	}

	now := time.Now().UTC()
	reaped := 0
	for _, ctr := range containers {
		if ctr.CreatedAt == "" {
			continue
		}
		createdAt, err := time.Parse(time.RFC3339Nano, ctr.CreatedAt)
		if err != nil {
			r.logger.Warn("reaper: unparsable created_at label",
				"container_id", docker.ShortID(ctr.ID), "value", ctr.CreatedAt)
			continue
		}
		if now.Sub(createdAt) < r.maxAge {
			continue
		}

		if err := r.runtime.RemoveContainer(ctx, ctr.ID); err != nil {
			r.logger.Warn("reaper: remove container",
				"container_id", docker.ShortID(ctr.ID), "error", err)
			continue
		}
		if ctr.SessionID != "" {
			if err := r.store.Delete(ctx, ctr.SessionID); err != nil {
				r.logger.Warn("reaper: delete session",
					"session_id", ctr.SessionID, "error", err)
			}
		}
		reaped++
		metrics.ContainersReaped.Inc()
		r.logger.Info("reaped container",
			"container_id", docker.ShortID(ctr.ID),
			"session_id", ctr.SessionID,
			"age", now.Sub(createdAt).Round(time.Second))
	}

	if reaped > 0 {
		r.logger.Info("reaper: sweep complete", "reaped", reaped)
	}

	r.pruneAudit()
}

func (r *Reaper) pruneAudit() {
	if r.auditLog == nil {
		return
	}
	pruned, err := r.auditLog.Prune(r.auditRetention)
	if err != nil {
		r.logger.Error("reaper: prune audit log", "error", err)
		return
	}
	if pruned > 0 {
		metrics.AuditPruned.Add(float64(pruned))
		r.logger.Info("reaper: pruned execution records", "rows", pruned)
	}
}
