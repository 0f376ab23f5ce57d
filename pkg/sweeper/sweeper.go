// Package sweeper runs the scheduled maintenance jobs: reaping orphaned
// bindings left behind by policy deletes, archiving aged audit events, and
// refreshing the inventory gauges.
package sweeper

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsgate/gatehouse/pkg/audit"
	"github.com/opsgate/gatehouse/pkg/observability"
	"github.com/opsgate/gatehouse/pkg/orgs"
	"github.com/opsgate/gatehouse/pkg/policy"
)

// Sweeper bundles the maintenance jobs. Archiver and Sessions may be nil;
// the corresponding jobs degrade gracefully.
type Sweeper struct {
	db        *sql.DB
	auditLog  *audit.DBLogger
	archiver  *audit.S3Archiver
	retention audit.RetentionPolicy
	sessions  *orgs.SessionRegistry
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// New creates a sweeper over the shared database handle.
func New(db *sql.DB, auditLog *audit.DBLogger, archiver *audit.S3Archiver, retention audit.RetentionPolicy, sessions *orgs.SessionRegistry, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		db:        db,
		auditLog:  auditLog,
		archiver:  archiver,
		retention: retention,
		sessions:  sessions,
		logger:    logger,
		metrics:   metrics,
	}
}

// ReapOrphans deletes bindings whose policy no longer exists. Deleting a
// policy leaves its bindings behind; they stop matching queries right away,
// so the reap is cleanup rather than correctness.
func (s *Sweeper) ReapOrphans(ctx context.Context) (int64, error) {
	reaped, err := policy.NewBindingStore(s.db).DeleteOrphans(ctx)
	s.recordRun("reap_orphans", err)
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.OrphanBindingsReaped.Add(float64(reaped))
	}
	if reaped > 0 {
		s.logger.WithField("reaped", reaped).Info("reaped orphaned bindings")
	}
	return reaped, nil
}

// ArchiveAudit moves aged audit events to object storage and prunes them
// from the database, per the retention policy. Without an archiver the job
// prunes without archiving only when the policy allows it.
func (s *Sweeper) ArchiveAudit(ctx context.Context) (int64, error) {
	var moved int64
	var err error

	switch {
	case s.archiver != nil:
		moved, err = s.archiver.Run(ctx, s.retention)
	case !s.retention.Archive:
		cutoff := s.pruneCutoff()
		moved, err = s.auditLog.Prune(ctx, cutoff)
	default:
		err = fmt.Errorf("retention requires archival but no archiver is configured")
	}

	s.recordRun("archive_audit", err)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.logger.WithField("events", moved).Info("archived audit events")
	}
	return moved, nil
}

// RefreshGauges republishes the inventory gauges from the live tables.
func (s *Sweeper) RefreshGauges(ctx context.Context) error {
	err := s.refreshGauges(ctx)
	s.recordRun("refresh_gauges", err)
	return err
}

func (s *Sweeper) refreshGauges(ctx context.Context) error {
	if s.metrics == nil {
		return nil
	}

	counts := []struct {
		query string
		gauge interface{ Set(float64) }
	}{
		{"SELECT COUNT(*) FROM policies", s.metrics.PoliciesTotal},
		{"SELECT COUNT(*) FROM policy_bindings", s.metrics.BindingsTotal},
		{"SELECT COUNT(*) FROM app_opens", s.metrics.OpenedAppsTotal},
	}
	for _, c := range counts {
		var n int64
		if err := s.db.QueryRowContext(ctx, c.query).Scan(&n); err != nil {
			return fmt.Errorf("failed to count rows: %w", err)
		}
		c.gauge.Set(float64(n))
	}

	if s.sessions != nil {
		active, err := s.sessions.CountActive(ctx)
		if err != nil {
			return err
		}
		s.metrics.ActiveSessionsTotal.Set(float64(active))
	}

	s.metrics.CollectDBStats(s.db.Stats())
	return nil
}

func (s *Sweeper) pruneCutoff() time.Time {
	return time.Now().UTC().Add(-s.retention.KeepFor)
}

func (s *Sweeper) recordRun(job string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.SweeperRunsTotal.WithLabelValues(job, status).Inc()
}
