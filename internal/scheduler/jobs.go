package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/modules/gating"
	"github.com/aristath/equityscope/internal/modules/universe"
)

// Default schedules, standard cron syntax.
const (
	UniverseRefreshSpec = "0 6 * * 1"    // Monday 06:00
	GateExpirySpec      = "*/15 * * * *" // every 15 minutes
	WALCheckpointSpec   = "30 3 * * *"   // daily 03:30
)

// UniverseRefreshJob refreshes the index universe from its constituent
// sources. The manager's own throttle still applies.
type UniverseRefreshJob struct {
	manager *universe.Manager
	log     zerolog.Logger
}

func NewUniverseRefreshJob(manager *universe.Manager, log zerolog.Logger) *UniverseRefreshJob {
	return &UniverseRefreshJob{manager: manager, log: log}
}

func (j *UniverseRefreshJob) Name() string { return "universe_refresh" }

func (j *UniverseRefreshJob) Run(ctx context.Context) error {
	diff, err := j.manager.RefreshIndex(ctx, false)
	if err != nil {
		return err
	}
	j.log.Info().Int("added", len(diff.Added)).Int("removed", len(diff.Removed)).
		Bool("throttled", diff.Throttled).Msg("scheduled universe refresh done")
	return nil
}

// GateExpiryJob retires approvals past their TTL and deactivates their
// versions.
type GateExpiryJob struct {
	gates *gating.Service
	log   zerolog.Logger
}

func NewGateExpiryJob(gates *gating.Service, log zerolog.Logger) *GateExpiryJob {
	return &GateExpiryJob{gates: gates, log: log}
}

func (j *GateExpiryJob) Name() string { return "gate_expiry" }

func (j *GateExpiryJob) Run(ctx context.Context) error {
	expired, err := j.gates.ExpireOverdue()
	if err != nil {
		return err
	}
	if expired > 0 {
		j.log.Info().Int64("expired", expired).Msg("expired overdue gate approvals")
	}
	return nil
}

// WALCheckpointJob truncates the WAL file so it cannot grow unbounded.
type WALCheckpointJob struct {
	db  *database.DB
	log zerolog.Logger
}

func NewWALCheckpointJob(db *database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{db: db, log: log}
}

func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

func (j *WALCheckpointJob) Run(ctx context.Context) error {
	return j.db.WALCheckpoint("TRUNCATE")
}
