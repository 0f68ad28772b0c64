package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatekeep/gatekeep/internal/acl"
	"github.com/gatekeep/gatekeep/internal/auth"
	jobmetrics "github.com/gatekeep/gatekeep/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPrune removes expired login session records.
	TaskSessionPrune = "session:prune"
	// TaskACLRefresh re-runs the ACL import from the configured source.
	TaskACLRefresh = "acl:refresh"
)

// SessionPrunePayload bounds how far back the prune reaches. A zero
// Before means the handler uses its own run time.
type SessionPrunePayload struct {
	Before time.Time `json:"before"`
}

// NewSessionPruneTask constructs an Asynq task. The payload carries no
// cutoff: the scheduler re-enqueues the same payload on every tick, so
// the handler computes the cutoff per run rather than freezing it at
// registration time.
func NewSessionPruneTask() (*asynq.Task, error) {
	data, err := json.Marshal(SessionPrunePayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPrune, data), nil
}

// NewACLRefreshTask constructs an Asynq task re-importing the ACL.
func NewACLRefreshTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskACLRefresh, nil), nil
}

// SessionPruneJob deletes expired login session audit rows.
type SessionPruneJob struct {
	repo    auth.Repository
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionPruneJob constructs the job.
func NewSessionPruneJob(repo auth.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPruneJob {
	return &SessionPruneJob{repo: repo, logger: logger, metrics: metrics}
}

// Handle processes TaskSessionPrune tasks.
func (j *SessionPruneJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	defer func(tracker *jobmetrics.Tracker) {
		err = tracker.End(err)
	}(j.metrics.Track(TaskSessionPrune))

	var payload SessionPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Before.IsZero() {
		payload.Before = time.Now().UTC()
	}
	pruned, err := j.repo.DeleteExpiredSessions(ctx, payload.Before)
	if err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("pruned expired login sessions", slog.Int64("count", pruned))
	}
	return nil
}

// ACLRefreshJob re-imports the ACL dataset. A failed refresh keeps the
// previously active graph, so a broken dataset never degrades a running
// service.
type ACLRefreshJob struct {
	importer   *acl.Importer
	importFile string
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
}

// NewACLRefreshJob constructs the job.
func NewACLRefreshJob(importer *acl.Importer, importFile string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ACLRefreshJob {
	return &ACLRefreshJob{importer: importer, importFile: importFile, logger: logger, metrics: metrics}
}

// Handle processes TaskACLRefresh tasks.
func (j *ACLRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	defer func(tracker *jobmetrics.Tracker) {
		err = tracker.End(err)
	}(j.metrics.Track(TaskACLRefresh))

	result, err := j.importer.ImportFrom(ctx, j.importFile)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("acl refresh failed, previous graph stays active", slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("acl refresh complete",
			slog.String("source", result.Source),
			slog.Int("roles", result.Roles),
			slog.Int("permissions", result.Permissions))
	}
	return nil
}
