// Package jobs drives the periodic work of the service: draining delivery
// queues, scanning the backlog for items needing attention, and sweeping
// expired state. Delivery queues live in each replica's memory, so every
// replica drains its own. The attention scan reads the shared tracker and
// holds a Postgres advisory lock so only one replica runs it.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"reminder-service/internal/config"
	"reminder-service/internal/db"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// Locker grants cluster-wide exclusive runs.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

type service interface {
	ProcessAllQueues(ctx context.Context) (int, error)
	FindIssuesNeedingAttention(ctx context.Context, f models.AttentionFilter) (*models.AttentionReport, error)
	QueueTask(task models.Task)
	SweepCache() int
	PruneRecords() int
}

var attentionLockKey = db.LockKey("reminder-service:attention")

type Cron struct {
	svc    service
	locker Locker
	logger *logging.Logger
	filter models.AttentionFilter
	c      *cron.Cron
}

func NewCron(cfg config.Config, svc service, locker Locker, logger *logging.Logger) (*Cron, error) {
	c := cron.New(cron.WithLocation(cfg.Location()))
	cr := &Cron{
		svc:    svc,
		locker: locker,
		logger: logger,
		filter: models.AttentionFilter{Projects: cfg.Jira.Projects},
		c:      c,
	}
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"queues", cfg.Driver.QueueSpec, cr.queues},
		{"attention", cfg.Driver.AttentionSpec, cr.attention},
		{"cache sweep", "@every 10m", cr.sweep},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := c.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("failed to schedule %s job %q: %w", j.name, j.spec, err)
		}
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop prevents new runs and waits for running ones to finish.
func (cr *Cron) Stop() {
	<-cr.c.Stop().Done()
}

func (cr *Cron) queues() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	cr.RunQueues(ctx)
}

func (cr *Cron) attention() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	cr.RunAttention(ctx)
}

func (cr *Cron) sweep() {
	if n := cr.svc.SweepCache(); n > 0 {
		cr.logger.Debugf("cron: swept %d cached analyses", n)
	}
	if n := cr.svc.PruneRecords(); n > 0 {
		cr.logger.Debugf("cron: pruned %d finished notification records", n)
	}
}

// RunQueues delivers every due attempt across this replica's recipients.
// The per-recipient guard in the delivery manager keeps runs from overlapping.
func (cr *Cron) RunQueues(ctx context.Context) {
	n, err := cr.svc.ProcessAllQueues(ctx)
	if err != nil {
		cr.logger.Errorf("cron: queue processing finished with errors: %v", err)
	}
	if n > 0 {
		cr.logger.Infof("cron: processed %d delivery attempts", n)
	}
}

// RunAttention scans the backlog and queues a notify task for every item in
// the high-priority band.
func (cr *Cron) RunAttention(ctx context.Context) {
	cr.locked(ctx, "attention", attentionLockKey, func() {
		report, err := cr.svc.FindIssuesNeedingAttention(ctx, cr.filter)
		if err != nil {
			cr.logger.Errorf("cron: attention scan failed: %v", err)
			return
		}
		now := time.Now()
		for _, r := range report.HighPriority {
			cr.svc.QueueTask(models.Task{
				IssueKey:    r.IssueKey,
				RecipientID: r.RecipientID,
				Source:      "cron:attention",
				Timestamp:   now,
			})
		}
		cr.logger.Infof("cron: attention scan analyzed %d items, queued %d",
			report.Insights.TotalAnalyzed, len(report.HighPriority))
	})
}

func (cr *Cron) locked(ctx context.Context, name string, key int64, fn func()) {
	if cr.locker == nil {
		fn()
		return
	}
	release, ok, err := cr.locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		cr.logger.Errorf("cron: %s lock error: %v", name, err)
		return
	}
	if !ok {
		cr.logger.Infof("cron: %s already running elsewhere", name)
		return
	}
	defer release()
	fn()
}
