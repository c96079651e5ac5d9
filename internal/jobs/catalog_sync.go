// Package jobs holds background jobs scheduled with cron.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CatalogReloader refreshes the in-memory catalog from durable storage.
type CatalogReloader interface {
	Reload(ctx context.Context) (int, error)
}

// CatalogSyncJob periodically reloads the catalog so that uploads made through
// another instance or the ingest tool become visible here.
type CatalogSyncJob struct {
	reloader CatalogReloader
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	lg       *zap.Logger

	mu      sync.Mutex
	lastErr error
	lastRun time.Time
}

// NewCatalogSyncJob creates a job reloading on schedule, a standard cron
// expression or descriptor such as "@every 1m".
func NewCatalogSyncJob(reloader CatalogReloader, schedule string, lg *zap.Logger) *CatalogSyncJob {
	return &CatalogSyncJob{
		reloader: reloader,
		schedule: schedule,
		timeout:  30 * time.Second,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		lg:       lg.Named("catalog_sync"),
	}
}

// Start schedules the job.
func (j *CatalogSyncJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.Run); err != nil {
		return errors.Wrapf(err, "schedule %q", j.schedule)
	}
	j.cron.Start()
	j.lg.Info("Catalog sync started", zap.String("schedule", j.schedule))
	return nil
}

// Stop stops scheduling and waits for a running reload to finish.
func (j *CatalogSyncJob) Stop() {
	<-j.cron.Stop().Done()
	j.lg.Info("Catalog sync stopped")
}

// Run performs one reload.
func (j *CatalogSyncJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.reloader.Reload(ctx)

	j.mu.Lock()
	j.lastErr = err
	j.lastRun = time.Now()
	j.mu.Unlock()

	if err != nil {
		j.lg.Error("Catalog sync failed", zap.Error(err))
		return
	}
	j.lg.Debug("Catalog synced", zap.Int("items", n))
}

// Check reports the outcome of the most recent reload, for use as a health
// check.
func (j *CatalogSyncJob) Check(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lastErr != nil {
		return errors.Wrap(j.lastErr, "last catalog sync")
	}
	return nil
}

// LastRun reports when the job last ran.
func (j *CatalogSyncJob) LastRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}
