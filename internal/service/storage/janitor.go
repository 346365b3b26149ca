package storage

import (
	"fmt"
	"time"

	"roadstream/internal/logger"

	"github.com/robfig/cron/v3"
)

// Purger removes uploads created before a cutoff. *Uploads implements it.
type Purger interface {
	Purge(cutoff time.Time) (int, error)
}

// Janitor runs the upload retention job on a cron schedule.
type Janitor struct {
	cron      *cron.Cron
	purger    Purger
	retention time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

// NewJanitor schedules a purge of uploads older than retention. schedule
// uses the standard five-field cron syntax or descriptors like "@hourly".
func NewJanitor(schedule string, retention time.Duration, purger Purger, logger *logger.Logger) (*Janitor, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}

	j := &Janitor{
		cron:      cron.New(),
		purger:    purger,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce purges expired uploads immediately.
func (j *Janitor) RunOnce() {
	cutoff := j.now().Add(-j.retention)
	n, err := j.purger.Purge(cutoff)
	if err != nil {
		j.logger.Error("Retention purge failed: %v", err)
		return
	}
	if n > 0 {
		j.logger.Info("Retention purge removed %d uploads older than %s", n, cutoff.Format(time.RFC3339))
	}
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the scheduler and waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
