package usecase

import (
	"context"
	"time"

	"newsdash/internal/ports"
)

// Loop binds the ingestor to a scheduler driver.
type Loop struct {
	driver   ports.Scheduler
	ingestor *Ingestor
}

// NewLoop returns a helper to start/stop the recurring ingestion job.
func NewLoop(driver ports.Scheduler, ingestor *Ingestor) *Loop {
	return &Loop{driver: driver, ingestor: ingestor}
}

// Start registers the ingestion cycle with the driver. Run-level errors are
// already captured in the run summary; the next cycle self-heals.
func (l *Loop) Start(ctx context.Context) error {
	if l.driver == nil || l.ingestor == nil {
		return nil
	}

	job := func(time.Time) {
		_, _ = l.ingestor.FetchOnce(ctx)
	}

	return l.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (l *Loop) Stop(ctx context.Context) error {
	if l.driver == nil {
		return nil
	}

	return l.driver.Stop(ctx)
}
