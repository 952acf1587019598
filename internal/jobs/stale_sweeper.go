package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StaleBatchReleaser fails batches stuck in processing since before cutoff.
type StaleBatchReleaser interface {
	FailStaleProcessing(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// StaleSweeper periodically releases reconciliation passes whose process died
// without marking the batch, so the batch can be reconciled again.
type StaleSweeper struct {
	scheduler  gocron.Scheduler
	releaser   StaleBatchReleaser
	staleAfter time.Duration
	clock      func() time.Time
}

func NewStaleSweeper(releaser StaleBatchReleaser, interval, staleAfter time.Duration) (*StaleSweeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &StaleSweeper{
		scheduler:  scheduler,
		releaser:   releaser,
		staleAfter: staleAfter,
		clock:      time.Now,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.Sweep, context.Background()),
		gocron.WithName("stale-reconciliation-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("register sweep job: %w", err)
	}
	return s, nil
}

func (s *StaleSweeper) Start() {
	log.Printf("Starting stale batch sweeper (stale after %s)", s.staleAfter)
	s.scheduler.Start()
}

func (s *StaleSweeper) Stop() error {
	log.Printf("Stopping stale batch sweeper")
	return s.scheduler.Shutdown()
}

// Sweep runs one release round and returns how many batches it freed.
func (s *StaleSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.clock().UTC().Add(-s.staleAfter)
	reason := fmt.Sprintf("interrupted: no progress since before %s", cutoff.Format(time.RFC3339))

	n, err := s.releaser.FailStaleProcessing(ctx, cutoff, reason)
	if err != nil {
		log.Printf("ERROR releasing stale batches: %v", err)
		return 0, err
	}
	if n > 0 {
		log.Printf("WARNING released %d stale reconciliation batch(es)", n)
	}
	return n, nil
}
