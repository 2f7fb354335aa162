package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dsapoetra/payment-processing-sub001/internal/metrics"
	"github.com/dsapoetra/payment-processing-sub001/internal/processor"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
)

// Reaper drains durable scheduled jobs from the store and drives the
// corresponding deferred completions. Because the jobs live in the store,
// a process restart loses nothing: the next tick picks up where the dead
// process left off.
type Reaper struct {
	jobRepo  *repository.JobRepo
	txnRepo  *repository.TransactionRepo
	proc     *processor.Service
	metrics  *metrics.Metrics
	interval time.Duration
	now      func() time.Time
}

func NewReaper(
	jobRepo *repository.JobRepo,
	txnRepo *repository.TransactionRepo,
	proc *processor.Service,
	m *metrics.Metrics,
	interval time.Duration,
) *Reaper {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Reaper{
		jobRepo:  jobRepo,
		txnRepo:  txnRepo,
		proc:     proc,
		metrics:  m,
		interval: interval,
		now:      time.Now,
	}
}

// WithClock overrides the reaper's notion of the current time, for tests.
func (r *Reaper) WithClock(now func() time.Time) *Reaper {
	r.now = now
	return r
}

// Run ticks until the context is cancelled, draining due jobs on each tick.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[scheduler] Reaper started (interval %s)", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] Reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(); err != nil {
				log.Printf("[scheduler] WARNING: drain failed: %v", err)
			}
		}
	}
}

// errUnknownJobKind marks jobs no code path can ever execute. Retrying them
// is pointless, so the reaper drops them instead.
var errUnknownJobKind = errors.New("unknown job kind")

// RunOnce drains all currently due jobs and returns how many executed.
// Individual job failures are logged and skipped; the failed job stays in
// the store and is retried on the next tick, except unknown-kind jobs,
// which are deleted outright so they cannot poison every future tick.
func (r *Reaper) RunOnce() (int, error) {
	due, err := r.jobRepo.ListDue(r.now())
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	executed := 0
	for _, job := range due {
		if err := r.execute(&job); err != nil {
			if errors.Is(err, errUnknownJobKind) {
				log.Printf("[scheduler] WARNING: dropping job %s for transaction %s: %v",
					job.ID, job.TransactionID, err)
				if derr := r.jobRepo.Delete(job.ID); derr != nil {
					log.Printf("[scheduler] WARNING: delete job %s: %v", job.ID, derr)
				}
				continue
			}
			log.Printf("[scheduler] WARNING: job %s (%s) for transaction %s failed: %v",
				job.ID, job.Kind, job.TransactionID, err)
			continue
		}
		if err := r.jobRepo.Delete(job.ID); err != nil {
			log.Printf("[scheduler] WARNING: delete job %s: %v", job.ID, err)
		}
		r.metrics.JobsExecuted.WithLabelValues(job.Kind).Inc()
		executed++
	}
	return executed, nil
}

func (r *Reaper) execute(job *repository.ScheduledJob) error {
	switch job.Kind {
	case repository.JobCompletePayment:
		return r.proc.SettlePayment(job.TenantID, job.TransactionID)
	case repository.JobCompleteRefund:
		return r.proc.CompleteRefund(job.TenantID, job.TransactionID)
	default:
		return fmt.Errorf("%w %q", errUnknownJobKind, job.Kind)
	}
}
