package scheduler

import (
	"log"
	"time"
)

// RecoverStuckRefunds runs once at startup, before serving traffic. It
// sweeps refund transactions stuck in processing beyond the staleness
// threshold — refunds whose completion was lost before the durable jobs
// table existed, or whose job row was deleted without the completion
// landing — and drives them through the normal completion path. Completion
// is guarded by a conditional update, so re-running the sweep over refunds
// that finished in the meantime is a no-op.
//
// Failures are never fatal: a broken item is logged and skipped, and a
// failed sweep query only logs, because startup must proceed.
func (r *Reaper) RecoverStuckRefunds(staleness time.Duration) int {
	cutoff := r.now().Add(-staleness)

	stuck, err := r.txnRepo.ListStaleProcessingRefunds(cutoff)
	if err != nil {
		log.Printf("[recovery] WARNING: stale refund scan failed, skipping sweep: %v", err)
		return 0
	}
	if len(stuck) == 0 {
		log.Printf("[recovery] No stuck refunds found")
		return 0
	}

	recovered := 0
	for _, tx := range stuck {
		if err := r.proc.CompleteRefund(tx.TenantID, tx.ID); err != nil {
			log.Printf("[recovery] WARNING: failed to complete refund %s (tenant %s): %v",
				tx.ID, tx.TenantID, err)
			continue
		}
		r.metrics.RefundsRecovered.Inc()
		recovered++
	}

	log.Printf("[recovery] Completed %d of %d stuck refunds", recovered, len(stuck))
	return recovered
}
