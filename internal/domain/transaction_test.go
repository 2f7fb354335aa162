package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from  domain.TransactionStatus
		to    domain.TransactionStatus
		legal bool
	}{
		{domain.StatusPending, domain.StatusProcessing, true},
		{domain.StatusPending, domain.StatusCompleted, true},
		{domain.StatusPending, domain.StatusFailed, true},
		{domain.StatusPending, domain.StatusCancelled, true},
		{domain.StatusPending, domain.StatusRefunded, false},
		{domain.StatusProcessing, domain.StatusCompleted, true},
		{domain.StatusProcessing, domain.StatusFailed, true},
		{domain.StatusProcessing, domain.StatusCancelled, false},
		{domain.StatusCompleted, domain.StatusRefunded, true},
		{domain.StatusCompleted, domain.StatusPartiallyRefunded, true},
		{domain.StatusCompleted, domain.StatusPending, false},
		{domain.StatusPartiallyRefunded, domain.StatusRefunded, true},
		{domain.StatusFailed, domain.StatusCompleted, false},
		{domain.StatusCancelled, domain.StatusCompleted, false},
		{domain.StatusRefunded, domain.StatusCompleted, false},
	}

	for _, tc := range cases {
		tx := &domain.Transaction{Status: tc.from}
		assert.Equal(t, tc.legal, tx.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
