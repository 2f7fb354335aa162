package risk

import (
	"fmt"
	"time"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
)

// Score thresholds. A score at or below ThresholdLow is approved outright; a
// score above ThresholdMedium is declined; everything between is held for
// review.
const (
	ThresholdLow    = 20
	ThresholdMedium = 50
)

// maxFraudProbability caps the score-derived probability.
const maxFraudProbability = 0.95

// Scorer computes an additive fraud-risk score for a transaction request.
// Each factor contributes a fixed number of points and appends a tag to the
// factor list; the scorer itself keeps no state between calls.
type Scorer struct {
	txnRepo *repository.TransactionRepo
	geo     GeoChecker
	now     func() time.Time
}

func NewScorer(txnRepo *repository.TransactionRepo, geo GeoChecker) *Scorer {
	return &Scorer{
		txnRepo: txnRepo,
		geo:     geo,
		now:     time.Now,
	}
}

// WithClock overrides the scorer's notion of the current time. Intended for
// tests that exercise the time-of-day factors.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Assess scores the request for the tenant. History-backed factors query the
// store scoped by tenant and customer email; a request without an email
// skips those lookups entirely and takes the missing-email penalty instead.
func (s *Scorer) Assess(req *domain.CreateTransactionRequest, tenantID string) (*domain.RiskAssessment, error) {
	score := 0
	var factors []string

	add := func(points int, tag string) {
		score += points
		factors = append(factors, tag)
	}

	// Amount.
	switch {
	case req.Amount > 10000:
		add(30, "high_amount")
	case req.Amount > 1000:
		add(10, "medium_amount")
	}

	// Velocity and customer history need an email to query by.
	if req.CustomerEmail == "" {
		add(5, "missing_customer_email")
	} else {
		now := s.now()

		hourCount, err := s.txnRepo.CountByCustomerSince(tenantID, req.CustomerEmail, now.Add(-time.Hour))
		if err != nil {
			return nil, fmt.Errorf("hourly velocity: %w", err)
		}
		switch {
		case hourCount > 5:
			add(25, "high_velocity_hour")
		case hourCount >= 3:
			add(10, "elevated_velocity_hour")
		}

		dayCount, err := s.txnRepo.CountByCustomerSince(tenantID, req.CustomerEmail, now.Add(-24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("daily velocity: %w", err)
		}
		switch {
		case dayCount > 20:
			add(20, "high_velocity_day")
		case dayCount >= 11:
			add(8, "elevated_velocity_day")
		}

		failedCount, err := s.txnRepo.CountByCustomerStatus(tenantID, req.CustomerEmail, domain.StatusFailed)
		if err != nil {
			return nil, fmt.Errorf("failure history: %w", err)
		}
		switch {
		case failedCount > 3:
			add(15, "high_failure_history")
		case failedCount >= 2:
			add(5, "failure_history")
		}

		chargebacks, err := s.txnRepo.CountByCustomerType(tenantID, req.CustomerEmail, domain.TypeChargeback)
		if err != nil {
			return nil, fmt.Errorf("chargeback history: %w", err)
		}
		if chargebacks > 0 {
			add(25, "chargeback_history")
		}

		total, err := s.txnRepo.CountByCustomer(tenantID, req.CustomerEmail)
		if err != nil {
			return nil, fmt.Errorf("customer history: %w", err)
		}
		if total == 0 {
			add(8, "new_customer")
		}
	}

	// Payment method.
	switch req.PaymentMethod {
	case domain.MethodCryptocurrency:
		add(20, "payment_method_cryptocurrency")
	case domain.MethodDigitalWallet:
		add(5, "payment_method_digital_wallet")
	case domain.MethodBankTransfer:
		add(2, "payment_method_bank_transfer")
	default:
		add(3, "payment_method_card")
	}

	// Geographic reputation, if the caller supplied a client address.
	if req.IPAddress != "" {
		geo := s.geo.Check(req.IPAddress)
		if geo.HighRiskCountry {
			add(15, "high_risk_country")
		}
		if geo.VPN {
			add(10, "vpn_detected")
		}
	}

	// Time of day.
	now := s.now()
	if hour := now.Hour(); hour < 6 || hour > 22 {
		add(5, "off_hours")
	}
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		add(3, "weekend")
	}

	level, recommendation := bucket(score)

	fraudProbability := float64(score) / 100
	if fraudProbability > maxFraudProbability {
		fraudProbability = maxFraudProbability
	}

	return &domain.RiskAssessment{
		Score:            score,
		Level:            level,
		Factors:          factors,
		FraudProbability: fraudProbability,
		Recommendation:   recommendation,
	}, nil
}

func bucket(score int) (domain.RiskLevel, domain.Recommendation) {
	switch {
	case score <= ThresholdLow:
		return domain.RiskLow, domain.RecommendApprove
	case score <= ThresholdMedium:
		return domain.RiskMedium, domain.RecommendReview
	default:
		return domain.RiskHigh, domain.RecommendDecline
	}
}
