package domain

import "time"

type TransactionType string

const (
	TypePayment    TransactionType = "payment"
	TypeRefund     TransactionType = "refund"
	TypeChargeback TransactionType = "chargeback"
	TypeAdjustment TransactionType = "adjustment"
)

type TransactionStatus string

const (
	StatusPending           TransactionStatus = "pending"
	StatusProcessing        TransactionStatus = "processing"
	StatusCompleted         TransactionStatus = "completed"
	StatusFailed            TransactionStatus = "failed"
	StatusCancelled         TransactionStatus = "cancelled"
	StatusRefunded          TransactionStatus = "refunded"
	StatusPartiallyRefunded TransactionStatus = "partially_refunded"
)

type PaymentMethod string

const (
	MethodCreditCard     PaymentMethod = "credit_card"
	MethodDebitCard      PaymentMethod = "debit_card"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
	MethodDigitalWallet  PaymentMethod = "digital_wallet"
	MethodCryptocurrency PaymentMethod = "cryptocurrency"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "review"
	RecommendDecline Recommendation = "decline"
)

// RiskAssessment is computed once, at creation, for payment transactions.
// Refund transactions never carry one.
type RiskAssessment struct {
	Score            int            `json:"score"`
	Level            RiskLevel      `json:"level"`
	Factors          []string       `json:"factors"`
	FraudProbability float64        `json:"fraud_probability"`
	Recommendation   Recommendation `json:"recommendation"`
}

type Transaction struct {
	ID              string            `json:"id"`
	Reference       string            `json:"reference"`
	TenantID        string            `json:"tenant_id"`
	MerchantID      string            `json:"merchant_id"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	Amount          float64           `json:"amount"`
	FeeAmount       float64           `json:"fee_amount"`
	NetAmount       float64           `json:"net_amount"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	CustomerPhone   string            `json:"customer_phone,omitempty"`
	IPAddress       string            `json:"ip_address,omitempty"`
	Description     string            `json:"description,omitempty"`
	RiskAssessment  *RiskAssessment   `json:"risk_assessment,omitempty"`
	FailureCode     string            `json:"failure_code,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	ParentReference string            `json:"parent_reference,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	SettledAt       *time.Time        `json:"settled_at,omitempty"`
}

// CanTransitionTo reports whether the state machine allows moving from the
// transaction's current status to the target status. Refund/partial-refund
// of a completed transaction happens through a separate refund transaction,
// not a self-transition, but the parent's flip is still guarded here.
func (t *Transaction) CanTransitionTo(target TransactionStatus) bool {
	for _, s := range legalTransitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

var legalTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded, StatusPartiallyRefunded},
	// A partially refunded parent may absorb further partial refunds.
	StatusPartiallyRefunded: {StatusRefunded, StatusPartiallyRefunded},
}
