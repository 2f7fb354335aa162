package domain

// CreateTransactionRequest is the input accepted from the request layer.
// The tenant is supplied separately by the caller, never by the payload.
type CreateTransactionRequest struct {
	Type          TransactionType   `json:"type"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Amount        float64           `json:"amount"`
	Currency      string            `json:"currency"`
	MerchantID    string            `json:"merchant_id"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	CustomerPhone string            `json:"customer_phone,omitempty"`
	IPAddress     string            `json:"ip_address,omitempty"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type RefundRequest struct {
	ParentReference string  `json:"parent_reference"`
	Amount          float64 `json:"amount"`
	Reason          string  `json:"reason"`
}
