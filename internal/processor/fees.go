package processor

import (
	"math"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
)

// Per-method fee rates. Methods not listed fall back to the default rate.
var feeRates = map[domain.PaymentMethod]float64{
	domain.MethodCreditCard:     0.029,
	domain.MethodDebitCard:      0.015,
	domain.MethodBankTransfer:   0.005,
	domain.MethodDigitalWallet:  0.025,
	domain.MethodCryptocurrency: 0.010,
}

const defaultFeeRate = 0.025

// FeeRate returns the fee rate for a payment method.
func FeeRate(method domain.PaymentMethod) float64 {
	if rate, ok := feeRates[method]; ok {
		return rate
	}
	return defaultFeeRate
}

// round2 rounds a currency value to 2 decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
