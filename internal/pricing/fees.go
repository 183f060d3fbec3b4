package pricing

import "github.com/shopspring/decimal"

type feeTier struct {
	upTo int64
	fee  int64
}

// Customer transfer charges by amount band, in KES.
var mpesaFeeTiers = []feeTier{
	{100, 0},
	{500, 7},
	{1000, 13},
	{1500, 22},
	{2500, 32},
	{3500, 51},
	{5000, 55},
	{7500, 75},
	{10000, 87},
	{15000, 97},
	{20000, 102},
}

const mpesaTopFee = 105

// MpesaFee returns the charge the payer's operator applies to a transfer of
// amount. Informational only; it never alters a quote.
func MpesaFee(amount decimal.Decimal) decimal.Decimal {
	for _, tier := range mpesaFeeTiers {
		if amount.LessThanOrEqual(decimal.NewFromInt(tier.upTo)) {
			return decimal.NewFromInt(tier.fee)
		}
	}
	return decimal.NewFromInt(mpesaTopFee)
}
