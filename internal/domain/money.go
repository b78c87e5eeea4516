package domain

import "github.com/shopspring/decimal"

// Monetary amounts (wallet balances, fees, NAV, distributions) are kept to
// 2 decimal places; per-share prices to 8.
const (
	MoneyScale = 2
	PriceScale = 8
)

// RoundMoney rounds d to the currency's minimum unit.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundPrice rounds d to per-share price precision.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PriceScale)
}

// WeightedAveragePrice recomputes a quantity-weighted running average after
// adding newQty units at newPrice to oldQty units averaged at oldAvg.
// Returns oldAvg unchanged when newQty <= 0.
func WeightedAveragePrice(oldAvg decimal.Decimal, oldQty int64, newPrice decimal.Decimal, newQty int64) decimal.Decimal {
	if newQty <= 0 {
		return oldAvg
	}
	total := oldQty + newQty
	if total == 0 {
		return decimal.Zero
	}
	oldCost := oldAvg.Mul(decimal.NewFromInt(oldQty))
	newCost := newPrice.Mul(decimal.NewFromInt(newQty))
	return oldCost.Add(newCost).DivRound(decimal.NewFromInt(total), PriceScale)
}
