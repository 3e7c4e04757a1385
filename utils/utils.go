package utils

import "github.com/shopspring/decimal"

// Round rounds half away from zero to the given number of decimal places, using the
// shortest decimal form of v (2.675 rounds to 2.68).
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// RoundMoney rounds a currency amount to cents.
func RoundMoney(v float64) float64 {
	return Round(v, 2)
}

// Percent returns part/whole*100, or 0 when whole is zero.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	p, _ := decimal.NewFromFloat(part).Div(decimal.NewFromFloat(whole)).Mul(decimal.NewFromInt(100)).Float64()
	return p
}
