package utils

import "github.com/shopspring/decimal"

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Round2 rounds a price or amount to two decimal places.
func Round2(v float64) float64 {
	return Round(v, 2)
}
