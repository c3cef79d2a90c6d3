package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

const displaySigDigits = 5

// DisplayPrice renders a price for human-readable quoting: rounded to a
// bounded number of significant digits and formatted with exactly the
// decimal places that rounding implies. Not used in profit math.
func DisplayPrice(price float64) string {
	if price == 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return "0"
	}
	exp := int32(math.Floor(math.Log10(math.Abs(price))))
	places := int32(displaySigDigits-1) - exp
	if places < 0 {
		places = 0
	}
	return decimal.NewFromFloat(price).Round(places).StringFixed(places)
}
