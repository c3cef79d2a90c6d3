package pricing

// Level is one order-book level. Asks are expected ascending by price,
// bids descending.
type Level struct {
	Price    float64
	Quantity float64
}

// AvgExecutionPrice walks levels until targetNotional is spent and returns
// the volume-weighted average price over the consumed quantity. reached is
// false when the book is exhausted before the target notional is filled.
func AvgExecutionPrice(levels []Level, targetNotional float64) (float64, bool) {
	var cumulative, totalQty, totalCost float64
	reached := false
	for _, level := range levels {
		notional := level.Price * level.Quantity
		if cumulative+notional >= targetNotional {
			qty := 0.0
			if level.Price > 0 {
				qty = (targetNotional - cumulative) / level.Price
			}
			totalQty += qty
			totalCost += level.Price * qty
			reached = true
			break
		}
		cumulative += notional
		totalQty += level.Quantity
		totalCost += notional
	}
	if totalQty == 0 {
		return 0, reached
	}
	return totalCost / totalQty, reached
}

// AvgPriceForQuantity walks levels until targetQuantity is consumed.
// Companion of AvgExecutionPrice for exits sized in base units.
func AvgPriceForQuantity(levels []Level, targetQuantity float64) (float64, bool) {
	var totalQty, totalCost float64
	reached := false
	for _, level := range levels {
		remaining := targetQuantity - totalQty
		if level.Quantity >= remaining {
			totalQty += remaining
			totalCost += level.Price * remaining
			reached = true
			break
		}
		totalQty += level.Quantity
		totalCost += level.Price * level.Quantity
	}
	if totalQty == 0 {
		return 0, reached
	}
	return totalCost / totalQty, reached
}
