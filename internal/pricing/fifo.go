package pricing

import (
	"fmt"
	"sort"
	"time"
)

type LedgerSide string

const (
	SideOpen  LedgerSide = "open"
	SideClose LedgerSide = "close"
)

// LedgerEntry is one leg of a recorded transaction. The spot and hedge legs
// of a position form two independent ledgers since partial fills can
// desynchronize their quantities.
type LedgerEntry struct {
	Side     LedgerSide
	Quantity float64
	Cost     float64
	Time     time.Time
	Seq      int64
}

// Lot is an open quantity remaining at its original cost.
type Lot struct {
	Quantity float64
	Cost     float64
}

// OpenLots matches closes against opens oldest-first and returns the lots
// still open. Entries are ordered by execution time ascending with the
// ledger sequence breaking ties. A close that exceeds the available open
// quantity is a data inconsistency and is returned as an error.
func OpenLots(entries []LedgerEntry) ([]Lot, error) {
	ordered := make([]LedgerEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Time.Equal(ordered[j].Time) {
			return ordered[i].Seq < ordered[j].Seq
		}
		return ordered[i].Time.Before(ordered[j].Time)
	})

	var lots []Lot
	for _, entry := range ordered {
		switch entry.Side {
		case SideOpen:
			lots = append(lots, Lot{Quantity: entry.Quantity, Cost: entry.Cost})
		case SideClose:
			remaining := entry.Quantity
			for remaining > 0 && len(lots) > 0 {
				lot := &lots[0]
				if lot.Quantity > remaining {
					lot.Quantity -= remaining
					remaining = 0
					break
				}
				remaining -= lot.Quantity
				lots = lots[1:]
			}
			if remaining > 0 {
				return nil, fmt.Errorf("close quantity %.8f exceeds open lots (seq %d)", entry.Quantity, entry.Seq)
			}
		default:
			return nil, fmt.Errorf("unknown ledger side %q (seq %d)", entry.Side, entry.Seq)
		}
	}
	return lots, nil
}

// AverageCost returns the weighted average cost and total quantity over the
// given lots. Zero remaining quantity yields a zero average, not an error.
func AverageCost(lots []Lot) (avg, qty float64) {
	var totalCost float64
	for _, lot := range lots {
		totalCost += lot.Cost * lot.Quantity
		qty += lot.Quantity
	}
	if qty == 0 {
		return 0, 0
	}
	return totalCost / qty, qty
}

// FIFOAverageCost combines OpenLots and AverageCost.
func FIFOAverageCost(entries []LedgerEntry) (avg, qty float64, err error) {
	lots, err := OpenLots(entries)
	if err != nil {
		return 0, 0, err
	}
	avg, qty = AverageCost(lots)
	return avg, qty, nil
}
