package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	ScansRun           Counter
	OpportunitiesFound Counter
	PositionsOpened    Counter
	PositionsClosed    Counter
	OrdersPlaced       Counter
	OrdersFailed       Counter
	TicksFailed        Counter
	BlacklistAdded     Counter
	OneSidedExposure   Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		ScansRun:           n,
		OpportunitiesFound: n,
		PositionsOpened:    n,
		PositionsClosed:    n,
		OrdersPlaced:       n,
		OrdersFailed:       n,
		TicksFailed:        n,
		BlacklistAdded:     n,
		OneSidedExposure:   n,
	}
}
