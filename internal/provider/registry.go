package provider

import (
	"sort"
	"sync"
)

type registration struct {
	client   Client
	takerFee float64
}

// Registry maps an exchange identifier to its spot and hedge adapters.
// Lookup replaces any dynamic by-name client construction: a venue the
// registry does not know simply does not exist for this run.
type Registry struct {
	mu    sync.RWMutex
	spot  map[string]registration
	hedge map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{
		spot:  make(map[string]registration),
		hedge: make(map[string]registration),
	}
}

func (r *Registry) RegisterSpot(exchange string, client Client, takerFee float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spot[exchange] = registration{client: client, takerFee: takerFee}
}

func (r *Registry) RegisterHedge(exchange string, client Client, takerFee float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hedge[exchange] = registration{client: client, takerFee: takerFee}
}

func (r *Registry) Spot(exchange string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.spot[exchange]
	return reg.client, ok
}

func (r *Registry) Hedge(exchange string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.hedge[exchange]
	return reg.client, ok
}

func (r *Registry) SpotFee(exchange string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spot[exchange].takerFee
}

func (r *Registry) HedgeFee(exchange string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hedge[exchange].takerFee
}

func (r *Registry) SpotExchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.spot)
}

func (r *Registry) HedgeExchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.hedge)
}

func sortedKeys(m map[string]registration) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
