package store

// StoreMetrics is a thread-safe read-only view of key store runtime signals.
// It is updated from the store loop goroutine and read from HTTP handlers/tests.
type StoreMetrics struct {
	Tick uint64 `json:"tick"`
	Open bool   `json:"open"`

	Customers int            `json:"customers"`
	ByState   map[string]int `json:"by_state"`
	Observers int            `json:"observers"`

	Revenue          int64   `json:"revenue"`
	Sales            int     `json:"sales"`
	MeanSatisfaction float64 `json:"mean_satisfaction"`
	QueueAbandons    int     `json:"queue_abandons"`
	ItemsReturned    int     `json:"items_returned"`

	CountersEnabled int `json:"counters_enabled"`
	Waiting         int `json:"waiting"`

	StepMS float64 `json:"step_ms"`
}

func (s *Store) Metrics() StoreMetrics {
	if s == nil {
		return StoreMetrics{}
	}
	m, _ := s.metrics.Load().(StoreMetrics)
	return m
}

func (s *Store) storeMetrics(nextTick uint64, totals LedgerTotals, stepMS float64) {
	byState := map[string]int{}
	for _, rec := range s.customers {
		byState[string(rec.m.CurrentState())]++
	}
	enabled, waiting := 0, 0
	for _, c := range s.co.Counters() {
		if c.Enabled {
			enabled++
		}
		waiting += len(c.WaitLine)
	}
	s.metrics.Store(StoreMetrics{
		Tick:             nextTick,
		Open:             s.clock.IsOpen(),
		Customers:        len(s.customers),
		ByState:          byState,
		Observers:        len(s.observers),
		Revenue:          totals.Revenue,
		Sales:            totals.Sales,
		MeanSatisfaction: totals.MeanSatisfaction,
		QueueAbandons:    totals.QueueAbandons,
		ItemsReturned:    totals.ItemsReturned,
		CountersEnabled:  enabled,
		Waiting:          waiting,
		StepMS:           stepMS,
	})
}
