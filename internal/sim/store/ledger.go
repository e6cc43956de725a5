package store

type LedgerTotals struct {
	Revenue          int64   `json:"revenue"`
	Sales            int     `json:"sales"`
	SatisfactionSum  float64 `json:"satisfaction_sum"`
	MeanSatisfaction float64 `json:"mean_satisfaction"`
	QueueAbandons    int     `json:"queue_abandons"`
	ItemsReturned    int     `json:"items_returned"`
}

// Ledger keeps the store's running totals. It is the sale reporter every
// customer is given.
type Ledger struct {
	totals LedgerTotals
}

func NewLedger() *Ledger { return &Ledger{} }

func (l *Ledger) ReportSale(total int64, satisfaction float64) {
	l.totals.Revenue += total
	l.totals.Sales++
	l.totals.SatisfactionSum += satisfaction
}

func (l *Ledger) noteAbandon() { l.totals.QueueAbandons++ }

// Totals reports the running totals. itemsReturned comes from the shelves.
func (l *Ledger) Totals(itemsReturned int) LedgerTotals {
	t := l.totals
	t.ItemsReturned = itemsReturned
	if t.Sales > 0 {
		t.MeanSatisfaction = t.SatisfactionSum / float64(t.Sales)
	}
	return t
}
