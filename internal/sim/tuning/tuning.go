package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	// Store hours, in ticks within one day.
	DayTicks             int `yaml:"day_ticks"`
	OpenTick             int `yaml:"open_tick"`
	CloseTick            int `yaml:"close_tick"`
	ForceCloseGraceTicks int `yaml:"force_close_grace_ticks"`

	ArrivalEveryTicks  int `yaml:"arrival_every_ticks"`
	MaxCustomers       int `yaml:"max_customers"`
	HistoryCap         int `yaml:"history_cap"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Customer Customer `yaml:"customer"`
	Checkout Checkout `yaml:"checkout"`
}

type Customer struct {
	BudgetMin int64 `yaml:"budget_min"`
	BudgetMax int64 `yaml:"budget_max"`

	EntryTimeout time.Duration `yaml:"entry_timeout"`

	ShopMin        time.Duration `yaml:"shop_min"`
	ShopMax        time.Duration `yaml:"shop_max"`
	HurryThreshold time.Duration `yaml:"hurry_threshold"`
	SelectInterval time.Duration `yaml:"select_interval"`

	PurchaseProbability float64 `yaml:"purchase_probability"`
	RetargetChance      float64 `yaml:"retarget_chance"`

	MaxQueueWait   time.Duration `yaml:"max_queue_wait"`
	PlacementDelay time.Duration `yaml:"placement_delay"`
	PaymentTimeout time.Duration `yaml:"payment_timeout"`

	// ChargeOnPaymentTimeout reports the sale even when the counter never
	// confirmed payment. Nil means true.
	ChargeOnPaymentTimeout *bool `yaml:"charge_on_payment_timeout"`
}

type Checkout struct {
	ScanTicksPerItem int `yaml:"scan_ticks_per_item"`
	// Strict turns coordinator invariant violations into panics.
	Strict bool `yaml:"strict"`
}

func (c Customer) ChargesOnPaymentTimeout() bool {
	return c.ChargeOnPaymentTimeout == nil || *c.ChargeOnPaymentTimeout
}

// TickDuration is the simulated time covered by one tick.
func (t Tuning) TickDuration() time.Duration {
	if t.TickRateHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(t.TickRateHz)
}

func Defaults() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) ApplyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 10
	}
	if t.DayTicks <= 0 {
		t.DayTicks = 6000
	}
	if t.OpenTick <= 0 && t.CloseTick <= 0 {
		t.OpenTick = t.DayTicks / 10
		t.CloseTick = t.DayTicks * 9 / 10
	}
	if t.ForceCloseGraceTicks <= 0 {
		t.ForceCloseGraceTicks = 300
	}
	if t.ArrivalEveryTicks <= 0 {
		t.ArrivalEveryTicks = 40
	}
	if t.MaxCustomers <= 0 {
		t.MaxCustomers = 30
	}
	if t.HistoryCap <= 0 {
		t.HistoryCap = 50
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 3000
	}
	t.Customer.applyDefaults()
	if t.Checkout.ScanTicksPerItem <= 0 {
		t.Checkout.ScanTicksPerItem = 5
	}
}

func (c *Customer) applyDefaults() {
	if c.BudgetMin <= 0 {
		c.BudgetMin = 20
	}
	if c.BudgetMax < c.BudgetMin {
		c.BudgetMax = c.BudgetMin * 8
	}
	if c.EntryTimeout <= 0 {
		c.EntryTimeout = 5 * time.Second
	}
	if c.ShopMin <= 0 {
		c.ShopMin = 30 * time.Second
	}
	if c.ShopMax < c.ShopMin {
		c.ShopMax = c.ShopMin * 4
	}
	if c.HurryThreshold <= 0 {
		c.HurryThreshold = 60 * time.Second
	}
	if c.SelectInterval <= 0 {
		c.SelectInterval = 3 * time.Second
	}
	if c.PurchaseProbability <= 0 || c.PurchaseProbability > 1 {
		c.PurchaseProbability = 0.35
	}
	if c.RetargetChance <= 0 || c.RetargetChance > 1 {
		c.RetargetChance = 0.25
	}
	if c.MaxQueueWait <= 0 {
		c.MaxQueueWait = 90 * time.Second
	}
	if c.PlacementDelay <= 0 {
		c.PlacementDelay = 500 * time.Millisecond
	}
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 30 * time.Second
	}
}

func (t Tuning) Validate() error {
	if t.OpenTick < 0 || t.CloseTick > t.DayTicks || t.OpenTick >= t.CloseTick {
		return fmt.Errorf("store hours [%d,%d) must fit inside day_ticks=%d", t.OpenTick, t.CloseTick, t.DayTicks)
	}
	if t.Customer.BudgetMax < t.Customer.BudgetMin {
		return fmt.Errorf("customer.budget_max < budget_min")
	}
	return nil
}
