package limits

import "fmt"

// FuelMetrics is a per-invocation snapshot of the CPU budget, computed at
// outcome-classification time and surfaced to the caller.
type FuelMetrics struct {
	MaxFuel  uint64
	Consumed uint64
}

// Remaining returns the unspent budget. The subtraction saturates at zero:
// fuel is charged in coarse units at call-frame boundaries, so consumption
// can momentarily overshoot the budget.
func (m FuelMetrics) Remaining() uint64 {
	if m.Consumed >= m.MaxFuel {
		return 0
	}
	return m.MaxFuel - m.Consumed
}

// Exhausted reports whether the budget has been fully spent. A zero budget
// means fuel metering is disabled and never exhausts.
func (m FuelMetrics) Exhausted() bool {
	return m.MaxFuel > 0 && m.Consumed >= m.MaxFuel
}

// UsagePercentage returns consumption as a percentage of the budget, 0.0
// when the budget is zero.
func (m FuelMetrics) UsagePercentage() float64 {
	if m.MaxFuel == 0 {
		return 0.0
	}
	return float64(m.Consumed) / float64(m.MaxFuel) * 100.0
}

// String renders the snapshot as a self-contained sentence fragment,
// e.g. "1000000/1000000 consumed (100.0%)".
func (m FuelMetrics) String() string {
	return fmt.Sprintf("%d/%d consumed (%.1f%%)", m.Consumed, m.MaxFuel, m.UsagePercentage())
}
