package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFuelMetricsRemaining verifies remaining-budget arithmetic saturates
func TestFuelMetricsRemaining(t *testing.T) {
	tests := []struct {
		name     string
		metrics  FuelMetrics
		expected uint64
	}{
		{"unspent", FuelMetrics{MaxFuel: 1000, Consumed: 0}, 1000},
		{"partial", FuelMetrics{MaxFuel: 1000, Consumed: 400}, 600},
		{"exact", FuelMetrics{MaxFuel: 1000, Consumed: 1000}, 0},
		{"overshoot saturates", FuelMetrics{MaxFuel: 1000, Consumed: 1003}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.metrics.Remaining())
		})
	}
}

// TestFuelMetricsExhausted verifies exhaustion detection and the disabled
// budget case
func TestFuelMetricsExhausted(t *testing.T) {
	assert.False(t, FuelMetrics{MaxFuel: 1000, Consumed: 999}.Exhausted())
	assert.True(t, FuelMetrics{MaxFuel: 1000, Consumed: 1000}.Exhausted())
	assert.True(t, FuelMetrics{MaxFuel: 1000, Consumed: 1500}.Exhausted())
	assert.False(t, FuelMetrics{MaxFuel: 0, Consumed: 1 << 40}.Exhausted(), "zero budget never exhausts")
}

// TestFuelMetricsUsagePercentage verifies the zero-budget guard
func TestFuelMetricsUsagePercentage(t *testing.T) {
	assert.InDelta(t, 50.0, FuelMetrics{MaxFuel: 1000, Consumed: 500}.UsagePercentage(), 0.001)
	assert.InDelta(t, 100.0, FuelMetrics{MaxFuel: 1000, Consumed: 1000}.UsagePercentage(), 0.001)
	assert.Equal(t, 0.0, FuelMetrics{MaxFuel: 0, Consumed: 500}.UsagePercentage())
}

// TestFuelMetricsString verifies the sentence-fragment rendering
func TestFuelMetricsString(t *testing.T) {
	m := FuelMetrics{MaxFuel: 1_000_000, Consumed: 1_000_000}
	assert.Equal(t, "1000000/1000000 consumed (100.0%)", m.String())

	m = FuelMetrics{MaxFuel: 1_000_000, Consumed: 250_000}
	assert.Equal(t, "250000/1000000 consumed (25.0%)", m.String())
}
