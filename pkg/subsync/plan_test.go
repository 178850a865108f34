package subsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanResolver_Resolve(t *testing.T) {
	r := NewPlanResolver("price_monthly", "price_yearly")

	tests := []struct {
		name    string
		priceID string
		want    Plan
	}{
		{"monthly price", "price_monthly", PlanMonthly},
		{"yearly price", "price_yearly", PlanYearly},
		{"unknown price falls back to monthly", "price_other", PlanMonthly},
		{"empty price falls back to monthly", "", PlanMonthly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.priceID))
		})
	}
}

func TestPlanResolver_UnconfiguredPriceIDsNeverMatch(t *testing.T) {
	r := NewPlanResolver("", "")
	// With no configured prices every lookup lands on the fallback,
	// including the empty string.
	assert.Equal(t, PlanMonthly, r.Resolve(""))
	assert.Equal(t, PlanMonthly, r.Resolve("price_yearly"))
}

func TestIsEntitling(t *testing.T) {
	assert.True(t, IsEntitling(StatusActive))
	assert.True(t, IsEntitling(StatusTrialing))
	assert.False(t, IsEntitling(StatusCanceled))
	assert.False(t, IsEntitling("past_due"))
	assert.False(t, IsEntitling(""))
}
