package subsync

// PlanResolver maps provider price ids to internal plan tags.
type PlanResolver struct {
	monthlyPriceID string
	yearlyPriceID  string
}

// NewPlanResolver creates a resolver for the two configured price ids.
func NewPlanResolver(monthlyPriceID, yearlyPriceID string) *PlanResolver {
	return &PlanResolver{
		monthlyPriceID: monthlyPriceID,
		yearlyPriceID:  yearlyPriceID,
	}
}

// Resolve returns the plan tag for a price id. Unknown price ids resolve
// to the monthly plan; unknown input is a fallback, not an error.
func (r *PlanResolver) Resolve(priceID string) Plan {
	if priceID != "" && priceID == r.yearlyPriceID {
		return PlanYearly
	}
	return PlanMonthly
}
