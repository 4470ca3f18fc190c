package app

// Limits carries the placement policy knobs. Callers usually build this from
// config.Config; tests set the fields directly.
type Limits struct {
	MaxActiveApplications          int
	MaxSlotsPerOpportunity         int
	MaxActiveOpportunitiesPerOwner int
}

func DefaultLimits() Limits {
	return Limits{
		MaxActiveApplications:          3,
		MaxSlotsPerOpportunity:         10,
		MaxActiveOpportunitiesPerOwner: 5,
	}
}
