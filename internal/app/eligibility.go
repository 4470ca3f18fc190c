package app

import (
	"time"

	"placementd/internal/domain/actor"
	"placementd/internal/domain/opportunity"
)

// Eligible reports whether the applicant may currently see and apply to the
// opportunity. Conditions short-circuit in order: approved and visible, date
// window, remaining capacity, level for the applicant's year, preferred
// major. Submit re-evaluates this at call time; listing results are never a
// substitute because capacity and visibility move between the two.
func Eligible(applicant actor.Applicant, opp opportunity.Opportunity, today time.Time) bool {
	if opp.Status != opportunity.StatusApproved || !opp.Visible {
		return false
	}
	if !opp.OpenOn(today) {
		return false
	}
	if opp.Remaining() <= 0 {
		return false
	}
	if !LevelEligible(applicant.Year, opp.Level) {
		return false
	}
	return opp.MatchesMajor(applicant.Major)
}

// LevelEligible caps first and second year applicants at basic level.
func LevelEligible(year int, level opportunity.Level) bool {
	if level.Rank() < 0 {
		return false
	}
	if year <= 2 {
		return level == opportunity.LevelBasic
	}
	return true
}
