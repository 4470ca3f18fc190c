package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"placementd/internal/app"
	"placementd/internal/common"
	"placementd/internal/domain/actor"
	"placementd/internal/domain/application"
	"placementd/internal/domain/opportunity"
)

const (
	ActorsFile        = "actors.txt"
	OpportunitiesFile = "opportunities.txt"
	ApplicationsFile  = "applications.txt"
)

type Snapshot struct {
	Actors        ActorSet
	Opportunities []opportunity.Opportunity
	Applications  []application.Application
}

// Validate re-checks every engine invariant against the loaded records. A
// snapshot is external input and gets no trust: broken slot arithmetic,
// dangling references, and records exceeding the policy limits are rejected,
// while repairable drift (visibility on a non-approved opportunity, a filled
// status that disagrees with the counter) is normalized in place.
func (s *Snapshot) Validate(limits app.Limits) error {
	maxSlots := limits.MaxSlotsPerOpportunity
	applicantIDs := make(map[common.UUID]bool, len(s.Actors.Applicants))
	for _, a := range s.Actors.Applicants {
		if a.Year < 1 {
			return common.NewError(common.CodeValidation, fmt.Sprintf("applicant %s: year must be at least 1", a.ID), nil)
		}
		if applicantIDs[a.ID] {
			return common.NewError(common.CodeValidation, fmt.Sprintf("duplicate applicant %s", a.ID), nil)
		}
		applicantIDs[a.ID] = true
	}
	ownerIDs := make(map[common.UUID]bool, len(s.Actors.Owners))
	for _, o := range s.Actors.Owners {
		if ownerIDs[o.ID] {
			return common.NewError(common.CodeValidation, fmt.Sprintf("duplicate owner %s", o.ID), nil)
		}
		ownerIDs[o.ID] = true
	}

	oppIDs := make(map[common.UUID]bool, len(s.Opportunities))
	ownerActive := make(map[common.UUID]int)
	for i := range s.Opportunities {
		opp := &s.Opportunities[i]
		if oppIDs[opp.ID] {
			return common.NewError(common.CodeValidation, fmt.Sprintf("duplicate opportunity %s", opp.ID), nil)
		}
		oppIDs[opp.ID] = true
		if !ownerIDs[opp.OwnerID] {
			return common.NewError(common.CodeValidation, fmt.Sprintf("opportunity %s: unknown owner %s", opp.ID, opp.OwnerID), nil)
		}
		if opp.TotalSlots < 1 || opp.TotalSlots > maxSlots {
			return common.NewError(common.CodeValidation, fmt.Sprintf("opportunity %s: total slots must be between 1 and %d", opp.ID, maxSlots), nil)
		}
		if opp.FilledSlots < 0 || opp.FilledSlots > opp.TotalSlots {
			return common.NewError(common.CodeValidation, fmt.Sprintf("opportunity %s: filled slots %d out of range 0..%d", opp.ID, opp.FilledSlots, opp.TotalSlots), nil)
		}
		if (opp.Status == opportunity.StatusPending || opp.Status == opportunity.StatusRejected) && opp.FilledSlots > 0 {
			return common.NewError(common.CodeValidation, fmt.Sprintf("opportunity %s: undecided opportunity has reserved slots", opp.ID), nil)
		}
		// Normalize the derived filled sub-state.
		if opp.Status == opportunity.StatusApproved && opp.FilledSlots == opp.TotalSlots {
			opp.Status = opportunity.StatusFilled
		}
		if opp.Status == opportunity.StatusFilled && opp.FilledSlots < opp.TotalSlots {
			opp.Status = opportunity.StatusApproved
		}
		if opp.Status != opportunity.StatusApproved && opp.Status != opportunity.StatusFilled {
			opp.Visible = false
		}
		if opp.Status != opportunity.StatusRejected {
			ownerActive[opp.OwnerID]++
			if ownerActive[opp.OwnerID] > limits.MaxActiveOpportunitiesPerOwner {
				return common.NewError(common.CodeValidation, fmt.Sprintf("owner %s: more than %d active opportunities", opp.OwnerID, limits.MaxActiveOpportunitiesPerOwner), nil)
			}
		}
	}

	appIDs := make(map[common.UUID]bool, len(s.Applications))
	livePairs := make(map[common.UUID]map[common.UUID]bool)
	confirmed := make(map[common.UUID]bool)
	activeApps := make(map[common.UUID]int)
	for i := range s.Applications {
		rec := &s.Applications[i]
		if appIDs[rec.ID] {
			return common.NewError(common.CodeValidation, fmt.Sprintf("duplicate application %s", rec.ID), nil)
		}
		appIDs[rec.ID] = true
		if !applicantIDs[rec.ApplicantID] {
			return common.NewError(common.CodeValidation, fmt.Sprintf("application %s: unknown applicant %s", rec.ID, rec.ApplicantID), nil)
		}
		if !oppIDs[rec.OpportunityID] {
			return common.NewError(common.CodeValidation, fmt.Sprintf("application %s: unknown opportunity %s", rec.ID, rec.OpportunityID), nil)
		}
		if rec.Status != application.StatusWithdrawn {
			pairs := livePairs[rec.ApplicantID]
			if pairs == nil {
				pairs = make(map[common.UUID]bool)
				livePairs[rec.ApplicantID] = pairs
			}
			if pairs[rec.OpportunityID] {
				return common.NewError(common.CodeConflict, fmt.Sprintf("application %s: second live application for the same pair", rec.ID), nil)
			}
			pairs[rec.OpportunityID] = true
		}
		if rec.Status.Active() {
			activeApps[rec.ApplicantID]++
			if activeApps[rec.ApplicantID] > limits.MaxActiveApplications {
				return common.NewError(common.CodeValidation, fmt.Sprintf("applicant %s: more than %d active applications", rec.ApplicantID, limits.MaxActiveApplications), nil)
			}
		}
		if rec.Status == application.StatusConfirmed {
			if confirmed[rec.ApplicantID] {
				return common.NewError(common.CodeConflict, fmt.Sprintf("applicant %s: more than one confirmed placement", rec.ApplicantID), nil)
			}
			confirmed[rec.ApplicantID] = true
		}
		if rec.Withdrawal != nil && rec.Withdrawal.Status == application.WithdrawalPending && rec.Status != application.StatusConfirmed {
			return common.NewError(common.CodeValidation, fmt.Sprintf("application %s: pending withdrawal on a non-confirmed application", rec.ID), nil)
		}
	}
	return nil
}

// LoadDir reads and validates a snapshot directory. Missing files mean empty
// collections, not errors.
func LoadDir(dir string, limits app.Limits) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := readFile(filepath.Join(dir, ActorsFile), func(f *os.File) error {
		set, err := ParseActors(f)
		if err != nil {
			return err
		}
		snap.Actors = *set
		return nil
	}); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(dir, OpportunitiesFile), func(f *os.File) error {
		items, err := ParseOpportunities(f)
		if err != nil {
			return err
		}
		snap.Opportunities = items
		return nil
	}); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(dir, ApplicationsFile), func(f *os.File) error {
		items, err := ParseApplications(f)
		if err != nil {
			return err
		}
		snap.Applications = items
		return nil
	}); err != nil {
		return nil, err
	}

	if err := snap.Validate(limits); err != nil {
		return nil, err
	}
	return snap, nil
}

// SaveDir writes the snapshot files, creating the directory if needed.
func SaveDir(dir string, snap *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return common.NewError(common.CodeInternal, "create snapshot directory", err)
	}
	if err := writeFile(filepath.Join(dir, ActorsFile), func(f *os.File) error {
		return WriteActors(f, snap.Actors)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, OpportunitiesFile), func(f *os.File) error {
		return WriteOpportunities(f, snap.Opportunities)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, ApplicationsFile), func(f *os.File) error {
		return WriteApplications(f, snap.Applications)
	})
}

// Restore populates the repositories from a validated snapshot.
func Restore(ctx context.Context, snap *Snapshot, directory actor.Directory, opportunities opportunity.Repository, applications application.Repository) error {
	for _, a := range snap.Actors.Applicants {
		if _, err := directory.CreateApplicant(ctx, a); err != nil {
			return err
		}
	}
	for _, o := range snap.Actors.Owners {
		if _, err := directory.CreateOwner(ctx, o); err != nil {
			return err
		}
	}
	for _, a := range snap.Actors.Approvers {
		if _, err := directory.CreateApprover(ctx, a); err != nil {
			return err
		}
	}
	for _, opp := range snap.Opportunities {
		if _, err := opportunities.Create(ctx, opp); err != nil {
			return err
		}
	}
	for _, rec := range snap.Applications {
		if _, err := applications.Create(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Capture reads every entity back out of the repositories.
func Capture(ctx context.Context, directory actor.Directory, opportunities opportunity.Repository, applications application.Repository) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error
	if snap.Actors.Applicants, err = directory.ListApplicants(ctx); err != nil {
		return nil, err
	}
	if snap.Actors.Owners, err = directory.ListOwners(ctx); err != nil {
		return nil, err
	}
	if snap.Actors.Approvers, err = directory.ListApprovers(ctx); err != nil {
		return nil, err
	}
	if snap.Opportunities, err = opportunities.List(ctx); err != nil {
		return nil, err
	}
	if snap.Applications, err = applications.List(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func readFile(path string, handle func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return common.NewError(common.CodeInternal, "open snapshot file", err)
	}
	defer f.Close()
	return handle(f)
}

func writeFile(path string, handle func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return common.NewError(common.CodeInternal, "create snapshot file", err)
	}
	if err := handle(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
