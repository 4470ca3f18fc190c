package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"placementd/internal/common"
	"placementd/internal/domain/actor"
	"placementd/internal/domain/application"
	"placementd/internal/domain/opportunity"
	"placementd/internal/observability"
)

type OpportunityService struct {
	repo         opportunity.Repository
	applications application.Repository
	directory    actor.Directory
	audit        observability.Recorder
	now          func() time.Time
	limits       Limits
}

func NewOpportunityService(repo opportunity.Repository, applications application.Repository, directory actor.Directory, audit observability.Recorder, now func() time.Time, limits Limits) *OpportunityService {
	if now == nil {
		now = time.Now
	}
	if audit == nil {
		audit = observability.NopRecorder{}
	}
	return &OpportunityService{repo: repo, applications: applications, directory: directory, audit: audit, now: now, limits: limits}
}

// OpportunityInput carries the owner-editable fields.
type OpportunityInput struct {
	Title           string
	Description     string
	Level           opportunity.Level
	PreferredMajors []string
	OpenDate        time.Time
	CloseDate       time.Time
	TotalSlots      int
}

func (s *OpportunityService) Create(ctx context.Context, ownerID common.UUID, input OpportunityInput) (*opportunity.Opportunity, error) {
	owner, err := s.directory.GetOwner(ctx, ownerID)
	if err != nil {
		if common.Is(err, common.CodeNotFound) {
			return nil, common.NewError(common.CodeForbidden, "owner authority required", nil)
		}
		return nil, err
	}
	if !owner.Approved {
		return nil, common.NewError(common.CodeForbidden, "owner account is not approved", nil)
	}
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	active, err := s.countActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if active >= s.limits.MaxActiveOpportunitiesPerOwner {
		return nil, common.NewError(common.CodeValidation, fmt.Sprintf("owner already holds %d active opportunities", active), nil)
	}
	opp := opportunity.Opportunity{
		OwnerID:         ownerID,
		Title:           strings.TrimSpace(input.Title),
		Company:         owner.Company,
		Description:     input.Description,
		Level:           input.Level,
		PreferredMajors: majorsSet(input.PreferredMajors),
		OpenDate:        input.OpenDate,
		CloseDate:       input.CloseDate,
		TotalSlots:      input.TotalSlots,
		Status:          opportunity.StatusPending,
		Visible:         false,
	}
	created, err := s.repo.Create(ctx, opp)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "opportunity.created", ActorID: &ownerID, Fields: map[string]string{"opportunity_id": created.ID.String(), "title": created.Title}})
	return created, nil
}

// Update edits an opportunity. Only the owning account may edit, and only
// while the opportunity is still pending approval.
func (s *OpportunityService) Update(ctx context.Context, ownerID, opportunityID common.UUID, input OpportunityInput) (*opportunity.Opportunity, error) {
	current, err := s.repo.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, common.NewError(common.CodeForbidden, "opportunity belongs to another owner", nil)
	}
	if current.Status != opportunity.StatusPending {
		return nil, common.NewError(common.CodeState, "only pending opportunities can be edited", nil)
	}
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	updated := current.Clone()
	updated.Title = strings.TrimSpace(input.Title)
	updated.Description = input.Description
	updated.Level = input.Level
	updated.PreferredMajors = majorsSet(input.PreferredMajors)
	updated.OpenDate = input.OpenDate
	updated.CloseDate = input.CloseDate
	updated.TotalSlots = input.TotalSlots
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "opportunity.updated", ActorID: &ownerID, Fields: map[string]string{"opportunity_id": result.ID.String()}})
	return result, nil
}

// Approve is the approver's one-shot decision moving pending to approved.
func (s *OpportunityService) Approve(ctx context.Context, approverID, opportunityID common.UUID) (*opportunity.Opportunity, error) {
	return s.decide(ctx, approverID, opportunityID, opportunity.StatusApproved, "opportunity.approved")
}

// Reject is the approver's one-shot decision moving pending to rejected.
func (s *OpportunityService) Reject(ctx context.Context, approverID, opportunityID common.UUID) (*opportunity.Opportunity, error) {
	return s.decide(ctx, approverID, opportunityID, opportunity.StatusRejected, "opportunity.rejected")
}

func (s *OpportunityService) decide(ctx context.Context, approverID, opportunityID common.UUID, decision opportunity.Status, event string) (*opportunity.Opportunity, error) {
	approver, err := s.directory.GetApprover(ctx, approverID)
	if err != nil {
		if common.Is(err, common.CodeNotFound) {
			return nil, common.NewError(common.CodeForbidden, "approver authority required", nil)
		}
		return nil, err
	}
	if !approver.CanApproveOpportunities() {
		return nil, common.NewError(common.CodeForbidden, "approver authority required", nil)
	}
	current, err := s.repo.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if current.Status != opportunity.StatusPending {
		return nil, common.NewError(common.CodeState, "opportunity has already been decided", nil)
	}
	updated := current.Clone()
	updated.Status = decision
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: event, ActorID: &approverID, Fields: map[string]string{"opportunity_id": result.ID.String()}})
	return result, nil
}

// SetVisible toggles the listing flag. Turning it on requires an approved
// opportunity; turning it off is always legal.
func (s *OpportunityService) SetVisible(ctx context.Context, ownerID, opportunityID common.UUID, visible bool) (*opportunity.Opportunity, error) {
	current, err := s.repo.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, common.NewError(common.CodeForbidden, "opportunity belongs to another owner", nil)
	}
	// The repository flips only the flag, so a concurrent slot reservation
	// can never be overwritten by a stale record here.
	result, err := s.repo.SetVisible(ctx, opportunityID, visible)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "opportunity.visibility_changed", ActorID: &ownerID, Fields: map[string]string{"opportunity_id": result.ID.String(), "visible": fmt.Sprintf("%t", visible)}})
	return result, nil
}

// Delete removes an opportunity that has not been decided yet.
func (s *OpportunityService) Delete(ctx context.Context, ownerID, opportunityID common.UUID) error {
	current, err := s.repo.GetByID(ctx, opportunityID)
	if err != nil {
		return err
	}
	if current.OwnerID != ownerID {
		return common.NewError(common.CodeForbidden, "opportunity belongs to another owner", nil)
	}
	if current.Status != opportunity.StatusPending {
		return common.NewError(common.CodeState, "only pending opportunities can be deleted", nil)
	}
	if err := s.repo.Delete(ctx, opportunityID); err != nil {
		return err
	}
	s.audit.Record(ctx, observability.Event{Name: "opportunity.deleted", ActorID: &ownerID, Fields: map[string]string{"opportunity_id": opportunityID.String()}})
	return nil
}

func (s *OpportunityService) Get(ctx context.Context, id common.UUID) (*opportunity.Opportunity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *OpportunityService) ListAll(ctx context.Context) ([]opportunity.Opportunity, error) {
	return s.repo.List(ctx)
}

func (s *OpportunityService) ListByOwner(ctx context.Context, ownerID common.UUID) ([]opportunity.Opportunity, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// ListPendingApproval returns the approver work queue.
func (s *OpportunityService) ListPendingApproval(ctx context.Context) ([]opportunity.Opportunity, error) {
	return s.repo.ListByStatus(ctx, opportunity.StatusPending)
}

// ListEligible builds the browse listing for one applicant using the same
// predicate that gates submit.
func (s *OpportunityService) ListEligible(ctx context.Context, applicantID common.UUID) ([]opportunity.Opportunity, error) {
	applicant, err := s.directory.GetApplicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	today := s.now()
	var out []opportunity.Opportunity
	for _, item := range items {
		if Eligible(*applicant, item, today) {
			out = append(out, item)
		}
	}
	return out, nil
}

// ListViewable returns everything the applicant may look at: eligible
// opportunities plus any they already applied to, even if visibility was
// turned off afterwards.
func (s *OpportunityService) ListViewable(ctx context.Context, applicantID common.UUID) ([]opportunity.Opportunity, error) {
	applicant, err := s.directory.GetApplicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	apps, err := s.applications.ListByApplicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	applied := mapset.NewSet[common.UUID]()
	for _, app := range apps {
		applied.Add(app.OpportunityID)
	}
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	today := s.now()
	var out []opportunity.Opportunity
	for _, item := range items {
		if applied.Contains(item.ID) || Eligible(*applicant, item, today) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *OpportunityService) validateInput(input OpportunityInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(input.Title) == "" {
		fields["title"] = "title is required"
	}
	if input.TotalSlots < 1 || input.TotalSlots > s.limits.MaxSlotsPerOpportunity {
		fields["total_slots"] = fmt.Sprintf("total slots must be between 1 and %d", s.limits.MaxSlotsPerOpportunity)
	}
	if input.Level.Rank() < 0 {
		fields["level"] = "level must be basic, intermediate, or advanced"
	}
	if input.OpenDate.IsZero() || input.CloseDate.IsZero() {
		fields["dates"] = "open and close dates are required"
	} else if input.CloseDate.Before(input.OpenDate) {
		fields["dates"] = "close date must not precede open date"
	}
	if len(fields) > 0 {
		return common.NewValidationError("invalid opportunity", fields)
	}
	return nil
}

// countActive counts the owner's opportunities that still occupy one of the
// owner's slots, i.e. everything not rejected.
func (s *OpportunityService) countActive(ctx context.Context, ownerID common.UUID) (int, error) {
	items, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	active := 0
	for _, item := range items {
		if item.Status != opportunity.StatusRejected {
			active++
		}
	}
	return active, nil
}

func majorsSet(majors []string) mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, major := range majors {
		trimmed := strings.TrimSpace(major)
		if trimmed != "" {
			set.Add(trimmed)
		}
	}
	return set
}
