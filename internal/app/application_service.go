package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"placementd/internal/common"
	"placementd/internal/domain/actor"
	"placementd/internal/domain/application"
	"placementd/internal/domain/opportunity"
	"placementd/internal/observability"
)

// ApplicationService runs the application lifecycle. The mutex serializes the
// mutating operations so that the confirm path (slot reservation plus sibling
// cascade) is atomic with respect to every other transition; listing reads go
// straight to the repositories, which hand out copies.
type ApplicationService struct {
	mu            sync.Mutex
	repo          application.Repository
	opportunities opportunity.Repository
	directory     actor.Directory
	audit         observability.Recorder
	now           func() time.Time
	limits        Limits
}

func NewApplicationService(repo application.Repository, opportunities opportunity.Repository, directory actor.Directory, audit observability.Recorder, now func() time.Time, limits Limits) *ApplicationService {
	if now == nil {
		now = time.Now
	}
	if audit == nil {
		audit = observability.NopRecorder{}
	}
	return &ApplicationService{repo: repo, opportunities: opportunities, directory: directory, audit: audit, now: now, limits: limits}
}

// Submit creates a new application in submitted state. Eligibility is
// evaluated here, at submit time, regardless of what any earlier listing
// showed.
func (s *ApplicationService) Submit(ctx context.Context, applicantID, opportunityID common.UUID) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applicant, err := s.directory.GetApplicant(ctx, applicantID)
	if err != nil {
		if common.Is(err, common.CodeNotFound) {
			return nil, common.NewError(common.CodeForbidden, "applicant authority required", nil)
		}
		return nil, err
	}
	if !applicant.CanApply() {
		return nil, common.NewError(common.CodeForbidden, "applicant authority required", nil)
	}
	opp, err := s.opportunities.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if !Eligible(*applicant, *opp, s.now()) {
		return nil, common.NewError(common.CodeState, "opportunity is not open to this applicant", nil)
	}
	if _, err := s.repo.FindLiveByPair(ctx, applicantID, opportunityID); err == nil {
		return nil, common.NewError(common.CodeConflict, "already applied to this opportunity", nil)
	} else if !common.Is(err, common.CodeNotFound) {
		return nil, err
	}
	existing, err := s.repo.ListByApplicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, app := range existing {
		if app.Status == application.StatusConfirmed {
			return nil, common.NewError(common.CodeState, "a confirmed placement already exists", nil)
		}
		if app.Status.Active() {
			active++
		}
	}
	if active >= s.limits.MaxActiveApplications {
		return nil, common.NewError(common.CodeValidation, fmt.Sprintf("active application limit of %d reached", s.limits.MaxActiveApplications), nil)
	}
	created, err := s.repo.Create(ctx, application.Application{
		ApplicantID:   applicantID,
		OpportunityID: opportunityID,
		Status:        application.StatusSubmitted,
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "application.submitted", ActorID: &applicantID, Fields: map[string]string{"application_id": created.ID.String(), "opportunity_id": opportunityID.String()}})
	return created, nil
}

// Review is the owner's decision on a submitted application: approved means
// the applicant may go on to confirm, rejected is terminal.
func (s *ApplicationService) Review(ctx context.Context, ownerID, applicationID common.UUID, decision application.Status) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decision != application.StatusApproved && decision != application.StatusRejected {
		return nil, common.NewValidationError("invalid review decision", map[string]string{"decision": "decision must be approved or rejected"})
	}
	owner, err := s.directory.GetOwner(ctx, ownerID)
	if err != nil {
		if common.Is(err, common.CodeNotFound) {
			return nil, common.NewError(common.CodeForbidden, "owner authority required", nil)
		}
		return nil, err
	}
	if !owner.CanReviewApplications() {
		return nil, common.NewError(common.CodeForbidden, "owner authority required", nil)
	}
	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	opp, err := s.opportunities.GetByID(ctx, app.OpportunityID)
	if err != nil {
		return nil, err
	}
	if opp.OwnerID != ownerID {
		return nil, common.NewError(common.CodeForbidden, "application belongs to another owner's opportunity", nil)
	}
	if app.Status != application.StatusSubmitted {
		return nil, common.NewError(common.CodeState, "only submitted applications can be reviewed", nil)
	}
	updated := app.Clone()
	updated.Status = decision
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "application.reviewed", ActorID: &ownerID, Fields: map[string]string{"application_id": result.ID.String(), "decision": string(decision)}})
	return result, nil
}

// Confirm locks in an approved placement. The slot reservation and the
// cascade withdrawing the applicant's other active applications commit
// together or not at all: a capacity failure leaves everything untouched.
func (s *ApplicationService) Confirm(ctx context.Context, applicantID, applicationID common.UUID) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != applicantID {
		return nil, common.NewError(common.CodeForbidden, "application belongs to another applicant", nil)
	}
	if app.Status != application.StatusApproved {
		return nil, common.NewError(common.CodeState, "application must be approved before it can be confirmed", nil)
	}
	reserved, err := s.opportunities.ReserveSlot(ctx, app.OpportunityID)
	if err != nil {
		return nil, err
	}
	updated := app.Clone()
	updated.Status = application.StatusConfirmed
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		_, _ = s.opportunities.FreeSlot(ctx, app.OpportunityID)
		return nil, err
	}
	withdrawn, err := s.repo.WithdrawSiblings(ctx, applicantID, applicationID, s.now())
	if err != nil {
		// Roll the confirmation back so a failed sweep never leaves a
		// reserved slot behind a confirmed record.
		_, _ = s.repo.Update(ctx, *app)
		_, _ = s.opportunities.FreeSlot(ctx, app.OpportunityID)
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "application.confirmed", ActorID: &applicantID, Fields: map[string]string{
		"application_id":     result.ID.String(),
		"opportunity_id":     reserved.ID.String(),
		"filled_slots":       strconv.Itoa(reserved.FilledSlots),
		"withdrawn_siblings": strconv.Itoa(withdrawn),
	}})
	return result, nil
}

// DirectWithdraw withdraws a submitted application. No approval is needed
// and no slot is touched because none was reserved.
func (s *ApplicationService) DirectWithdraw(ctx context.Context, applicantID, applicationID common.UUID) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != applicantID {
		return nil, common.NewError(common.CodeForbidden, "application belongs to another applicant", nil)
	}
	if app.Status != application.StatusSubmitted {
		return nil, common.NewError(common.CodeState, "only submitted applications can be withdrawn directly", nil)
	}
	updated := app.Clone()
	updated.Status = application.StatusWithdrawn
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "application.withdrawn", ActorID: &applicantID, Fields: map[string]string{"application_id": result.ID.String()}})
	return result, nil
}

// Reject lets the applicant decline their own submitted application. Unlike
// DirectWithdraw the record lands in rejected, so the pair cannot be
// re-applied to.
func (s *ApplicationService) Reject(ctx context.Context, applicantID, applicationID common.UUID) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != applicantID {
		return nil, common.NewError(common.CodeForbidden, "application belongs to another applicant", nil)
	}
	if app.Status != application.StatusSubmitted {
		return nil, common.NewError(common.CodeState, "only submitted applications can be declined", nil)
	}
	updated := app.Clone()
	updated.Status = application.StatusRejected
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "application.declined", ActorID: &applicantID, Fields: map[string]string{"application_id": result.ID.String()}})
	return result, nil
}

// RequestWithdrawal opens the staff-gated withdrawal subflow on a confirmed
// placement. One request per application, reason required.
func (s *ApplicationService) RequestWithdrawal(ctx context.Context, applicantID, applicationID common.UUID, reason string) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(reason) == "" {
		return nil, common.NewValidationError("invalid withdrawal request", map[string]string{"reason": "reason is required"})
	}
	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != applicantID {
		return nil, common.NewError(common.CodeForbidden, "application belongs to another applicant", nil)
	}
	if app.Status != application.StatusConfirmed {
		return nil, common.NewError(common.CodeState, "withdrawal requests apply to confirmed placements only", nil)
	}
	if app.Withdrawal != nil {
		return nil, common.NewError(common.CodeState, "a withdrawal request already exists for this application", nil)
	}
	updated := app.Clone()
	updated.Withdrawal = &application.WithdrawalRequest{
		Reason:      strings.TrimSpace(reason),
		Status:      application.WithdrawalPending,
		RequestedAt: s.now(),
	}
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "withdrawal.requested", ActorID: &applicantID, Fields: map[string]string{"application_id": result.ID.String()}})
	return result, nil
}

// DecideWithdrawal is the approver's one-shot decision on a pending
// withdrawal request. Approval withdraws the application and frees the slot;
// rejection leaves the confirmed placement standing.
func (s *ApplicationService) DecideWithdrawal(ctx context.Context, approverID, applicationID common.UUID, decision application.WithdrawalStatus) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decision != application.WithdrawalApproved && decision != application.WithdrawalRejected {
		return nil, common.NewValidationError("invalid withdrawal decision", map[string]string{"decision": "decision must be approved or rejected"})
	}
	approver, err := s.directory.GetApprover(ctx, approverID)
	if err != nil {
		if common.Is(err, common.CodeNotFound) {
			return nil, common.NewError(common.CodeForbidden, "approver authority required", nil)
		}
		return nil, err
	}
	if !approver.CanDecideWithdrawals() {
		return nil, common.NewError(common.CodeForbidden, "approver authority required", nil)
	}
	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Withdrawal == nil || app.Withdrawal.Status != application.WithdrawalPending {
		return nil, common.NewError(common.CodeState, "no pending withdrawal request for this application", nil)
	}

	updated := app.Clone()
	updated.Withdrawal.Status = decision
	updated.Withdrawal.DecidedBy = approverID
	if decision == application.WithdrawalApproved {
		if _, err := s.opportunities.FreeSlot(ctx, app.OpportunityID); err != nil {
			return nil, err
		}
		updated.Status = application.StatusWithdrawn
	}
	result, err := s.repo.Update(ctx, updated)
	if err != nil {
		if decision == application.WithdrawalApproved {
			_, _ = s.opportunities.ReserveSlot(ctx, app.OpportunityID)
		}
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "withdrawal.decided", ActorID: &approverID, Fields: map[string]string{"application_id": result.ID.String(), "decision": string(decision)}})
	return result, nil
}

func (s *ApplicationService) Get(ctx context.Context, id common.UUID) (*application.Application, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ApplicationService) ListByApplicant(ctx context.Context, applicantID common.UUID) ([]application.Application, error) {
	return s.repo.ListByApplicant(ctx, applicantID)
}

// ListForOwner returns every application against the owner's opportunities.
func (s *ApplicationService) ListForOwner(ctx context.Context, ownerID common.UUID) ([]application.Application, error) {
	opps, err := s.opportunities.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var out []application.Application
	for _, opp := range opps {
		apps, err := s.repo.ListByOpportunity(ctx, opp.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, apps...)
	}
	return out, nil
}

// ListPendingReview returns the owner's review queue: submitted applications
// against the owner's opportunities.
func (s *ApplicationService) ListPendingReview(ctx context.Context, ownerID common.UUID) ([]application.Application, error) {
	apps, err := s.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var out []application.Application
	for _, app := range apps {
		if app.Status == application.StatusSubmitted {
			out = append(out, app)
		}
	}
	return out, nil
}

// ListPendingWithdrawals returns the approver's decision queue.
func (s *ApplicationService) ListPendingWithdrawals(ctx context.Context) ([]application.Application, error) {
	apps, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []application.Application
	for _, app := range apps {
		if app.Withdrawal != nil && app.Withdrawal.Status == application.WithdrawalPending {
			out = append(out, app)
		}
	}
	return out, nil
}
