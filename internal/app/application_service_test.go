package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"placementd/internal/common"
	"placementd/internal/domain/application"
	"placementd/internal/domain/opportunity"
	"placementd/internal/repository/memory"
)

type fixture struct {
	ctx           context.Context
	now           time.Time
	directory     *memory.Directory
	opportunities *OpportunityService
	applications  *ApplicationService
	actors        *DirectoryService
	oppRepo       *memory.OpportunityRepository
	appRepo       *memory.ApplicationRepository
	approverID    common.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	directory := memory.NewDirectory()
	oppRepo := memory.NewOpportunityRepository(clock)
	appRepo := memory.NewApplicationRepository(clock)
	limits := DefaultLimits()

	f := &fixture{
		ctx:           context.Background(),
		now:           now,
		directory:     directory,
		oppRepo:       oppRepo,
		appRepo:       appRepo,
		opportunities: NewOpportunityService(oppRepo, appRepo, directory, nil, clock, limits),
		applications:  NewApplicationService(appRepo, oppRepo, directory, nil, clock, limits),
		actors:        NewDirectoryService(directory, nil),
	}
	approver, err := f.actors.RegisterApprover(f.ctx, "Dana Staff", "Career Services")
	if err != nil {
		t.Fatalf("expected approver registered, got %v", err)
	}
	f.approverID = approver.ID
	return f
}

func (f *fixture) newApplicant(t *testing.T, year int, major string) common.UUID {
	t.Helper()
	applicant, err := f.actors.RegisterApplicant(f.ctx, "Alex Applicant", major, year)
	if err != nil {
		t.Fatalf("expected applicant registered, got %v", err)
	}
	return applicant.ID
}

func (f *fixture) newApprovedOwner(t *testing.T) common.UUID {
	t.Helper()
	owner, err := f.actors.RegisterOwner(f.ctx, "Olive Owner", "TechCorp")
	if err != nil {
		t.Fatalf("expected owner registered, got %v", err)
	}
	if _, err := f.actors.ApproveOwner(f.ctx, f.approverID, owner.ID); err != nil {
		t.Fatalf("expected owner approved, got %v", err)
	}
	return owner.ID
}

func (f *fixture) openOpportunity(t *testing.T, ownerID common.UUID, slots int, level opportunity.Level, majors ...string) common.UUID {
	t.Helper()
	created, err := f.opportunities.Create(f.ctx, ownerID, OpportunityInput{
		Title:           "Platform Internship",
		Description:     "infra work",
		Level:           level,
		PreferredMajors: majors,
		OpenDate:        f.now.AddDate(0, 0, -1),
		CloseDate:       f.now.AddDate(0, 1, 0),
		TotalSlots:      slots,
	})
	if err != nil {
		t.Fatalf("expected opportunity created, got %v", err)
	}
	if _, err := f.opportunities.Approve(f.ctx, f.approverID, created.ID); err != nil {
		t.Fatalf("expected opportunity approved, got %v", err)
	}
	if _, err := f.opportunities.SetVisible(f.ctx, ownerID, created.ID, true); err != nil {
		t.Fatalf("expected opportunity visible, got %v", err)
	}
	return created.ID
}

func TestSubmitCreatesApplication(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 1, "Computer Science")

	app, err := f.applications.Submit(f.ctx, applicantID, oppID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if app.Status != application.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", app.Status)
	}
	if app.ApplicantID != applicantID || app.OpportunityID != oppID {
		t.Fatal("expected application to reference applicant and opportunity")
	}
}

func TestSubmitDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 1, "Computer Science")

	if _, err := f.applications.Submit(f.ctx, applicantID, oppID); err != nil {
		t.Fatalf("expected first submit to pass, got %v", err)
	}
	_, err := f.applications.Submit(f.ctx, applicantID, oppID)
	if !common.Is(err, common.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestSubmitIneligibleLevel(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelIntermediate)
	applicantID := f.newApplicant(t, 1, "Computer Science")

	_, err := f.applications.Submit(f.ctx, applicantID, oppID)
	if !common.Is(err, common.CodeState) {
		t.Fatalf("expected state error, got %v", err)
	}
	apps, err := f.applications.ListByApplicant(f.ctx, applicantID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(apps) != 0 {
		t.Fatalf("expected no application created, got %d", len(apps))
	}
}

func TestSubmitActiveLimit(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	applicantID := f.newApplicant(t, 3, "Computer Science")

	for i := 0; i < 3; i++ {
		oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
		if _, err := f.applications.Submit(f.ctx, applicantID, oppID); err != nil {
			t.Fatalf("expected submit %d to pass, got %v", i+1, err)
		}
	}
	fourth := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
	_, err := f.applications.Submit(f.ctx, applicantID, fourth)
	if !common.Is(err, common.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	apps, _ := f.applications.ListByApplicant(f.ctx, applicantID)
	if len(apps) != 3 {
		t.Fatalf("expected 3 applications, got %d", len(apps))
	}
}

func TestSubmitAgainAfterWithdraw(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")

	first, err := f.applications.Submit(f.ctx, applicantID, oppID)
	if err != nil {
		t.Fatalf("expected submit to pass, got %v", err)
	}
	if _, err := f.applications.DirectWithdraw(f.ctx, applicantID, first.ID); err != nil {
		t.Fatalf("expected withdraw to pass, got %v", err)
	}
	second, err := f.applications.Submit(f.ctx, applicantID, oppID)
	if err != nil {
		t.Fatalf("expected re-apply after withdraw to pass, got %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new application record")
	}
}

func TestReviewRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	otherOwner := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, err := f.applications.Submit(f.ctx, applicantID, oppID)
	if err != nil {
		t.Fatalf("expected submit to pass, got %v", err)
	}

	_, err = f.applications.Review(f.ctx, otherOwner, app.ID, application.StatusApproved)
	if !common.Is(err, common.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestReviewOnlyFromSubmitted(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)

	if _, err := f.applications.Review(f.ctx, ownerID, app.ID, application.StatusRejected); err != nil {
		t.Fatalf("expected review to pass, got %v", err)
	}
	_, err := f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)
	if !common.Is(err, common.CodeState) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestConfirmReservesSlotAndCascades(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	target := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	sibling := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")

	targetApp, err := f.applications.Submit(f.ctx, applicantID, target)
	if err != nil {
		t.Fatalf("expected submit to pass, got %v", err)
	}
	siblingApp, err := f.applications.Submit(f.ctx, applicantID, sibling)
	if err != nil {
		t.Fatalf("expected submit to pass, got %v", err)
	}
	if _, err := f.applications.Review(f.ctx, ownerID, targetApp.ID, application.StatusApproved); err != nil {
		t.Fatalf("expected review to pass, got %v", err)
	}

	confirmed, err := f.applications.Confirm(f.ctx, applicantID, targetApp.ID)
	if err != nil {
		t.Fatalf("expected confirm to pass, got %v", err)
	}
	if confirmed.Status != application.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}

	opp, _ := f.opportunities.Get(f.ctx, target)
	if opp.FilledSlots != 1 {
		t.Fatalf("expected 1 filled slot, got %d", opp.FilledSlots)
	}
	if opp.Status != opportunity.StatusFilled {
		t.Fatalf("expected filled status, got %s", opp.Status)
	}

	swept, _ := f.applications.Get(f.ctx, siblingApp.ID)
	if swept.Status != application.StatusWithdrawn {
		t.Fatalf("expected sibling withdrawn, got %s", swept.Status)
	}
}

func TestConfirmCapacityExhausted(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	first := f.newApplicant(t, 2, "Computer Science")
	second := f.newApplicant(t, 2, "Computer Science")

	firstApp, _ := f.applications.Submit(f.ctx, first, oppID)
	secondApp, _ := f.applications.Submit(f.ctx, second, oppID)
	if _, err := f.applications.Review(f.ctx, ownerID, firstApp.ID, application.StatusApproved); err != nil {
		t.Fatalf("expected review to pass, got %v", err)
	}
	if _, err := f.applications.Review(f.ctx, ownerID, secondApp.ID, application.StatusApproved); err != nil {
		t.Fatalf("expected review to pass, got %v", err)
	}

	if _, err := f.applications.Confirm(f.ctx, first, firstApp.ID); err != nil {
		t.Fatalf("expected first confirm to pass, got %v", err)
	}
	_, err := f.applications.Confirm(f.ctx, second, secondApp.ID)
	if !common.Is(err, common.CodeCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	// A failed confirm must leave the loser untouched.
	loser, _ := f.applications.Get(f.ctx, secondApp.ID)
	if loser.Status != application.StatusApproved {
		t.Fatalf("expected loser still approved, got %s", loser.Status)
	}
	opp, _ := f.opportunities.Get(f.ctx, oppID)
	if opp.FilledSlots != 1 {
		t.Fatalf("expected filled to stay 1, got %d", opp.FilledSlots)
	}
}

func TestConfirmRacingVisibilityChangesNeverOversells(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	first := f.newApplicant(t, 2, "Computer Science")
	second := f.newApplicant(t, 2, "Computer Science")

	firstApp, _ := f.applications.Submit(f.ctx, first, oppID)
	secondApp, _ := f.applications.Submit(f.ctx, second, oppID)
	if _, err := f.applications.Review(f.ctx, ownerID, firstApp.ID, application.StatusApproved); err != nil {
		t.Fatalf("expected review to pass, got %v", err)
	}
	if _, err := f.applications.Review(f.ctx, ownerID, secondApp.ID, application.StatusApproved); err != nil {
		t.Fatalf("expected review to pass, got %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := f.opportunities.SetVisible(f.ctx, ownerID, oppID, i%2 == 0); err != nil {
				t.Errorf("visibility change failed: %v", err)
				return
			}
		}
	}()
	for applicantID, appID := range map[common.UUID]common.UUID{first: firstApp.ID, second: secondApp.ID} {
		wg.Add(1)
		go func(applicantID, appID common.UUID) {
			defer wg.Done()
			_, err := f.applications.Confirm(f.ctx, applicantID, appID)
			results <- err
		}(applicantID, appID)
	}
	wg.Wait()
	close(results)

	confirmed, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			confirmed++
		case common.Is(err, common.CodeCapacity):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if confirmed != 1 || exhausted != 1 {
		t.Fatalf("expected one confirmation and one capacity error, got %d and %d", confirmed, exhausted)
	}
	opp, _ := f.opportunities.Get(f.ctx, oppID)
	if opp.FilledSlots != 1 {
		t.Fatalf("expected exactly one filled slot, got %d", opp.FilledSlots)
	}
}

func TestConfirmRequiresApprovedStatus(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)

	_, err := f.applications.Confirm(f.ctx, applicantID, app.ID)
	if !common.Is(err, common.CodeState) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestConfirmRequiresOwnApplication(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	stranger := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)
	f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)

	_, err := f.applications.Confirm(f.ctx, stranger, app.ID)
	if !common.Is(err, common.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

type failingSweepRepo struct {
	*memory.ApplicationRepository
}

func (r *failingSweepRepo) WithdrawSiblings(ctx context.Context, applicantID, exceptID common.UUID, now time.Time) (int, error) {
	return 0, common.NewError(common.CodeInternal, "sibling sweep failed", nil)
}

func TestConfirmRollsBackWhenSweepFails(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)
	if _, err := f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved); err != nil {
		t.Fatalf("expected review to pass, got %v", err)
	}

	broken := NewApplicationService(&failingSweepRepo{f.appRepo}, f.oppRepo, f.directory, nil, func() time.Time { return f.now }, DefaultLimits())
	if _, err := broken.Confirm(f.ctx, applicantID, app.ID); !common.Is(err, common.CodeInternal) {
		t.Fatalf("expected sweep error to surface, got %v", err)
	}

	// Neither the confirmation nor the reservation may survive the failure.
	got, _ := f.applications.Get(f.ctx, app.ID)
	if got.Status != application.StatusApproved {
		t.Fatalf("expected application rolled back to approved, got %s", got.Status)
	}
	opp, _ := f.opportunities.Get(f.ctx, oppID)
	if opp.FilledSlots != 0 {
		t.Fatalf("expected slot freed, got %d filled", opp.FilledSlots)
	}
	if opp.Status != opportunity.StatusApproved {
		t.Fatalf("expected approved after rollback, got %s", opp.Status)
	}
}

func TestDirectWithdrawOnlyFromSubmitted(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)
	f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)
	f.applications.Confirm(f.ctx, applicantID, app.ID)

	_, err := f.applications.DirectWithdraw(f.ctx, applicantID, app.ID)
	if !common.Is(err, common.CodeState) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestWithdrawalRoundTripApproved(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)
	f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)
	if _, err := f.applications.Confirm(f.ctx, applicantID, app.ID); err != nil {
		t.Fatalf("expected confirm to pass, got %v", err)
	}

	if _, err := f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, "time clash"); err != nil {
		t.Fatalf("expected request to pass, got %v", err)
	}
	decided, err := f.applications.DecideWithdrawal(f.ctx, f.approverID, app.ID, application.WithdrawalApproved)
	if err != nil {
		t.Fatalf("expected decision to pass, got %v", err)
	}
	if decided.Status != application.StatusWithdrawn {
		t.Fatalf("expected withdrawn, got %s", decided.Status)
	}
	if decided.Withdrawal == nil || decided.Withdrawal.Status != application.WithdrawalApproved {
		t.Fatal("expected withdrawal request approved")
	}
	if decided.Withdrawal.DecidedBy != f.approverID {
		t.Fatal("expected deciding approver recorded")
	}

	// Slot reopened and filled reverts to approved.
	opp, _ := f.opportunities.Get(f.ctx, oppID)
	if opp.FilledSlots != 0 {
		t.Fatalf("expected slot freed, got %d filled", opp.FilledSlots)
	}
	if opp.Status != opportunity.StatusApproved {
		t.Fatalf("expected approved after free, got %s", opp.Status)
	}
}

func TestWithdrawalRoundTripRejected(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)
	f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)
	f.applications.Confirm(f.ctx, applicantID, app.ID)
	f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, "changed my mind")

	decided, err := f.applications.DecideWithdrawal(f.ctx, f.approverID, app.ID, application.WithdrawalRejected)
	if err != nil {
		t.Fatalf("expected decision to pass, got %v", err)
	}
	if decided.Status != application.StatusConfirmed {
		t.Fatalf("expected placement to stand, got %s", decided.Status)
	}
	opp, _ := f.opportunities.Get(f.ctx, oppID)
	if opp.FilledSlots != 1 || opp.Status != opportunity.StatusFilled {
		t.Fatalf("expected opportunity unchanged, got %d filled %s", opp.FilledSlots, opp.Status)
	}
}

func TestRequestWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)

	if _, err := f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, ""); !common.Is(err, common.CodeValidation) {
		t.Fatalf("expected validation error for empty reason, got %v", err)
	}
	if _, err := f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, "reason"); !common.Is(err, common.CodeState) {
		t.Fatalf("expected state error before confirmation, got %v", err)
	}

	f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)
	f.applications.Confirm(f.ctx, applicantID, app.ID)
	if _, err := f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, "reason"); err != nil {
		t.Fatalf("expected request to pass, got %v", err)
	}
	if _, err := f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, "again"); !common.Is(err, common.CodeState) {
		t.Fatalf("expected state error for second request, got %v", err)
	}
}

func TestDecideWithdrawalRequiresApprover(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 1, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)
	f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)
	f.applications.Confirm(f.ctx, applicantID, app.ID)
	f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, "reason")

	_, err := f.applications.DecideWithdrawal(f.ctx, common.NewUUID(), app.ID, application.WithdrawalApproved)
	if !common.Is(err, common.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestListPendingWithdrawals(t *testing.T) {
	f := newFixture(t)
	ownerID := f.newApprovedOwner(t)
	oppID := f.openOpportunity(t, ownerID, 2, opportunity.LevelBasic)
	applicantID := f.newApplicant(t, 2, "Computer Science")
	app, _ := f.applications.Submit(f.ctx, applicantID, oppID)
	f.applications.Review(f.ctx, ownerID, app.ID, application.StatusApproved)
	f.applications.Confirm(f.ctx, applicantID, app.ID)
	f.applications.RequestWithdrawal(f.ctx, applicantID, app.ID, "reason")

	pending, err := f.applications.ListPendingWithdrawals(f.ctx)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(pending) != 1 || pending[0].ID != app.ID {
		t.Fatalf("expected the one pending request, got %d", len(pending))
	}

	f.applications.DecideWithdrawal(f.ctx, f.approverID, app.ID, application.WithdrawalRejected)
	pending, _ = f.applications.ListPendingWithdrawals(f.ctx)
	if len(pending) != 0 {
		t.Fatalf("expected empty queue after decision, got %d", len(pending))
	}
}
