package memory

import (
	"context"
	"sync"
	"time"

	"placementd/internal/common"
	"placementd/internal/domain/application"
)

// ApplicationRepository is the system of record for applications. The mutex
// serializes per-applicant mutations, which makes the confirmation cascade a
// single critical section.
type ApplicationRepository struct {
	mu    sync.Mutex
	items map[common.UUID]application.Application
	now   func() time.Time
}

func NewApplicationRepository(now func() time.Time) *ApplicationRepository {
	if now == nil {
		now = time.Now
	}
	return &ApplicationRepository{items: make(map[common.UUID]application.Application), now: now}
}

func (r *ApplicationRepository) Create(ctx context.Context, app application.Application) (*application.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app.ID == common.NilUUID {
		app.ID = common.NewUUID()
	} else if _, ok := r.items[app.ID]; ok {
		return nil, common.NewError(common.CodeConflict, "application already exists", nil)
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = r.now()
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}
	stored := app.Clone()
	r.items[app.ID] = stored
	result := stored.Clone()
	return &result, nil
}

func (r *ApplicationRepository) Update(ctx context.Context, app application.Application) (*application.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[app.ID]; !ok {
		return nil, common.NewError(common.CodeNotFound, "application not found", nil)
	}
	app.UpdatedAt = r.now()
	stored := app.Clone()
	r.items[app.ID] = stored
	result := stored.Clone()
	return &result, nil
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id common.UUID) (*application.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "application not found", nil)
	}
	result := item.Clone()
	return &result, nil
}

func (r *ApplicationRepository) List(ctx context.Context) ([]application.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]application.Application, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.Clone())
	}
	return out, nil
}

func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID common.UUID) ([]application.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []application.Application
	for _, item := range r.items {
		if item.ApplicantID == applicantID {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

func (r *ApplicationRepository) ListByOpportunity(ctx context.Context, opportunityID common.UUID) ([]application.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []application.Application
	for _, item := range r.items {
		if item.OpportunityID == opportunityID {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

func (r *ApplicationRepository) FindLiveByPair(ctx context.Context, applicantID, opportunityID common.UUID) (*application.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.ApplicantID == applicantID && item.OpportunityID == opportunityID && item.Status != application.StatusWithdrawn {
			result := item.Clone()
			return &result, nil
		}
	}
	return nil, common.NewError(common.CodeNotFound, "application not found", nil)
}

func (r *ApplicationRepository) WithdrawSiblings(ctx context.Context, applicantID, exceptID common.UUID, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	withdrawn := 0
	for id, item := range r.items {
		if id == exceptID || item.ApplicantID != applicantID {
			continue
		}
		if item.Status.Active() {
			item.Status = application.StatusWithdrawn
			item.UpdatedAt = now
			r.items[id] = item
			withdrawn++
		}
	}
	return withdrawn, nil
}
