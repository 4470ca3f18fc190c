package memory

import (
	"context"
	"sync"
	"time"

	"placementd/internal/common"
	"placementd/internal/domain/opportunity"
)

// OpportunityRepository is the system of record for opportunities. The mutex
// serializes slot arithmetic so the filled counter stays linearizable; every
// read returns a clone.
type OpportunityRepository struct {
	mu    sync.Mutex
	items map[common.UUID]opportunity.Opportunity
	now   func() time.Time
}

func NewOpportunityRepository(now func() time.Time) *OpportunityRepository {
	if now == nil {
		now = time.Now
	}
	return &OpportunityRepository{items: make(map[common.UUID]opportunity.Opportunity), now: now}
}

func (r *OpportunityRepository) Create(ctx context.Context, opp opportunity.Opportunity) (*opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opp.ID == common.NilUUID {
		opp.ID = common.NewUUID()
	} else if _, ok := r.items[opp.ID]; ok {
		return nil, common.NewError(common.CodeConflict, "opportunity already exists", nil)
	}
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = r.now()
	}
	if opp.UpdatedAt.IsZero() {
		opp.UpdatedAt = opp.CreatedAt
	}
	stored := opp.Clone()
	r.items[opp.ID] = stored
	result := stored.Clone()
	return &result, nil
}

func (r *OpportunityRepository) Update(ctx context.Context, opp opportunity.Opportunity) (*opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[opp.ID]; !ok {
		return nil, common.NewError(common.CodeNotFound, "opportunity not found", nil)
	}
	opp.UpdatedAt = r.now()
	stored := opp.Clone()
	r.items[opp.ID] = stored
	result := stored.Clone()
	return &result, nil
}

func (r *OpportunityRepository) GetByID(ctx context.Context, id common.UUID) (*opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "opportunity not found", nil)
	}
	result := item.Clone()
	return &result, nil
}

func (r *OpportunityRepository) Delete(ctx context.Context, id common.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return common.NewError(common.CodeNotFound, "opportunity not found", nil)
	}
	delete(r.items, id)
	return nil
}

func (r *OpportunityRepository) List(ctx context.Context) ([]opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]opportunity.Opportunity, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.Clone())
	}
	return out, nil
}

func (r *OpportunityRepository) ListByOwner(ctx context.Context, ownerID common.UUID) ([]opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []opportunity.Opportunity
	for _, item := range r.items {
		if item.OwnerID == ownerID {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

func (r *OpportunityRepository) ListByStatus(ctx context.Context, status opportunity.Status) ([]opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []opportunity.Opportunity
	for _, item := range r.items {
		if item.Status == status {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

func (r *OpportunityRepository) ReserveSlot(ctx context.Context, id common.UUID) (*opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "opportunity not found", nil)
	}
	if err := item.ReserveSlot(); err != nil {
		return nil, err
	}
	item.UpdatedAt = r.now()
	r.items[id] = item
	result := item.Clone()
	return &result, nil
}

func (r *OpportunityRepository) SetVisible(ctx context.Context, id common.UUID, visible bool) (*opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "opportunity not found", nil)
	}
	if err := item.SetVisible(visible); err != nil {
		return nil, err
	}
	item.UpdatedAt = r.now()
	r.items[id] = item
	result := item.Clone()
	return &result, nil
}

func (r *OpportunityRepository) FreeSlot(ctx context.Context, id common.UUID) (*opportunity.Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "opportunity not found", nil)
	}
	if err := item.FreeSlot(); err != nil {
		return nil, err
	}
	item.UpdatedAt = r.now()
	r.items[id] = item
	result := item.Clone()
	return &result, nil
}
