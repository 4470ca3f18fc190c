package memory

import (
	"context"
	"sync"

	"placementd/internal/common"
	"placementd/internal/domain/actor"
)

// Directory keeps every actor in id-keyed maps. All reads hand back copies so
// callers never observe a mutation in flight.
type Directory struct {
	mu         sync.Mutex
	applicants map[common.UUID]actor.Applicant
	owners     map[common.UUID]actor.Owner
	approvers  map[common.UUID]actor.Approver
}

func NewDirectory() *Directory {
	return &Directory{
		applicants: make(map[common.UUID]actor.Applicant),
		owners:     make(map[common.UUID]actor.Owner),
		approvers:  make(map[common.UUID]actor.Approver),
	}
}

func (d *Directory) CreateApplicant(ctx context.Context, a actor.Applicant) (*actor.Applicant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.ID == common.NilUUID {
		a.ID = common.NewUUID()
	} else if _, ok := d.applicants[a.ID]; ok {
		return nil, common.NewError(common.CodeConflict, "applicant already exists", nil)
	}
	a.Role = actor.RoleApplicant
	d.applicants[a.ID] = a
	copy := a
	return &copy, nil
}

func (d *Directory) CreateOwner(ctx context.Context, o actor.Owner) (*actor.Owner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.ID == common.NilUUID {
		o.ID = common.NewUUID()
	} else if _, ok := d.owners[o.ID]; ok {
		return nil, common.NewError(common.CodeConflict, "owner already exists", nil)
	}
	o.Role = actor.RoleOwner
	d.owners[o.ID] = o
	copy := o
	return &copy, nil
}

func (d *Directory) CreateApprover(ctx context.Context, a actor.Approver) (*actor.Approver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.ID == common.NilUUID {
		a.ID = common.NewUUID()
	} else if _, ok := d.approvers[a.ID]; ok {
		return nil, common.NewError(common.CodeConflict, "approver already exists", nil)
	}
	a.Role = actor.RoleApprover
	d.approvers[a.ID] = a
	copy := a
	return &copy, nil
}

func (d *Directory) GetApplicant(ctx context.Context, id common.UUID) (*actor.Applicant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.applicants[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "applicant not found", nil)
	}
	copy := a
	return &copy, nil
}

func (d *Directory) GetOwner(ctx context.Context, id common.UUID) (*actor.Owner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.owners[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "owner not found", nil)
	}
	copy := o
	return &copy, nil
}

func (d *Directory) GetApprover(ctx context.Context, id common.UUID) (*actor.Approver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.approvers[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "approver not found", nil)
	}
	copy := a
	return &copy, nil
}

func (d *Directory) UpdateOwner(ctx context.Context, o actor.Owner) (*actor.Owner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.owners[o.ID]; !ok {
		return nil, common.NewError(common.CodeNotFound, "owner not found", nil)
	}
	o.Role = actor.RoleOwner
	d.owners[o.ID] = o
	copy := o
	return &copy, nil
}

func (d *Directory) ListApplicants(ctx context.Context) ([]actor.Applicant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]actor.Applicant, 0, len(d.applicants))
	for _, a := range d.applicants {
		out = append(out, a)
	}
	return out, nil
}

func (d *Directory) ListOwners(ctx context.Context) ([]actor.Owner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]actor.Owner, 0, len(d.owners))
	for _, o := range d.owners {
		out = append(out, o)
	}
	return out, nil
}

func (d *Directory) ListApprovers(ctx context.Context) ([]actor.Approver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]actor.Approver, 0, len(d.approvers))
	for _, a := range d.approvers {
		out = append(out, a)
	}
	return out, nil
}
