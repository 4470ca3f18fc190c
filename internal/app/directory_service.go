package app

import (
	"context"
	"strings"

	"placementd/internal/common"
	"placementd/internal/domain/actor"
	"placementd/internal/observability"
)

// DirectoryService registers actors and runs the owner approval gate. It does
// no authentication; credentials are opaque values carried for snapshots.
type DirectoryService struct {
	directory actor.Directory
	audit     observability.Recorder
}

func NewDirectoryService(directory actor.Directory, audit observability.Recorder) *DirectoryService {
	if audit == nil {
		audit = observability.NopRecorder{}
	}
	return &DirectoryService{directory: directory, audit: audit}
}

func (s *DirectoryService) RegisterApplicant(ctx context.Context, name, major string, year int) (*actor.Applicant, error) {
	fields := map[string]string{}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "name is required"
	}
	if strings.TrimSpace(major) == "" {
		fields["major"] = "major is required"
	}
	if year < 1 {
		fields["year"] = "year must be at least 1"
	}
	if len(fields) > 0 {
		return nil, common.NewValidationError("invalid applicant", fields)
	}
	created, err := s.directory.CreateApplicant(ctx, actor.Applicant{
		Actor: actor.Actor{Name: strings.TrimSpace(name), Role: actor.RoleApplicant},
		Year:  year,
		Major: strings.TrimSpace(major),
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "applicant.registered", ActorID: &created.ID, Fields: map[string]string{"name": created.Name}})
	return created, nil
}

// RegisterOwner creates an owner account in the unapproved state. An approver
// has to approve it before the owner may post opportunities.
func (s *DirectoryService) RegisterOwner(ctx context.Context, name, company string) (*actor.Owner, error) {
	fields := map[string]string{}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "name is required"
	}
	if strings.TrimSpace(company) == "" {
		fields["company"] = "company is required"
	}
	if len(fields) > 0 {
		return nil, common.NewValidationError("invalid owner", fields)
	}
	created, err := s.directory.CreateOwner(ctx, actor.Owner{
		Actor:    actor.Actor{Name: strings.TrimSpace(name), Role: actor.RoleOwner},
		Company:  strings.TrimSpace(company),
		Approved: false,
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "owner.registered", ActorID: &created.ID, Fields: map[string]string{"name": created.Name, "company": created.Company}})
	return created, nil
}

func (s *DirectoryService) RegisterApprover(ctx context.Context, name, department string) (*actor.Approver, error) {
	if strings.TrimSpace(name) == "" {
		return nil, common.NewValidationError("invalid approver", map[string]string{"name": "name is required"})
	}
	created, err := s.directory.CreateApprover(ctx, actor.Approver{
		Actor:      actor.Actor{Name: strings.TrimSpace(name), Role: actor.RoleApprover},
		Department: strings.TrimSpace(department),
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "approver.registered", ActorID: &created.ID, Fields: map[string]string{"name": created.Name}})
	return created, nil
}

// ApproveOwner grants an owner account the right to post opportunities.
func (s *DirectoryService) ApproveOwner(ctx context.Context, approverID, ownerID common.UUID) (*actor.Owner, error) {
	if _, err := s.directory.GetApprover(ctx, approverID); err != nil {
		if common.Is(err, common.CodeNotFound) {
			return nil, common.NewError(common.CodeForbidden, "approver authority required", nil)
		}
		return nil, err
	}
	owner, err := s.directory.GetOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.Approved {
		return nil, common.NewError(common.CodeState, "owner is already approved", nil)
	}
	updated := *owner
	updated.Approved = true
	result, err := s.directory.UpdateOwner(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, observability.Event{Name: "owner.approved", ActorID: &approverID, Fields: map[string]string{"owner_id": ownerID.String()}})
	return result, nil
}

func (s *DirectoryService) GetApplicant(ctx context.Context, id common.UUID) (*actor.Applicant, error) {
	return s.directory.GetApplicant(ctx, id)
}

func (s *DirectoryService) GetOwner(ctx context.Context, id common.UUID) (*actor.Owner, error) {
	return s.directory.GetOwner(ctx, id)
}

func (s *DirectoryService) GetApprover(ctx context.Context, id common.UUID) (*actor.Approver, error) {
	return s.directory.GetApprover(ctx, id)
}

// ListPendingOwners returns owner accounts still waiting for approval.
func (s *DirectoryService) ListPendingOwners(ctx context.Context) ([]actor.Owner, error) {
	owners, err := s.directory.ListOwners(ctx)
	if err != nil {
		return nil, err
	}
	var out []actor.Owner
	for _, owner := range owners {
		if !owner.Approved {
			out = append(out, owner)
		}
	}
	return out, nil
}
