package actor

import (
	"context"

	"placementd/internal/common"
)

// Directory hands out identities by id. Authentication happens outside the
// engine; every actor arriving here is already authenticated.
type Directory interface {
	CreateApplicant(ctx context.Context, a Applicant) (*Applicant, error)
	CreateOwner(ctx context.Context, o Owner) (*Owner, error)
	CreateApprover(ctx context.Context, a Approver) (*Approver, error)
	GetApplicant(ctx context.Context, id common.UUID) (*Applicant, error)
	GetOwner(ctx context.Context, id common.UUID) (*Owner, error)
	GetApprover(ctx context.Context, id common.UUID) (*Approver, error)
	UpdateOwner(ctx context.Context, o Owner) (*Owner, error)
	ListApplicants(ctx context.Context) ([]Applicant, error)
	ListOwners(ctx context.Context) ([]Owner, error)
	ListApprovers(ctx context.Context) ([]Approver, error)
}
