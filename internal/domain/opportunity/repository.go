package opportunity

import (
	"context"

	"placementd/internal/common"
)

type Repository interface {
	Create(ctx context.Context, opp Opportunity) (*Opportunity, error)
	// Update replaces a whole record. Callers use it only for pending-phase
	// edits and approval decisions; once an opportunity is live, the slot
	// counter and the visibility flag change only through the dedicated
	// operations below, so a whole-record write cannot clobber them.
	Update(ctx context.Context, opp Opportunity) (*Opportunity, error)
	GetByID(ctx context.Context, id common.UUID) (*Opportunity, error)
	Delete(ctx context.Context, id common.UUID) error
	List(ctx context.Context) ([]Opportunity, error)
	ListByOwner(ctx context.Context, ownerID common.UUID) ([]Opportunity, error)
	ListByStatus(ctx context.Context, status Status) ([]Opportunity, error)
	// ReserveSlot and FreeSlot apply slot arithmetic atomically with respect
	// to every other call touching the same opportunity.
	ReserveSlot(ctx context.Context, id common.UUID) (*Opportunity, error)
	FreeSlot(ctx context.Context, id common.UUID) (*Opportunity, error)
	// SetVisible flips only the visibility flag, atomically with the slot
	// operations.
	SetVisible(ctx context.Context, id common.UUID, visible bool) (*Opportunity, error)
}
