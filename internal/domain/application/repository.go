package application

import (
	"context"
	"time"

	"placementd/internal/common"
)

type Repository interface {
	Create(ctx context.Context, app Application) (*Application, error)
	Update(ctx context.Context, app Application) (*Application, error)
	GetByID(ctx context.Context, id common.UUID) (*Application, error)
	List(ctx context.Context) ([]Application, error)
	ListByApplicant(ctx context.Context, applicantID common.UUID) ([]Application, error)
	ListByOpportunity(ctx context.Context, opportunityID common.UUID) ([]Application, error)
	// FindLiveByPair returns the non-withdrawn application for the
	// (applicant, opportunity) pair, or a not_found error.
	FindLiveByPair(ctx context.Context, applicantID, opportunityID common.UUID) (*Application, error)
	// WithdrawSiblings forces every submitted or approved application of the
	// applicant other than exceptID to withdrawn, atomically with respect to
	// the applicant's application set. It returns the withdrawn count.
	WithdrawSiblings(ctx context.Context, applicantID, exceptID common.UUID, now time.Time) (int, error)
}
