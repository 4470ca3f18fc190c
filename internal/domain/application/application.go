package application

import (
	"strings"
	"time"

	"placementd/internal/common"
)

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusConfirmed Status = "confirmed"
	StatusWithdrawn Status = "withdrawn"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusSubmitted:
		return StatusSubmitted, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	case StatusWithdrawn:
		return StatusWithdrawn, nil
	default:
		return "", common.NewValidationError("invalid application status", map[string]string{"status": "status must be submitted, approved, rejected, confirmed, or withdrawn"})
	}
}

// Active statuses count against the applicant's application limit and are the
// ones swept by the confirmation cascade.
func (s Status) Active() bool {
	return s == StatusSubmitted || s == StatusApproved
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusWithdrawn
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

func ParseWithdrawalStatus(value string) (WithdrawalStatus, error) {
	switch WithdrawalStatus(strings.ToLower(strings.TrimSpace(value))) {
	case WithdrawalPending:
		return WithdrawalPending, nil
	case WithdrawalApproved:
		return WithdrawalApproved, nil
	case WithdrawalRejected:
		return WithdrawalRejected, nil
	default:
		return "", common.NewValidationError("invalid withdrawal status", map[string]string{"status": "status must be pending, approved, or rejected"})
	}
}

// WithdrawalRequest gates the confirmed-to-withdrawn transition. DecidedBy is
// zero until an approver decides.
type WithdrawalRequest struct {
	Reason      string
	Status      WithdrawalStatus
	RequestedAt time.Time
	DecidedBy   common.UUID
}

type Application struct {
	ID            common.UUID
	ApplicantID   common.UUID
	OpportunityID common.UUID
	Status        Status
	Withdrawal    *WithdrawalRequest
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a *Application) Clone() Application {
	clone := *a
	if a.Withdrawal != nil {
		wd := *a.Withdrawal
		clone.Withdrawal = &wd
	}
	return clone
}
