package actor

import (
	"strings"

	"placementd/internal/common"
)

type Role string

const (
	RoleApplicant Role = "applicant"
	RoleOwner     Role = "owner"
	RoleApprover  Role = "approver"
)

func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleApplicant:
		return RoleApplicant, nil
	case RoleOwner:
		return RoleOwner, nil
	case RoleApprover:
		return RoleApprover, nil
	default:
		return "", common.NewValidationError("invalid role", map[string]string{"role": "role must be applicant, owner, or approver"})
	}
}

// Actor is the minimal identity record shared by every role. Credential is an
// opaque value carried through snapshots; the engine never authenticates.
type Actor struct {
	ID         common.UUID
	Name       string
	Role       Role
	Credential string
}

// Capability checks. Orchestrator code gates operations on these rather than
// matching on concrete role types.
func (a Actor) CanApply() bool                { return a.Role == RoleApplicant }
func (a Actor) CanReviewApplications() bool   { return a.Role == RoleOwner }
func (a Actor) CanApproveOpportunities() bool { return a.Role == RoleApprover }
func (a Actor) CanDecideWithdrawals() bool    { return a.Role == RoleApprover }

type Applicant struct {
	Actor
	Year  int
	Major string
}

type Owner struct {
	Actor
	Company  string
	Approved bool
}

type Approver struct {
	Actor
	Department string
}
