package opportunity

import (
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"placementd/internal/common"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFilled   Status = "filled"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	case StatusFilled:
		return StatusFilled, nil
	default:
		return "", common.NewValidationError("invalid opportunity status", map[string]string{"status": "status must be pending, approved, rejected, or filled"})
	}
}

type Level string

const (
	LevelBasic        Level = "basic"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

func ParseLevel(value string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(value))) {
	case LevelBasic:
		return LevelBasic, nil
	case LevelIntermediate:
		return LevelIntermediate, nil
	case LevelAdvanced:
		return LevelAdvanced, nil
	default:
		return "", common.NewValidationError("invalid level", map[string]string{"level": "level must be basic, intermediate, or advanced"})
	}
}

// Rank orders levels: basic < intermediate < advanced.
func (l Level) Rank() int {
	switch l {
	case LevelBasic:
		return 0
	case LevelIntermediate:
		return 1
	case LevelAdvanced:
		return 2
	default:
		return -1
	}
}

type Opportunity struct {
	ID          common.UUID
	OwnerID     common.UUID
	Title       string
	Company     string
	Description string
	Level       Level
	// PreferredMajors empty or nil means open to all majors.
	PreferredMajors mapset.Set[string]
	OpenDate        time.Time
	CloseDate       time.Time
	TotalSlots      int
	FilledSlots     int
	Status          Status
	Visible         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o *Opportunity) Remaining() int {
	if o.FilledSlots >= o.TotalSlots {
		return 0
	}
	return o.TotalSlots - o.FilledSlots
}

func (o *Opportunity) IsFilled() bool {
	return o.FilledSlots >= o.TotalSlots
}

// ReserveSlot takes one slot and moves the opportunity to filled when the
// last slot goes. The capacity error here is the only gate against oversell.
func (o *Opportunity) ReserveSlot() error {
	if o.FilledSlots >= o.TotalSlots {
		return common.NewError(common.CodeCapacity, "no slots remaining", nil)
	}
	o.FilledSlots++
	if o.FilledSlots == o.TotalSlots {
		o.Status = StatusFilled
	}
	return nil
}

// FreeSlot releases one slot. Filled reverts to approved; this is the only
// way that transition happens.
func (o *Opportunity) FreeSlot() error {
	if o.FilledSlots <= 0 {
		return common.NewError(common.CodeState, "no slots reserved", nil)
	}
	o.FilledSlots--
	if o.Status == StatusFilled {
		o.Status = StatusApproved
	}
	return nil
}

// SetVisible turns visibility on only inside the approved/filled sub-cycle;
// filled is capacity exhaustion, not a rejection, so a filled opportunity may
// stay listed. Hiding is always legal.
func (o *Opportunity) SetVisible(visible bool) error {
	if visible && o.Status != StatusApproved && o.Status != StatusFilled {
		return common.NewError(common.CodeState, "opportunity must be approved before it can be made visible", nil)
	}
	o.Visible = visible
	return nil
}

// OpenOn reports whether today falls inside the [open, close] window,
// inclusive on both ends.
func (o *Opportunity) OpenOn(today time.Time) bool {
	if o.OpenDate.IsZero() || o.CloseDate.IsZero() {
		return false
	}
	day := today.Truncate(24 * time.Hour)
	open := o.OpenDate.Truncate(24 * time.Hour)
	close := o.CloseDate.Truncate(24 * time.Hour)
	return !day.Before(open) && !day.After(close)
}

// MatchesMajor reports whether the applicant's major passes the preferred
// majors filter. An empty set is open to all.
func (o *Opportunity) MatchesMajor(major string) bool {
	if o.PreferredMajors == nil || o.PreferredMajors.Cardinality() == 0 {
		return true
	}
	return o.PreferredMajors.Contains(major)
}

func (o *Opportunity) Clone() Opportunity {
	clone := *o
	if o.PreferredMajors != nil {
		clone.PreferredMajors = o.PreferredMajors.Clone()
	}
	return clone
}
