package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"placementd/internal/common"
	"placementd/internal/domain/actor"
	"placementd/internal/domain/application"
	"placementd/internal/domain/opportunity"
)

// One line per entity, pipe-separated fields. Lines starting with # and blank
// lines are skipped, matching the files the engine historically consumed.
//
//	applicant|<id>|<name>|<credential>|<year>|<major>
//	owner|<id>|<name>|<credential>|<company>|<approved>
//	approver|<id>|<name>|<credential>|<department>
//	opportunity: id|owner|title|company|description|level|majors|open|close|total|filled|status|visible
//	application: id|applicant|opportunity|status|created|updated[|wd_status|wd_reason|wd_requested|wd_decided_by]

const dateLayout = "2006-01-02"

const noValue = "-"

type ActorSet struct {
	Applicants []actor.Applicant
	Owners     []actor.Owner
	Approvers  []actor.Approver
}

func ParseActors(r io.Reader) (*ActorSet, error) {
	set := &ActorSet{}
	err := scanRecords(r, func(line int, fields []string) error {
		role, err := actor.ParseRole(fields[0])
		if err != nil {
			return lineError(line, err)
		}
		switch role {
		case actor.RoleApplicant:
			if len(fields) != 6 {
				return recordError(line, "applicant record needs 6 fields")
			}
			id, err := common.ParseUUID(fields[1])
			if err != nil {
				return lineError(line, err)
			}
			year, err := strconv.Atoi(fields[4])
			if err != nil {
				return recordError(line, "invalid year")
			}
			set.Applicants = append(set.Applicants, actor.Applicant{
				Actor: actor.Actor{ID: id, Name: fields[2], Role: role, Credential: fields[3]},
				Year:  year,
				Major: fields[5],
			})
		case actor.RoleOwner:
			if len(fields) != 6 {
				return recordError(line, "owner record needs 6 fields")
			}
			id, err := common.ParseUUID(fields[1])
			if err != nil {
				return lineError(line, err)
			}
			approved, err := strconv.ParseBool(fields[5])
			if err != nil {
				return recordError(line, "invalid approved flag")
			}
			set.Owners = append(set.Owners, actor.Owner{
				Actor:    actor.Actor{ID: id, Name: fields[2], Role: role, Credential: fields[3]},
				Company:  fields[4],
				Approved: approved,
			})
		case actor.RoleApprover:
			if len(fields) != 5 {
				return recordError(line, "approver record needs 5 fields")
			}
			id, err := common.ParseUUID(fields[1])
			if err != nil {
				return lineError(line, err)
			}
			set.Approvers = append(set.Approvers, actor.Approver{
				Actor:      actor.Actor{ID: id, Name: fields[2], Role: role, Credential: fields[3]},
				Department: fields[4],
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

func WriteActors(w io.Writer, set ActorSet) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# actors: role|id|name|credential|role fields")
	for _, a := range set.Applicants {
		fmt.Fprintf(bw, "applicant|%s|%s|%s|%d|%s\n", a.ID, sanitize(a.Name), sanitize(a.Credential), a.Year, sanitize(a.Major))
	}
	for _, o := range set.Owners {
		fmt.Fprintf(bw, "owner|%s|%s|%s|%s|%t\n", o.ID, sanitize(o.Name), sanitize(o.Credential), sanitize(o.Company), o.Approved)
	}
	for _, a := range set.Approvers {
		fmt.Fprintf(bw, "approver|%s|%s|%s|%s\n", a.ID, sanitize(a.Name), sanitize(a.Credential), sanitize(a.Department))
	}
	return bw.Flush()
}

func ParseOpportunities(r io.Reader) ([]opportunity.Opportunity, error) {
	var out []opportunity.Opportunity
	err := scanRecords(r, func(line int, fields []string) error {
		if len(fields) != 13 {
			return recordError(line, "opportunity record needs 13 fields")
		}
		id, err := common.ParseUUID(fields[0])
		if err != nil {
			return lineError(line, err)
		}
		ownerID, err := common.ParseUUID(fields[1])
		if err != nil {
			return lineError(line, err)
		}
		level, err := opportunity.ParseLevel(fields[5])
		if err != nil {
			return lineError(line, err)
		}
		var majors []string
		if fields[6] != "" && fields[6] != noValue {
			majors = strings.Split(fields[6], ",")
		}
		openDate, err := time.Parse(dateLayout, fields[7])
		if err != nil {
			return recordError(line, "invalid open date")
		}
		closeDate, err := time.Parse(dateLayout, fields[8])
		if err != nil {
			return recordError(line, "invalid close date")
		}
		total, err := strconv.Atoi(fields[9])
		if err != nil {
			return recordError(line, "invalid total slots")
		}
		filled, err := strconv.Atoi(fields[10])
		if err != nil {
			return recordError(line, "invalid filled slots")
		}
		status, err := opportunity.ParseStatus(fields[11])
		if err != nil {
			return lineError(line, err)
		}
		visible, err := strconv.ParseBool(fields[12])
		if err != nil {
			return recordError(line, "invalid visible flag")
		}
		out = append(out, opportunity.Opportunity{
			ID:              id,
			OwnerID:         ownerID,
			Title:           fields[2],
			Company:         fields[3],
			Description:     fields[4],
			Level:           level,
			PreferredMajors: majorsFromSlice(majors),
			OpenDate:        openDate,
			CloseDate:       closeDate,
			TotalSlots:      total,
			FilledSlots:     filled,
			Status:          status,
			Visible:         visible,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func WriteOpportunities(w io.Writer, items []opportunity.Opportunity) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# opportunities: id|owner|title|company|description|level|majors|open|close|total|filled|status|visible")
	for _, item := range items {
		majors := noValue
		if item.PreferredMajors != nil && item.PreferredMajors.Cardinality() > 0 {
			sorted := item.PreferredMajors.ToSlice()
			sort.Strings(sorted)
			majors = strings.Join(sorted, ",")
		}
		fmt.Fprintf(bw, "%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%d|%s|%t\n",
			item.ID, item.OwnerID, sanitize(item.Title), sanitize(item.Company), sanitize(item.Description),
			item.Level, majors, item.OpenDate.Format(dateLayout), item.CloseDate.Format(dateLayout),
			item.TotalSlots, item.FilledSlots, item.Status, item.Visible)
	}
	return bw.Flush()
}

func ParseApplications(r io.Reader) ([]application.Application, error) {
	var out []application.Application
	err := scanRecords(r, func(line int, fields []string) error {
		if len(fields) != 6 && len(fields) != 10 {
			return recordError(line, "application record needs 6 or 10 fields")
		}
		id, err := common.ParseUUID(fields[0])
		if err != nil {
			return lineError(line, err)
		}
		applicantID, err := common.ParseUUID(fields[1])
		if err != nil {
			return lineError(line, err)
		}
		opportunityID, err := common.ParseUUID(fields[2])
		if err != nil {
			return lineError(line, err)
		}
		status, err := application.ParseStatus(fields[3])
		if err != nil {
			return lineError(line, err)
		}
		createdAt, err := time.Parse(time.RFC3339, fields[4])
		if err != nil {
			return recordError(line, "invalid created timestamp")
		}
		updatedAt, err := time.Parse(time.RFC3339, fields[5])
		if err != nil {
			return recordError(line, "invalid updated timestamp")
		}
		app := application.Application{
			ID:            id,
			ApplicantID:   applicantID,
			OpportunityID: opportunityID,
			Status:        status,
			CreatedAt:     createdAt,
			UpdatedAt:     updatedAt,
		}
		if len(fields) == 10 {
			wdStatus, err := application.ParseWithdrawalStatus(fields[6])
			if err != nil {
				return lineError(line, err)
			}
			requestedAt, err := time.Parse(time.RFC3339, fields[8])
			if err != nil {
				return recordError(line, "invalid withdrawal timestamp")
			}
			decidedBy := common.NilUUID
			if fields[9] != noValue {
				decidedBy, err = common.ParseUUID(fields[9])
				if err != nil {
					return lineError(line, err)
				}
			}
			app.Withdrawal = &application.WithdrawalRequest{
				Status:      wdStatus,
				Reason:      fields[7],
				RequestedAt: requestedAt,
				DecidedBy:   decidedBy,
			}
		}
		out = append(out, app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func WriteApplications(w io.Writer, items []application.Application) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# applications: id|applicant|opportunity|status|created|updated[|wd_status|wd_reason|wd_requested|wd_decided_by]")
	for _, item := range items {
		fmt.Fprintf(bw, "%s|%s|%s|%s|%s|%s",
			item.ID, item.ApplicantID, item.OpportunityID, item.Status,
			item.CreatedAt.Format(time.RFC3339), item.UpdatedAt.Format(time.RFC3339))
		if item.Withdrawal != nil {
			decidedBy := noValue
			if item.Withdrawal.DecidedBy != common.NilUUID {
				decidedBy = item.Withdrawal.DecidedBy.String()
			}
			fmt.Fprintf(bw, "|%s|%s|%s|%s",
				item.Withdrawal.Status, sanitize(item.Withdrawal.Reason),
				item.Withdrawal.RequestedAt.Format(time.RFC3339), decidedBy)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func scanRecords(r io.Reader, handle func(line int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := handle(line, strings.Split(text, "|")); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func majorsFromSlice(majors []string) mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, major := range majors {
		trimmed := strings.TrimSpace(major)
		if trimmed != "" {
			set.Add(trimmed)
		}
	}
	return set
}

// sanitize keeps free text from breaking the record framing.
func sanitize(value string) string {
	value = strings.ReplaceAll(value, "|", "/")
	return strings.ReplaceAll(value, "\n", " ")
}

func recordError(line int, message string) error {
	return common.NewError(common.CodeValidation, fmt.Sprintf("line %d: %s", line, message), nil)
}

func lineError(line int, err error) error {
	return common.NewError(common.CodeValidation, fmt.Sprintf("line %d", line), err)
}
