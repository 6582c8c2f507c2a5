package detector

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gl-audit-service/internal/models"

	"github.com/shopspring/decimal"
)

// DuplicateType identifies one of the six progressively stricter
// matching criteria. The types are independent evaluations over the
// full batch, not mutually exclusive tiers: a posting may belong to
// groups of several types at once. The specificity of the key, not
// exclusivity of membership, is what increases risk.
type DuplicateType int

const (
	Type1 DuplicateType = iota + 1
	Type2
	Type3
	Type4
	Type5
	Type6
)

// AllDuplicateTypes lists the types in evaluation order
var AllDuplicateTypes = []DuplicateType{Type1, Type2, Type3, Type4, Type5, Type6}

// String returns the display name of the duplicate type
func (dt DuplicateType) String() string {
	if dt < Type1 || dt > Type6 {
		return "Unknown"
	}
	return fmt.Sprintf("Type %d Duplicate", int(dt))
}

// Criteria returns the human-readable matching criteria for the type
func (dt DuplicateType) Criteria() string {
	switch dt {
	case Type1:
		return "Account Number + Amount"
	case Type2:
		return "Account Number + Source + Amount"
	case Type3:
		return "Account Number + User + Amount"
	case Type4:
		return "Account Number + Posted Date + Amount"
	case Type5:
		return "Account Number + Effective Date + Amount"
	case Type6:
		return "Account Number + Effective Date + Posted Date + User + Source + Amount"
	default:
		return "Unknown"
	}
}

// BaseWeight returns the fixed base risk weight carried by the type.
// The weights are strictly increasing with key specificity.
func (dt DuplicateType) BaseWeight() int {
	switch dt {
	case Type1:
		return 10
	case Type2:
		return 12
	case Type3:
		return 15
	case Type4:
		return 18
	case Type5:
		return 20
	case Type6:
		return 25
	default:
		return 0
	}
}

// groupKey builds the exact-match grouping key for a posting under the
// given type, or "" when the posting lacks a field the key requires.
// Amounts are compared on the normalized decimal value and dates on the
// date-only form. A missing date is never a matching value: two
// postings that merely both lack a document date must not pair up on
// the date-keyed types.
func (dt DuplicateType) groupKey(p *models.GLPosting) string {
	account := p.AccountOrMissing()
	amount := p.Amount.String()

	switch dt {
	case Type1:
		return strings.Join([]string{account, amount}, "|")
	case Type2:
		return strings.Join([]string{account, p.DocumentType, amount}, "|")
	case Type3:
		return strings.Join([]string{account, p.UserName, amount}, "|")
	case Type4:
		if p.PostingDate.IsZero() {
			return ""
		}
		return strings.Join([]string{account, p.PostingDateKey(), amount}, "|")
	case Type5:
		if p.DocumentDate.IsZero() {
			return ""
		}
		return strings.Join([]string{account, p.DocumentDateKey(), amount}, "|")
	case Type6:
		if p.PostingDate.IsZero() || p.DocumentDate.IsZero() {
			return ""
		}
		return strings.Join([]string{account, p.DocumentDateKey(), p.PostingDateKey(),
			p.UserName, p.DocumentType, amount}, "|")
	default:
		return ""
	}
}

// DateRange describes the posting-date span covered by a group
type DateRange struct {
	Min time.Time `json:"min_date"`
	Max time.Time `json:"max_date"`
}

// DuplicateGroup is a set of postings sharing one grouping key at or
// above the configured minimum count
type DuplicateGroup struct {
	Type      DuplicateType `json:"type"`
	Criteria  string        `json:"criteria"`
	Key       string        `json:"key"`
	GLAccount string        `json:"gl_account"`

	// Amount is the shared per-member amount of the group
	Amount decimal.Decimal `json:"amount"`

	// Members holds the matched postings in input order
	Members []*models.GLPosting `json:"members"`
	Count   int                 `json:"count"`

	// RiskScore is count x base weight, capped at 100
	RiskScore int `json:"risk_score"`

	// TotalAmount is amount x count (the source semantics, not the sum
	// of distinct member amounts)
	TotalAmount decimal.Decimal `json:"total_amount"`

	DebitCount   int             `json:"debit_count"`
	CreditCount  int             `json:"credit_count"`
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`

	UniqueUsers     int       `json:"unique_users"`
	UniqueDocuments int       `json:"unique_documents"`
	DateRange       DateRange `json:"date_range"`

	// ML enrichment, populated only after a successful training run.
	// Rule output is never overridden by these fields.
	MLConfidence float64 `json:"ml_confidence,omitempty"`
	MLRiskScore  int     `json:"ml_risk_score,omitempty"`
	MLPrediction bool    `json:"ml_prediction,omitempty"`
}

// MemberIDs returns the posting IDs of the group members in order
func (g *DuplicateGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, member := range g.Members {
		ids[i] = member.ID
	}
	return ids
}

// DuplicateReport is the classifier output for one batch
type DuplicateReport struct {
	Groups []*DuplicateGroup `json:"groups"`

	// SkippedPostings counts records excluded from matching because
	// they carry no usable amount
	SkippedPostings int `json:"skipped_postings"`
}

// GroupsOfType returns the groups matching the given type
func (r *DuplicateReport) GroupsOfType(dt DuplicateType) []*DuplicateGroup {
	var groups []*DuplicateGroup
	for _, g := range r.Groups {
		if g.Type == dt {
			groups = append(groups, g)
		}
	}
	return groups
}

// PostingIDSet returns the set union of all member IDs across groups.
// Because a posting may appear in groups of several types, the set size
// is the correct count of unique duplicate transactions.
func (r *DuplicateReport) PostingIDSet() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, g := range r.Groups {
		for _, member := range g.Members {
			ids[member.ID] = struct{}{}
		}
	}
	return ids
}

// MaxWeightByPosting returns, for each involved posting ID, the highest
// base weight among the groups it belongs to
func (r *DuplicateReport) MaxWeightByPosting() map[string]int {
	weights := make(map[string]int)
	for _, g := range r.Groups {
		w := g.Type.BaseWeight()
		for _, member := range g.Members {
			if w > weights[member.ID] {
				weights[member.ID] = w
			}
		}
	}
	return weights
}

// ClassifyDuplicates groups a posting batch under the six matching
// criteria, keeping only groups whose member count meets the configured
// threshold. Each type is evaluated independently over the full batch.
//
// The function is pure: output is deterministic for a given input
// ordering, and the input slice is not modified. Group ordering is type
// ascending, then count descending, then total amount descending, then
// key ascending for stability.
func ClassifyDuplicates(postings []*models.GLPosting, cfg *AnalysisConfig) *DuplicateReport {
	if cfg == nil {
		cfg = DefaultAnalysisConfig()
	}

	report := &DuplicateReport{}
	if len(postings) == 0 {
		return report
	}

	// Postings without a usable amount are disqualified from matching
	usable := make([]*models.GLPosting, 0, len(postings))
	for _, p := range postings {
		if p.HasValidAmount() {
			usable = append(usable, p)
		} else {
			report.SkippedPostings++
		}
	}

	for _, dt := range AllDuplicateTypes {
		// Preserve first-seen key order so members stay in input order
		buckets := make(map[string][]*models.GLPosting)
		var keyOrder []string

		for _, p := range usable {
			key := dt.groupKey(p)
			if key == "" {
				continue
			}
			if _, seen := buckets[key]; !seen {
				keyOrder = append(keyOrder, key)
			}
			buckets[key] = append(buckets[key], p)
		}

		var groups []*DuplicateGroup
		for _, key := range keyOrder {
			members := buckets[key]
			if len(members) < cfg.DuplicateThreshold {
				continue
			}
			groups = append(groups, buildGroup(dt, key, members))
		}

		sortGroups(groups)
		report.Groups = append(report.Groups, groups...)
	}

	return report
}

// buildGroup assembles a DuplicateGroup with all derived statistics
func buildGroup(dt DuplicateType, key string, members []*models.GLPosting) *DuplicateGroup {
	first := members[0]
	count := len(members)

	group := &DuplicateGroup{
		Type:         dt,
		Criteria:     dt.Criteria(),
		Key:          key,
		GLAccount:    first.AccountOrMissing(),
		Amount:       first.Amount,
		Members:      members,
		Count:        count,
		RiskScore:    cappedRisk(count * dt.BaseWeight()),
		TotalAmount:  first.Amount.Mul(decimal.NewFromInt(int64(count))),
		DebitAmount:  decimal.Zero,
		CreditAmount: decimal.Zero,
	}

	users := make(map[string]struct{})
	documents := make(map[string]struct{})

	for _, member := range members {
		users[member.UserName] = struct{}{}
		documents[member.DocumentNumber] = struct{}{}

		if member.IsDebit() {
			group.DebitCount++
			group.DebitAmount = group.DebitAmount.Add(member.Amount)
		} else {
			group.CreditCount++
			group.CreditAmount = group.CreditAmount.Add(member.Amount)
		}

		if !member.PostingDate.IsZero() {
			if group.DateRange.Min.IsZero() || member.PostingDate.Before(group.DateRange.Min) {
				group.DateRange.Min = member.PostingDate
			}
			if member.PostingDate.After(group.DateRange.Max) {
				group.DateRange.Max = member.PostingDate
			}
		}
	}

	group.UniqueUsers = len(users)
	group.UniqueDocuments = len(documents)

	return group
}

// sortGroups orders groups for stable display: count descending, total
// amount descending, then key ascending
func sortGroups(groups []*DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		if !groups[i].TotalAmount.Equal(groups[j].TotalAmount) {
			return groups[i].TotalAmount.GreaterThan(groups[j].TotalAmount)
		}
		return groups[i].Key < groups[j].Key
	})
}

func cappedRisk(score int) int {
	if score > 100 {
		return 100
	}
	return score
}
