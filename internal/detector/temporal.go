package detector

import (
	"fmt"
	"time"

	"gl-audit-service/internal/models"

	"github.com/shopspring/decimal"
)

// FlaggedPosting is the minimal record emitted by the temporal
// detectors for a posting matching a date-based rule
type FlaggedPosting struct {
	PostingID      string          `json:"posting_id"`
	DocumentNumber string          `json:"document_number"`
	PostingDate    time.Time       `json:"posting_date"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	UserName       string          `json:"user_name"`
	GLAccount      string          `json:"gl_account"`
	RiskScore      int             `json:"risk_score"`
	Reasons        []string        `json:"reasons"`
}

func newFlaggedPosting(p *models.GLPosting, riskScore int, reasons ...string) FlaggedPosting {
	return FlaggedPosting{
		PostingID:      p.ID,
		DocumentNumber: p.DocumentNumber,
		PostingDate:    p.PostingDate,
		Amount:         p.Amount,
		Currency:       p.Currency,
		UserName:       p.UserName,
		GLAccount:      p.AccountOrMissing(),
		RiskScore:      cappedRisk(riskScore),
		Reasons:        reasons,
	}
}

// PostingIDs returns the IDs of the flagged postings
func PostingIDs(flagged []FlaggedPosting) map[string]struct{} {
	ids := make(map[string]struct{}, len(flagged))
	for _, f := range flagged {
		ids[f.PostingID] = struct{}{}
	}
	return ids
}

// DetectBackdated flags postings recorded after the fact: the posting
// date lags the document date by more than the configured grace period,
// or the posting is dated before the audit engagement start when one is
// supplied. Postings without a document date are skipped by the
// document-date rule, not failed.
func DetectBackdated(postings []*models.GLPosting, cfg *AnalysisConfig) []FlaggedPosting {
	if cfg == nil {
		cfg = DefaultAnalysisConfig()
	}

	var flagged []FlaggedPosting
	for _, p := range postings {
		if p.PostingDate.IsZero() {
			continue
		}

		if !p.DocumentDate.IsZero() && p.PostingDate.After(p.DocumentDate) {
			days := int(p.PostingDate.Sub(p.DocumentDate).Hours() / 24)
			if days > cfg.BackdatedGraceDays {
				flagged = append(flagged, newFlaggedPosting(p, days*2,
					fmt.Sprintf("Posted %d days after document date", days)))
				continue
			}
		}

		if !cfg.AuditWindowStart.IsZero() && p.PostingDate.Before(cfg.AuditWindowStart) {
			flagged = append(flagged, newFlaggedPosting(p, 60,
				fmt.Sprintf("Posted before audit window start %s",
					cfg.AuditWindowStart.Format(models.DateFormat))))
		}
	}

	return flagged
}

// DetectClosingEntries flags postings dated within the closing window
// around their fiscal month end.
func DetectClosingEntries(postings []*models.GLPosting, cfg *AnalysisConfig) []FlaggedPosting {
	if cfg == nil {
		cfg = DefaultAnalysisConfig()
	}

	var flagged []FlaggedPosting
	for _, p := range postings {
		if p.PostingDate.IsZero() {
			continue
		}

		// Check the containing month's end and the previous one: the
		// trailing window of a month end falls in the next month
		monthEnd := endOfMonth(p.PostingDate)
		prevMonthEnd := time.Date(p.PostingDate.Year(), p.PostingDate.Month(), 0,
			0, 0, 0, 0, p.PostingDate.Location())

		if !inClosingWindow(p.PostingDate, monthEnd, cfg) &&
			!inClosingWindow(p.PostingDate, prevMonthEnd, cfg) {
			continue
		}

		riskScore := 50
		reasons := []string{"Month-end closing period"}
		if cfg.IsHighValue(p.Amount) {
			riskScore += 30
			reasons = append(reasons, "High value")
		}

		flagged = append(flagged, newFlaggedPosting(p, riskScore, reasons...))
	}

	return flagged
}

// DetectUnusualDays flags postings dated on configured non-business
// days (Saturday/Sunday by default).
func DetectUnusualDays(postings []*models.GLPosting, cfg *AnalysisConfig) []FlaggedPosting {
	if cfg == nil {
		cfg = DefaultAnalysisConfig()
	}

	var flagged []FlaggedPosting
	for _, p := range postings {
		if p.PostingDate.IsZero() {
			continue
		}

		if !cfg.IsUnusualDay(p.PostingDate.Weekday()) {
			continue
		}

		riskScore := 40
		reasons := []string{fmt.Sprintf("Posted on %s", p.PostingDate.Weekday())}
		if cfg.IsHighValue(p.Amount) {
			riskScore += 25
			reasons = append(reasons, "High value")
		}

		flagged = append(flagged, newFlaggedPosting(p, riskScore, reasons...))
	}

	return flagged
}

// DetectHolidayEntries flags postings dated on an entry of the supplied
// holiday calendar.
func DetectHolidayEntries(postings []*models.GLPosting, cfg *AnalysisConfig) []FlaggedPosting {
	if cfg == nil {
		cfg = DefaultAnalysisConfig()
	}

	var flagged []FlaggedPosting
	for _, p := range postings {
		name, isHoliday := cfg.Holidays.Lookup(p.PostingDate)
		if !isHoliday {
			continue
		}

		riskScore := 60
		reasons := []string{fmt.Sprintf("Posted on %s", name)}
		if cfg.IsHighValue(p.Amount) {
			riskScore += 30
			reasons = append(reasons, "High value")
		}

		flagged = append(flagged, newFlaggedPosting(p, riskScore, reasons...))
	}

	return flagged
}

// endOfMonth returns the last day of the month containing t, at
// midnight in t's location
func endOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location())
}

// inClosingWindow reports whether date lies within the configured
// window around the given month end
func inClosingWindow(date, monthEnd time.Time, cfg *AnalysisConfig) bool {
	start := monthEnd.AddDate(0, 0, -cfg.ClosingDaysBefore)
	end := monthEnd.AddDate(0, 0, cfg.ClosingDaysAfter)
	return !date.Before(start) && !date.After(end)
}
