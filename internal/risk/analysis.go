// Package risk merges the independent detector outputs into a single
// per-transaction risk score and categorical risk level, and produces
// the batch-level summary consumed by reporting.
package risk

import (
	"time"

	"gl-audit-service/internal/detector"
	"gl-audit-service/internal/models"

	"github.com/shopspring/decimal"
)

// RiskLevel is the categorical bucket derived from the risk score
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Score band thresholds. The bands are half-open: a score of exactly 80
// is CRITICAL, exactly 60 is HIGH, exactly 40 is MEDIUM.
const (
	criticalThreshold = 80
	highThreshold     = 60
	mediumThreshold   = 40
)

// LevelForScore maps a 0-100 risk score onto its risk level
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= criticalThreshold:
		return RiskCritical
	case score >= highThreshold:
		return RiskHigh
	case score >= mediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Fixed score increments per contributing signal. A transaction in one
// or more duplicate groups contributes the highest base weight among
// its groups; each further anomaly category adds a fixed increment.
const (
	temporalFlagIncrement  = 15
	userAnomalyIncrement   = 20
	highValueIncrement     = 10
	veryHighValueMultiple  = 10
	patternAnomalyMinKinds = 3
)

// AnomalyKind names one detector category for analysis details
type AnomalyKind string

const (
	AnomalyDuplicate  AnomalyKind = "Duplicate Entry"
	AnomalyBackdated  AnomalyKind = "Backdated Entry"
	AnomalyClosing    AnomalyKind = "Closing Entry"
	AnomalyUnusualDay AnomalyKind = "Unusual Day Entry"
	AnomalyHoliday    AnomalyKind = "Holiday Entry"
	AnomalyUser       AnomalyKind = "User Anomaly"
)

// AnalysisDetails carries the free-form explanation attached to a
// transaction analysis
type AnalysisDetails struct {
	Anomalies   []AnomalyKind `json:"anomalies"`
	RiskFactors []string      `json:"risk_factors"`
}

// TransactionAnalysis is the per-transaction result of a detection run.
// It is created once per run and not mutated afterward; a re-run
// creates a fresh analysis.
type TransactionAnalysis struct {
	Posting *models.GLPosting `json:"posting"`

	AmountAnomaly  bool `json:"amount_anomaly"`
	TimingAnomaly  bool `json:"timing_anomaly"`
	UserAnomaly    bool `json:"user_anomaly"`
	AccountAnomaly bool `json:"account_anomaly"`
	PatternAnomaly bool `json:"pattern_anomaly"`

	RiskScore int       `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`

	Details AnalysisDetails `json:"analysis_details"`
}

// IsFlagged reports whether the analysis warrants audit attention
func (a *TransactionAnalysis) IsFlagged() bool {
	return a.RiskLevel == RiskHigh || a.RiskLevel == RiskCritical
}

// TypeBreakdown aggregates duplicate statistics for one duplicate type
type TypeBreakdown struct {
	Groups       int             `json:"groups"`
	Transactions int             `json:"transactions"`
	Amount       decimal.Decimal `json:"amount"`
	DebitCount   int             `json:"debit_count"`
	CreditCount  int             `json:"credit_count"`
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
}

// AnomalyCounts holds the per-category batch totals
type AnomalyCounts struct {
	DuplicateGroups   int `json:"duplicate_groups"`
	BackdatedEntries  int `json:"backdated_entries"`
	ClosingEntries    int `json:"closing_entries"`
	UnusualDayEntries int `json:"unusual_day_entries"`
	HolidayEntries    int `json:"holiday_entries"`
	UserAnomalies     int `json:"user_anomalies"`
}

// Summary is the batch-level aggregate produced by one analysis run
type Summary struct {
	TotalTransactions int             `json:"total_transactions"`
	TotalAmount       decimal.Decimal `json:"total_amount"`

	TotalDuplicateGroups       int `json:"total_duplicate_groups"`
	TotalDuplicateTransactions int `json:"total_duplicate_transactions"`

	// UniqueDuplicateTransactions is the size of the set union of all
	// group member IDs, never the sum of group sizes
	UniqueDuplicateTransactions int `json:"unique_duplicate_transactions"`

	// TotalAmountInvolved sums amount x count over all groups
	TotalAmountInvolved decimal.Decimal `json:"total_amount_involved"`

	TypeBreakdown map[string]*TypeBreakdown `json:"type_breakdown"`
	AnomalyCounts AnomalyCounts             `json:"anomaly_counts"`

	RiskDistribution map[RiskLevel]int `json:"risk_distribution"`

	FlaggedTransactions int     `json:"flagged_transactions"`
	FlagRate            float64 `json:"flag_rate"`
}

// AnalysisResult is the complete output of one engine run
type AnalysisResult struct {
	Duplicates   *detector.DuplicateReport    `json:"duplicates"`
	Backdated    []detector.FlaggedPosting    `json:"backdated"`
	Closing      []detector.FlaggedPosting    `json:"closing_entries"`
	UnusualDays  []detector.FlaggedPosting    `json:"unusual_days"`
	Holidays     []detector.FlaggedPosting    `json:"holidays"`
	UserActivity *detector.UserActivityReport `json:"user_activity"`

	Analyses []*TransactionAnalysis `json:"transaction_analyses"`
	Summary  *Summary               `json:"summary"`

	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
}
