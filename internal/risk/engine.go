package risk

import (
	"fmt"
	"time"

	"gl-audit-service/internal/detector"
	"gl-audit-service/internal/models"
	auditerrors "gl-audit-service/pkg/errors"
	"gl-audit-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Engine orchestrates the detectors over a posting batch and merges
// their findings into per-transaction analyses and a batch summary.
// An Engine is stateless between runs and safe for reuse.
type Engine struct {
	config *detector.AnalysisConfig
	logger logger.Logger
}

// NewEngine creates a risk engine with the given configuration. A nil
// configuration selects the defaults.
func NewEngine(cfg *detector.AnalysisConfig, log logger.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = detector.DefaultAnalysisConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, auditerrors.ConfigurationError(
			auditerrors.CodeInvalidConfig, "analysis_config", cfg.String(), err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Engine{
		config: cfg.Clone(),
		logger: log.WithComponent("risk-engine"),
	}, nil
}

// Config returns a copy of the engine's configuration
func (e *Engine) Config() *detector.AnalysisConfig {
	return e.config.Clone()
}

// Analyze runs the full detection pipeline over the batch: duplicate
// classification, the four temporal scans and the user activity
// analysis, then merges the findings into one analysis per posting.
func (e *Engine) Analyze(postings []*models.GLPosting) (*AnalysisResult, error) {
	if len(postings) == 0 {
		return nil, auditerrors.AnalysisError(auditerrors.CodeEmptyBatch, "risk analysis", nil)
	}

	op := logger.NewOperationLogger("risk_analysis", e.logger).
		WithField("transactions", len(postings))
	startTime := time.Now()

	op.Step("duplicate_classification")
	duplicates := detector.ClassifyDuplicates(postings, e.config)

	op.Step("temporal_detection")
	backdated := detector.DetectBackdated(postings, e.config)
	closing := detector.DetectClosingEntries(postings, e.config)
	unusualDays := detector.DetectUnusualDays(postings, e.config)
	holidays := detector.DetectHolidayEntries(postings, e.config)

	op.Step("user_activity")
	userActivity := detector.AnalyzeUserActivity(postings, e.config)

	op.Step("score_aggregation")
	result := &AnalysisResult{
		Duplicates:   duplicates,
		Backdated:    backdated,
		Closing:      closing,
		UnusualDays:  unusualDays,
		Holidays:     holidays,
		UserActivity: userActivity,
		ProcessedAt:  startTime,
	}
	result.Analyses = e.buildAnalyses(postings, result)
	result.Summary = e.buildSummary(postings, result)
	result.Duration = time.Since(startTime)

	op.WithField("duplicate_groups", len(duplicates.Groups)).
		WithField("flagged", result.Summary.FlaggedTransactions).
		Success("Risk analysis completed")

	return result, nil
}

// buildAnalyses merges the detector findings into one analysis per
// posting. The score starts from the highest duplicate base weight the
// posting is involved in and grows by a fixed increment per further
// anomaly category, capped at 100.
func (e *Engine) buildAnalyses(postings []*models.GLPosting, r *AnalysisResult) []*TransactionAnalysis {
	dupWeights := r.Duplicates.MaxWeightByPosting()
	backdatedIDs := detector.PostingIDs(r.Backdated)
	closingIDs := detector.PostingIDs(r.Closing)
	unusualIDs := detector.PostingIDs(r.UnusualDays)
	holidayIDs := detector.PostingIDs(r.Holidays)
	anomalousUsers := r.UserActivity.AnomalousUsers()

	veryHighValue := e.config.HighValueThreshold.
		Mul(decimal.NewFromInt(veryHighValueMultiple))

	analyses := make([]*TransactionAnalysis, 0, len(postings))
	for _, p := range postings {
		analysis := &TransactionAnalysis{Posting: p}

		score := 0
		var kinds []AnomalyKind
		var factors []string

		if weight, involved := dupWeights[p.ID]; involved {
			score += weight
			kinds = append(kinds, AnomalyDuplicate)
			factors = append(factors, fmt.Sprintf("Duplicate involvement (weight %d)", weight))
			analysis.AccountAnomaly = true
			analysis.AmountAnomaly = true
		}

		if _, ok := backdatedIDs[p.ID]; ok {
			score += temporalFlagIncrement
			kinds = append(kinds, AnomalyBackdated)
			factors = append(factors, "Backdated posting")
			analysis.TimingAnomaly = true
		}
		if _, ok := closingIDs[p.ID]; ok {
			score += temporalFlagIncrement
			kinds = append(kinds, AnomalyClosing)
			factors = append(factors, "Month-end closing period")
			analysis.TimingAnomaly = true
		}
		if _, ok := unusualIDs[p.ID]; ok {
			score += temporalFlagIncrement
			kinds = append(kinds, AnomalyUnusualDay)
			factors = append(factors, "Non-business day posting")
			analysis.TimingAnomaly = true
		}
		if _, ok := holidayIDs[p.ID]; ok {
			score += temporalFlagIncrement
			kinds = append(kinds, AnomalyHoliday)
			factors = append(factors, "Holiday posting")
			analysis.TimingAnomaly = true
		}

		if _, ok := anomalousUsers[p.UserName]; ok {
			score += userAnomalyIncrement
			kinds = append(kinds, AnomalyUser)
			factors = append(factors, fmt.Sprintf("User %s flagged as statistical outlier", p.UserName))
			analysis.UserAnomaly = true
		}

		if !veryHighValue.IsZero() && p.Amount.GreaterThanOrEqual(veryHighValue) {
			score += highValueIncrement
			factors = append(factors, "Exceptionally high amount")
			analysis.AmountAnomaly = true
		}

		analysis.PatternAnomaly = len(kinds) >= patternAnomalyMinKinds
		if analysis.PatternAnomaly {
			factors = append(factors, fmt.Sprintf("%d independent anomaly categories", len(kinds)))
		}

		if score > 100 {
			score = 100
		}
		analysis.RiskScore = score
		analysis.RiskLevel = LevelForScore(score)
		analysis.Details = AnalysisDetails{Anomalies: kinds, RiskFactors: factors}

		analyses = append(analyses, analysis)
	}

	return analyses
}

// buildSummary computes the batch-level aggregate from the merged
// analyses and the raw detector reports.
func (e *Engine) buildSummary(postings []*models.GLPosting, r *AnalysisResult) *Summary {
	summary := &Summary{
		TotalTransactions:   len(postings),
		TotalAmount:         decimal.Zero,
		TotalAmountInvolved: decimal.Zero,
		TypeBreakdown:       make(map[string]*TypeBreakdown),
		RiskDistribution: map[RiskLevel]int{
			RiskLow: 0, RiskMedium: 0, RiskHigh: 0, RiskCritical: 0,
		},
	}

	for _, p := range postings {
		summary.TotalAmount = summary.TotalAmount.Add(p.Amount)
	}

	for _, g := range r.Duplicates.Groups {
		summary.TotalDuplicateGroups++
		summary.TotalDuplicateTransactions += g.Count
		summary.TotalAmountInvolved = summary.TotalAmountInvolved.Add(g.TotalAmount)

		breakdown, ok := summary.TypeBreakdown[g.Type.String()]
		if !ok {
			breakdown = &TypeBreakdown{
				Amount:       decimal.Zero,
				DebitAmount:  decimal.Zero,
				CreditAmount: decimal.Zero,
			}
			summary.TypeBreakdown[g.Type.String()] = breakdown
		}
		breakdown.Groups++
		breakdown.Transactions += g.Count
		breakdown.Amount = breakdown.Amount.Add(g.TotalAmount)
		breakdown.DebitCount += g.DebitCount
		breakdown.CreditCount += g.CreditCount
		breakdown.DebitAmount = breakdown.DebitAmount.Add(g.DebitAmount)
		breakdown.CreditAmount = breakdown.CreditAmount.Add(g.CreditAmount)
	}

	summary.UniqueDuplicateTransactions = len(r.Duplicates.PostingIDSet())

	summary.AnomalyCounts = AnomalyCounts{
		DuplicateGroups:   len(r.Duplicates.Groups),
		BackdatedEntries:  len(r.Backdated),
		ClosingEntries:    len(r.Closing),
		UnusualDayEntries: len(r.UnusualDays),
		HolidayEntries:    len(r.Holidays),
		UserAnomalies:     len(r.UserActivity.Anomalies),
	}

	for _, analysis := range r.Analyses {
		summary.RiskDistribution[analysis.RiskLevel]++
		if analysis.IsFlagged() {
			summary.FlaggedTransactions++
		}
	}

	if summary.TotalTransactions > 0 {
		summary.FlagRate = float64(summary.FlaggedTransactions) /
			float64(summary.TotalTransactions)
	}

	return summary
}
