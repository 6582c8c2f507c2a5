package detector

import (
	"fmt"
	"math"
	"sort"

	"gl-audit-service/internal/models"

	"github.com/shopspring/decimal"
)

// UserActivity holds the aggregate statistics for one posting user
type UserActivity struct {
	UserName         string          `json:"user_name"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	MeanAmount       decimal.Decimal `json:"mean_amount"`
}

// UserAnomaly describes a user whose total activity exceeds the
// statistical threshold mean + k*stddev over per-user totals
type UserAnomaly struct {
	UserActivity

	// Deviation is the z-score of the user's total against the
	// population of per-user totals
	Deviation float64 `json:"deviation"`

	// RiskScore is proportional to the distance from the mean,
	// capped at 100
	RiskScore int `json:"risk_score"`

	Reasons []string `json:"reasons"`
}

// UserActivityReport is the output of the user behavior analyzer
type UserActivityReport struct {
	Activities []UserActivity `json:"activities"`
	Anomalies  []UserAnomaly  `json:"anomalies"`

	// PopulationMean and PopulationStdDev describe the distribution of
	// per-user total amounts
	PopulationMean   float64 `json:"population_mean"`
	PopulationStdDev float64 `json:"population_std_dev"`
}

// AnomalousUsers returns the set of flagged user names
func (r *UserActivityReport) AnomalousUsers() map[string]struct{} {
	users := make(map[string]struct{}, len(r.Anomalies))
	for _, anomaly := range r.Anomalies {
		users[anomaly.UserName] = struct{}{}
	}
	return users
}

// AnalyzeUserActivity groups the batch by user, computes per-user count
// and total, and flags users whose total exceeds mean + k*stddev of the
// per-user totals (k = cfg.UserDeviationFactor). With zero or one user
// the standard deviation is zero and no anomaly is raised.
func AnalyzeUserActivity(postings []*models.GLPosting, cfg *AnalysisConfig) *UserActivityReport {
	if cfg == nil {
		cfg = DefaultAnalysisConfig()
	}

	report := &UserActivityReport{}
	if len(postings) == 0 {
		return report
	}

	totals := make(map[string]*UserActivity)
	var userOrder []string

	for _, p := range postings {
		activity, seen := totals[p.UserName]
		if !seen {
			activity = &UserActivity{UserName: p.UserName, TotalAmount: decimal.Zero}
			totals[p.UserName] = activity
			userOrder = append(userOrder, p.UserName)
		}
		activity.TransactionCount++
		activity.TotalAmount = activity.TotalAmount.Add(p.Amount)
	}

	sort.Strings(userOrder)
	for _, user := range userOrder {
		activity := totals[user]
		if activity.TransactionCount > 0 {
			activity.MeanAmount = activity.TotalAmount.
				Div(decimal.NewFromInt(int64(activity.TransactionCount))).
				Round(2)
		}
		report.Activities = append(report.Activities, *activity)
	}

	// Population statistics over per-user totals
	values := make([]float64, len(report.Activities))
	for i, activity := range report.Activities {
		values[i] = activity.TotalAmount.InexactFloat64()
	}

	report.PopulationMean = mean(values)
	report.PopulationStdDev = stdDev(values, report.PopulationMean)

	// A single user (or identical totals) yields stddev 0; raising
	// anomalies there would be degenerate
	if len(values) < 2 || report.PopulationStdDev == 0 {
		return report
	}

	threshold := report.PopulationMean + cfg.UserDeviationFactor*report.PopulationStdDev
	for _, activity := range report.Activities {
		total := activity.TotalAmount.InexactFloat64()
		if total <= threshold {
			continue
		}

		z := (total - report.PopulationMean) / report.PopulationStdDev
		report.Anomalies = append(report.Anomalies, UserAnomaly{
			UserActivity: activity,
			Deviation:    z,
			RiskScore:    userRiskScore(z),
			Reasons: []string{
				fmt.Sprintf("Total amount %.2f exceeds mean %.2f by %.1f standard deviations",
					total, report.PopulationMean, z),
			},
		})
	}

	// Highest deviation first for display
	sort.SliceStable(report.Anomalies, func(i, j int) bool {
		return report.Anomalies[i].Deviation > report.Anomalies[j].Deviation
	})

	return report
}

// userRiskScore scales the z-score distance to a 0-100 risk score
func userRiskScore(z float64) int {
	return cappedRisk(int(math.Round(z * 25)))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev computes the population standard deviation
func stdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}
