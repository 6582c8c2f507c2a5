// Package reporter renders analysis results for audit consumption.
//
// Supported output formats:
//   - Console: human-readable summary for terminal review
//   - JSON: structured output for programmatic consumption
//   - CSV: duplicate drilldown export, one row per group member, for
//     spreadsheet-based working papers
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(nil)
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gl-audit-service/internal/detector"
	"gl-audit-service/internal/risk"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// drilldownHeaders is the fixed column contract of the duplicate
// drilldown export. Downstream working papers depend on these names and
// this order.
var drilldownHeaders = []string{
	"Duplicate_Type",
	"Duplicate_Criteria",
	"GL_Account",
	"Amount",
	"Duplicate_Count",
	"Risk_Score",
	"Transaction_ID",
	"Document_Number",
	"Posting_Date",
	"Document_Date",
	"User_Name",
	"Document_Type",
	"Transaction_Type",
	"Text",
	"Fiscal_Year",
	"Posting_Period",
	"Profit_Center",
	"Cost_Center",
	"Local_Currency",
	"Debit_Count",
	"Credit_Count",
	"Debit_Amount",
	"Credit_Amount",
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeTemporalFindings bool `json:"include_temporal_findings"`
	IncludeUserActivity     bool `json:"include_user_activity"`
	IncludeFlaggedOnly      bool `json:"include_flagged_only"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// MaxListItems caps the per-section item count in console output
	MaxListItems int `json:"max_list_items"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                  FormatConsole,
		IncludeTemporalFindings: true,
		IncludeUserActivity:     true,
		IncludeFlaggedOnly:      false,
		CSVDelimiter:            ',',
		CSVHeaders:              true,
		MaxListItems:            10,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 1 {
		return fmt.Errorf("max list items must be at least 1, got %d", c.MaxListItems)
	}
	return nil
}

// ReportGenerator renders analysis results in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the analysis result to the writer
func (rg *ReportGenerator) GenerateReport(result *risk.AnalysisResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("analysis result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.GenerateDuplicateDrilldown(result.Duplicates, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateDuplicateDrilldown writes the duplicate drilldown CSV: one
// row per group member, repeating the group-level statistics on each
// member row. A posting belonging to groups of several types appears
// once per group.
func (rg *ReportGenerator) GenerateDuplicateDrilldown(report *detector.DuplicateReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("duplicate report cannot be nil")
	}

	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(drilldownHeaders); err != nil {
			return fmt.Errorf("failed to write drilldown headers: %w", err)
		}
	}

	for _, group := range report.Groups {
		for _, member := range group.Members {
			record := []string{
				group.Type.String(),
				group.Criteria,
				group.GLAccount,
				group.Amount.StringFixed(2),
				fmt.Sprintf("%d", group.Count),
				fmt.Sprintf("%d", group.RiskScore),
				member.ID,
				member.DocumentNumber,
				member.PostingDateKey(),
				member.DocumentDateKey(),
				member.UserName,
				member.DocumentType,
				member.TransactionType.String(),
				member.Text,
				member.FiscalYear,
				member.PostingPeriod,
				member.ProfitCenter,
				member.CostCenter,
				member.Currency,
				fmt.Sprintf("%d", group.DebitCount),
				fmt.Sprintf("%d", group.CreditCount),
				group.DebitAmount.StringFixed(2),
				group.CreditAmount.StringFixed(2),
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write drilldown record: %w", err)
			}
		}
	}

	return nil
}

// generateJSONReport writes the structured result, filtered by the
// configured detail options
func (rg *ReportGenerator) generateJSONReport(result *risk.AnalysisResult, writer io.Writer) error {
	output := map[string]interface{}{
		"summary":      result.Summary,
		"duplicates":   result.Duplicates,
		"processed_at": result.ProcessedAt,
	}

	if rg.config.IncludeTemporalFindings {
		output["backdated"] = result.Backdated
		output["closing_entries"] = result.Closing
		output["unusual_days"] = result.UnusualDays
		output["holidays"] = result.Holidays
	}

	if rg.config.IncludeUserActivity {
		output["user_activity"] = result.UserActivity
	}

	if rg.config.IncludeFlaggedOnly {
		var flagged []*risk.TransactionAnalysis
		for _, analysis := range result.Analyses {
			if analysis.IsFlagged() {
				flagged = append(flagged, analysis)
			}
		}
		output["transaction_analyses"] = flagged
	} else {
		output["transaction_analyses"] = result.Analyses
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// generateConsoleReport writes the human-readable summary
func (rg *ReportGenerator) generateConsoleReport(result *risk.AnalysisResult, writer io.Writer) error {
	summary := result.Summary

	fmt.Fprintf(writer, "GL POSTING AUDIT REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Total Transactions:       %d\n", summary.TotalTransactions)
	fmt.Fprintf(writer, "Total Amount:             %s\n", summary.TotalAmount.StringFixed(2))
	fmt.Fprintf(writer, "Duplicate Groups:         %d\n", summary.TotalDuplicateGroups)
	fmt.Fprintf(writer, "Unique Duplicate Txns:    %d\n", summary.UniqueDuplicateTransactions)
	fmt.Fprintf(writer, "Amount Involved:          %s\n", summary.TotalAmountInvolved.StringFixed(2))
	fmt.Fprintf(writer, "Flagged Transactions:     %d (%.1f%%)\n\n",
		summary.FlaggedTransactions, summary.FlagRate*100)

	fmt.Fprintf(writer, "=== DUPLICATE BREAKDOWN ===\n")
	rg.printTypeBreakdown(summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== RISK DISTRIBUTION ===\n")
	rg.printRiskDistribution(summary, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeTemporalFindings {
		fmt.Fprintf(writer, "=== TEMPORAL FINDINGS ===\n")
		fmt.Fprintf(writer, "Backdated Entries:    %d\n", summary.AnomalyCounts.BackdatedEntries)
		fmt.Fprintf(writer, "Closing Entries:      %d\n", summary.AnomalyCounts.ClosingEntries)
		fmt.Fprintf(writer, "Unusual Day Entries:  %d\n", summary.AnomalyCounts.UnusualDayEntries)
		fmt.Fprintf(writer, "Holiday Entries:      %d\n\n", summary.AnomalyCounts.HolidayEntries)
	}

	if rg.config.IncludeUserActivity && len(result.UserActivity.Anomalies) > 0 {
		fmt.Fprintf(writer, "=== USER ANOMALIES ===\n")
		rg.printUserAnomalies(result.UserActivity.Anomalies, writer)
		fmt.Fprintf(writer, "\n")
	}

	flagged := rg.flaggedAnalyses(result)
	if len(flagged) > 0 {
		fmt.Fprintf(writer, "=== FLAGGED TRANSACTIONS ===\n")
		rg.printFlaggedTransactions(flagged, writer)
	}

	return nil
}

func (rg *ReportGenerator) printTypeBreakdown(summary *risk.Summary, writer io.Writer) {
	for _, dt := range detector.AllDuplicateTypes {
		breakdown, ok := summary.TypeBreakdown[dt.String()]
		if !ok {
			fmt.Fprintf(writer, "%-18s none\n", dt.String()+":")
			continue
		}
		fmt.Fprintf(writer, "%-18s %d groups, %d transactions, amount %s\n",
			dt.String()+":", breakdown.Groups, breakdown.Transactions,
			breakdown.Amount.StringFixed(2))
	}
}

func (rg *ReportGenerator) printRiskDistribution(summary *risk.Summary, writer io.Writer) {
	levels := []risk.RiskLevel{risk.RiskCritical, risk.RiskHigh, risk.RiskMedium, risk.RiskLow}
	for _, level := range levels {
		count := summary.RiskDistribution[level]
		fmt.Fprintf(writer, "%-10s %d (%.1f%%)\n", string(level)+":", count,
			percentage(count, summary.TotalTransactions))
	}
}

func (rg *ReportGenerator) printUserAnomalies(anomalies []detector.UserAnomaly, writer io.Writer) {
	for i, anomaly := range anomalies {
		fmt.Fprintf(writer, "  %d. %s: %d transactions, total %s (%.1f std devs above mean)\n",
			i+1, anomaly.UserName, anomaly.TransactionCount,
			anomaly.TotalAmount.StringFixed(2), anomaly.Deviation)

		if i+1 >= rg.config.MaxListItems && len(anomalies) > rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(anomalies)-rg.config.MaxListItems)
			break
		}
	}
}

func (rg *ReportGenerator) printFlaggedTransactions(flagged []*risk.TransactionAnalysis, writer io.Writer) {
	fmt.Fprintf(writer, "Total Flagged: %d\n\n", len(flagged))

	for i, analysis := range flagged {
		p := analysis.Posting
		reasons := make([]string, len(analysis.Details.Anomalies))
		for j, kind := range analysis.Details.Anomalies {
			reasons[j] = string(kind)
		}

		fmt.Fprintf(writer, "  %d. [%s %d] %s  Doc: %s  Account: %s  Amount: %s  User: %s\n",
			i+1, analysis.RiskLevel, analysis.RiskScore, p.ID, p.DocumentNumber,
			p.AccountOrMissing(), p.Amount.StringFixed(2), p.UserName)
		if len(reasons) > 0 {
			fmt.Fprintf(writer, "     Findings: %s\n", strings.Join(reasons, "; "))
		}

		if i+1 >= rg.config.MaxListItems && len(flagged) > rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(flagged)-rg.config.MaxListItems)
			break
		}
	}
}

func (rg *ReportGenerator) flaggedAnalyses(result *risk.AnalysisResult) []*risk.TransactionAnalysis {
	var flagged []*risk.TransactionAnalysis
	for _, analysis := range result.Analyses {
		if analysis.IsFlagged() {
			flagged = append(flagged, analysis)
		}
	}
	return flagged
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
