// Package config assembles component configurations from CLI options.
package config

import (
	"fmt"
	"time"

	"gl-audit-service/internal/detector"
	"gl-audit-service/internal/models"
	"gl-audit-service/internal/parsers"
	"gl-audit-service/internal/reporter"
	auditerrors "gl-audit-service/pkg/errors"
)

// AnalysisOptions holds the raw CLI values that shape the detector
// configuration. Zero or negative values mean "use the profile default".
type AnalysisOptions struct {
	Profile            string
	DuplicateThreshold int
	ClosingDaysBefore  int
	ClosingDaysAfter   int
	BackdatedGraceDays int
	DeviationFactor    float64
	HighValueThreshold string
	AuditStart         string
	AuditEnd           string
	HolidayDates       []string
}

// CreateAnalysisConfig builds the detector configuration from a profile
// plus CLI overrides
func CreateAnalysisConfig(opts AnalysisOptions) (*detector.AnalysisConfig, error) {
	var cfg *detector.AnalysisConfig
	switch opts.Profile {
	case "", "default":
		cfg = detector.DefaultAnalysisConfig()
	case "strict":
		cfg = detector.StrictAnalysisConfig()
	case "relaxed":
		cfg = detector.RelaxedAnalysisConfig()
	default:
		return nil, auditerrors.ConfigurationError(auditerrors.CodeInvalidConfig,
			"profile", opts.Profile, fmt.Errorf("unknown profile"))
	}

	if opts.DuplicateThreshold > 0 {
		cfg.DuplicateThreshold = opts.DuplicateThreshold
	}
	if opts.ClosingDaysBefore >= 0 {
		cfg.ClosingDaysBefore = opts.ClosingDaysBefore
	}
	if opts.ClosingDaysAfter >= 0 {
		cfg.ClosingDaysAfter = opts.ClosingDaysAfter
	}
	if opts.BackdatedGraceDays >= 0 {
		cfg.BackdatedGraceDays = opts.BackdatedGraceDays
	}
	if opts.DeviationFactor > 0 {
		cfg.UserDeviationFactor = opts.DeviationFactor
	}

	if opts.HighValueThreshold != "" {
		amount, err := models.ParseAmount(opts.HighValueThreshold)
		if err != nil {
			return nil, auditerrors.ConfigurationError(auditerrors.CodeInvalidConfig,
				"high-value", opts.HighValueThreshold, err)
		}
		cfg.HighValueThreshold = amount
	}

	if opts.AuditStart != "" {
		start, err := time.Parse(models.DateFormat, opts.AuditStart)
		if err != nil {
			return nil, auditerrors.ConfigurationError(auditerrors.CodeInvalidConfig,
				"audit-start", opts.AuditStart, err)
		}
		cfg.AuditWindowStart = start
	}
	if opts.AuditEnd != "" {
		end, err := time.Parse(models.DateFormat, opts.AuditEnd)
		if err != nil {
			return nil, auditerrors.ConfigurationError(auditerrors.CodeInvalidConfig,
				"audit-end", opts.AuditEnd, err)
		}
		cfg.AuditWindowEnd = end
	}

	for _, holiday := range opts.HolidayDates {
		date, err := time.Parse(models.DateFormat, holiday)
		if err != nil {
			return nil, auditerrors.ConfigurationError(auditerrors.CodeInvalidConfig,
				"holiday", holiday, err)
		}
		cfg.Holidays.Add(date, "Configured holiday")
	}

	if err := cfg.Validate(); err != nil {
		return nil, auditerrors.ConfigurationError(auditerrors.CodeInvalidConfig,
			"analysis config", cfg.String(), err)
	}

	return cfg, nil
}

// CreatePostingParserConfig returns the parser configuration for the
// standard GL export column layout
func CreatePostingParserConfig() *parsers.PostingParserConfig {
	return parsers.DefaultPostingParserConfig()
}

// CreateReportConfig creates a report configuration for the specified
// output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	cfg := reporter.DefaultReportConfig()

	switch format {
	case "console":
		cfg.Format = reporter.FormatConsole
		cfg.IncludeTemporalFindings = true
		cfg.IncludeUserActivity = true
	case "json":
		cfg.Format = reporter.FormatJSON
		cfg.IncludeTemporalFindings = true
		cfg.IncludeUserActivity = true
		cfg.IncludeFlaggedOnly = false
	case "csv":
		cfg.Format = reporter.FormatCSV
		cfg.CSVHeaders = true
		cfg.CSVDelimiter = ','
	}

	return cfg
}
