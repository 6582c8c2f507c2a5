// Package detector implements the rule-based anomaly detectors of the
// audit engine: the six-type duplicate classifier, the temporal
// scanners (backdated, closing-period, unusual-day, holiday) and the
// per-user statistical outlier analyzer.
//
// All detectors are pure functions of an immutable posting batch and an
// AnalysisConfig. They hold no state and are safe to run concurrently
// against the same batch.
//
// Example usage:
//
//	cfg := detector.DefaultAnalysisConfig()
//	cfg.DuplicateThreshold = 3
//
//	report := detector.ClassifyDuplicates(postings, cfg)
//	backdated := detector.DetectBackdated(postings, cfg)
package detector

import (
	"fmt"
	"time"

	"gl-audit-service/internal/models"

	"github.com/shopspring/decimal"
)

// HolidayCalendar maps dates (formatted as models.DateFormat) to holiday
// names. The calendar is supplied by the caller; DefaultHolidayCalendar
// provides a starting set of fixed-date holidays.
type HolidayCalendar map[string]string

// Lookup returns the holiday name for a date and whether the date is in
// the calendar.
func (hc HolidayCalendar) Lookup(date time.Time) (string, bool) {
	if hc == nil || date.IsZero() {
		return "", false
	}
	name, ok := hc[date.Format(models.DateFormat)]
	return name, ok
}

// Add registers a holiday date in the calendar
func (hc HolidayCalendar) Add(date time.Time, name string) {
	hc[date.Format(models.DateFormat)] = name
}

// DefaultHolidayCalendar returns a calendar with the fixed-date holidays
// observed in most GL audit engagements. Movable holidays are supplied
// by the caller.
func DefaultHolidayCalendar(years ...int) HolidayCalendar {
	calendar := make(HolidayCalendar)
	for _, year := range years {
		calendar[fmt.Sprintf("%04d-01-01", year)] = "New Year's Day"
		calendar[fmt.Sprintf("%04d-05-01", year)] = "Labour Day"
		calendar[fmt.Sprintf("%04d-12-25", year)] = "Christmas Day"
	}
	return calendar
}

// AnalysisConfig holds the parameters for all detectors. The caller
// constructs one and threads it through each call; there is no shared
// mutable configuration.
//
// Use the provided factory functions for common scenarios:
//   - DefaultAnalysisConfig(): balanced thresholds for most engagements
//   - StrictAnalysisConfig(): tight thresholds for high-risk accounts
//   - RelaxedAnalysisConfig(): loose thresholds for exploratory review
type AnalysisConfig struct {
	// DuplicateThreshold is the minimum member count for a duplicate
	// group to be reported (>= 1)
	DuplicateThreshold int `json:"duplicate_threshold"`

	// ClosingDaysBefore/ClosingDaysAfter define the closing window
	// around each fiscal month end
	ClosingDaysBefore int `json:"closing_days_before"`
	ClosingDaysAfter  int `json:"closing_days_after"`

	// BackdatedGraceDays is the number of days a posting may lag its
	// document date before being flagged as backdated
	BackdatedGraceDays int `json:"backdated_grace_days"`

	// AuditWindowStart, when set, flags any posting dated before the
	// engagement start regardless of its document date
	AuditWindowStart time.Time `json:"audit_window_start,omitempty"`

	// AuditWindowEnd bounds the window for reporting purposes
	AuditWindowEnd time.Time `json:"audit_window_end,omitempty"`

	// UnusualDays lists the weekdays considered non-business days
	UnusualDays []time.Weekday `json:"unusual_days"`

	// Holidays is the supplied holiday calendar
	Holidays HolidayCalendar `json:"holidays,omitempty"`

	// UserDeviationFactor is the z-score multiplier k: a user is
	// anomalous when their total exceeds mean + k*stddev
	UserDeviationFactor float64 `json:"user_deviation_factor"`

	// HighValueThreshold marks postings whose amount warrants extra
	// scrutiny in the temporal detectors
	HighValueThreshold decimal.Decimal `json:"high_value_threshold"`
}

// DefaultAnalysisConfig returns a configuration with sensible defaults
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		DuplicateThreshold:  2,
		ClosingDaysBefore:   3,
		ClosingDaysAfter:    2,
		BackdatedGraceDays:  0,
		UnusualDays:         []time.Weekday{time.Saturday, time.Sunday},
		Holidays:            make(HolidayCalendar),
		UserDeviationFactor: 2.0,
		HighValueThreshold:  decimal.NewFromInt(1_000_000),
	}
}

// StrictAnalysisConfig returns a configuration for strict review
func StrictAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		DuplicateThreshold:  2,
		ClosingDaysBefore:   5,
		ClosingDaysAfter:    3,
		BackdatedGraceDays:  0,
		UnusualDays:         []time.Weekday{time.Saturday, time.Sunday},
		Holidays:            make(HolidayCalendar),
		UserDeviationFactor: 1.5,
		HighValueThreshold:  decimal.NewFromInt(100_000),
	}
}

// RelaxedAnalysisConfig returns a configuration for exploratory review
func RelaxedAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		DuplicateThreshold:  3,
		ClosingDaysBefore:   2,
		ClosingDaysAfter:    1,
		BackdatedGraceDays:  5,
		UnusualDays:         []time.Weekday{time.Sunday},
		Holidays:            make(HolidayCalendar),
		UserDeviationFactor: 3.0,
		HighValueThreshold:  decimal.NewFromInt(10_000_000),
	}
}

// Validate checks if the analysis configuration is valid
func (ac *AnalysisConfig) Validate() error {
	if ac.DuplicateThreshold < 1 {
		return fmt.Errorf("duplicate threshold must be at least 1: %d", ac.DuplicateThreshold)
	}

	if ac.ClosingDaysBefore < 0 {
		return fmt.Errorf("closing days before cannot be negative: %d", ac.ClosingDaysBefore)
	}

	if ac.ClosingDaysAfter < 0 {
		return fmt.Errorf("closing days after cannot be negative: %d", ac.ClosingDaysAfter)
	}

	if ac.BackdatedGraceDays < 0 {
		return fmt.Errorf("backdated grace days cannot be negative: %d", ac.BackdatedGraceDays)
	}

	if ac.UserDeviationFactor <= 0 {
		return fmt.Errorf("user deviation factor must be positive: %f", ac.UserDeviationFactor)
	}

	if ac.HighValueThreshold.IsNegative() {
		return fmt.Errorf("high value threshold cannot be negative: %s", ac.HighValueThreshold.String())
	}

	if !ac.AuditWindowStart.IsZero() && !ac.AuditWindowEnd.IsZero() &&
		ac.AuditWindowEnd.Before(ac.AuditWindowStart) {
		return fmt.Errorf("audit window end %s is before start %s",
			ac.AuditWindowEnd.Format(models.DateFormat), ac.AuditWindowStart.Format(models.DateFormat))
	}

	return nil
}

// Clone creates a deep copy of the analysis configuration
func (ac *AnalysisConfig) Clone() *AnalysisConfig {
	if ac == nil {
		return nil
	}

	clone := *ac
	clone.UnusualDays = append([]time.Weekday(nil), ac.UnusualDays...)
	if ac.Holidays != nil {
		clone.Holidays = make(HolidayCalendar, len(ac.Holidays))
		for date, name := range ac.Holidays {
			clone.Holidays[date] = name
		}
	}
	return &clone
}

// IsUnusualDay reports whether the given weekday is configured as a
// non-business day
func (ac *AnalysisConfig) IsUnusualDay(day time.Weekday) bool {
	for _, unusual := range ac.UnusualDays {
		if unusual == day {
			return true
		}
	}
	return false
}

// IsHighValue reports whether an amount meets the high-value threshold
func (ac *AnalysisConfig) IsHighValue(amount decimal.Decimal) bool {
	if ac.HighValueThreshold.IsZero() {
		return false
	}
	return amount.GreaterThanOrEqual(ac.HighValueThreshold)
}

// String returns a human-readable description of the configuration
func (ac *AnalysisConfig) String() string {
	return fmt.Sprintf("AnalysisConfig{DuplicateThreshold: %d, ClosingWindow: -%d/+%d days, DeviationFactor: %.1f, HighValue: %s}",
		ac.DuplicateThreshold, ac.ClosingDaysBefore, ac.ClosingDaysAfter,
		ac.UserDeviationFactor, ac.HighValueThreshold.String())
}
