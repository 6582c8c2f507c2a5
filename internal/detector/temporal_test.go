package detector

import (
	"testing"
	"time"

	"gl-audit-service/internal/models"

	"github.com/shopspring/decimal"
)

func TestDetectBackdated(t *testing.T) {
	tests := []struct {
		name         string
		postingDate  time.Time
		documentDate time.Time
		graceDays    int
		wantFlagged  bool
		wantRisk     int
	}{
		{
			name:         "posting after document date",
			postingDate:  testDate(15),
			documentDate: testDate(5),
			wantFlagged:  true,
			wantRisk:     20, // 10 days x 2
		},
		{
			name:         "posting on document date",
			postingDate:  testDate(5),
			documentDate: testDate(5),
			wantFlagged:  false,
		},
		{
			name:         "posting before document date",
			postingDate:  testDate(3),
			documentDate: testDate(5),
			wantFlagged:  false,
		},
		{
			name:         "lag within grace period",
			postingDate:  testDate(7),
			documentDate: testDate(5),
			graceDays:    3,
			wantFlagged:  false,
		},
		{
			name:        "missing document date",
			postingDate: testDate(5),
			wantFlagged: false,
		},
		{
			name:         "extreme lag caps at 100",
			postingDate:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			documentDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			wantFlagged:  true,
			wantRisk:     100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestPosting("T1", "100000", "100.00", "ALICE", tt.postingDate)
			p.DocumentDate = tt.documentDate

			cfg := DefaultAnalysisConfig()
			cfg.BackdatedGraceDays = tt.graceDays

			flagged := DetectBackdated([]*models.GLPosting{p}, cfg)

			if tt.wantFlagged && len(flagged) != 1 {
				t.Fatalf("expected posting to be flagged, got %d flags", len(flagged))
			}
			if !tt.wantFlagged && len(flagged) != 0 {
				t.Fatalf("expected no flags, got %d", len(flagged))
			}
			if tt.wantFlagged && flagged[0].RiskScore != tt.wantRisk {
				t.Errorf("expected risk %d, got %d", tt.wantRisk, flagged[0].RiskScore)
			}
		})
	}
}

func TestDetectBackdatedBeforeAuditWindow(t *testing.T) {
	p := createTestPosting("T1", "100000", "100.00", "ALICE",
		time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC))

	cfg := DefaultAnalysisConfig()
	cfg.AuditWindowStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	flagged := DetectBackdated([]*models.GLPosting{p}, cfg)
	if len(flagged) != 1 {
		t.Fatalf("expected posting before the audit window to be flagged, got %d", len(flagged))
	}
	if flagged[0].RiskScore != 60 {
		t.Errorf("expected risk 60, got %d", flagged[0].RiskScore)
	}
}

func TestDetectClosingEntries(t *testing.T) {
	tests := []struct {
		name        string
		postingDate time.Time
		amount      string
		wantFlagged bool
		wantRisk    int
	}{
		{
			name:        "last day of month",
			postingDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			amount:      "100.00",
			wantFlagged: true,
			wantRisk:    50,
		},
		{
			name:        "three days before month end",
			postingDate: time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC),
			amount:      "100.00",
			wantFlagged: true,
			wantRisk:    50,
		},
		{
			name:        "mid month",
			postingDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			amount:      "100.00",
			wantFlagged: false,
		},
		{
			name:        "high value in closing window",
			postingDate: time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC),
			amount:      "2000000.00",
			wantFlagged: true,
			wantRisk:    80, // 50 + 30 high value
		},
		{
			name:        "february month end",
			postingDate: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
			amount:      "100.00",
			wantFlagged: true,
			wantRisk:    50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestPosting("T1", "100000", tt.amount, "ALICE", tt.postingDate)

			flagged := DetectClosingEntries([]*models.GLPosting{p}, DefaultAnalysisConfig())

			if tt.wantFlagged != (len(flagged) == 1) {
				t.Fatalf("flagged=%v, expected %v", len(flagged) == 1, tt.wantFlagged)
			}
			if tt.wantFlagged && flagged[0].RiskScore != tt.wantRisk {
				t.Errorf("expected risk %d, got %d", tt.wantRisk, flagged[0].RiskScore)
			}
		})
	}
}

func TestDetectClosingEntriesTrailingWindow(t *testing.T) {
	// April 2 falls in March's trailing window (March 31 + 2 days)
	inWindow := createTestPosting("T1", "100000", "100.00", "ALICE",
		time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	outside := createTestPosting("T2", "100000", "100.00", "BOB",
		time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC))

	flagged := DetectClosingEntries([]*models.GLPosting{inWindow, outside}, DefaultAnalysisConfig())
	if len(flagged) != 1 {
		t.Fatalf("expected 1 flag for the trailing window, got %d", len(flagged))
	}
	if flagged[0].PostingID != "T1" {
		t.Errorf("expected T1 flagged, got %s", flagged[0].PostingID)
	}
}

func TestDetectUnusualDays(t *testing.T) {
	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		postingDate time.Time
		amount      string
		wantFlagged bool
		wantRisk    int
	}{
		{"saturday posting", saturday, "100.00", true, 40},
		{"saturday high value", saturday, "5000000.00", true, 65},
		{"monday posting", monday, "100.00", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestPosting("T1", "100000", tt.amount, "ALICE", tt.postingDate)

			flagged := DetectUnusualDays([]*models.GLPosting{p}, DefaultAnalysisConfig())

			if tt.wantFlagged != (len(flagged) == 1) {
				t.Fatalf("flagged=%v, expected %v", len(flagged) == 1, tt.wantFlagged)
			}
			if tt.wantFlagged && flagged[0].RiskScore != tt.wantRisk {
				t.Errorf("expected risk %d, got %d", tt.wantRisk, flagged[0].RiskScore)
			}
		})
	}
}

func TestDetectHolidayEntries(t *testing.T) {
	cfg := DefaultAnalysisConfig()
	cfg.Holidays = DefaultHolidayCalendar(2026)

	christmas := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	ordinary := time.Date(2026, 12, 22, 0, 0, 0, 0, time.UTC)

	postings := []*models.GLPosting{
		createTestPosting("T1", "100000", "100.00", "ALICE", christmas),
		createTestPosting("T2", "100000", "100.00", "BOB", ordinary),
		createTestPosting("T3", "100000", "3000000.00", "CAROL", christmas),
	}

	flagged := DetectHolidayEntries(postings, cfg)
	if len(flagged) != 2 {
		t.Fatalf("expected 2 holiday flags, got %d", len(flagged))
	}

	if flagged[0].PostingID != "T1" || flagged[0].RiskScore != 60 {
		t.Errorf("expected T1 at risk 60, got %s at %d", flagged[0].PostingID, flagged[0].RiskScore)
	}
	if flagged[1].PostingID != "T3" || flagged[1].RiskScore != 90 {
		t.Errorf("expected T3 at risk 90 (60 + 30 high value), got %s at %d",
			flagged[1].PostingID, flagged[1].RiskScore)
	}
}

func TestHolidayCalendarLookup(t *testing.T) {
	calendar := make(HolidayCalendar)
	date := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	calendar.Add(date, "Good Friday")

	name, ok := calendar.Lookup(date)
	if !ok || name != "Good Friday" {
		t.Errorf("expected Good Friday, got %q (found=%v)", name, ok)
	}

	if _, ok := calendar.Lookup(date.AddDate(0, 0, 1)); ok {
		t.Errorf("unexpected holiday match for the following day")
	}

	if _, ok := calendar.Lookup(time.Time{}); ok {
		t.Errorf("zero date must never match a holiday")
	}
}

func TestIsHighValue(t *testing.T) {
	cfg := DefaultAnalysisConfig()

	if !cfg.IsHighValue(decimal.NewFromInt(1_000_000)) {
		t.Errorf("threshold amount itself must count as high value")
	}
	if cfg.IsHighValue(decimal.NewFromInt(999_999)) {
		t.Errorf("amount below threshold must not count as high value")
	}

	cfg.HighValueThreshold = decimal.Zero
	if cfg.IsHighValue(decimal.NewFromInt(1)) {
		t.Errorf("zero threshold disables the high value check")
	}
}
