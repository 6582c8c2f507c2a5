package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gl-audit-service/internal/models"
	"gl-audit-service/internal/risk"

	"github.com/shopspring/decimal"
)

func createTestPosting(id, account, amount, user string, postingDate time.Time) *models.GLPosting {
	amt, _ := decimal.NewFromString(amount)
	p := models.NewGLPosting(id, account, amt, models.TransactionTypeDebit, user, postingDate)
	p.DocumentNumber = "DOC-" + id
	p.DocumentType = "SA"
	p.Currency = "EUR"
	p.Text = "Posting " + id
	p.FiscalYear = "2026"
	p.PostingPeriod = "3"
	return p
}

// duplicatePairResult runs a real analysis over an identical pair plus a
// singleton, so every report section has content with known shape
func duplicatePairResult(t *testing.T) *risk.AnalysisResult {
	t.Helper()

	// 2026-03-10 is a Tuesday
	tuesday := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	p1 := createTestPosting("TX-1", "100000", "500.00", "ALICE", tuesday)
	p1.DocumentDate = tuesday
	p2 := createTestPosting("TX-2", "100000", "500.00", "ALICE", tuesday)
	p2.DocumentDate = tuesday
	p3 := createTestPosting("TX-3", "300000", "75.00", "BOB", tuesday.AddDate(0, 0, 1))

	engine, err := risk.NewEngine(nil, nil)
	if err != nil {
		t.Fatalf("unexpected engine error: %v", err)
	}

	result, err := engine.Analyze([]*models.GLPosting{p1, p2, p3})
	if err != nil {
		t.Fatalf("unexpected analysis error: %v", err)
	}
	return result
}

func TestReportConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*ReportConfig)
		wantErr bool
	}{
		{"default config", func(c *ReportConfig) {}, false},
		{"json format", func(c *ReportConfig) { c.Format = FormatJSON }, false},
		{"csv format", func(c *ReportConfig) { c.Format = FormatCSV }, false},
		{"unknown format", func(c *ReportConfig) { c.Format = "xml" }, true},
		{"zero list cap", func(c *ReportConfig) { c.MaxListItems = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReportConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}

	if _, err := NewReportGenerator(&ReportConfig{Format: "xml"}); err == nil {
		t.Error("constructor must reject an invalid configuration")
	}
}

func TestGenerateDuplicateDrilldown(t *testing.T) {
	result := duplicatePairResult(t)

	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateDuplicateDrilldown(result.Duplicates, &buf); err != nil {
		t.Fatalf("unexpected drilldown error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("drilldown output is not valid CSV: %v", err)
	}

	header := records[0]
	if len(header) != len(drilldownHeaders) {
		t.Fatalf("expected %d columns, got %d", len(drilldownHeaders), len(header))
	}
	for i, want := range drilldownHeaders {
		if header[i] != want {
			t.Errorf("column %d: expected %s, got %s", i, want, header[i])
		}
	}

	// A fully identical pair fires all six types: one row per member per
	// group, so 6 groups x 2 members
	rows := records[1:]
	if len(rows) != 12 {
		t.Fatalf("expected 12 member rows, got %d", len(rows))
	}

	type1 := 0
	for _, row := range rows {
		if len(row) != len(drilldownHeaders) {
			t.Fatalf("ragged row: %d columns", len(row))
		}
		if row[0] != "Type 1 Duplicate" {
			continue
		}
		type1++

		if row[2] != "100000" {
			t.Errorf("expected account 100000, got %s", row[2])
		}
		if row[3] != "500.00" {
			t.Errorf("expected amount 500.00, got %s", row[3])
		}
		if row[4] != "2" {
			t.Errorf("expected duplicate count 2, got %s", row[4])
		}
		if row[8] != "2026-03-10" {
			t.Errorf("expected posting date 2026-03-10, got %s", row[8])
		}
		if row[19] != "2" || row[20] != "0" {
			t.Errorf("expected 2 debits and 0 credits, got %s/%s", row[19], row[20])
		}
		if row[21] != "1000.00" {
			t.Errorf("expected debit amount 1000.00, got %s", row[21])
		}
	}
	if type1 != 2 {
		t.Errorf("expected 2 Type 1 member rows, got %d", type1)
	}
}

func TestGenerateDuplicateDrilldownWithoutHeaders(t *testing.T) {
	result := duplicatePairResult(t)

	cfg := DefaultReportConfig()
	cfg.CSVHeaders = false
	generator, err := NewReportGenerator(cfg)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateDuplicateDrilldown(result.Duplicates, &buf); err != nil {
		t.Fatalf("unexpected drilldown error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("drilldown output is not valid CSV: %v", err)
	}
	if len(records) != 12 {
		t.Errorf("expected 12 rows without a header, got %d", len(records))
	}
}

func TestGenerateDuplicateDrilldownNilReport(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	if err := generator.GenerateDuplicateDrilldown(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected an error for a nil report")
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	result := duplicatePairResult(t)

	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected report error: %v", err)
	}
	output := buf.String()

	for _, section := range []string{
		"GL POSTING AUDIT REPORT",
		"=== SUMMARY ===",
		"=== DUPLICATE BREAKDOWN ===",
		"=== RISK DISTRIBUTION ===",
		"=== TEMPORAL FINDINGS ===",
	} {
		if !strings.Contains(output, section) {
			t.Errorf("console output missing section %q", section)
		}
	}

	if !strings.Contains(output, "Total Transactions:       3") {
		t.Error("console output missing the transaction total")
	}
	if !strings.Contains(output, "Type 1 Duplicate:") {
		t.Error("console output missing the type breakdown line")
	}
	// The singleton never appears in a group, so Type 6 reads none
	if !strings.Contains(output, "Type 6 Duplicate:  none") {
		t.Error("console output must print none for empty types")
	}
}

func TestGenerateConsoleReportWithoutTemporalSection(t *testing.T) {
	result := duplicatePairResult(t)

	cfg := DefaultReportConfig()
	cfg.IncludeTemporalFindings = false
	generator, err := NewReportGenerator(cfg)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected report error: %v", err)
	}

	if strings.Contains(buf.String(), "=== TEMPORAL FINDINGS ===") {
		t.Error("temporal section must be omitted when disabled")
	}
}

func TestGenerateJSONReport(t *testing.T) {
	result := duplicatePairResult(t)

	cfg := DefaultReportConfig()
	cfg.Format = FormatJSON
	generator, err := NewReportGenerator(cfg)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected report error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON output does not decode: %v", err)
	}

	for _, key := range []string{
		"summary", "duplicates", "transaction_analyses", "processed_at",
		"backdated", "closing_entries", "user_activity",
	} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON output missing key %q", key)
		}
	}

	var summary struct {
		TotalTransactions int `json:"total_transactions"`
	}
	if err := json.Unmarshal(decoded["summary"], &summary); err != nil {
		t.Fatalf("summary does not decode: %v", err)
	}
	if summary.TotalTransactions != 3 {
		t.Errorf("expected 3 transactions in the summary, got %d", summary.TotalTransactions)
	}
}

func TestGenerateJSONReportMinimal(t *testing.T) {
	result := duplicatePairResult(t)

	cfg := DefaultReportConfig()
	cfg.Format = FormatJSON
	cfg.IncludeTemporalFindings = false
	cfg.IncludeUserActivity = false
	generator, err := NewReportGenerator(cfg)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected report error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON output does not decode: %v", err)
	}

	for _, key := range []string{"backdated", "holidays", "user_activity"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("disabled section %q must be omitted", key)
		}
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("unexpected generator error: %v", err)
	}

	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected an error for a nil result")
	}
}
