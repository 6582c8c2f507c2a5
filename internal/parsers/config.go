// Package parsers handles ingestion of GL posting exports into the
// in-memory batch the detectors operate on.
//
// The parsers are resilient by design: a malformed row produces a typed
// error recorded against that row and the batch continues. Callers get
// the parsed postings plus a ParseStats describing exactly what was
// skipped and why.
package parsers

import (
	"fmt"
	"strings"
)

// PostingParserConfig configures ingestion of a GL posting CSV export.
// ColumnMapping maps logical field names to the header names used in
// the file, so exports from differently configured systems can be read
// without reshaping the file.
type PostingParserConfig struct {
	HasHeader     bool              `json:"has_header"`
	Delimiter     rune              `json:"delimiter"`
	ColumnMapping map[string]string `json:"column_mapping"`
}

// Logical field names understood by the posting parser
const (
	FieldID              = "id"
	FieldDocumentNumber  = "document_number"
	FieldGLAccount       = "gl_account"
	FieldAmount          = "amount"
	FieldTransactionType = "transaction_type"
	FieldCurrency        = "currency"
	FieldUserName        = "user_name"
	FieldPostingDate     = "posting_date"
	FieldDocumentDate    = "document_date"
	FieldDocumentType    = "document_type"
	FieldText            = "text"
	FieldFiscalYear      = "fiscal_year"
	FieldPostingPeriod   = "posting_period"
	FieldProfitCenter    = "profit_center"
	FieldCostCenter      = "cost_center"
)

// DefaultPostingParserConfig returns the column mapping matching the
// standard GL line-item export headers
func DefaultPostingParserConfig() *PostingParserConfig {
	return &PostingParserConfig{
		HasHeader: true,
		Delimiter: ',',
		ColumnMapping: map[string]string{
			FieldID:              "Transaction_ID",
			FieldDocumentNumber:  "Document_Number",
			FieldGLAccount:       "GL_Account",
			FieldAmount:          "Amount",
			FieldTransactionType: "Transaction_Type",
			FieldCurrency:        "Local_Currency",
			FieldUserName:        "User_Name",
			FieldPostingDate:     "Posting_Date",
			FieldDocumentDate:    "Document_Date",
			FieldDocumentType:    "Document_Type",
			FieldText:            "Text",
			FieldFiscalYear:      "Fiscal_Year",
			FieldPostingPeriod:   "Posting_Period",
			FieldProfitCenter:    "Profit_Center",
			FieldCostCenter:      "Cost_Center",
		},
	}
}

// Validate checks if the parser configuration is valid
func (c *PostingParserConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}

	required := []string{FieldDocumentNumber, FieldGLAccount, FieldAmount, FieldPostingDate}
	for _, field := range required {
		header, ok := c.ColumnMapping[field]
		if !ok || strings.TrimSpace(header) == "" {
			return fmt.Errorf("column mapping for required field '%s' is missing", field)
		}
	}

	return nil
}

// GetColumnName returns the configured header name for a logical field.
// Unmapped fields fall back to the logical name itself.
func (c *PostingParserConfig) GetColumnName(field string) string {
	if header, ok := c.ColumnMapping[field]; ok && header != "" {
		return header
	}
	return field
}

// RequiredHeaders returns the header names that must be present in the
// file for parsing to start
func (c *PostingParserConfig) RequiredHeaders() []string {
	return []string{
		c.GetColumnName(FieldDocumentNumber),
		c.GetColumnName(FieldGLAccount),
		c.GetColumnName(FieldAmount),
		c.GetColumnName(FieldPostingDate),
	}
}
