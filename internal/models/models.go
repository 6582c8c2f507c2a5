// Package models defines the general-ledger posting record and the
// normalization helpers used to coerce heterogeneous input fields
// (amount strings with currency symbols, multiple date formats) into
// typed values.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the canonical date-only format used for grouping keys
// and serialized dates throughout the engine.
const DateFormat = "2006-01-02"

// TransactionType represents the debit/credit indicator of a posting
type TransactionType string

const (
	// TransactionTypeDebit represents a debit posting
	TransactionTypeDebit TransactionType = "DEBIT"
	// TransactionTypeCredit represents a credit posting
	TransactionTypeCredit TransactionType = "CREDIT"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// GLPosting represents a single general-ledger journal line as supplied
// by the surrounding system. Amounts are always non-negative; the
// debit/credit direction is carried separately in TransactionType.
// A posting is immutable within an analysis run.
type GLPosting struct {
	ID              string          `json:"id" csv:"id"`
	DocumentNumber  string          `json:"document_number" csv:"document_number"`
	GLAccount       string          `json:"gl_account" csv:"gl_account"`
	Amount          decimal.Decimal `json:"amount" csv:"amount"`
	TransactionType TransactionType `json:"transaction_type" csv:"transaction_type"`
	Currency        string          `json:"currency" csv:"currency"`
	UserName        string          `json:"user_name" csv:"user_name"`
	PostingDate     time.Time       `json:"posting_date" csv:"posting_date"`
	DocumentDate    time.Time       `json:"document_date" csv:"document_date"`
	DocumentType    string          `json:"document_type" csv:"document_type"`
	Text            string          `json:"text" csv:"text"`
	FiscalYear      string          `json:"fiscal_year,omitempty" csv:"fiscal_year"`
	PostingPeriod   string          `json:"posting_period,omitempty" csv:"posting_period"`
	ProfitCenter    string          `json:"profit_center" csv:"profit_center"`
	CostCenter      string          `json:"cost_center" csv:"cost_center"`
}

// NewGLPosting creates a new GLPosting with the fields required by every
// detector. Optional fields are set directly on the returned value.
func NewGLPosting(id, account string, amount decimal.Decimal, txType TransactionType, userName string, postingDate time.Time) *GLPosting {
	return &GLPosting{
		ID:              id,
		GLAccount:       account,
		Amount:          amount,
		TransactionType: txType,
		UserName:        userName,
		PostingDate:     postingDate,
	}
}

// Validate performs basic validation on the posting
func (p *GLPosting) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("posting ID cannot be empty")
	}

	if !p.HasValidAmount() {
		return fmt.Errorf("posting amount must be positive, got %s", p.Amount.String())
	}

	if !p.TransactionType.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", p.TransactionType)
	}

	if p.PostingDate.IsZero() {
		return fmt.Errorf("posting date cannot be zero")
	}

	return nil
}

// HasValidAmount reports whether the posting carries a usable amount.
// Postings without one are excluded from duplicate matching but still
// reported as parse failures by the caller.
func (p *GLPosting) HasValidAmount() bool {
	return p.Amount.IsPositive()
}

// IsDebit returns true if the posting is a debit
func (p *GLPosting) IsDebit() bool {
	return p.TransactionType == TransactionTypeDebit
}

// IsCredit returns true if the posting is a credit
func (p *GLPosting) IsCredit() bool {
	return p.TransactionType == TransactionTypeCredit
}

// AccountOrMissing returns the GL account, or "MISSING" when the field
// was absent in the input. Result rows never show an empty account.
func (p *GLPosting) AccountOrMissing() string {
	if strings.TrimSpace(p.GLAccount) == "" {
		return "MISSING"
	}
	return p.GLAccount
}

// PostingDateKey returns the posting date formatted for grouping keys.
func (p *GLPosting) PostingDateKey() string {
	if p.PostingDate.IsZero() {
		return "UNKNOWN"
	}
	return p.PostingDate.Format(DateFormat)
}

// DocumentDateKey returns the document date formatted for grouping keys.
func (p *GLPosting) DocumentDateKey() string {
	if p.DocumentDate.IsZero() {
		return "UNKNOWN"
	}
	return p.DocumentDate.Format(DateFormat)
}

// String returns a string representation of the posting
func (p *GLPosting) String() string {
	return fmt.Sprintf("GLPosting{ID: %s, Account: %s, Amount: %s %s, Type: %s, User: %s, Posted: %s}",
		p.ID, p.GLAccount, p.Amount.String(), p.Currency, p.TransactionType, p.UserName,
		p.PostingDate.Format(DateFormat))
}

// MarshalJSON implements custom JSON marshaling for GLPosting
func (p *GLPosting) MarshalJSON() ([]byte, error) {
	type Alias GLPosting
	return json.Marshal(&struct {
		Amount       string `json:"amount"`
		PostingDate  string `json:"posting_date"`
		DocumentDate string `json:"document_date,omitempty"`
		*Alias
	}{
		Amount:       p.Amount.String(),
		PostingDate:  p.PostingDate.Format(DateFormat),
		DocumentDate: formatOptionalDate(p.DocumentDate),
		Alias:        (*Alias)(p),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for GLPosting
func (p *GLPosting) UnmarshalJSON(data []byte) error {
	type Alias GLPosting
	aux := &struct {
		Amount       string `json:"amount"`
		PostingDate  string `json:"posting_date"`
		DocumentDate string `json:"document_date"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	p.Amount, err = ParseAmount(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	p.PostingDate, err = ParseDate(aux.PostingDate)
	if err != nil {
		return fmt.Errorf("invalid posting date format: %w", err)
	}

	if strings.TrimSpace(aux.DocumentDate) != "" {
		p.DocumentDate, err = ParseDate(aux.DocumentDate)
		if err != nil {
			return fmt.Errorf("invalid document date format: %w", err)
		}
	}

	return nil
}

func formatOptionalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateFormat)
}

// Normalization helpers

// ParseAmount parses a monetary amount from a raw input string. Currency
// symbols, thousands separators and accounting-style parentheses for
// negatives are tolerated. The sign is preserved; callers that need the
// non-negative convention pair the absolute value with a TransactionType.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Strip common currency markers and thousands separators
	for _, sym := range []string{"$", "€", "£", "SAR", "USD", "EUR", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Neg()
	}

	return d, nil
}

// ParseTransactionType parses and validates a debit/credit indicator
// from string, accepting the abbreviations found in GL exports.
func ParseTransactionType(s string) (TransactionType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	switch s {
	case "DEBIT", "D", "DR", "S": // "S" is the SAP Soll (debit) indicator
		return TransactionTypeDebit, nil
	case "CREDIT", "C", "CR", "H": // "H" is the SAP Haben (credit) indicator
		return TransactionTypeCredit, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be DEBIT or CREDIT", s)
	}
}

// ParseDate attempts to parse a date from string using the formats
// commonly produced by GL exports.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateFormat,            // "2006-01-02"
		time.RFC3339,          // "2006-01-02T15:04:05Z07:00"
		"2006-01-02 15:04:05", // "2006-01-02 15:04:05"
		"2006-01-02T15:04:05", // "2006-01-02T15:04:05"
		"02.01.2006",          // "02.01.2006" (SAP default)
		"01/02/2006",          // "01/02/2006"
		"2006/01/02",          // "2006/01/02"
		"02-01-2006",          // "02-01-2006"
		"20060102",            // "20060102" (compact)
		"Jan 2, 2006",         // "Jan 2, 2006"
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// NormalizeAccount cleans and normalizes a GL account identifier.
// Leading zeros are significant in SAP account numbers and are kept.
func NormalizeAccount(account string) string {
	return strings.ToUpper(strings.TrimSpace(account))
}

// NormalizeUser cleans a user name for grouping and statistics.
func NormalizeUser(user string) string {
	normalized := strings.ToUpper(strings.TrimSpace(user))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

// CreatePostingFromFields creates a GLPosting from raw string field
// values, applying all normalization helpers. Optional fields that fail
// to parse are left at their zero value; required fields return errors.
func CreatePostingFromFields(id, account, amountStr, typeStr, user, postingDateStr, documentDateStr string) (*GLPosting, error) {
	amount, err := ParseAmount(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	txType, err := ParseTransactionType(typeStr)
	if err != nil {
		// Fall back to the amount sign when no explicit indicator exists
		if amount.IsNegative() {
			txType = TransactionTypeCredit
		} else {
			txType = TransactionTypeDebit
		}
	}

	postingDate, err := ParseDate(postingDateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid posting date: %w", err)
	}

	posting := NewGLPosting(strings.TrimSpace(id), NormalizeAccount(account), amount.Abs(), txType,
		NormalizeUser(user), postingDate)

	// Document date is optional; a malformed value excludes the posting
	// from date-based duplicate keys but not from the batch
	if documentDate, err := ParseDate(documentDateStr); err == nil {
		posting.DocumentDate = documentDate
	}

	if err := posting.Validate(); err != nil {
		return nil, fmt.Errorf("invalid posting data: %w", err)
	}

	return posting, nil
}
