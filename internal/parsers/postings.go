package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"gl-audit-service/internal/models"
	auditerrors "gl-audit-service/pkg/errors"
	"gl-audit-service/pkg/logger"
)

// ParseStats summarizes one ingestion run. RecordsParsed counts rows
// read, RecordsValid counts postings accepted into the batch; the
// difference is recorded row by row in Errors.
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	Errors        []*auditerrors.AuditError
}

// HasErrors reports whether any rows were rejected
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

// Summary returns the error summary for the rejected rows
func (ps *ParseStats) Summary() *auditerrors.ErrorSummary {
	return auditerrors.NewErrorSummary(ps.Errors)
}

// String returns a human-readable summary of the run
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, len(ps.Errors))
}

// PostingParser reads GL posting CSV exports
type PostingParser struct {
	config *PostingParserConfig
	logger logger.Logger
}

// NewPostingParser creates a parser for GL posting exports
func NewPostingParser(config *PostingParserConfig) (*PostingParser, error) {
	if config == nil {
		config = DefaultPostingParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, auditerrors.ConfigurationError(
			auditerrors.CodeInvalidConfig, "posting_parser_config", config, err)
	}

	return &PostingParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("posting_parser"),
	}, nil
}

// ParsePostings parses a CSV file of GL postings
func (pp *PostingParser) ParsePostings(filePath string) ([]*models.GLPosting, *ParseStats, error) {
	return pp.ParsePostingsWithContext(context.Background(), filePath)
}

// ParsePostingsWithContext parses postings with cancellation support.
// Row-level problems are recorded in the stats and skipped; only file
// and header problems abort the run.
func (pp *PostingParser) ParsePostingsWithContext(ctx context.Context, filePath string) ([]*models.GLPosting, *ParseStats, error) {
	pp.logger.WithField("file_path", filePath).Info("Starting posting ingestion")

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, auditerrors.FileError(auditerrors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, auditerrors.FileError(auditerrors.CodeFilePermission, filePath, err)
		}
		return nil, nil, auditerrors.FileError(auditerrors.CodeDirectoryError, filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = pp.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	stats := &ParseStats{}
	headerMap, line, err := pp.readHeaders(reader, filePath)
	if err != nil {
		return nil, stats, err
	}

	var postings []*models.GLPosting
	for {
		select {
		case <-ctx.Done():
			pp.logger.Warn("Posting ingestion cancelled")
			return postings, stats, auditerrors.Wrap(ctx.Err(),
				auditerrors.CategoryInternal, auditerrors.CodeUnexpectedError,
				"posting ingestion cancelled")
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			stats.Errors = append(stats.Errors, auditerrors.ParseError(
				auditerrors.CodeInvalidFormat, filePath, line, "record", "", err))
			continue
		}

		if isEmptyRecord(record) {
			continue
		}
		stats.RecordsParsed++

		posting, parseErr := pp.postingFromRecord(record, headerMap, filePath, line)
		if parseErr != nil {
			pp.logger.WithError(parseErr).WithField("line", line).Warn("Skipping malformed row")
			stats.Errors = append(stats.Errors, parseErr)
			continue
		}

		postings = append(postings, posting)
		stats.RecordsValid++
	}

	stats.TotalLines = line

	pp.logger.WithFields(logger.Fields{
		"file_path":     filePath,
		"total_lines":   stats.TotalLines,
		"records_valid": stats.RecordsValid,
		"error_count":   len(stats.Errors),
	}).Info("Posting ingestion completed")

	return postings, stats, nil
}

// readHeaders reads the header row, validates required columns and
// returns the header index map plus the current line number
func (pp *PostingParser) readHeaders(reader *csv.Reader, filePath string) (map[string]int, int, error) {
	if !pp.config.HasHeader {
		return nil, 0, auditerrors.ParseError(
			auditerrors.CodeMissingColumn, filePath, 0, "headers", "",
			fmt.Errorf("header row is required for column mapping"))
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, auditerrors.ParseError(
				auditerrors.CodeInvalidFormat, filePath, 0, "headers", "",
				fmt.Errorf("file is empty"))
		}
		return nil, 0, auditerrors.ParseError(
			auditerrors.CodeInvalidFormat, filePath, 1, "headers", "", err)
	}

	headerMap := make(map[string]int, len(headers))
	for i, header := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(header))] = i
	}

	for _, required := range pp.config.RequiredHeaders() {
		if _, ok := headerMap[strings.ToLower(required)]; !ok {
			return nil, 1, auditerrors.ParseError(
				auditerrors.CodeMissingColumn, filePath, 1, required, "", nil)
		}
	}

	return headerMap, 1, nil
}

// fieldValue returns the trimmed value of a logical field, or "" when
// the column is absent or the row is short
func (pp *PostingParser) fieldValue(record []string, headerMap map[string]int, field string) string {
	index, ok := headerMap[strings.ToLower(pp.config.GetColumnName(field))]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// postingFromRecord builds a GLPosting from one CSV row
func (pp *PostingParser) postingFromRecord(record []string, headerMap map[string]int, filePath string, line int) (*models.GLPosting, *auditerrors.AuditError) {
	documentNumber := pp.fieldValue(record, headerMap, FieldDocumentNumber)
	if documentNumber == "" {
		return nil, auditerrors.DataQualityError(auditerrors.CodeMissingField,
			fmt.Sprintf("%s:%d", filePath, line), pp.config.GetColumnName(FieldDocumentNumber), "")
	}

	id := pp.fieldValue(record, headerMap, FieldID)
	if id == "" {
		// Exports without a surrogate key get a synthetic row-scoped one
		id = fmt.Sprintf("%s-%d", documentNumber, line)
	}

	posting, err := models.CreatePostingFromFields(
		id,
		pp.fieldValue(record, headerMap, FieldGLAccount),
		pp.fieldValue(record, headerMap, FieldAmount),
		pp.fieldValue(record, headerMap, FieldTransactionType),
		pp.fieldValue(record, headerMap, FieldUserName),
		pp.fieldValue(record, headerMap, FieldPostingDate),
		pp.fieldValue(record, headerMap, FieldDocumentDate),
	)
	if err != nil {
		return nil, auditerrors.ParseError(auditerrors.CodeInvalidData,
			filePath, line, pp.config.GetColumnName(FieldAmount),
			pp.fieldValue(record, headerMap, FieldAmount), err)
	}

	posting.DocumentNumber = documentNumber
	posting.Currency = pp.fieldValue(record, headerMap, FieldCurrency)
	posting.DocumentType = strings.ToUpper(pp.fieldValue(record, headerMap, FieldDocumentType))
	posting.Text = pp.fieldValue(record, headerMap, FieldText)
	posting.FiscalYear = pp.fieldValue(record, headerMap, FieldFiscalYear)
	posting.PostingPeriod = pp.fieldValue(record, headerMap, FieldPostingPeriod)
	posting.ProfitCenter = pp.fieldValue(record, headerMap, FieldProfitCenter)
	posting.CostCenter = pp.fieldValue(record, headerMap, FieldCostCenter)

	return posting, nil
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
