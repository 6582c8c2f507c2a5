package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gl-audit-service/cmd/glaudit/config"
	"gl-audit-service/internal/mlmodel"
	"gl-audit-service/internal/parsers"
	"gl-audit-service/internal/reporter"
	"gl-audit-service/internal/risk"
	"gl-audit-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the analyze command
var (
	postingsFile  string
	outputFormat  string
	outputFile    string
	drilldownFile string

	profile            string
	duplicateThreshold int
	closingDaysBefore  int
	closingDaysAfter   int
	backdatedGraceDays int
	deviationFactor    float64
	highValueThreshold string
	auditStart         string
	auditEnd           string
	holidayDates       []string

	trainModel   bool
	forceRetrain bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a GL posting export for audit anomalies",
	Long: `Analyze runs the full detection pipeline over a GL posting CSV export:
six-type duplicate classification, backdated and closing-period checks,
non-business day and holiday checks, and per-user volume analysis. Each
posting receives a combined risk score and level.

Examples:
  # Basic analysis with console output
  glaudit analyze --postings gl_export.csv

  # JSON findings plus a duplicate drilldown CSV
  glaudit analyze --postings gl_export.csv \
    --output-format json --output-file findings.json \
    --drilldown-file duplicates.csv

  # Strict profile with an engagement window and custom holidays
  glaudit analyze --postings gl_export.csv --profile strict \
    --audit-start 2026-01-01 --audit-end 2026-12-31 \
    --holiday 2026-04-03 --holiday 2026-04-06

  # Train the duplicate model and enrich group output
  glaudit analyze --postings gl_export.csv --train-model`,

	PreRunE: validateAnalyzeFlags,
	RunE:    runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&postingsFile, "postings", "p", "", "path to GL posting CSV export (required)")

	analyzeCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	analyzeCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	analyzeCmd.Flags().StringVar(&drilldownFile, "drilldown-file", "", "write the duplicate drilldown CSV to this path")

	analyzeCmd.Flags().StringVar(&profile, "profile", "default", "detection profile: default, strict, relaxed")
	analyzeCmd.Flags().IntVarP(&duplicateThreshold, "duplicate-threshold", "t", 0, "minimum group size for duplicate reporting (profile default if 0)")
	analyzeCmd.Flags().IntVar(&closingDaysBefore, "closing-days-before", -1, "closing window days before month end (profile default if negative)")
	analyzeCmd.Flags().IntVar(&closingDaysAfter, "closing-days-after", -1, "closing window days after month end (profile default if negative)")
	analyzeCmd.Flags().IntVar(&backdatedGraceDays, "backdated-grace-days", -1, "days a posting may lag its document date (profile default if negative)")
	analyzeCmd.Flags().Float64Var(&deviationFactor, "deviation-factor", 0, "user anomaly z-score multiplier (profile default if 0)")
	analyzeCmd.Flags().StringVar(&highValueThreshold, "high-value", "", "high value amount threshold (profile default if empty)")
	analyzeCmd.Flags().StringVar(&auditStart, "audit-start", "", "audit window start date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&auditEnd, "audit-end", "", "audit window end date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringArrayVar(&holidayDates, "holiday", nil, "holiday date (YYYY-MM-DD), repeatable")

	analyzeCmd.Flags().BoolVar(&trainModel, "train-model", false, "train the duplicate model and enrich group output")
	analyzeCmd.Flags().BoolVar(&forceRetrain, "force-retrain", false, "retrain even when the dataset is unchanged")

	analyzeCmd.MarkFlagRequired("postings")

	viper.BindPFlag("postings", analyzeCmd.Flags().Lookup("postings"))
	viper.BindPFlag("output-format", analyzeCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", analyzeCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("drilldown-file", analyzeCmd.Flags().Lookup("drilldown-file"))
	viper.BindPFlag("profile", analyzeCmd.Flags().Lookup("profile"))
	viper.BindPFlag("duplicate-threshold", analyzeCmd.Flags().Lookup("duplicate-threshold"))
	viper.BindPFlag("closing-days-before", analyzeCmd.Flags().Lookup("closing-days-before"))
	viper.BindPFlag("closing-days-after", analyzeCmd.Flags().Lookup("closing-days-after"))
	viper.BindPFlag("backdated-grace-days", analyzeCmd.Flags().Lookup("backdated-grace-days"))
	viper.BindPFlag("deviation-factor", analyzeCmd.Flags().Lookup("deviation-factor"))
	viper.BindPFlag("high-value", analyzeCmd.Flags().Lookup("high-value"))
	viper.BindPFlag("audit-start", analyzeCmd.Flags().Lookup("audit-start"))
	viper.BindPFlag("audit-end", analyzeCmd.Flags().Lookup("audit-end"))
	viper.BindPFlag("train-model", analyzeCmd.Flags().Lookup("train-model"))
	viper.BindPFlag("force-retrain", analyzeCmd.Flags().Lookup("force-retrain"))
}

func validateAnalyzeFlags(cmd *cobra.Command, args []string) error {
	postingsFile = viper.GetString("postings")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	drilldownFile = viper.GetString("drilldown-file")
	profile = viper.GetString("profile")
	trainModel = viper.GetBool("train-model")
	forceRetrain = viper.GetBool("force-retrain")

	if postingsFile == "" {
		return fmt.Errorf("postings file is required")
	}
	if err := validateFileExists(postingsFile, "posting export"); err != nil {
		return err
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	validProfiles := map[string]bool{"default": true, "strict": true, "relaxed": true}
	if !validProfiles[profile] {
		return fmt.Errorf("invalid profile '%s'. Valid profiles: default, strict, relaxed", profile)
	}

	for _, flag := range []struct{ name, value string }{
		{"audit-start", auditStart},
		{"audit-end", auditEnd},
	} {
		if flag.value != "" {
			if _, err := time.Parse("2006-01-02", flag.value); err != nil {
				return fmt.Errorf("invalid %s format. Use YYYY-MM-DD: %w", flag.name, err)
			}
		}
	}
	for _, holiday := range holidayDates {
		if _, err := time.Parse("2006-01-02", holiday); err != nil {
			return fmt.Errorf("invalid holiday date format. Use YYYY-MM-DD: %w", err)
		}
	}

	for _, path := range []string{outputFile, drilldownFile} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger()

	analysisConfig, err := config.CreateAnalysisConfig(config.AnalysisOptions{
		Profile:            profile,
		DuplicateThreshold: duplicateThreshold,
		ClosingDaysBefore:  closingDaysBefore,
		ClosingDaysAfter:   closingDaysAfter,
		BackdatedGraceDays: backdatedGraceDays,
		DeviationFactor:    deviationFactor,
		HighValueThreshold: highValueThreshold,
		AuditStart:         auditStart,
		AuditEnd:           auditEnd,
		HolidayDates:       holidayDates,
	})
	if err != nil {
		return err
	}

	parser, err := parsers.NewPostingParser(config.CreatePostingParserConfig())
	if err != nil {
		return err
	}

	postings, stats, err := parser.ParsePostings(postingsFile)
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Parsed %s: %s\n", postingsFile, stats)
	}
	if stats.HasErrors() {
		fmt.Fprintf(os.Stderr, "Warning: %d rows skipped during ingestion\n", len(stats.Errors))
	}

	engine, err := risk.NewEngine(analysisConfig, log)
	if err != nil {
		return err
	}

	result, err := engine.Analyze(postings)
	if err != nil {
		return err
	}

	if trainModel {
		model := mlmodel.NewDuplicateModel(log)
		trainingResult, err := model.Train(postings, result.Duplicates,
			mlmodel.TrainOptions{ForceRetrain: forceRetrain})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Model training: %s", trainingResult.Status)
		if trainingResult.Reason != "" {
			fmt.Fprintf(os.Stderr, " (%s)", trainingResult.Reason)
		}
		fmt.Fprintf(os.Stderr, "\n")

		if trainingResult.Status == mlmodel.TrainingCompleted ||
			trainingResult.Status == mlmodel.TrainingUnchanged {
			if err := model.EnrichGroups(result.Duplicates); err != nil {
				return err
			}
		}
	}

	reportGenerator, err := reporter.NewReportGenerator(config.CreateReportConfig(outputFormat))
	if err != nil {
		return err
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := reportGenerator.GenerateReport(result, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if drilldownFile != "" {
		drilldown, err := os.Create(drilldownFile)
		if err != nil {
			return fmt.Errorf("failed to create drilldown file: %w", err)
		}
		defer drilldown.Close()

		if err := reportGenerator.GenerateDuplicateDrilldown(result.Duplicates, drilldown); err != nil {
			return fmt.Errorf("failed to write duplicate drilldown: %w", err)
		}
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nAnalysis completed in %v.\n", result.Duration)
		fmt.Fprintf(os.Stderr, "%d transactions, %d duplicate groups, %d flagged.\n",
			result.Summary.TotalTransactions, result.Summary.TotalDuplicateGroups,
			result.Summary.FlaggedTransactions)
	}

	return nil
}
