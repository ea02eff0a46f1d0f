package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/output"
	"github.com/rumor-ml/homeledger/internal/pipeline"
	"github.com/rumor-ml/homeledger/internal/statement"
	"github.com/rumor-ml/homeledger/internal/store"
	"github.com/rumor-ml/homeledger/internal/ui"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")

	dbPath   = flag.String("db", "homeledger.db", "Path to the ledger database")
	inputDir = flag.String("input", "", "Input directory containing statements")
	fileFlag = flag.String("file", "", "Single statement file to import")
	account  = flag.String("account", "", "Account ID to import into (default: the Primary account)")
	verbose  = flag.Bool("verbose", false, "Show detailed import logs")

	outputFile = flag.String("output", "", "Output JSON report file (default: stdout summary only)")

	// CSV column mapping for header-less files.
	dateCol       = flag.Int("date-col", -1, "CSV date column index for header-less files")
	amountCol     = flag.Int("amount-col", -1, "CSV amount column index for header-less files")
	descCol       = flag.Int("desc-col", -1, "CSV description column index for header-less files")
	categoryCol   = flag.Int("category-col", -1, "CSV category column index (optional)")
	externalIDCol = flag.Int("external-id-col", -1, "CSV external id column index (optional)")
	saveMapping   = flag.Bool("save-mapping", false, "Remember the CSV mapping for the account")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `homeledger-import - Statement importer for the homeledger database

Usage:
  homeledger-import [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Import all statements under a directory
  homeledger-import -db ledger.db -input ~/statements

  # Import one header-less CSV with an explicit column mapping
  homeledger-import -db ledger.db -file export.csv -date-col 0 -amount-col 1 -desc-col 2

  # Write the full JSON report to a file
  homeledger-import -db ledger.db -input ~/statements -output report.json

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("homeledger-import version %s\n", version)
		os.Exit(0)
	}

	if *inputDir == "" && *fileFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: -input or -file is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.Nop()
	if *verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	mapping, err := mappingFromFlags()
	if err != nil {
		return err
	}

	if !*verbose {
		ui.Header("Importing Financial Statements")
		ui.Step(1, 3, "Opening database")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", *dbPath, err)
	}
	defer db.Close()
	st := store.New(db)

	var accountID *string
	if *account != "" {
		accountID = account
	}

	p := pipeline.New(importer.New(st, log), log)

	if !*verbose {
		ui.Step(2, 3, "Importing statements")
	}

	opts := pipeline.Options{
		InputDir:    *inputDir,
		File:        *fileFlag,
		AccountID:   accountID,
		Mapping:     mapping,
		SaveMapping: *saveMapping,
	}
	if *verbose {
		opts.Progress = func(current, total int, file string) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", current, total, file)
		}
	}

	report, err := p.Run(ctx, opts)
	if err != nil {
		return err
	}

	if !*verbose {
		ui.Step(3, 3, "Writing report")
	}

	if *outputFile != "" {
		if err := output.WriteReportToFile(report, output.WriteOptions{FilePath: *outputFile}); err != nil {
			return err
		}
	}

	printSummary(report)
	return nil
}

// mappingFromFlags builds the CSV column mapping from the -*-col flags.
// Providing any index requires at least date, amount and description.
func mappingFromFlags() (*statement.ColumnMapping, error) {
	provided := *dateCol >= 0 || *amountCol >= 0 || *descCol >= 0 || *categoryCol >= 0 || *externalIDCol >= 0
	if !provided {
		return nil, nil
	}
	if *dateCol < 0 || *amountCol < 0 || *descCol < 0 {
		return nil, fmt.Errorf("-date-col, -amount-col and -desc-col are all required when providing a CSV mapping")
	}

	mapping := &statement.ColumnMapping{
		DateColumnIndex:        *dateCol,
		AmountColumnIndex:      *amountCol,
		DescriptionColumnIndex: *descCol,
	}
	if *categoryCol >= 0 {
		mapping.CategoryColumnIndex = categoryCol
	}
	if *externalIDCol >= 0 {
		mapping.ExternalIDColumnIndex = externalIDCol
	}
	return mapping, nil
}

func printSummary(report *pipeline.Report) {
	ui.Success(fmt.Sprintf("Processed %d statement files", report.ScannedFiles))
	ui.Info(fmt.Sprintf("  Inserted:           %d", report.Inserted))
	ui.Info(fmt.Sprintf("  Skipped duplicates: %d", report.SkippedDuplicates))
	if report.ParseErrors > 0 {
		ui.Warning(fmt.Sprintf("  Parse errors:       %d", report.ParseErrors))
	}
	if report.Warnings > 0 {
		ui.YellowText(fmt.Sprintf("  Warnings:           %d", report.Warnings))
	}
	for _, result := range report.Results {
		switch result.Status {
		case pipeline.StatusMappingRequired:
			ui.Warning(fmt.Sprintf("%s needs a CSV column mapping; rerun with -date-col, -amount-col and -desc-col",
				filepath.Base(result.File)))
		case pipeline.StatusFailed:
			ui.Error(fmt.Sprintf("%s failed: %s", filepath.Base(result.File), result.Error))
		}
	}
}
