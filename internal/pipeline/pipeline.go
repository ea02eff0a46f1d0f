// Package pipeline orchestrates batch statement imports for the CLI: it
// scans for files, runs each through the importer and aggregates results.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/scanner"
	"github.com/rumor-ml/homeledger/internal/statement"
)

// Per-file outcome statuses.
const (
	StatusCompleted       = "COMPLETED"
	StatusMappingRequired = "HEADER_MAPPING_REQUIRED"
	StatusFailed          = "FAILED"
)

// Options configures a pipeline run. Exactly one of InputDir or File must be
// set.
type Options struct {
	InputDir    string
	File        string
	AccountID   *string
	Mapping     *statement.ColumnMapping
	SaveMapping bool

	// Progress, when set, is called before each file is imported.
	Progress func(current, total int, file string)
}

// FileResult is the outcome of importing one statement file.
type FileResult struct {
	File                string                   `json:"file"`
	AccountHint         string                   `json:"accountHint,omitempty"`
	Period              string                   `json:"period,omitempty"`
	Status              string                   `json:"status"`
	Summary             *importer.Summary        `json:"summary,omitempty"`
	HeaderMappingPrompt *statement.MappingPrompt `json:"headerMappingPrompt,omitempty"`
	Error               string                   `json:"error,omitempty"`
}

// Report aggregates a full pipeline run.
type Report struct {
	ScannedFiles      int          `json:"scannedFiles"`
	Completed         int          `json:"completed"`
	MappingRequired   int          `json:"mappingRequired"`
	Failed            int          `json:"failed"`
	Inserted          int          `json:"inserted"`
	SkippedDuplicates int          `json:"skippedDuplicates"`
	ParseErrors       int          `json:"parseErrors"`
	Warnings          int          `json:"warnings"`
	Results           []FileResult `json:"results"`
}

// Pipeline runs statement files through the importer.
type Pipeline struct {
	importer *importer.Importer
	log      zerolog.Logger
}

func New(imp *importer.Importer, log zerolog.Logger) *Pipeline {
	return &Pipeline{importer: imp, log: log.With().Str("component", "pipeline").Logger()}
}

// Run imports every statement file named by opts and returns the aggregated
// report. A file that fails to import is recorded in the report and does not
// stop the run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	files, err := p.collect(opts)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ScannedFiles: len(files),
		Results:      make([]FileResult, 0, len(files)),
	}

	for i, file := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(files), file.Path)
		}

		result := p.importFile(ctx, file, opts)
		report.Results = append(report.Results, result)

		switch result.Status {
		case StatusCompleted:
			report.Completed++
			report.Inserted += result.Summary.Inserted
			report.SkippedDuplicates += result.Summary.SkippedDuplicates
			report.ParseErrors += len(result.Summary.ParseErrors)
			report.Warnings += len(result.Summary.Warnings)
		case StatusMappingRequired:
			report.MappingRequired++
		case StatusFailed:
			report.Failed++
		}
	}

	return report, nil
}

// collect resolves the run's file list from either a single file or a
// directory scan.
func (p *Pipeline) collect(opts Options) ([]scanner.ScanResult, error) {
	if opts.File != "" && opts.InputDir != "" {
		return nil, fmt.Errorf("provide either a file or an input directory, not both")
	}

	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return nil, fmt.Errorf("statement file %s: %w", opts.File, err)
		}
		return []scanner.ScanResult{{Path: opts.File}}, nil
	}

	if opts.InputDir == "" {
		return nil, fmt.Errorf("an input directory or file is required")
	}
	return scanner.New(opts.InputDir).Scan()
}

func (p *Pipeline) importFile(ctx context.Context, file scanner.ScanResult, opts Options) FileResult {
	result := FileResult{
		File:        file.Path,
		AccountHint: file.AccountHint,
		Period:      file.Period,
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		p.log.Error().Err(err).Str("file", file.Path).Msg("failed to read statement file")
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	outcome, err := p.importer.ImportStatement(ctx, importer.StatementRequest{
		AccountID:   opts.AccountID,
		FileName:    filepath.Base(file.Path),
		Content:     content,
		Mapping:     opts.Mapping,
		SaveMapping: opts.SaveMapping,
	})
	if err != nil {
		p.log.Error().Err(err).Str("file", file.Path).Msg("import failed")
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	if outcome.HeaderMappingPrompt != nil {
		result.Status = StatusMappingRequired
		result.HeaderMappingPrompt = outcome.HeaderMappingPrompt
		return result
	}

	result.Status = StatusCompleted
	result.Summary = outcome.Summary
	return result
}
