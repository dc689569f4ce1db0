package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/pkg/models"
	"go.uber.org/zap"
)

// CSVEmitter writes every export of a dataset report as a CSV file
type CSVEmitter struct {
	OutputDir     string // root of the per-organization directories
	ConsortiumDir string // directory name under OutputDir for consortium exports
	Logger        *zap.Logger
}

// NewCSVEmitter creates a CSV emitter rooted at outputDir
func NewCSVEmitter(outputDir, consortiumDir string, log *zap.Logger) *CSVEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &CSVEmitter{OutputDir: outputDir, ConsortiumDir: consortiumDir, Logger: log}
}

// OverviewPath is <out>/<org>/<org>_<dataset>_<label>.csv
func (e *CSVEmitter) OverviewPath(rep *aggregate.DatasetReport, org models.Organization) string {
	name := fmt.Sprintf("%s_%s_%s.csv", org.Abbreviation, rep.Dataset.Abbrev, rep.Period.Label)
	return filepath.Join(e.OutputDir, org.Abbreviation, name)
}

// TopItemsPath names organization exports <org>_<dataset>_<category>_top<N>_<label>.csv
// and consortium exports <dataset>_combined_<category>_top<N>_<label>.csv
func (e *CSVEmitter) TopItemsPath(rep *aggregate.DatasetReport, exp aggregate.TopItemsExport) string {
	if exp.Organization == nil {
		name := fmt.Sprintf("%s_combined_%s_top%d_%s.csv", rep.Dataset.Abbrev, exp.Category.Lower(), rep.TopN, rep.Period.Label)
		return filepath.Join(e.OutputDir, e.ConsortiumDir, name)
	}
	org := exp.Organization.Abbreviation
	name := fmt.Sprintf("%s_%s_%s_top%d_%s.csv", org, rep.Dataset.Abbrev, exp.Category.Lower(), rep.TopN, rep.Period.Label)
	return filepath.Join(e.OutputDir, org, name)
}

// SummaryPath is <out>/<consortium>/<dataset>PlatformsSummary_<label>.csv
func (e *CSVEmitter) SummaryPath(rep *aggregate.DatasetReport) string {
	name := fmt.Sprintf("%sPlatformsSummary_%s.csv", rep.Dataset.Abbrev, rep.Period.Label)
	return filepath.Join(e.OutputDir, e.ConsortiumDir, name)
}

// Emit writes the report's exports. It stops at the first failed write.
func (e *CSVEmitter) Emit(ctx context.Context, rep *aggregate.DatasetReport) error {
	log := e.Logger.With(zap.String("dataset", rep.Dataset.Name))
	written := 0

	write := func(path string, header []string, records [][]string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := WriteCSV(path, header, records); err != nil {
			return err
		}
		written++
		log.Debug("wrote export", zap.String("path", path), zap.Int("rows", len(records)))
		return nil
	}

	for _, exp := range rep.Overviews {
		if err := write(e.OverviewPath(rep, exp.Organization), OverviewHeader, OverviewRecords(exp)); err != nil {
			return err
		}
	}
	for _, exp := range rep.OrganizationItems {
		if err := write(e.TopItemsPath(rep, exp), TopItemsHeader, TopItemsRecords(exp)); err != nil {
			return err
		}
	}
	if err := write(e.SummaryPath(rep), SummaryHeader, SummaryRecords(rep.Summary)); err != nil {
		return err
	}
	for _, exp := range rep.ConsortiumItems {
		if err := write(e.TopItemsPath(rep, exp), TopItemsHeader, TopItemsRecords(exp)); err != nil {
			return err
		}
	}

	log.Info("wrote CSV exports", zap.Int("files", written), zap.String("dir", e.OutputDir))
	return nil
}

// WriteCSV writes header and records to path, creating parent directories.
// The file is written under a temporary name and renamed into place, so
// path only ever holds a complete export.
func WriteCSV(path string, header []string, records [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
