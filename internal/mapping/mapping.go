// Package mapping loads the platform mapping table that assigns each
// consortium library its platform identifier within every dataset.
package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jgoulah/usagereports/pkg/models"
)

// ErrMissingColumn is returned when the mapping header lacks a required column
var ErrMissingColumn = errors.New("mapping file is missing a required column")

const (
	colLibraryName   = "library_name"
	colLibraryAbbrev = "library_abbreviation"
	colDatasetID     = "dataset_id"
	colPlatformID    = "platform_id"
	colReportType    = "report_type"
	colVendorName    = "vendor_name"
	colVendorAbbrev  = "vendor_abbreviation"
)

var requiredColumns = []string{
	colLibraryName,
	colLibraryAbbrev,
	colDatasetID,
	colPlatformID,
	colReportType,
}

// Table is the loaded mapping, one entry per CSV row in file order
type Table struct {
	rows []models.Organization
}

// Load reads the mapping CSV at path
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a mapping CSV. Column order does not matter; header names are
// matched case-insensitively.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: file is empty", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("reading mapping header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	t := &Table{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mapping row: %w", err)
		}

		org := models.Organization{
			Name:         field(record, colLibraryName),
			Abbreviation: field(record, colLibraryAbbrev),
			DatasetID:    normalizeID(field(record, colDatasetID)),
			PlatformID:   normalizeID(field(record, colPlatformID)),
			ReportType:   field(record, colReportType),
			VendorName:   field(record, colVendorName),
			VendorAbbrev: field(record, colVendorAbbrev),
		}
		// Blank lines and rows without the keys we join on
		if org.Abbreviation == "" || org.DatasetID == "" || org.PlatformID == "" {
			continue
		}
		t.rows = append(t.rows, org)
	}

	return t, nil
}

// Len returns the number of usable rows
func (t *Table) Len() int {
	return len(t.rows)
}

// OrganizationsForSource returns the active organizations participating in
// datasetID, one per library abbreviation in file order. When a library has
// several rows for the dataset the first one wins. Rows whose report type is
// marked inactive are excluded.
func (t *Table) OrganizationsForSource(datasetID string) []models.Organization {
	datasetID = normalizeID(datasetID)
	seen := make(map[string]bool)
	var out []models.Organization
	for _, org := range t.rows {
		if org.DatasetID != datasetID || IsInactive(org) {
			continue
		}
		if seen[org.Abbreviation] {
			continue
		}
		seen[org.Abbreviation] = true
		out = append(out, org)
	}
	return out
}

// IsInactive reports whether a mapping row is flagged inactive
func IsInactive(org models.Organization) bool {
	return strings.Contains(strings.ToLower(org.ReportType), "inactive")
}

// FilterLibraries keeps organizations whose abbreviation is in libraries,
// compared case-insensitively. An empty allow-list keeps everything.
func FilterLibraries(orgs []models.Organization, libraries []string) []models.Organization {
	if len(libraries) == 0 {
		return orgs
	}
	allow := make(map[string]bool, len(libraries))
	for _, l := range libraries {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			allow[l] = true
		}
	}
	if len(allow) == 0 {
		return orgs
	}

	var out []models.Organization
	for _, org := range orgs {
		if allow[strings.ToLower(org.Abbreviation)] {
			out = append(out, org)
		}
	}
	return out
}

// normalizeID strips a trailing ".0" left behind by spreadsheet exports
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) && strings.Contains(s, ".") {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}
