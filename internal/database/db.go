package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/pkg/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// SummaryRecord is a stored consortium summary row. Organization is empty
// on the TOTAL row.
type SummaryRecord struct {
	ID           int
	RunID        string
	PeriodLabel  string
	Dataset      string
	Organization string
	Library      string
	PlatformName string
	models.OverviewCounters
	CreatedAt time.Time
}

// IsTotal reports whether this is the dataset's TOTAL row
func (r SummaryRecord) IsTotal() bool {
	return r.Organization == ""
}

// TopItemRecord is a stored ranked item. Organization is empty for the
// consortium merged list.
type TopItemRecord struct {
	Organization string
	Category     models.Category
	Rank         int
	models.ItemUsageRecord
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite allows one writer at a time
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS overview_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		period_label TEXT NOT NULL,
		dataset TEXT NOT NULL,
		organization TEXT NOT NULL,
		category TEXT NOT NULL,
		searches_platform INTEGER NOT NULL,
		total_item_investigations INTEGER NOT NULL,
		total_item_requests INTEGER NOT NULL,
		unique_item_investigations INTEGER NOT NULL,
		unique_item_requests INTEGER NOT NULL,
		unique_title_investigations INTEGER NOT NULL,
		unique_title_requests INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_overview_scope ON overview_rows(period_label, dataset);

	CREATE TABLE IF NOT EXISTS top_item_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		period_label TEXT NOT NULL,
		dataset TEXT NOT NULL,
		organization TEXT NOT NULL,
		category TEXT NOT NULL,
		rank INTEGER NOT NULL,
		title TEXT NOT NULL,
		publisher TEXT,
		isbn TEXT,
		doi TEXT,
		total_item_investigations INTEGER NOT NULL,
		unique_item_investigations INTEGER NOT NULL,
		unique_title_investigations INTEGER NOT NULL,
		total_item_requests INTEGER NOT NULL,
		unique_item_requests INTEGER NOT NULL,
		unique_title_requests INTEGER NOT NULL,
		searches_platform INTEGER NOT NULL,
		searches_regular INTEGER NOT NULL,
		searches_federated INTEGER NOT NULL,
		searches_automated INTEGER NOT NULL,
		no_license INTEGER NOT NULL,
		limit_exceeded INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_top_item_scope ON top_item_rows(period_label, dataset);

	CREATE TABLE IF NOT EXISTS summary_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		period_label TEXT NOT NULL,
		dataset TEXT NOT NULL,
		organization TEXT NOT NULL,
		library TEXT NOT NULL,
		platform_name TEXT NOT NULL,
		searches_platform INTEGER NOT NULL,
		total_item_investigations INTEGER NOT NULL,
		total_item_requests INTEGER NOT NULL,
		unique_item_investigations INTEGER NOT NULL,
		unique_item_requests INTEGER NOT NULL,
		unique_title_investigations INTEGER NOT NULL,
		unique_title_requests INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_summary_scope ON summary_rows(period_label, dataset);
	CREATE INDEX IF NOT EXISTS idx_summary_published ON summary_rows(published);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Exporter returns an emitter that stores reports stamped with runID
func (db *DB) Exporter(runID string, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{db: db, runID: runID, log: log}
}

// Exporter stores dataset reports. Each Emit replaces everything previously
// stored for the same period label and dataset.
type Exporter struct {
	db    *DB
	runID string
	log   *zap.Logger
}

// Emit stores the report in a single transaction
func (e *Exporter) Emit(ctx context.Context, rep *aggregate.DatasetReport) error {
	tx, err := e.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	label, dataset := rep.Period.Label, rep.Dataset.Abbrev
	createdAt := time.Now().UTC().Format(time.RFC3339)

	for _, table := range []string{"overview_rows", "top_item_rows", "summary_rows"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE period_label = ? AND dataset = ?`, label, dataset); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	overviews := 0
	for _, exp := range rep.Overviews {
		if exp.Placeholder {
			continue
		}
		for _, row := range exp.Rows {
			c := row.OverviewCounters
			_, err := tx.ExecContext(ctx, `
			INSERT INTO overview_rows (run_id, period_label, dataset, organization, category,
				searches_platform, total_item_investigations, total_item_requests, unique_item_investigations,
				unique_item_requests, unique_title_investigations, unique_title_requests, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.runID, label, dataset, exp.Organization.Abbreviation, row.Category,
				c.SearchesPlatform, c.TotalItemInvestigations, c.TotalItemRequests, c.UniqueItemInvestigations,
				c.UniqueItemRequests, c.UniqueTitleInvestigations, c.UniqueTitleRequests, createdAt)
			if err != nil {
				return fmt.Errorf("inserting overview row: %w", err)
			}
			overviews++
		}
	}

	items := 0
	insertItems := func(exports []aggregate.TopItemsExport) error {
		for _, exp := range exports {
			org := ""
			if exp.Organization != nil {
				org = exp.Organization.Abbreviation
			}
			for i, it := range exp.Items {
				c := it.ItemCounters
				_, err := tx.ExecContext(ctx, `
				INSERT INTO top_item_rows (run_id, period_label, dataset, organization, category, rank,
					title, publisher, isbn, doi,
					total_item_investigations, unique_item_investigations, unique_title_investigations,
					total_item_requests, unique_item_requests, unique_title_requests,
					searches_platform, searches_regular, searches_federated, searches_automated,
					no_license, limit_exceeded, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					e.runID, label, dataset, org, string(exp.Category), i+1,
					it.Title, it.Publisher, it.ISBN, it.DOI,
					c.TotalItemInvestigations, c.UniqueItemInvestigations, c.UniqueTitleInvestigations,
					c.TotalItemRequests, c.UniqueItemRequests, c.UniqueTitleRequests,
					c.SearchesPlatform, c.SearchesRegular, c.SearchesFederated, c.SearchesAutomated,
					c.NoLicense, c.LimitExceeded, createdAt)
				if err != nil {
					return fmt.Errorf("inserting top item row: %w", err)
				}
				items++
			}
		}
		return nil
	}
	if err := insertItems(rep.OrganizationItems); err != nil {
		return err
	}
	if err := insertItems(rep.ConsortiumItems); err != nil {
		return err
	}

	summaryRows := append(append([]aggregate.SummaryRow(nil), rep.Summary.Rows...), rep.Summary.Total)
	for _, row := range summaryRows {
		c := row.OverviewCounters
		_, err := tx.ExecContext(ctx, `
		INSERT INTO summary_rows (run_id, period_label, dataset, organization, library, platform_name,
			searches_platform, total_item_investigations, total_item_requests, unique_item_investigations,
			unique_item_requests, unique_title_investigations, unique_title_requests, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.runID, label, dataset, row.Organization, row.Library, row.PlatformName,
			c.SearchesPlatform, c.TotalItemInvestigations, c.TotalItemRequests, c.UniqueItemInvestigations,
			c.UniqueItemRequests, c.UniqueTitleInvestigations, c.UniqueTitleRequests, createdAt)
		if err != nil {
			return fmt.Errorf("inserting summary row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	e.log.Info("stored dataset report",
		zap.String("dataset", rep.Dataset.Name),
		zap.String("period", label),
		zap.Int("overview_rows", overviews),
		zap.Int("top_item_rows", items),
		zap.Int("summary_rows", len(summaryRows)),
	)
	return nil
}

const summaryColumns = `id, run_id, period_label, dataset, organization, library, platform_name,
	searches_platform, total_item_investigations, total_item_requests, unique_item_investigations,
	unique_item_requests, unique_title_investigations, unique_title_requests, created_at`

func scanSummary(rows *sql.Rows) (SummaryRecord, error) {
	var r SummaryRecord
	var createdAt string
	err := rows.Scan(&r.ID, &r.RunID, &r.PeriodLabel, &r.Dataset, &r.Organization, &r.Library, &r.PlatformName,
		&r.SearchesPlatform, &r.TotalItemInvestigations, &r.TotalItemRequests, &r.UniqueItemInvestigations,
		&r.UniqueItemRequests, &r.UniqueTitleInvestigations, &r.UniqueTitleRequests, &createdAt)
	if err != nil {
		return r, fmt.Errorf("scanning row: %w", err)
	}
	r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return r, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

func (db *DB) querySummary(ctx context.Context, query string, args ...any) ([]SummaryRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying summary rows: %w", err)
	}
	defer rows.Close()

	var results []SummaryRecord
	for rows.Next() {
		r, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListSummary retrieves the stored summary of one dataset and period, TOTAL row last
func (db *DB) ListSummary(ctx context.Context, periodLabel, dataset string) ([]SummaryRecord, error) {
	return db.querySummary(ctx, `
	SELECT `+summaryColumns+`
	FROM summary_rows
	WHERE period_label = ? AND dataset = ?
	ORDER BY id`, periodLabel, dataset)
}

// ListUnpublishedSummary retrieves all summary rows not yet published
func (db *DB) ListUnpublishedSummary(ctx context.Context) ([]SummaryRecord, error) {
	return db.querySummary(ctx, `
	SELECT `+summaryColumns+`
	FROM summary_rows
	WHERE published = 0
	ORDER BY id`)
}

// MarkPublished marks a summary row as published
func (db *DB) MarkPublished(ctx context.Context, id int) error {
	query := `UPDATE summary_rows SET published = 1 WHERE id = ?`
	_, err := db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}

// ListTopItems retrieves one stored ranked list in rank order. An empty
// organization selects the consortium list.
func (db *DB) ListTopItems(ctx context.Context, periodLabel, dataset, organization string, cat models.Category) ([]TopItemRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT organization, category, rank, title, publisher, isbn, doi,
		total_item_investigations, unique_item_investigations, unique_title_investigations,
		total_item_requests, unique_item_requests, unique_title_requests,
		searches_platform, searches_regular, searches_federated, searches_automated,
		no_license, limit_exceeded
	FROM top_item_rows
	WHERE period_label = ? AND dataset = ? AND organization = ? AND category = ?
	ORDER BY rank`, periodLabel, dataset, organization, string(cat))
	if err != nil {
		return nil, fmt.Errorf("querying top item rows: %w", err)
	}
	defer rows.Close()

	var results []TopItemRecord
	for rows.Next() {
		var r TopItemRecord
		var category string
		var publisher, isbn, doi sql.NullString
		c := &r.ItemCounters
		if err := rows.Scan(&r.Organization, &category, &r.Rank, &r.Title, &publisher, &isbn, &doi,
			&c.TotalItemInvestigations, &c.UniqueItemInvestigations, &c.UniqueTitleInvestigations,
			&c.TotalItemRequests, &c.UniqueItemRequests, &c.UniqueTitleRequests,
			&c.SearchesPlatform, &c.SearchesRegular, &c.SearchesFederated, &c.SearchesAutomated,
			&c.NoLicense, &c.LimitExceeded); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Category = models.Category(category)
		r.Publisher, r.ISBN, r.DOI = publisher.String, isbn.String, doi.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountOverviewRows returns the number of stored overview rows for a dataset and period
func (db *DB) CountOverviewRows(ctx context.Context, periodLabel, dataset string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM overview_rows WHERE period_label = ? AND dataset = ?`,
		periodLabel, dataset).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting overview rows: %w", err)
	}
	return n, nil
}
