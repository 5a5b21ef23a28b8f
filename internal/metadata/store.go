// Package metadata provides the reference data used to classify documents and
// the audit trail of where each document ended up.
//
// Store is the relational adapter (SQLite by default, MySQL in production).
// Cache is the read-only snapshot of the reference tables used for one run.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/docrouter/internal/models"
)

// Supported database/sql driver names
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// ErrStoreUnavailable is returned when the metadata store cannot be reached or read
var ErrStoreUnavailable = errors.New("metadata store unavailable")

// Source supplies the three reference tables
type Source interface {
	ListDocumentTypes(ctx context.Context) ([]models.DocumentType, error)
	ListProperties(ctx context.Context) ([]models.Property, error)
	ListCollatorPaths(ctx context.Context) ([]models.CollatorPath, error)
}

// AuditWriter records where a processed file was sent
type AuditWriter interface {
	SetFileDestination(ctx context.Context, fileName, destination string) (bool, error)
}

// DestinationRecord is one row of the audit table
type DestinationRecord struct {
	FileName    string
	Destination string
	RunID       string
	UpdatedAt   time.Time
}

// Store manages the metadata database
type Store struct {
	db     *sql.DB
	driver string
	dsn    string
	runID  string
}

// NewStore opens the metadata database. For SQLite the schema is created or
// migrated; MySQL schemas are provisioned outside this program.
func NewStore(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			dir := filepath.Dir(dsn)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	case DriverMySQL:
		normalized, err := mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
		dsn = normalized
	default:
		return nil, fmt.Errorf("unsupported metadata driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db, driver: driver, dsn: dsn}

	if driver == DriverSQLite {
		// A single connection keeps :memory: databases coherent and serializes writers.
		db.SetMaxOpenConns(1)

		pragmas := []string{
			"PRAGMA busy_timeout=5000", // Must be first
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
		}
		for _, pragma := range pragmas {
			if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
				db.Close()
				return nil, fmt.Errorf("set %s: %w", pragma, err)
			}
		}

		if err := store.ApplyMigrations(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
		return store, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return store, nil
}

// mysqlDSN turns on parseTime so TIMESTAMP columns scan into time.Time
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, sql string, maxRetries int, baseDelay time.Duration, args ...interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(sql, args...)
		if err == nil {
			return nil
		}

		// Only retry on "database is locked" errors
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		delay := baseDelay * time.Duration(1<<attempt)
		time.Sleep(delay)
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Driver returns the database/sql driver name in use
func (s *Store) Driver() string {
	return s.driver
}

// WithRunID returns a shallow copy of the store that stamps audit rows with runID
func (s *Store) WithRunID(runID string) *Store {
	cp := *s
	cp.runID = runID
	return &cp
}

// ListDocumentTypes returns every document-type definition
func (s *Store) ListDocumentTypes(ctx context.Context) ([]models.DocumentType, error) {
	query := `SELECT name, document_type_id, document_type_tag, dl_top_level_folder_id, key_property_id,
		has_key_property, initial_workflow_activity_id, workflow_id, workflow_queue_id, sirm_process
		FROM document_types`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query document types: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var types []models.DocumentType
	for rows.Next() {
		var (
			dt          models.DocumentType
			tag         sql.NullString
			folderID    sql.NullInt64
			keyPropID   sql.NullInt64
			hasKey      sql.NullInt64
			activityID  sql.NullInt64
			workflowID  sql.NullInt64
			queueID     sql.NullInt64
			sirmProcess sql.NullBool
		)
		if err := rows.Scan(&dt.Name, &dt.DocumentTypeID, &tag, &folderID, &keyPropID,
			&hasKey, &activityID, &workflowID, &queueID, &sirmProcess); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		dt.DocumentTypeTag = tag.String
		dt.TopLevelFolderID = int(folderID.Int64)
		dt.KeyPropertyID = int(keyPropID.Int64)
		dt.HasKeyProperty = hasKey.Int64 == 1
		dt.InitialWorkflowActivityID = int(activityID.Int64)
		dt.WorkflowID = int(workflowID.Int64)
		dt.WorkflowQueueID = int(queueID.Int64)
		if sirmProcess.Valid {
			v := sirmProcess.Bool
			dt.IsSirmProcess = &v
		}
		types = append(types, dt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document types: %w", err)
	}

	return types, nil
}

// ListProperties returns the property tag to id map rows
func (s *Store) ListProperties(ctx context.Context) ([]models.Property, error) {
	query := `SELECT property_id, property_tag, data_type FROM doclink_properties`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query properties: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var props []models.Property
	for rows.Next() {
		var (
			p        models.Property
			dataType sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Tag, &dataType); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		p.DataType = models.ParseDataType(dataType.String)
		props = append(props, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}

	return props, nil
}

// ListCollatorPaths returns the location to collator path rows
func (s *Store) ListCollatorPaths(ctx context.Context) ([]models.CollatorPath, error) {
	query := `SELECT location, collator_path FROM location_collator_paths`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query collator paths: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var paths []models.CollatorPath
	for rows.Next() {
		var cp models.CollatorPath
		if err := rows.Scan(&cp.Location, &cp.Path); err != nil {
			return nil, fmt.Errorf("scan collator path: %w", err)
		}
		paths = append(paths, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collator paths: %w", err)
	}

	return paths, nil
}

// SetFileDestination upserts the audit row for fileName. It returns true when the row was written.
func (s *Store) SetFileDestination(ctx context.Context, fileName, destination string) (bool, error) {
	var query string
	switch s.driver {
	case DriverMySQL:
		query = `INSERT INTO image_io_destinations (file_name, destination, run_id, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON DUPLICATE KEY UPDATE destination = VALUES(destination), run_id = VALUES(run_id), updated_at = CURRENT_TIMESTAMP`
	default:
		query = `INSERT INTO image_io_destinations (file_name, destination, run_id, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(file_name) DO UPDATE SET destination = excluded.destination, run_id = excluded.run_id, updated_at = CURRENT_TIMESTAMP`
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := execWithRetry(s.db, query, 5, 20*time.Millisecond, fileName, destination, s.runID); err != nil {
		return false, fmt.Errorf("set file destination for %s: %w", fileName, err)
	}
	return true, nil
}

// ListDestinations returns the most recently updated audit rows. A non-empty
// runID restricts the rows to that run before the limit is applied.
func (s *Store) ListDestinations(ctx context.Context, limit int, runID string) ([]DestinationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT file_name, destination, COALESCE(run_id, ''), updated_at
		FROM image_io_destinations`
	var args []interface{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query destinations: %w", err)
	}
	defer rows.Close()

	var records []DestinationRecord
	for rows.Next() {
		var r DestinationRecord
		if err := rows.Scan(&r.FileName, &r.Destination, &r.RunID, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate destinations: %w", err)
	}

	return records, nil
}
