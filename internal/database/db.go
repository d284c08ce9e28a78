package database

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gridtools/usagescraper/pkg/models"
	_ "modernc.org/sqlite"
)

const dateFormat = "2006-01-02"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	log  *log.Logger
}

// New creates a new database connection and initializes the schema
func New(dbPath string, logger *log.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn, log: logger}
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
	// usage_records deliberately has no natural key: re-running a batch
	// appends duplicate rows. The units registry is the idempotency boundary.
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		unit_name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		usage TEXT NOT NULL,
		charge TEXT NOT NULL,
		avg_temp TEXT NOT NULL,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_records_unit ON usage_records(unit_name);
	CREATE INDEX IF NOT EXISTS idx_records_start ON usage_records(start_date);
	CREATE INDEX IF NOT EXISTS idx_records_published ON usage_records(published);
	CREATE TABLE IF NOT EXISTS units (
		unit_name TEXT PRIMARY KEY
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertHistory writes every unit's records in a single transaction:
// commit on success, rollback on any failure. A failed record insert is
// logged with its unit and start date, then aborts the whole batch.
func (db *DB) InsertHistory(data map[string][]models.UsageRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := db.insertHistory(tx, data); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (db *DB) insertHistory(tx *sql.Tx, data map[string][]models.UsageRecord) error {
	insertRecord := `
	INSERT INTO usage_records (unit_name, start_date, end_date, usage, charge, avg_temp, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	// Map iteration order is randomized; sort unit names so one run's write
	// order is deterministic.
	units := make([]string, 0, len(data))
	for unit := range data {
		units = append(units, unit)
	}
	sort.Strings(units)

	createdAt := time.Now().UTC().Format(time.RFC3339)

	for _, unit := range units {
		for _, rec := range data[unit] {
			startDate := rec.StartDate.Format(dateFormat)
			_, err := tx.Exec(insertRecord,
				unit, startDate, rec.EndDate.Format(dateFormat),
				rec.Usage, rec.Charge, rec.AvgTemp, createdAt)
			if err != nil {
				db.log.Error("inserting usage record",
					"unit", unit, "start_date", startDate, "err", err)
				return fmt.Errorf("inserting record for unit %s dated %s: %w", unit, startDate, err)
			}
		}

		registered, err := db.unitRegistered(tx, unit)
		if err != nil {
			return fmt.Errorf("checking unit registry for %s: %w", unit, err)
		}
		if !registered {
			if _, err := tx.Exec(`INSERT INTO units (unit_name) VALUES (?)`, unit); err != nil {
				return fmt.Errorf("registering unit %s: %w", unit, err)
			}
		}
	}

	return nil
}

func (db *DB) unitRegistered(tx *sql.Tx, unit string) (bool, error) {
	var name string
	err := tx.QueryRow(`SELECT unit_name FROM units WHERE unit_name = ?`, unit).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListUnits returns all registered unit names, ordered by name
func (db *DB) ListUnits() ([]string, error) {
	rows, err := db.conn.Query(`SELECT unit_name FROM units ORDER BY unit_name`)
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer rows.Close()

	var units []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning unit row: %w", err)
		}
		units = append(units, name)
	}
	return units, rows.Err()
}

// ListRecords retrieves all usage records for a unit, newest first
func (db *DB) ListRecords(unit string) ([]models.UsageRecord, error) {
	return db.queryRecords(`
	SELECT id, unit_name, start_date, end_date, usage, charge, avg_temp, published
	FROM usage_records
	WHERE unit_name = ?
	ORDER BY start_date DESC
	`, unit)
}

// ListUnpublishedRecords retrieves all unpublished usage records for a unit
func (db *DB) ListUnpublishedRecords(unit string) ([]models.UsageRecord, error) {
	return db.queryRecords(`
	SELECT id, unit_name, start_date, end_date, usage, charge, avg_temp, published
	FROM usage_records
	WHERE unit_name = ? AND published = 0
	ORDER BY start_date DESC
	`, unit)
}

func (db *DB) queryRecords(query string, args ...any) ([]models.UsageRecord, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var results []models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		var startStr, endStr string
		var published int

		if err := rows.Scan(&rec.ID, &rec.UnitName, &startStr, &endStr,
			&rec.Usage, &rec.Charge, &rec.AvgTemp, &published); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		rec.StartDate, err = time.Parse(dateFormat, startStr)
		if err != nil {
			return nil, fmt.Errorf("parsing start_date: %w", err)
		}
		rec.EndDate, err = time.Parse(dateFormat, endStr)
		if err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}
		rec.Published = published != 0

		results = append(results, rec)
	}

	return results, rows.Err()
}

// MarkPublished marks a usage record as published
func (db *DB) MarkPublished(id int) error {
	_, err := db.conn.Exec(`UPDATE usage_records SET published = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}
