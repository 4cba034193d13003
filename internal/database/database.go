package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/models"
)

// Database is the property store. All writes go through the reconciliation
// upsert so the status lifecycle stays consistent regardless of which crawl
// produced the observation.
type Database struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewDatabase opens (creating if needed) the sqlite database at path.
func NewDatabase(path string, logger *logrus.Logger) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	d := &Database{db: db, logger: logger}
	if err := d.initSchema(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT UNIQUE NOT NULL,
			street TEXT,
			neighborhood TEXT,
			property_type TEXT,
			city TEXT,
			postal_code TEXT,
			price INTEGER,
			year_built INTEGER,
			living_area INTEGER,
			num_rooms INTEGER,
			status TEXT,
			listing_date TEXT,
			selling_date TEXT,
			scraped_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			latitude REAL,
			longitude REAL,
			energy_label TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_postal_code ON properties(postal_code)`,
		`CREATE INDEX IF NOT EXISTS idx_coordinates ON properties(latitude, longitude)`,
		`CREATE INDEX IF NOT EXISTS idx_city ON properties(city)`,
		`CREATE INDEX IF NOT EXISTS idx_status ON properties(status)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// UpsertOutcome describes what a reconciliation write did to a record.
type UpsertOutcome struct {
	Inserted   bool
	FromStatus string
	ToStatus   string
}

// StatusChanged reports whether the stored status moved to a new value.
func (o UpsertOutcome) StatusChanged() bool {
	return !o.Inserted && o.FromStatus != o.ToStatus
}

// UpsertProperty reconciles one observation with the stored record, keyed by
// URL. The stored status follows the lifecycle rules:
//
//   - sold is terminal: later active observations never resurrect a sold
//     record, but a sold observation always wins
//   - an inactive record observed active again becomes republished
//   - a republished record observed active settles back to active
//
// Field values are last-write-wins at field granularity: the observation
// overwrites every stored field, and an absent field overwrites a previously
// known value with absence. Only the status is computed rather than copied.
func (d *Database) UpsertProperty(p *models.Property) (UpsertOutcome, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	outcome, err := d.upsertInTx(tx, p)
	if err != nil {
		return UpsertOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return UpsertOutcome{}, fmt.Errorf("committing upsert: %w", err)
	}
	return outcome, nil
}

// UpsertBatch reconciles a batch in one transaction. Returns the number of
// inserts and status changes for reporting.
func (d *Database) UpsertBatch(properties []*models.Property) (inserted, statusChanged int, err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range properties {
		outcome, err := d.upsertInTx(tx, p)
		if err != nil {
			return 0, 0, err
		}
		if outcome.Inserted {
			inserted++
		} else if outcome.StatusChanged() {
			statusChanged++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing batch: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"batch_size":     len(properties),
		"inserted":       inserted,
		"status_changed": statusChanged,
	}).Info("reconciled property batch")
	return inserted, statusChanged, nil
}

func (d *Database) upsertInTx(tx *sql.Tx, p *models.Property) (UpsertOutcome, error) {
	var (
		id     int64
		stored string
	)
	err := tx.QueryRow(`SELECT id, COALESCE(status, '') FROM properties WHERE url = ?`, p.URL).Scan(&id, &stored)
	if err == sql.ErrNoRows {
		if err := d.insertInTx(tx, p); err != nil {
			return UpsertOutcome{}, err
		}
		return UpsertOutcome{Inserted: true, ToStatus: p.Status}, nil
	}
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("looking up %s: %w", p.URL, err)
	}

	next := nextStatus(stored, p.Status)
	_, err = tx.Exec(`UPDATE properties SET
			street = ?,
			neighborhood = ?,
			property_type = ?,
			city = ?,
			postal_code = ?,
			price = ?,
			year_built = ?,
			living_area = ?,
			num_rooms = ?,
			status = ?,
			listing_date = ?,
			selling_date = ?,
			scraped_at = ?,
			energy_label = ?
		WHERE id = ?`,
		p.Street, p.Neighborhood, p.PropertyType, p.City, p.PostalCode,
		p.Price, p.YearBuilt, p.LivingArea, p.NumRooms,
		next, p.ListingDate, p.SellingDate, p.ScrapedAt, p.EnergyLabel, id)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("updating %s: %w", p.URL, err)
	}

	if stored != next {
		d.logger.WithFields(logrus.Fields{
			"url":  p.URL,
			"from": stored,
			"to":   next,
		}).Info("property status changed")
	}
	return UpsertOutcome{FromStatus: stored, ToStatus: next}, nil
}

func (d *Database) insertInTx(tx *sql.Tx, p *models.Property) error {
	_, err := tx.Exec(`INSERT INTO properties (
			url, street, neighborhood, property_type, city, postal_code,
			price, year_built, living_area, num_rooms, status,
			listing_date, selling_date, scraped_at, created_at, energy_label
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.URL, p.Street, p.Neighborhood, p.PropertyType, p.City, p.PostalCode,
		p.Price, p.YearBuilt, p.LivingArea, p.NumRooms, p.Status,
		p.ListingDate, p.SellingDate, p.ScrapedAt, time.Now().UTC(), p.EnergyLabel)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", p.URL, err)
	}
	return nil
}

// nextStatus applies the lifecycle rules to a stored status and a newly
// observed one.
func nextStatus(stored, observed string) string {
	switch {
	case stored == models.StatusSold:
		return models.StatusSold
	case observed == models.StatusSold:
		return models.StatusSold
	case stored == models.StatusInactive && observed == models.StatusActive:
		return models.StatusRepublished
	default:
		return observed
	}
}

// GetPropertyStatus returns the stored status for a URL, or "" when the URL
// is unknown.
func (d *Database) GetPropertyStatus(url string) (string, error) {
	var status string
	err := d.db.QueryRow(`SELECT COALESCE(status, '') FROM properties WHERE url = ?`, url).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying status for %s: %w", url, err)
	}
	return status, nil
}

// URLsWithStatus returns the set of stored URLs whose status is one of the
// given values. Crawls use this to skip detail pages they already cover.
func (d *Database) URLsWithStatus(statuses ...string) (map[string]bool, error) {
	if len(statuses) == 0 {
		return map[string]bool{}, nil
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	rows, err := d.db.Query(`SELECT url FROM properties WHERE status IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying urls by status: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scanning url: %w", err)
		}
		urls[url] = true
	}
	return urls, rows.Err()
}

// MarkInactive flips active records in a city to inactive when their URL is
// not in the given set of currently listed URLs.
func (d *Database) MarkInactive(city string, activeURLs map[string]bool) (int, error) {
	rows, err := d.db.Query(`SELECT url FROM properties WHERE LOWER(city) = LOWER(?) AND status = ?`,
		city, models.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("querying active urls: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return 0, fmt.Errorf("scanning url: %w", err)
		}
		if !activeURLs[url] {
			stale = append(stale, url)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	for _, url := range stale {
		if _, err := tx.Exec(`UPDATE properties SET status = ? WHERE url = ?`, models.StatusInactive, url); err != nil {
			return 0, fmt.Errorf("marking %s inactive: %w", url, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if len(stale) > 0 {
		d.logger.WithFields(logrus.Fields{
			"city":  city,
			"count": len(stale),
		}).Info("marked delisted properties inactive")
	}
	return len(stale), nil
}
