package database

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/models"
)

const propertyColumns = `id, url, street, neighborhood, property_type, city, postal_code,
	price, year_built, living_area, num_rooms, status, listing_date, selling_date,
	scraped_at, created_at, latitude, longitude, energy_label`

func scanProperty(scanner interface{ Scan(...interface{}) error }) (*models.Property, error) {
	var (
		p            models.Property
		street       *string
		neighborhood *string
		propertyType *string
		city         *string
		postalCode   *string
		status       *string
		listingDate  *string
		sellingDate  *string
		energyLabel  *string
	)
	err := scanner.Scan(&p.ID, &p.URL, &street, &neighborhood, &propertyType,
		&city, &postalCode, &p.Price, &p.YearBuilt, &p.LivingArea, &p.NumRooms,
		&status, &listingDate, &sellingDate, &p.ScrapedAt, &p.CreatedAt,
		&p.Latitude, &p.Longitude, &energyLabel)
	if err != nil {
		return nil, err
	}
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&p.Street, street)
	assign(&p.Neighborhood, neighborhood)
	assign(&p.PropertyType, propertyType)
	assign(&p.City, city)
	assign(&p.PostalCode, postalCode)
	assign(&p.Status, status)
	assign(&p.ListingDate, listingDate)
	assign(&p.SellingDate, sellingDate)
	assign(&p.EnergyLabel, energyLabel)
	return &p, nil
}

// GetAllProperties returns stored properties, optionally filtered by city.
func (d *Database) GetAllProperties(city string) ([]*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties`
	var args []interface{}
	if city != "" {
		query += ` WHERE LOWER(city) = LOWER(?)`
		args = append(args, city)
	}
	query += ` ORDER BY scraped_at DESC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	var properties []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// GetRecentSales returns sold properties with a selling date in the last
// `days` days, newest first.
func (d *Database) GetRecentSales(city string, days int) ([]*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties
		WHERE status = ? AND selling_date IS NOT NULL AND selling_date != ''
		AND selling_date >= date('now', ?)`
	args := []interface{}{models.StatusSold, fmt.Sprintf("-%d days", days)}
	if city != "" {
		query += ` AND LOWER(city) = LOWER(?)`
		args = append(args, city)
	}
	query += ` ORDER BY selling_date DESC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recent sales: %w", err)
	}
	defer rows.Close()

	var properties []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// GetPropertyStats aggregates headline figures, optionally per city.
func (d *Database) GetPropertyStats(city string) (*models.PropertyStats, error) {
	query := `SELECT
		COUNT(*),
		COALESCE(AVG(price), 0),
		COALESCE(AVG(CASE
			WHEN selling_date IS NOT NULL AND selling_date != ''
			 AND listing_date IS NOT NULL AND listing_date != ''
			THEN julianday(selling_date) - julianday(listing_date)
		END), 0),
		SUM(CASE WHEN status = 'sold' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status IN ('active', 'republished') THEN 1 ELSE 0 END),
		COALESCE(AVG(CASE WHEN living_area > 0 THEN CAST(price AS REAL) / living_area END), 0)
	FROM properties`
	var args []interface{}
	if city != "" {
		query += ` WHERE LOWER(city) = LOWER(?)`
		args = append(args, city)
	}

	stats := &models.PropertyStats{}
	err := d.db.QueryRow(query, args...).Scan(
		&stats.TotalProperties, &stats.AveragePrice, &stats.AvgDaysToSell,
		&stats.TotalSold, &stats.TotalActive, &stats.PricePerSqm)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return stats, nil
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(street, postalCode, city string) (lat, lng float64, err error)
}

// UpdateMissingCoordinates geocodes stored properties without coordinates,
// in batches to keep transaction sizes bounded. Returns the number updated.
func (d *Database) UpdateMissingCoordinates(geocoder Geocoder, batchSize int) (int, error) {
	rows, err := d.db.Query(`SELECT id, street, postal_code, city FROM properties
		WHERE (latitude IS NULL OR longitude IS NULL)
		AND street IS NOT NULL AND street != ''
		AND city IS NOT NULL AND city != ''`)
	if err != nil {
		return 0, fmt.Errorf("querying ungeocoded properties: %w", err)
	}
	defer rows.Close()

	type target struct {
		id                       int64
		street, postalCode, city string
	}
	var targets []target
	for rows.Next() {
		var t target
		var postal *string
		if err := rows.Scan(&t.id, &t.street, &postal, &t.city); err != nil {
			return 0, fmt.Errorf("scanning ungeocoded property: %w", err)
		}
		if postal != nil {
			t.postalCode = *postal
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	updated := 0
	for start := 0; start < len(targets); start += batchSize {
		end := start + batchSize
		if end > len(targets) {
			end = len(targets)
		}

		tx, err := d.db.Begin()
		if err != nil {
			return updated, fmt.Errorf("beginning transaction: %w", err)
		}
		for _, t := range targets[start:end] {
			lat, lng, err := geocoder.Geocode(t.street, t.postalCode, t.city)
			if err != nil {
				d.logger.WithFields(logrus.Fields{
					"id":    t.id,
					"error": err,
				}).Warn("geocoding failed")
				continue
			}
			if _, err := tx.Exec(`UPDATE properties SET latitude = ?, longitude = ? WHERE id = ?`,
				lat, lng, t.id); err != nil {
				tx.Rollback()
				return updated, fmt.Errorf("updating coordinates: %w", err)
			}
			updated++
		}
		if err := tx.Commit(); err != nil {
			return updated, fmt.Errorf("committing coordinates: %w", err)
		}
	}

	d.logger.WithFields(logrus.Fields{
		"candidates": len(targets),
		"updated":    updated,
	}).Info("updated missing coordinates")
	return updated, nil
}
