package models

import "time"

// Property statuses as stored in the database. The crawler itself only ever
// observes "active" or "sold"; "inactive" and "republished" are computed
// during reconciliation.
const (
	StatusActive      = "active"
	StatusInactive    = "inactive"
	StatusRepublished = "republished"
	StatusSold        = "sold"
)

// Property is one observation of a real-estate listing. Every field except
// URL is optional: extraction is best-effort and absent fields stay at their
// zero value. The Status field carries the observed status ("active" or
// "sold") while the record travels through the pipeline; the stored status is
// decided by the database during reconciliation.
type Property struct {
	ID           int64     `json:"id,omitempty"`
	URL          string    `json:"url"`
	Street       string    `json:"street,omitempty"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	PropertyType string    `json:"property_type,omitempty"`
	City         string    `json:"city,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	Price        *int      `json:"price,omitempty"`
	YearBuilt    *int      `json:"year_built,omitempty"`
	LivingArea   *int      `json:"living_area,omitempty"`
	NumRooms     *int      `json:"num_rooms,omitempty"`
	EnergyLabel  string    `json:"energy_label,omitempty"`
	Status       string    `json:"status"`
	ListingDate  string    `json:"listing_date,omitempty"` // YYYY-MM-DD
	SellingDate  string    `json:"selling_date,omitempty"` // YYYY-MM-DD
	ScrapedAt    time.Time `json:"scraped_at"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
}

type PropertyStats struct {
	TotalProperties int     `json:"total_properties"`
	AveragePrice    float64 `json:"average_price"`
	AvgDaysToSell   float64 `json:"avg_days_to_sell"`
	TotalSold       int     `json:"total_sold"`
	TotalActive     int     `json:"total_active"`
	PricePerSqm     float64 `json:"price_per_sqm"`
}
