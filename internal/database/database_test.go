package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundamental/crawler/internal/models"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

func observation(url, status string) *models.Property {
	return &models.Property{
		URL:       url,
		City:      "Amsterdam",
		Status:    status,
		ScrapedAt: time.Now().UTC(),
	}
}

func TestUpsertInsertsNewProperty(t *testing.T) {
	db := newTestDatabase(t)

	p := observation("https://example.test/detail/koop/amsterdam/appartement-a-1/1/", models.StatusActive)
	p.Price = intPtr(450000)
	outcome, err := db.UpsertProperty(p)
	require.NoError(t, err)
	assert.True(t, outcome.Inserted)
	assert.Equal(t, models.StatusActive, outcome.ToStatus)

	status, err := db.GetPropertyStatus(p.URL)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, status)
}

func TestUpsertIsIdempotent(t *testing.T) {
	db := newTestDatabase(t)
	p := observation("https://example.test/p/1", models.StatusActive)

	_, err := db.UpsertProperty(p)
	require.NoError(t, err)
	outcome, err := db.UpsertProperty(p)
	require.NoError(t, err)
	assert.False(t, outcome.Inserted)
	assert.False(t, outcome.StatusChanged())

	all, err := db.GetAllProperties("")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepublishLifecycle(t *testing.T) {
	db := newTestDatabase(t)
	url := "https://example.test/p/1"

	_, err := db.UpsertProperty(observation(url, models.StatusActive))
	require.NoError(t, err)

	// Delisting makes the record inactive.
	n, err := db.MarkInactive("Amsterdam", map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Seen active again: republished.
	outcome, err := db.UpsertProperty(observation(url, models.StatusActive))
	require.NoError(t, err)
	assert.True(t, outcome.StatusChanged())
	assert.Equal(t, models.StatusInactive, outcome.FromStatus)
	assert.Equal(t, models.StatusRepublished, outcome.ToStatus)

	// The next active observation settles back to plain active.
	outcome, err = db.UpsertProperty(observation(url, models.StatusActive))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, outcome.ToStatus)
}

func TestSoldIsTerminal(t *testing.T) {
	db := newTestDatabase(t)
	url := "https://example.test/p/1"

	_, err := db.UpsertProperty(observation(url, models.StatusSold))
	require.NoError(t, err)

	outcome, err := db.UpsertProperty(observation(url, models.StatusActive))
	require.NoError(t, err)
	assert.False(t, outcome.StatusChanged())
	assert.Equal(t, models.StatusSold, outcome.ToStatus)

	status, err := db.GetPropertyStatus(url)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSold, status)
}

func TestSoldObservationWins(t *testing.T) {
	db := newTestDatabase(t)
	url := "https://example.test/p/1"

	_, err := db.UpsertProperty(observation(url, models.StatusActive))
	require.NoError(t, err)

	sold := observation(url, models.StatusSold)
	sold.SellingDate = "2024-08-03"
	outcome, err := db.UpsertProperty(sold)
	require.NoError(t, err)
	assert.True(t, outcome.StatusChanged())
	assert.Equal(t, models.StatusSold, outcome.ToStatus)
}

func TestUpsertOverwritesAllFields(t *testing.T) {
	db := newTestDatabase(t)
	url := "https://example.test/p/1"

	first := observation(url, models.StatusActive)
	first.Price = intPtr(450000)
	first.Street = "Van Beuningenstraat 144"
	first.EnergyLabel = "A"
	_, err := db.UpsertProperty(first)
	require.NoError(t, err)

	// The second observation extracted almost nothing. Writes are
	// last-write-wins per field, so the absent fields replace the stored
	// values rather than merging with them.
	second := observation(url, models.StatusActive)
	_, err = db.UpsertProperty(second)
	require.NoError(t, err)

	all, err := db.GetAllProperties("")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].Price)
	assert.Empty(t, all[0].Street)
	assert.Empty(t, all[0].EnergyLabel)
}

func TestURLsWithStatus(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.UpsertProperty(observation("https://example.test/p/1", models.StatusActive))
	require.NoError(t, err)
	_, err = db.UpsertProperty(observation("https://example.test/p/2", models.StatusSold))
	require.NoError(t, err)

	urls, err := db.URLsWithStatus(models.StatusSold)
	require.NoError(t, err)
	assert.True(t, urls["https://example.test/p/2"])
	assert.False(t, urls["https://example.test/p/1"])

	urls, err = db.URLsWithStatus(models.StatusActive, models.StatusSold)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestMarkInactiveSkipsStillListed(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.UpsertProperty(observation("https://example.test/p/1", models.StatusActive))
	require.NoError(t, err)
	_, err = db.UpsertProperty(observation("https://example.test/p/2", models.StatusActive))
	require.NoError(t, err)

	n, err := db.MarkInactive("Amsterdam", map[string]bool{"https://example.test/p/1": true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := db.GetPropertyStatus("https://example.test/p/1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, status)
	status, err = db.GetPropertyStatus("https://example.test/p/2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, status)
}

func TestGetPropertyStats(t *testing.T) {
	db := newTestDatabase(t)

	active := observation("https://example.test/p/1", models.StatusActive)
	active.Price = intPtr(400000)
	active.LivingArea = intPtr(80)
	_, err := db.UpsertProperty(active)
	require.NoError(t, err)

	sold := observation("https://example.test/p/2", models.StatusSold)
	sold.Price = intPtr(600000)
	sold.ListingDate = "2024-01-01"
	sold.SellingDate = "2024-01-31"
	_, err = db.UpsertProperty(sold)
	require.NoError(t, err)

	stats, err := db.GetPropertyStats("Amsterdam")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalProperties)
	assert.Equal(t, 1, stats.TotalSold)
	assert.Equal(t, 1, stats.TotalActive)
	assert.InDelta(t, 500000, stats.AveragePrice, 0.1)
	assert.InDelta(t, 30, stats.AvgDaysToSell, 0.1)
}

func TestGetRecentSales(t *testing.T) {
	db := newTestDatabase(t)

	recent := observation("https://example.test/p/1", models.StatusSold)
	recent.SellingDate = time.Now().AddDate(0, 0, -5).Format("2006-01-02")
	_, err := db.UpsertProperty(recent)
	require.NoError(t, err)

	old := observation("https://example.test/p/2", models.StatusSold)
	old.SellingDate = "2020-01-01"
	_, err = db.UpsertProperty(old)
	require.NoError(t, err)

	sales, err := db.GetRecentSales("", 30)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "https://example.test/p/1", sales[0].URL)
}

func TestUpsertBatch(t *testing.T) {
	db := newTestDatabase(t)

	batch := []*models.Property{
		observation("https://example.test/p/1", models.StatusActive),
		observation("https://example.test/p/2", models.StatusActive),
	}
	inserted, changed, err := db.UpsertBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, changed)

	// Same batch again: no inserts, no changes.
	inserted, changed, err = db.UpsertBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 0, changed)
}
