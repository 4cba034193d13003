package geocoding

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const nominatimEndpoint = "https://nominatim.openstreetmap.org/search"

// Geocoder resolves addresses via Nominatim with a persistent disk cache.
// Nominatim's usage policy allows one request per second, so lookups are
// rate limited and everything resolved once is cached forever.
type Geocoder struct {
	client    *http.Client
	cachePath string
	logger    *logrus.Logger

	mu       sync.Mutex
	cache    map[string][2]float64
	lastCall time.Time
}

func NewGeocoder(cacheDir string, logger *logrus.Logger) (*Geocoder, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	g := &Geocoder{
		client:    &http.Client{Timeout: 10 * time.Second},
		cachePath: filepath.Join(cacheDir, "geocode_cache.json"),
		logger:    logger,
		cache:     map[string][2]float64{},
	}
	g.loadCache()
	return g, nil
}

// Geocode resolves a street address to coordinates.
func (g *Geocoder) Geocode(street, postalCode, city string) (float64, float64, error) {
	query := strings.TrimSpace(strings.Join([]string{street, postalCode, city, "Netherlands"}, ", "))
	key := strings.ToLower(query)

	g.mu.Lock()
	if coords, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return coords[0], coords[1], nil
	}
	g.throttleLocked()
	g.mu.Unlock()

	lat, lng, err := g.lookup(query)
	if err != nil {
		return 0, 0, err
	}

	g.mu.Lock()
	g.cache[key] = [2]float64{lat, lng}
	g.saveCacheLocked()
	g.mu.Unlock()
	return lat, lng, nil
}

func (g *Geocoder) throttleLocked() {
	wait := time.Second - time.Since(g.lastCall)
	if wait > 0 {
		time.Sleep(wait)
	}
	g.lastCall = time.Now()
}

func (g *Geocoder) lookup(query string) (float64, float64, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequest(http.MethodGet, nominatimEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", "fundamental-crawler/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("reading geocoding response: %w", err)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, 0, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("no results for %q", query)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing longitude: %w", err)
	}
	return lat, lng, nil
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(g.cachePath)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.WithError(err).Warn("discarding unreadable geocode cache")
		g.cache = map[string][2]float64{}
	}
}

func (g *Geocoder) saveCacheLocked() {
	data, err := json.Marshal(g.cache)
	if err != nil {
		return
	}
	if err := os.WriteFile(g.cachePath, data, 0o644); err != nil {
		g.logger.WithError(err).Warn("failed to persist geocode cache")
	}
}
