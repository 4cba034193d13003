package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fundamental/crawler/internal/database"
)

// HTTPSink ships batches to the ingest endpoint of a running server.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSink(endpoint string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) Send(batch Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingest endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// StoreSink writes batches straight into the local store. Used when the
// crawler runs standalone, without a server to ship to.
type StoreSink struct {
	db *database.Database
}

func NewStoreSink(db *database.Database) *StoreSink {
	return &StoreSink{db: db}
}

func (s *StoreSink) Send(batch Batch) error {
	_, _, err := s.db.UpsertBatch(batch.Properties)
	return err
}
