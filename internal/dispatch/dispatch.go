package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/models"
)

// ErrClosed is returned when dispatching to a closed dispatcher.
var ErrClosed = errors.New("dispatcher is closed")

// Batch is one shipment of extracted properties.
type Batch struct {
	Properties []*models.Property `json:"properties"`
	Source     string             `json:"source"`
	SentAt     time.Time          `json:"sent_at"`
}

// Sink receives batches. Implementations ship them over HTTP or write them
// straight to the store.
type Sink interface {
	Send(batch Batch) error
}

// Dispatcher buffers properties and ships them in batches. A batch that
// keeps failing after retries is retried item by item, so one poisoned
// property cannot sink its whole batch.
type Dispatcher struct {
	sink       Sink
	source     string
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	logger     *logrus.Logger

	mu     sync.Mutex
	buffer []*models.Property
	closed bool
}

func New(sink Sink, source string, batchSize, maxRetries int, retryDelay time.Duration, logger *logrus.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		sink:       sink,
		source:     source,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Dispatch buffers one property, flushing when the buffer reaches the batch
// size.
func (d *Dispatcher) Dispatch(p *models.Property) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.buffer = append(d.buffer, p)
	if len(d.buffer) >= d.batchSize {
		return d.flushLocked()
	}
	return nil
}

// Close flushes whatever is buffered and rejects further dispatches. Safe to
// call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.flushLocked()
}

func (d *Dispatcher) flushLocked() error {
	if len(d.buffer) == 0 {
		return nil
	}
	batch := Batch{Properties: d.buffer, Source: d.source, SentAt: time.Now().UTC()}
	d.buffer = nil

	err := d.sendWithRetries(batch)
	if err == nil {
		d.logger.WithFields(logrus.Fields{
			"source": d.source,
			"size":   len(batch.Properties),
		}).Info("dispatched batch")
		return nil
	}

	// Batch-level delivery failed; salvage what we can item by item.
	d.logger.WithFields(logrus.Fields{
		"source": d.source,
		"size":   len(batch.Properties),
		"error":  err,
	}).Warn("batch delivery failed, retrying per item")

	dropped := 0
	for _, p := range batch.Properties {
		single := Batch{Properties: []*models.Property{p}, Source: d.source, SentAt: batch.SentAt}
		if err := d.sink.Send(single); err != nil {
			dropped++
			d.logger.WithFields(logrus.Fields{
				"url":   p.URL,
				"error": err,
			}).Error("dropping undeliverable property")
		}
	}
	if dropped == len(batch.Properties) {
		return err
	}
	return nil
}

func (d *Dispatcher) sendWithRetries(batch Batch) error {
	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.retryDelay)
		}
		if err = d.sink.Send(batch); err == nil {
			return nil
		}
	}
	return err
}
