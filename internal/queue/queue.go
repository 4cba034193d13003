package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/models"
)

var (
	// ErrQueueFull is returned when the queue cannot accept another batch.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned when pushing to a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// Batch is one received shipment of properties awaiting reconciliation.
type Batch struct {
	Properties []*models.Property
	Source     string
	ReceivedAt time.Time
}

// BatchQueue decouples ingest from reconciliation. Pushes never block: a
// full queue rejects the batch so the HTTP handler can report backpressure
// instead of hanging.
type BatchQueue struct {
	ch     chan Batch
	logger *logrus.Logger

	mu     sync.RWMutex
	closed bool
}

func New(size int, logger *logrus.Logger) *BatchQueue {
	if size <= 0 {
		size = 10
	}
	return &BatchQueue{
		ch:     make(chan Batch, size),
		logger: logger,
	}
}

// Push enqueues a batch without blocking.
func (q *BatchQueue) Push(b Batch) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- b:
		q.logger.WithFields(logrus.Fields{
			"source": b.Source,
			"size":   len(b.Properties),
			"depth":  len(q.ch),
		}).Debug("queued batch")
		return nil
	default:
		return ErrQueueFull
	}
}

// Batches returns the consumer channel. It is closed by Close once drained
// pushes stop.
func (q *BatchQueue) Batches() <-chan Batch {
	return q.ch
}

// Len reports how many batches are waiting.
func (q *BatchQueue) Len() int {
	return len(q.ch)
}

// Close stops accepting batches and closes the consumer channel. Already
// queued batches remain readable.
func (q *BatchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
