package processor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/models"
	"fundamental/crawler/internal/queue"
)

// Store is the reconciliation write interface the processor needs.
type Store interface {
	UpsertBatch(properties []*models.Property) (inserted, statusChanged int, err error)
}

// BatchProcessor drains the ingest queue with a pool of workers, writing
// each batch through the reconciliation upsert with retries.
type BatchProcessor struct {
	store      Store
	queue      *queue.BatchQueue
	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *logrus.Logger
	wg         sync.WaitGroup
}

func New(store Store, q *queue.BatchQueue, workers, maxRetries int, retryDelay time.Duration, logger *logrus.Logger) *BatchProcessor {
	if workers <= 0 {
		workers = 1
	}
	return &BatchProcessor{
		store:      store,
		queue:      q,
		workers:    workers,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Start launches the worker pool. Workers exit when the queue closes or the
// context is cancelled.
func (p *BatchProcessor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case batch, ok := <-p.queue.Batches():
					if !ok {
						return
					}
					p.process(worker, batch)
				}
			}
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (p *BatchProcessor) Wait() {
	p.wg.Wait()
}

func (p *BatchProcessor) process(worker int, batch queue.Batch) {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		inserted, statusChanged, err := p.store.UpsertBatch(batch.Properties)
		if err == nil {
			p.logger.WithFields(logrus.Fields{
				"worker":         worker,
				"source":         batch.Source,
				"size":           len(batch.Properties),
				"inserted":       inserted,
				"status_changed": statusChanged,
			}).Info("processed batch")
			return
		}
		lastErr = err
		p.logger.WithFields(logrus.Fields{
			"worker":  worker,
			"attempt": attempt,
			"error":   err,
		}).Warn("batch processing attempt failed")
		if attempt < p.maxRetries {
			time.Sleep(p.retryDelay)
		}
	}
	p.logger.WithFields(logrus.Fields{
		"worker": worker,
		"source": batch.Source,
		"size":   len(batch.Properties),
		"error":  lastErr,
	}).Errorf("failed to process batch after %d attempts", p.maxRetries)
}
