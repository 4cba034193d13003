package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/database"
	"fundamental/crawler/internal/geometry"
	"fundamental/crawler/internal/models"
	"fundamental/crawler/internal/queue"
)

// Handler holds the dependencies of the HTTP API.
type Handler struct {
	db           *database.Database
	queue        *queue.BatchQueue
	geocoder     database.Geocoder
	maxBatchSize int
	logger       *logrus.Logger
}

func NewHandler(db *database.Database, q *queue.BatchQueue, geocoder database.Geocoder, maxBatchSize int, logger *logrus.Logger) *Handler {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	return &Handler{db: db, queue: q, geocoder: geocoder, maxBatchSize: maxBatchSize, logger: logger}
}

type ingestRequest struct {
	Properties []*models.Property `json:"properties" binding:"required"`
	Source     string             `json:"source"`
}

// IngestProperties accepts a batch from a crawler and queues it for
// reconciliation. Responds 202 on acceptance; a full queue is reported as
// 503 so the sender retries.
func (h *Handler) IngestProperties(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Properties) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}
	if len(req.Properties) > h.maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("batch exceeds maximum size of %d", h.maxBatchSize),
		})
		return
	}
	for _, p := range req.Properties {
		if p.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "property without url"})
			return
		}
	}

	err := h.queue.Push(queue.Batch{
		Properties: req.Properties,
		Source:     req.Source,
		ReceivedAt: time.Now().UTC(),
	})
	if errors.Is(err, queue.ErrQueueFull) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest queue is full"})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"source": req.Source,
		"size":   len(req.Properties),
	}).Info("accepted property batch")
	c.JSON(http.StatusAccepted, gin.H{"queued": len(req.Properties)})
}

// GetProperties returns stored properties, optionally filtered by city.
func (h *Handler) GetProperties(c *gin.Context) {
	properties, err := h.db.GetAllProperties(c.Query("city"))
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch properties"})
		return
	}
	c.JSON(http.StatusOK, properties)
}

// GetRecentSales returns properties sold in the last N days (default 30).
func (h *Handler) GetRecentSales(c *gin.Context) {
	days := 30
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days parameter"})
			return
		}
		days = parsed
	}

	sales, err := h.db.GetRecentSales(c.Query("city"), days)
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch recent sales")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch recent sales"})
		return
	}
	c.JSON(http.StatusOK, sales)
}

// GetStats returns aggregate market figures.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.db.GetPropertyStats(c.Query("city"))
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDistricts returns neighborhood hull polygons for the geocoded
// properties of a city.
func (h *Handler) GetDistricts(c *gin.Context) {
	properties, err := h.db.GetAllProperties(c.Query("city"))
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch properties for districts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute districts"})
		return
	}
	c.JSON(http.StatusOK, geometry.DistrictHulls(properties))
}

// UpdateCoordinates geocodes stored properties that are missing
// coordinates. Runs synchronously; callers are expected to be cron-like.
func (h *Handler) UpdateCoordinates(c *gin.Context) {
	if h.geocoder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "geocoding is not configured"})
		return
	}
	updated, err := h.db.UpdateMissingCoordinates(h.geocoder, 50)
	if err != nil {
		h.logger.WithError(err).Error("failed to update coordinates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update coordinates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Health reports liveness and queue depth.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"queue_depth": h.queue.Len(),
	})
}
