package crawl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Checkpoint is the persisted form of a RunState. One row per (spider,
// place); the processed URL set is stored as a JSON array.
type Checkpoint struct {
	ID                         uint   `gorm:"primaryKey"`
	Spider                     string `gorm:"uniqueIndex:idx_spider_place;size:64"`
	Place                      string `gorm:"uniqueIndex:idx_spider_place;size:128"`
	PageCount                  int
	TotalItemsScraped          int
	NewItemsFound              int
	ConsecutiveEmptyPages      int
	ConsecutivePagesWithoutNew int
	ProcessedURLs              string `gorm:"type:text"`
	UpdatedAt                  time.Time
}

// CheckpointStore persists crawl progress so an interrupted run resumes from
// the last completed page.
type CheckpointStore struct {
	db *gorm.DB
}

func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "checkpoints.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint store: %w", err)
	}
	if err := db.AutoMigrate(&Checkpoint{}); err != nil {
		return nil, fmt.Errorf("migrating checkpoint store: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Save writes the state for a (spider, place) pair, replacing any previous
// checkpoint.
func (s *CheckpointStore) Save(spider, place string, state *RunState) error {
	urls := make([]string, 0, len(state.ProcessedURLs))
	for u := range state.ProcessedURLs {
		urls = append(urls, u)
	}
	encoded, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("encoding processed urls: %w", err)
	}

	cp := Checkpoint{
		Spider:                     spider,
		Place:                      place,
		PageCount:                  state.PageCount,
		TotalItemsScraped:          state.TotalItemsScraped,
		NewItemsFound:              state.NewItemsFound,
		ConsecutiveEmptyPages:      state.ConsecutiveEmptyPages,
		ConsecutivePagesWithoutNew: state.ConsecutivePagesWithoutNew,
		ProcessedURLs:              string(encoded),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "spider"}, {Name: "place"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"page_count", "total_items_scraped", "new_items_found",
			"consecutive_empty_pages", "consecutive_pages_without_new",
			"processed_urls", "updated_at",
		}),
	}).Create(&cp).Error
}

// Load returns the saved state for a (spider, place) pair, or nil when no
// checkpoint exists.
func (s *CheckpointStore) Load(spider, place string) (*RunState, error) {
	var cp Checkpoint
	err := s.db.Where("spider = ? AND place = ?", spider, place).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	var urls []string
	if cp.ProcessedURLs != "" {
		if err := json.Unmarshal([]byte(cp.ProcessedURLs), &urls); err != nil {
			return nil, fmt.Errorf("decoding processed urls: %w", err)
		}
	}
	state := &RunState{
		PageCount:                  cp.PageCount,
		TotalItemsScraped:          cp.TotalItemsScraped,
		NewItemsFound:              cp.NewItemsFound,
		ConsecutiveEmptyPages:      cp.ConsecutiveEmptyPages,
		ConsecutivePagesWithoutNew: cp.ConsecutivePagesWithoutNew,
		ProcessedURLs:              map[string]bool{},
	}
	for _, u := range urls {
		state.ProcessedURLs[u] = true
	}
	return state, nil
}

// Clear removes the checkpoint for a (spider, place) pair. Called after a
// run completes normally.
func (s *CheckpointStore) Clear(spider, place string) error {
	return s.db.Where("spider = ? AND place = ?", spider, place).Delete(&Checkpoint{}).Error
}
