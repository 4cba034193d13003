package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"fundamental/crawler/internal/crawl"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestStartRunsImmediateActiveSweep(t *testing.T) {
	var (
		mu   sync.Mutex
		runs []string
	)
	done := make(chan struct{})
	crawlFn := func(_ context.Context, place string, mode crawl.Mode) error {
		mu.Lock()
		runs = append(runs, place+"/"+string(mode))
		if len(runs) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	}

	s := New(crawlFn, nil, []string{"amsterdam", "utrecht"}, time.Hour, testLogger())
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("initial sweep did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"amsterdam/active", "utrecht/active"}, runs)
}

func TestStopHaltsLoops(t *testing.T) {
	s := New(func(context.Context, string, crawl.Mode) error { return nil },
		nil, []string{"amsterdam"}, time.Hour, testLogger())
	s.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestUntilNextMidnight(t *testing.T) {
	now := time.Date(2024, 3, 12, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, untilNextMidnight(now))
}
