package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestGetSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	client := NewClient(0, time.Second, testLogger())
	p, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, 200, p.StatusCode)
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Contains(t, gotLang, "nl-NL")
}

func TestGetDoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer server.Close()

	client := NewClient(0, time.Second, testLogger())
	p, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, p.StatusCode)
	assert.True(t, p.Blocked(), "a 302 must be visible as a block")
}

func TestGetHonoursPolitenessDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(50*time.Millisecond, time.Second, testLogger())
	start := time.Now()
	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	_, err = client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestGetCancelledContext(t *testing.T) {
	client := NewClient(time.Hour, time.Second, testLogger())
	_, err := client.Get(context.Background(), "http://unused.invalid") // primes lastSent
	_ = err

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Get(ctx, "http://unused.invalid")
	assert.Error(t, err)
}
