package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(retries int) (*ClientPool, *[]time.Duration) {
	cfg := DefaultClientConfig()
	cfg.MaxRetries = retries
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	cfg.Headers = map[string]string{"x-test": "yes"}
	pool := NewClientPool(cfg)
	var waits []time.Duration
	pool.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return pool, &waits
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "CryptoLens/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("x-test"))
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	pool, _ := testPool(0)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, pool.GetJSON(context.Background(), srv.URL, url.Values{"days": {"7"}}, &out))
	assert.True(t, out.OK)

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessRequests)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	pool, waits := testPool(2)
	body, err := pool.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, *waits, 2)
	assert.Equal(t, int64(2), pool.GetStats().RetriedRequests)
}

func TestGet_HonoursRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	pool, waits := testPool(1)
	_, err := pool.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Len(t, *waits, 1)
	assert.Equal(t, 3*time.Second, (*waits)[0])
}

func TestGet_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "coin not found", http.StatusNotFound)
	}))
	defer srv.Close()

	pool, waits := testPool(3)
	_, err := pool.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "coin not found")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, *waits)
	assert.Equal(t, int64(1), pool.GetStats().FailedRequests)
}

func TestGet_CancelledContext(t *testing.T) {
	pool, _ := testPool(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Get(ctx, "http://127.0.0.1:1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "5", 5 * time.Second},
		{"negative", "-5", 0},
		{"capped", "3600", maxRetryAfter},
		{"http date", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			assert.Equal(t, tt.want, RetryAfter(h, now))
		})
	}
}
