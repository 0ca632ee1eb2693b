package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/scout-go/internal/metrics"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

// dropFirst closes the connection without a response for the first n requests.
func dropFirst(n int32, hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= n {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func TestScheduler_ConcurrencyCeiling(t *testing.T) {
	t.Parallel()

	const latency = 40 * time.Millisecond

	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(latency)
		inFlight.Add(-1)
	}))
	defer srv.Close()

	s := New("serial", Config{MaxConcurrent: 1, Retry: fastRetry(1)})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TryFetch(context.Background(), srv.URL, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.GreaterOrEqual(t, time.Since(start), 5*latency)
}

func TestScheduler_Do_Ceiling(t *testing.T) {
	t.Parallel()

	s := New("pool", Config{MaxConcurrent: 3, Retry: fastRetry(1)})

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(context.Background(), func(ctx context.Context) error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestScheduler_RetryThenSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(dropFirst(2, &hits))
	defer srv.Close()

	m := metrics.NewRegistry()
	s := New("flaky", Config{MaxConcurrent: 1, Retry: fastRetry(3)}, WithMetrics(m))

	resp, err := s.TryFetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SchedulerAttempts.WithLabelValues("flaky")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRequests.WithLabelValues("flaky", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SchedulerInFlight.WithLabelValues("flaky")))
}

func TestScheduler_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(dropFirst(100, &hits))
	defer srv.Close()

	s := New("down", Config{MaxConcurrent: 1, Retry: fastRetry(2)})

	_, err := s.TryFetch(context.Background(), srv.URL, nil)

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, int32(2), hits.Load())
}

func TestScheduler_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := New("slow", Config{MaxConcurrent: 1, Retry: fastRetry(3)})

	resp, err := s.TryRequest(context.Background(), Request{URI: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestScheduler_StatusCodesAreResponses(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "scout", r.Header.Get("User-Agent"))
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Server", "nginx/1.18")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New("api", Config{Retry: fastRetry(3)})

	resp, err := s.TryRequest(context.Background(), Request{
		Method:  http.MethodPost,
		URI:     srv.URL,
		Headers: map[string]string{"User-Agent": "scout"},
		Body:    []byte("{}"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "nginx/1.18", resp.Header.Get("Server"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestScheduler_SkipTLSVerify(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New("tls", Config{Retry: fastRetry(3)})

	_, err := s.TryRequest(context.Background(), Request{URI: srv.URL})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrExhausted)

	resp, err := s.TryRequest(context.Background(), Request{URI: srv.URL, SkipTLSVerify: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScheduler_Do(t *testing.T) {
	t.Parallel()

	t.Run("PermanentErrorNotRetried", func(t *testing.T) {
		t.Parallel()
		s := New("p", Config{Retry: fastRetry(5)})
		boom := errors.New("boom")

		calls := 0
		err := s.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("TransientRetriedUntilSuccess", func(t *testing.T) {
		t.Parallel()
		s := New("t", Config{Retry: fastRetry(4)})

		calls := 0
		err := s.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 4 {
				return Transient(errors.New("reset"))
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 4, calls)
	})

	t.Run("CanceledWhileWaitingForSlot", func(t *testing.T) {
		t.Parallel()
		s := New("c", Config{MaxConcurrent: 1})

		release := make(chan struct{})
		started := make(chan struct{})
		go func() {
			_ = s.Do(context.Background(), func(ctx context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := s.Do(ctx, func(ctx context.Context) error { return nil })
		close(release)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s := New("d", Config{})
	cfg := s.Config()

	assert.Equal(t, "d", s.Name())
	assert.Equal(t, defaultMaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retry.MaxAttempts)
}

func TestNextDelay(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, NextDelay(p, 1, nil))
	assert.Equal(t, 200*time.Millisecond, NextDelay(p, 2, nil))
	assert.Equal(t, 400*time.Millisecond, NextDelay(p, 3, nil))
	assert.Equal(t, time.Second, NextDelay(p, 10, nil))

	p.Jitter = true
	assert.Equal(t, 50*time.Millisecond, NextDelay(p, 1, nil))

	assert.Equal(t, time.Duration(0), NextDelay(RetryPolicy{}, 3, nil))
}
