// Package scheduler provides a bounded-concurrency, retrying executor for
// outbound requests.
//
// One Scheduler is built per external surface and shared by every handler
// that talks to it, so its MaxConcurrent ceiling holds no matter how many
// graph nodes are being expanded in parallel.
package scheduler

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Benny93/scout-go/internal/metrics"
)

// ErrExhausted is returned once every attempt allowed by the retry policy failed.
var ErrExhausted = errors.New("retries exhausted")

// Config configures a Scheduler.
type Config struct {
	MaxConcurrent int           `yaml:"max_concurrent" validate:"gte=0"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	Retry         RetryPolicy   `yaml:"retry"`
}

const (
	defaultMaxConcurrent = 10
	defaultTimeout       = 30 * time.Second
)

// Request describes one outbound HTTP call.
type Request struct {
	Method  string
	URI     string
	Headers map[string]string
	Body    []byte

	// Timeout bounds a single attempt; zero uses the scheduler default.
	Timeout time.Duration

	// SkipTLSVerify disables certificate verification.
	SkipTLSVerify bool
}

// Response is the outcome of a successful request. Any status code counts as success.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Scheduler limits in-flight work and retries transient failures.
type Scheduler struct {
	name     string
	cfg      Config
	slots    *semaphore.Weighted
	client   *http.Client
	insecure *http.Client
	metrics  *metrics.Registry

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithMetrics records slot usage and attempts in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTransport replaces the HTTP transport. A clone with verification
// disabled is derived for SkipTLSVerify requests.
func WithTransport(t *http.Transport) Option {
	return func(s *Scheduler) {
		s.client = &http.Client{Transport: t}
		s.insecure = &http.Client{Transport: insecureClone(t)}
	}
}

// New creates a scheduler. Zero config values take defaults.
func New(name string, cfg Config, opts ...Option) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	s := &Scheduler{
		name:     name,
		cfg:      cfg,
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		client:   &http.Client{Transport: base},
		insecure: &http.Client{Transport: insecureClone(base)},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Do runs fn while holding one slot, retrying it while it fails with a
// Transient error, up to the policy's attempt limit. The slot is held for
// the whole attempt loop, backoff waits included.
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for %s slot: %w", s.name, err)
	}
	defer s.slots.Release(1)

	if s.metrics != nil {
		s.metrics.SchedulerInFlight.WithLabelValues(s.name).Inc()
		defer s.metrics.SchedulerInFlight.WithLabelValues(s.name).Dec()
	}

	for attempt := 1; ; attempt++ {
		if s.metrics != nil {
			s.metrics.SchedulerAttempts.WithLabelValues(s.name).Inc()
		}

		err := fn(ctx)
		if err == nil {
			s.outcome("ok")
			return nil
		}
		if !IsTransient(err) {
			s.outcome("failed")
			return err
		}
		if attempt >= s.cfg.Retry.MaxAttempts {
			s.outcome("exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		if err := s.wait(ctx, s.nextDelay(attempt)); err != nil {
			s.outcome("canceled")
			return err
		}
	}
}

// TryRequest performs req through a slot, retrying connection and timeout errors.
func (s *Scheduler) TryRequest(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	client := s.client
	if req.SkipTLSVerify {
		client = s.insecure
	}

	var resp *Response
	err := s.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var body io.Reader
		if req.Body != nil {
			body = bytes.NewReader(req.Body)
		}
		httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URI, body)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		r, err := client.Do(httpReq)
		if err != nil {
			return classify(ctx, err)
		}
		defer func() { _ = r.Body.Close() }()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			return classify(ctx, fmt.Errorf("reading body: %w", err))
		}

		resp = &Response{StatusCode: r.StatusCode, Header: r.Header, Body: data}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URI, err)
	}
	return resp, nil
}

// TryFetch issues a GET through TryRequest.
func (s *Scheduler) TryFetch(ctx context.Context, uri string, headers map[string]string) (*Response, error) {
	return s.TryRequest(ctx, Request{Method: http.MethodGet, URI: uri, Headers: headers})
}

func (s *Scheduler) outcome(outcome string) {
	if s.metrics != nil {
		s.metrics.SchedulerRequests.WithLabelValues(s.name, outcome).Inc()
	}
}

func (s *Scheduler) nextDelay(attempt int) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return NextDelay(s.cfg.Retry, attempt, s.rng)
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify marks transport failures as transient unless the caller's context
// ended or the peer certificate was rejected.
func classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return err
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return err
	}
	return Transient(err)
}

func insecureClone(t *http.Transport) *http.Transport {
	c := t.Clone()
	if c.TLSClientConfig == nil {
		c.TLSClientConfig = &tls.Config{}
	}
	c.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in per request for fingerprinting
	return c
}
