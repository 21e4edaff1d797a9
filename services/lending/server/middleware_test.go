package server

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"lendpool/native/lending"
	"lendpool/observability/metrics"
)

func newTestLimiter(t *testing.T, limit RateLimit) *RateLimiter {
	t.Helper()
	limiter, err := NewRateLimiter(limit)
	require.NoError(t, err)
	require.NotNil(t, limiter)
	t.Cleanup(limiter.Stop)
	return limiter
}

func anonymousRequest(remote string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/pool", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestRateLimiterIgnoresForwardingHeadersFromUntrustedPeer(t *testing.T) {
	limiter := newTestLimiter(t, RateLimit{RequestsPerMinute: 1, Burst: 1, TrustedProxies: []string{"10.0.0.1"}})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, anonymousRequest("203.0.113.7:4000", map[string]string{"X-Real-IP": "198.51.100.1"}))
	require.Equal(t, http.StatusNoContent, first.Code)

	// Rotating spoofed headers does not earn a fresh bucket.
	for _, headers := range []map[string]string{
		{"X-Real-IP": "198.51.100.2"},
		{"X-Forwarded-For": "198.51.100.3, 10.0.0.1"},
		{},
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, anonymousRequest("203.0.113.7:4001", headers))
		require.Equal(t, http.StatusTooManyRequests, rec.Code, headers)
	}
}

func TestRateLimiterHonorsTrustedProxyHeaders(t *testing.T) {
	limiter := newTestLimiter(t, RateLimit{RequestsPerMinute: 60, TrustedProxies: []string{"10.0.0.0/8"}})

	key := limiter.clientKey(anonymousRequest("10.1.2.3:5000", map[string]string{"X-Real-IP": "198.51.100.9"}))
	require.Equal(t, "198.51.100.9", key)

	key = limiter.clientKey(anonymousRequest("10.1.2.3:5000", map[string]string{"X-Forwarded-For": " 198.51.100.4 , 10.1.2.3"}))
	require.Equal(t, "198.51.100.4", key)

	key = limiter.clientKey(anonymousRequest("10.1.2.3:5000", map[string]string{"X-Real-IP": "not-an-ip"}))
	require.Equal(t, "10.1.2.3", key)

	key = limiter.clientKey(anonymousRequest("192.0.2.1:5000", map[string]string{"X-Real-IP": "198.51.100.9"}))
	require.Equal(t, "192.0.2.1", key)
}

func TestRateLimiterRejectsBadTrustedProxy(t *testing.T) {
	_, err := NewRateLimiter(RateLimit{RequestsPerMinute: 60, TrustedProxies: []string{"10.0.0.0/99"}})
	require.Error(t, err)
	_, err = NewRateLimiter(RateLimit{RequestsPerMinute: 60, TrustedProxies: []string{"proxy.local"}})
	require.Error(t, err)

	limiter, err := NewRateLimiter(RateLimit{TrustedProxies: []string{"proxy.local"}})
	require.NoError(t, err)
	require.Nil(t, limiter)
	limiter.Stop()
}

func TestRateLimiterSweepDropsIdleClients(t *testing.T) {
	limiter := newTestLimiter(t, RateLimit{RequestsPerMinute: 60, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.allow("idle"))
	now = now.Add(visitorIdle - time.Second)
	require.True(t, limiter.allow("busy"))

	// Serving requests leaves idle entries in place until the sweep.
	now = now.Add(2 * time.Second)
	require.True(t, limiter.allow("busy"))
	limiter.mu.Lock()
	require.Len(t, limiter.visitors, 2)
	limiter.mu.Unlock()

	limiter.sweep(now)
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.Len(t, limiter.visitors, 1)
	require.Contains(t, limiter.visitors, "busy")
}

type panickingEngine struct {
	*lending.Engine
}

func (panickingEngine) Stake(context.Context, common.Address, *big.Int) error {
	panic("stake exploded")
}

func TestHandlerRecoversFromPanics(t *testing.T) {
	h := newHarness(t, RateLimit{})
	reg := prometheus.NewRegistry()
	srv, err := New(panickingEngine{h.engine}, Config{Auth: testAuth}, metrics.NewLending(reg), reg, nil)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	h.handler = srv.Handler()

	rec := h.do(http.MethodPost, "/v1/stake", &stakerAddr, amount(tokens(1)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = h.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `lendingd_http_requests_total{method="POST",route="/v1/stake",status="500"} 1`), body)
}
