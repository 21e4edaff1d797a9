package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// RateLimit bounds requests per client. Zero disables limiting.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
	// TrustedProxies lists peer IPs or CIDRs whose X-Real-IP and
	// X-Forwarded-For headers name the client. Other peers are keyed by
	// their own address.
	TrustedProxies []string
}

const (
	visitorIdle   = 5 * time.Minute
	sweepInterval = time.Minute
)

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key. Authenticated requests
// are keyed by actor, anonymous ones by client IP. Idle buckets are swept
// on a ticker until Stop is called.
type RateLimiter struct {
	limit    RateLimit
	proxies  []netip.Prefix
	mu       sync.Mutex
	visitors map[string]*rateEntry
	clockNow func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter returns nil when limit disables limiting.
func NewRateLimiter(limit RateLimit) (*RateLimiter, error) {
	if limit.RequestsPerMinute <= 0 {
		return nil, nil
	}
	proxies, err := parseProxies(limit.TrustedProxies)
	if err != nil {
		return nil, err
	}
	r := &RateLimiter{
		limit:    limit,
		proxies:  proxies,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
		stop:     make(chan struct{}),
	}
	go r.sweepLoop()
	return r, nil
}

func parseProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Stop ends the sweeper. It is safe on a nil limiter and may be called
// more than once.
func (r *RateLimiter) Stop() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
}

// Middleware answers 429 once a client exhausts its bucket.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.allow(r.clientKey(req)) {
			writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	entry, ok := r.visitors[id]
	if !ok {
		perSecond := r.limit.RequestsPerMinute / 60.0
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (r *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep(r.clockNow())
		}
	}
}

// sweep drops clients idle for longer than visitorIdle.
func (r *RateLimiter) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > visitorIdle {
			delete(r.visitors, id)
		}
	}
}

func (r *RateLimiter) clientKey(req *http.Request) string {
	if actor, ok := ActorFromContext(req.Context()); ok {
		return "actor:" + actor.Hex()
	}
	peer := remoteAddr(req)
	if !r.trusted(peer) {
		return peer.String()
	}
	if ip, err := netip.ParseAddr(strings.TrimSpace(req.Header.Get("X-Real-IP"))); err == nil {
		return ip.Unmap().String()
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return ip.Unmap().String()
		}
	}
	return peer.String()
}

func (r *RateLimiter) trusted(peer netip.Addr) bool {
	if !peer.IsValid() {
		return false
	}
	for _, prefix := range r.proxies {
		if prefix.Contains(peer) {
			return true
		}
	}
	return false
}

func remoteAddr(req *http.Request) netip.Addr {
	if addrPort, err := netip.ParseAddrPort(req.RemoteAddr); err == nil {
		return addrPort.Addr().Unmap()
	}
	addr, _ := netip.ParseAddr(req.RemoteAddr)
	return addr.Unmap()
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request ID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID propagates a caller supplied X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// Observability records Prometheus request metrics, a span per route and
// a request log line.
type Observability struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewObservability registers HTTP metrics with reg.
func NewObservability(serviceName string, reg prometheus.Registerer, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lendingd",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed by the lending service.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lendingd",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	if reg != nil {
		reg.MustRegister(requests, durations)
	}
	return &Observability{
		logger:    logger,
		tracer:    otel.Tracer(serviceName),
		requests:  requests,
		durations: durations,
	}
}

// Middleware wraps next with metrics, tracing and access logging. The route
// label is the chi route pattern so ids do not explode cardinality.
func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := o.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
		))
		defer span.End()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", recorder.status))
		duration := time.Since(start)
		o.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		o.durations.WithLabelValues(route, r.Method).Observe(duration.Seconds())
		o.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", recorder.status),
			slog.Duration("duration", duration),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
