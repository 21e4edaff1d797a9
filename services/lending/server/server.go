package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendpool/native/lending"
	"lendpool/observability/metrics"
)

// Engine is the pool surface served over HTTP.
type Engine interface {
	Stake(ctx context.Context, actor common.Address, amount *big.Int) error
	Unstake(ctx context.Context, actor common.Address, amount *big.Int) error
	Deposit(ctx context.Context, actor common.Address, amount *big.Int) error
	Withdraw(ctx context.Context, actor common.Address, amount *big.Int) error
	WithdrawRevenue(ctx context.Context, actor common.Address, amount *big.Int) error
	SettleYield(ctx context.Context, actor common.Address) (*big.Int, error)
	Close(ctx context.Context, actor common.Address) error
	Open(ctx context.Context, actor common.Address) error
	Pause(ctx context.Context, actor common.Address) error
	Unpause(ctx context.Context, actor common.Address) error
	SetParam(ctx context.Context, actor common.Address, name string, value uint64) error
	SetMinLoanAmount(ctx context.Context, actor common.Address, amount *big.Int) error

	RequestLoan(ctx context.Context, actor common.Address, amount *big.Int, duration uint64, metadata []byte) (uint64, error)
	DraftOffer(ctx context.Context, actor common.Address, applicationID uint64, terms lending.OfferTerms) error
	LockDraftOffer(ctx context.Context, actor common.Address, applicationID uint64) error
	OfferLoan(ctx context.Context, actor common.Address, applicationID uint64) error
	UpdateOffer(ctx context.Context, actor common.Address, applicationID uint64, terms lending.OfferTerms) error
	CancelLoan(ctx context.Context, actor common.Address, applicationID uint64) error
	DenyLoan(ctx context.Context, actor common.Address, applicationID uint64) error
	Borrow(ctx context.Context, actor common.Address, applicationID uint64) (uint64, error)
	Repay(ctx context.Context, actor common.Address, loanID uint64, amount *big.Int) (*lending.RepaymentOutcome, error)
	RepayOnBehalf(ctx context.Context, actor common.Address, loanID uint64, amount *big.Int, borrower common.Address) (*lending.RepaymentOutcome, error)
	DefaultLoan(ctx context.Context, actor common.Address, loanID uint64) (*lending.DefaultOutcome, error)

	PoolBalance() (*lending.PoolBalance, error)
	PoolConfig() (lending.PoolConfig, error)
	TokenConfig() (lending.TokenConfig, error)
	LoanTemplate() (lending.LoanTemplate, error)
	AmountDepositable() (*big.Int, error)
	AmountUnstakable() (*big.Int, error)
	AmountWithdrawable(addr common.Address) (*big.Int, error)
	CurrentLenderAPY() (uint64, error)
	ProjectedLenderAPY(borrowRate, apr uint64) (uint64, error)
	StakerEarningsPercent() (uint64, error)
	Lender(addr common.Address) (*lending.LenderPosition, error)
	BalanceOf(addr common.Address) (*big.Int, error)
	RevenueBalanceOf(addr common.Address) (*big.Int, error)
	BorrowerStats(addr common.Address) (*lending.BorrowerStats, error)
	LoanApplication(id uint64) (*lending.LoanApplication, error)
	LoanOffer(applicationID uint64) (*lending.LoanOffer, error)
	Loan(id uint64) (*lending.Loan, error)
	LoanDetail(id uint64) (*lending.LoanDetail, error)
	LoanBalanceDue(loanID uint64) (*big.Int, error)
	CanDefault(loanID uint64) (bool, error)
}

// Config wires the HTTP surface.
type Config struct {
	ServiceName string
	Auth        AuthConfig
	RateLimit   RateLimit
	// PublicReads serves GET routes without a bearer token.
	PublicReads bool
}

// Server exposes the lending engine over JSON/HTTP.
type Server struct {
	engine  Engine
	auth    *Authenticator
	limiter *RateLimiter
	obs     *Observability
	metrics *metrics.LendingMetrics
	gather  prometheus.Gatherer
	logger  *slog.Logger
	cfg     Config
}

// New builds the server. reg receives the HTTP metrics and is served on
// /metrics when it is also a Gatherer.
func New(engine Engine, cfg Config, m *metrics.LendingMetrics, reg prometheus.Registerer, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server: engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "lendingd"
	}
	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	limiter, err := NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	gather := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gather = g
	}
	return &Server{
		engine:  engine,
		auth:    auth,
		limiter: limiter,
		obs:     NewObservability(cfg.ServiceName, reg, logger),
		metrics: m,
		gather:  gather,
		logger:  logger.With(slog.String("component", "lending-http")),
		cfg:     cfg,
	}, nil
}

// Close stops background work started by New.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, s.obs.Middleware, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if !s.cfg.PublicReads {
				r.Use(s.auth.Middleware)
			}
			r.Get("/pool", s.handlePool)
			r.Get("/pool/config", s.handlePoolConfig)
			r.Get("/pool/limits", s.handleLimits)
			r.Get("/pool/apy", s.handleAPY)
			r.Get("/pool/apy/projected", s.handleProjectedAPY)
			r.Get("/lenders/{addr}", s.handleLender)
			r.Get("/revenue/{addr}", s.handleRevenue)
			r.Get("/borrowers/{addr}", s.handleBorrower)
			r.Get("/applications/{id}", s.handleApplication)
			r.Get("/offers/{id}", s.handleOffer)
			r.Get("/loans/{id}", s.handleLoan)
			r.Get("/loans/{id}/due", s.handleLoanDue)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware, s.limiter.Middleware)
			r.Post("/stake", s.amountOp("stake", s.engine.Stake))
			r.Post("/unstake", s.amountOp("unstake", s.engine.Unstake))
			r.Post("/deposit", s.amountOp("deposit", s.engine.Deposit))
			r.Post("/withdraw", s.amountOp("withdraw", s.engine.Withdraw))
			r.Post("/revenue/withdraw", s.amountOp("withdraw_revenue", s.engine.WithdrawRevenue))
			r.Post("/settle", s.handleSettle)
			r.Post("/pool/close", s.actorOp("close", s.engine.Close))
			r.Post("/pool/open", s.actorOp("open", s.engine.Open))
			r.Post("/pool/pause", s.actorOp("pause", s.engine.Pause))
			r.Post("/pool/unpause", s.actorOp("unpause", s.engine.Unpause))
			r.Post("/params", s.handleSetParam)
			r.Post("/applications", s.handleRequestLoan)
			r.Post("/applications/{id}/draft", s.termsOp("draft_offer", s.engine.DraftOffer))
			r.Post("/applications/{id}/update", s.termsOp("update_offer", s.engine.UpdateOffer))
			r.Post("/applications/{id}/lock", s.applicationOp("lock_offer", s.engine.LockDraftOffer))
			r.Post("/applications/{id}/offer", s.applicationOp("offer_loan", s.engine.OfferLoan))
			r.Post("/applications/{id}/cancel", s.applicationOp("cancel_loan", s.engine.CancelLoan))
			r.Post("/applications/{id}/deny", s.applicationOp("deny_loan", s.engine.DenyLoan))
			r.Post("/applications/{id}/borrow", s.handleBorrow)
			r.Post("/loans/{id}/repay", s.handleRepay)
			r.Post("/loans/{id}/repay-on-behalf", s.handleRepayOnBehalf)
			r.Post("/loans/{id}/default", s.handleDefault)
		})
	})
	return otelhttp.NewHandler(r, s.cfg.ServiceName)
}

// fail writes the mapped error response and counts the failure.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("lending operation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
			slog.String("request_id", RequestIDFromContext(r.Context())))
	}
	if op != "" {
		s.metrics.RecordFailure(op, kindOf(err))
	}
	writeError(w, status, err.Error())
}

// observe refreshes pool gauges after a successful mutation.
func (s *Server) observe() {
	if s.metrics == nil {
		return
	}
	if balance, err := s.engine.PoolBalance(); err == nil {
		s.metrics.ObservePool(*balance)
	}
	current, err := s.engine.CurrentLenderAPY()
	if err != nil {
		return
	}
	template, err := s.engine.LoanTemplate()
	if err != nil {
		return
	}
	projected, err := s.engine.ProjectedLenderAPY(lending.OneHundredPercent, template.APR)
	if err != nil {
		return
	}
	staker, err := s.engine.StakerEarningsPercent()
	if err != nil {
		return
	}
	s.metrics.ObserveAPY(current, projected, staker)
}

// TLSConfig loads a server certificate and, when clientCAFile is set,
// requires client certificates signed by that CA.
func TLSConfig(certFile, keyFile, clientCAFile string) (*tls.Config, error) {
	certFile = strings.TrimSpace(certFile)
	keyFile = strings.TrimSpace(keyFile)
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("tls: certificate and key are required")
	}
	certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("tls: load key pair: %w", err)
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{certificate},
	}
	if caPath := strings.TrimSpace(clientCAFile); caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("tls: read client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls: parse client CA")
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}
