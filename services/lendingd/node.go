package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"lendpool/core/events"
	"lendpool/native/bank"
	"lendpool/native/lending"
	"lendpool/native/roles"
	"lendpool/observability/logging"
	"lendpool/observability/metrics"
	lendingserver "lendpool/services/lending/server"
	"lendpool/services/lendingd/config"
	statelending "lendpool/state/lending"
	"lendpool/storage"
)

// node holds the wired pool components behind the HTTP server.
type node struct {
	db      storage.Database
	ledger  *bank.Ledger
	roles   *roles.Registry
	engine  *lending.Engine
	server  *lendingserver.Server
	metrics *metrics.LendingMetrics
}

func openDatabase(cfg config.StorageConfig) (storage.Database, error) {
	if cfg.Memory {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", cfg.DataDir, err)
	}
	return db, nil
}

// newNode opens storage and wires the ledger, role registry, engine and
// HTTP surface. The pool is bootstrapped on first start.
func newNode(ctx context.Context, cfg config.Config, reg *prometheus.Registry, logger *slog.Logger) (*node, error) {
	poolCfg, err := lending.LoadConfig(cfg.PoolConfig)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return nil, err
	}
	n := &node{db: db}
	if err := n.wire(ctx, cfg, poolCfg, reg, logger); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return n, nil
}

func (n *node) wire(ctx context.Context, cfg config.Config, poolCfg lending.Config, reg *prometheus.Registry, logger *slog.Logger) error {
	n.ledger = bank.NewLedger(n.db, poolCfg.TokenSymbol, cfg.CustodyAddress())
	n.roles = roles.NewRegistry(n.db)
	if err := syncRoles(n.roles, cfg.Roles); err != nil {
		return err
	}

	n.metrics = metrics.NewLending(reg)
	n.engine = lending.NewEngine(poolCfg)
	n.engine.SetState(statelending.NewStore(n.db))
	n.engine.SetToken(n.ledger)
	n.engine.SetAccess(n.roles)
	n.engine.SetEmitter(events.MultiEmitter{n.metrics, logging.NewEventLogger(logger)})

	booted, err := n.engine.Bootstrapped()
	if err != nil {
		return err
	}
	if !booted {
		for _, credit := range cfg.Genesis {
			amount, err := credit.Value()
			if err != nil {
				return err
			}
			if err := n.ledger.Credit(common.HexToAddress(credit.Address), amount); err != nil {
				return fmt.Errorf("genesis credit %s: %w", credit.Address, err)
			}
		}
		if err := n.engine.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrap pool: %w", err)
		}
		logger.Info("pool bootstrapped",
			slog.String("token", poolCfg.TokenSymbol),
			slog.Int("genesis_accounts", len(cfg.Genesis)))
	}
	if balance, err := n.engine.PoolBalance(); err == nil {
		n.metrics.ObservePool(*balance)
	}

	srv, err := lendingserver.New(n.engine, lendingserver.Config{
		ServiceName: "lendingd",
		Auth: lendingserver.AuthConfig{
			HMACSecret: cfg.Auth.ResolveSecret(),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		RateLimit: lendingserver.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    cfg.RateLimit.TrustedProxies,
		},
		PublicReads: cfg.Auth.PublicReads,
	}, n.metrics, reg, logger)
	if err != nil {
		return err
	}
	n.server = srv
	return nil
}

// syncRoles grants configured members. The staker role is exclusive, so any
// previously stored staker that no longer matches is revoked.
func syncRoles(registry *roles.Registry, cfg config.RolesConfig) error {
	staker := common.HexToAddress(cfg.Staker)
	current, err := registry.Members(lending.RoleStaker)
	if err != nil {
		return err
	}
	for _, member := range current {
		if member != staker {
			if err := registry.Revoke(lending.RoleStaker, member); err != nil {
				return err
			}
		}
	}
	if err := registry.Grant(lending.RoleStaker, staker); err != nil {
		return err
	}
	for role, members := range map[lending.Role][]string{
		lending.RoleGovernance: cfg.Governance,
		lending.RoleTreasury:   cfg.Treasury,
	} {
		for _, member := range members {
			if err := registry.Grant(role, common.HexToAddress(member)); err != nil {
				return fmt.Errorf("grant %s: %w", role, err)
			}
		}
	}
	return nil
}

func (n *node) Close() error {
	if n.server != nil {
		n.server.Close()
	}
	return n.db.Close()
}
