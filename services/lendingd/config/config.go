package config

import (
	"fmt"
	"math/big"
	"net/netip"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const defaultListen = ":8443"

// Config captures the runtime settings for the lending pool daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	TLS           TLSConfig       `yaml:"tls"`
	Auth          AuthConfig      `yaml:"auth"`
	Storage       StorageConfig   `yaml:"storage"`
	PoolConfig    string          `yaml:"pool_config"`
	Custody       string          `yaml:"custody"`
	Roles         RolesConfig     `yaml:"roles"`
	Genesis       []GenesisCredit `yaml:"genesis"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Log           LogConfig       `yaml:"log"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token validation. The secret may be supplied
// inline or through the environment variable named by SecretEnv.
type AuthConfig struct {
	Secret      string `yaml:"jwt_secret"`
	SecretEnv   string `yaml:"jwt_secret_env"`
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	PublicReads bool   `yaml:"public_reads"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	Memory  bool   `yaml:"memory"`
}

// RolesConfig seeds the role registry at startup.
type RolesConfig struct {
	Staker     string   `yaml:"staker"`
	Governance []string `yaml:"governance"`
	Treasury   []string `yaml:"treasury"`
}

// GenesisCredit mints an opening token balance. It is only applied when the
// pool has not been bootstrapped yet.
type GenesisCredit struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// RateLimitConfig bounds mutating requests per actor.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
	// TrustedProxies lists reverse proxy IPs or CIDRs allowed to name the
	// client through X-Real-IP or X-Forwarded-For.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Traces      bool              `yaml:"traces"`
	Metrics     bool              `yaml:"metrics"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// LogConfig enables a rotated log file next to stdout.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.PoolConfig = strings.TrimSpace(cfg.PoolConfig)
	cfg.Custody = strings.TrimSpace(cfg.Custody)
	cfg.TLS.normalize()
	cfg.Auth.normalize()
	cfg.Storage.DataDir = strings.TrimSpace(cfg.Storage.DataDir)
	cfg.Roles.normalize()
	for i := range cfg.Genesis {
		cfg.Genesis[i].Address = strings.TrimSpace(cfg.Genesis[i].Address)
		cfg.Genesis[i].Amount = strings.TrimSpace(cfg.Genesis[i].Amount)
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	if cfg.Telemetry.SampleRatio <= 0 || cfg.Telemetry.SampleRatio > 1 {
		cfg.Telemetry.SampleRatio = 1
	}
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.Storage.Memory == (cfg.Storage.DataDir != "") {
		return fmt.Errorf("storage: exactly one of data_dir or memory must be set")
	}
	if !common.IsHexAddress(cfg.Custody) {
		return fmt.Errorf("custody: %q is not an address", cfg.Custody)
	}
	if err := cfg.Roles.validate(); err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	for i, credit := range cfg.Genesis {
		if !common.IsHexAddress(credit.Address) {
			return fmt.Errorf("genesis[%d]: %q is not an address", i, credit.Address)
		}
		if _, err := credit.Value(); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	for i, proxy := range cfg.RateLimit.TrustedProxies {
		if !validProxy(strings.TrimSpace(proxy)) {
			return fmt.Errorf("rate_limit.trusted_proxies[%d]: %q is not an IP or CIDR", i, proxy)
		}
	}
	return nil
}

func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

// CustodyAddress returns the pool custody account.
func (cfg Config) CustodyAddress() common.Address {
	return common.HexToAddress(cfg.Custody)
}

func (cfg *TLSConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.CertPath = strings.TrimSpace(cfg.CertPath)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
	cfg.ClientCAPath = strings.TrimSpace(cfg.ClientCAPath)
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

// Enabled reports whether the server should terminate TLS.
func (cfg TLSConfig) Enabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	cfg.SecretEnv = strings.TrimSpace(cfg.SecretEnv)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
}

func (cfg AuthConfig) validate() error {
	if cfg.Secret != "" && cfg.SecretEnv != "" {
		return fmt.Errorf("jwt_secret and jwt_secret_env are mutually exclusive")
	}
	if cfg.ResolveSecret() == "" {
		return fmt.Errorf("a jwt secret must be configured")
	}
	return nil
}

// ResolveSecret returns the inline secret or the value of SecretEnv.
func (cfg AuthConfig) ResolveSecret() string {
	if cfg.Secret != "" {
		return cfg.Secret
	}
	if cfg.SecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(cfg.SecretEnv))
}

func (cfg *RolesConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.Staker = strings.TrimSpace(cfg.Staker)
	cfg.Governance = trimAll(cfg.Governance)
	cfg.Treasury = trimAll(cfg.Treasury)
}

func (cfg RolesConfig) validate() error {
	if !common.IsHexAddress(cfg.Staker) {
		return fmt.Errorf("staker %q is not an address", cfg.Staker)
	}
	if len(cfg.Governance) == 0 {
		return fmt.Errorf("at least one governance address is required")
	}
	for _, list := range [][]string{cfg.Governance, cfg.Treasury} {
		for _, addr := range list {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("%q is not an address", addr)
			}
		}
	}
	return nil
}

// Value parses the credit amount in token base units.
func (g GenesisCredit) Value() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(g.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", g.Amount)
	}
	return amount, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
