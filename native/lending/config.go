package lending

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Hard safety bounds that no runtime setter may cross.
const (
	safeMinAPR              uint64 = 1
	safeMaxAPR                     = OneHundredPercent
	safeMinDuration                = secondsPerDay
	safeMaxDuration                = 10 * secondsPerYear
	safeMinGracePeriod             = 3 * secondsPerDay
	safeMaxGracePeriod             = secondsPerYear
	safeMaxStakerEarnFactor uint64 = 10 * OneHundredPercent
	safeMaxProtocolFee             = OneHundredPercent / 2
	safeMaxExitFee                 = OneHundredPercent / 20
)

// Config captures the runtime configuration for the lending pool. It seeds
// the persisted PoolState on bootstrap and carries the static desk and
// fallback timings.
type Config struct {
	TokenSymbol   string `toml:"TokenSymbol"`
	TokenDecimals uint8  `toml:"TokenDecimals"`

	TargetStakePercent     uint64 `toml:"TargetStakePercent"`
	TargetLiquidityPercent uint64 `toml:"TargetLiquidityPercent"`
	ProtocolFeePercent     uint64 `toml:"ProtocolFeePercent"`
	MaxProtocolFeePercent  uint64 `toml:"MaxProtocolFeePercent"`
	StakerEarnFactor       uint64 `toml:"StakerEarnFactor"`
	StakerEarnFactorMax    uint64 `toml:"StakerEarnFactorMax"`
	ExitFeePercent         uint64 `toml:"ExitFeePercent"`
	MaxExitFeePercent      uint64 `toml:"MaxExitFeePercent"`

	Template TemplateConfig `toml:"template"`
	Desk     DeskConfig     `toml:"desk"`
	Fallback FallbackConfig `toml:"fallback"`
}

// TemplateConfig describes the initial loan template. Amounts are whole
// tokens and durations are seconds.
type TemplateConfig struct {
	APR                uint64 `toml:"APR"`
	GracePeriodSeconds uint64 `toml:"GracePeriodSeconds"`
	MinAmountTokens    uint64 `toml:"MinAmountTokens"`
	MinDurationSeconds uint64 `toml:"MinDurationSeconds"`
	MaxDurationSeconds uint64 `toml:"MaxDurationSeconds"`
}

// DeskConfig holds loan desk timings.
type DeskConfig struct {
	OfferLockSeconds uint64 `toml:"OfferLockSeconds"`
}

// FallbackConfig governs who may cancel offers and default loans once the
// staker stops acting.
type FallbackConfig struct {
	StakerInactivitySeconds uint64 `toml:"StakerInactivitySeconds"`
	LenderMinBalanceTokens  uint64 `toml:"LenderMinBalanceTokens"`
	LenderTenureSeconds     uint64 `toml:"LenderTenureSeconds"`
}

// DefaultConfig returns the parameters used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		TokenSymbol:            "USDC",
		TokenDecimals:          6,
		TargetStakePercent:     100,
		TargetLiquidityPercent: 0,
		ProtocolFeePercent:     100,
		MaxProtocolFeePercent:  200,
		StakerEarnFactor:       1500,
		StakerEarnFactorMax:    5000,
		ExitFeePercent:         5,
		MaxExitFeePercent:      10,
		Template: TemplateConfig{
			APR:                300,
			GracePeriodSeconds: 60 * secondsPerDay,
			MinAmountTokens:    100,
			MinDurationSeconds: secondsPerDay,
			MaxDurationSeconds: 4 * secondsPerYear,
		},
		Desk: DeskConfig{OfferLockSeconds: 2 * secondsPerDay},
		Fallback: FallbackConfig{
			StakerInactivitySeconds: 90 * secondsPerDay,
			LenderMinBalanceTokens:  100,
			LenderTenureSeconds:     30 * secondsPerDay,
		},
	}
}

// LoadConfig decodes a TOML parameter file on top of DefaultConfig and
// validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read pool config: %w", err)
	}
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode pool config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every parameter against its bounds.
func (c Config) Validate() error {
	check := func(name string, v, lo, hi uint64) error {
		if v < lo || v > hi {
			return fmt.Errorf("%w: %s=%d not in [%d, %d]", errParamRange, name, v, lo, hi)
		}
		return nil
	}
	if strings.TrimSpace(c.TokenSymbol) == "" {
		return fmt.Errorf("%w: token symbol required", errParamRange)
	}
	if c.TokenDecimals > 36 {
		return fmt.Errorf("%w: token decimals %d too large", errParamRange, c.TokenDecimals)
	}
	checks := []error{
		check("TargetStakePercent", c.TargetStakePercent, 0, OneHundredPercent),
		check("TargetLiquidityPercent", c.TargetLiquidityPercent, 0, OneHundredPercent),
		check("MaxProtocolFeePercent", c.MaxProtocolFeePercent, 0, safeMaxProtocolFee),
		check("ProtocolFeePercent", c.ProtocolFeePercent, 0, c.MaxProtocolFeePercent),
		check("StakerEarnFactorMax", c.StakerEarnFactorMax, OneHundredPercent, safeMaxStakerEarnFactor),
		check("StakerEarnFactor", c.StakerEarnFactor, OneHundredPercent, c.StakerEarnFactorMax),
		check("MaxExitFeePercent", c.MaxExitFeePercent, 0, safeMaxExitFee),
		check("ExitFeePercent", c.ExitFeePercent, 0, c.MaxExitFeePercent),
		check("template.APR", c.Template.APR, safeMinAPR, safeMaxAPR),
		check("template.GracePeriodSeconds", c.Template.GracePeriodSeconds, safeMinGracePeriod, safeMaxGracePeriod),
		check("template.MinDurationSeconds", c.Template.MinDurationSeconds, safeMinDuration, safeMaxDuration),
		check("template.MaxDurationSeconds", c.Template.MaxDurationSeconds, c.Template.MinDurationSeconds, safeMaxDuration),
		check("template.MinAmountTokens", c.Template.MinAmountTokens, 1, 1<<40),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// OneToken is one whole token in base units.
func (c Config) OneToken() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.TokenDecimals)), nil)
}

func (c Config) tokens(n uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(n), c.OneToken())
}

func (c Config) poolConfig() PoolConfig {
	return PoolConfig{
		TargetStakePercent:     c.TargetStakePercent,
		TargetLiquidityPercent: c.TargetLiquidityPercent,
		ProtocolFeePercent:     c.ProtocolFeePercent,
		MaxProtocolFeePercent:  c.MaxProtocolFeePercent,
		StakerEarnFactor:       c.StakerEarnFactor,
		StakerEarnFactorMax:    c.StakerEarnFactorMax,
		ExitFeePercent:         c.ExitFeePercent,
		MaxExitFeePercent:      c.MaxExitFeePercent,
	}
}

func (c Config) loanTemplate() LoanTemplate {
	return LoanTemplate{
		APR:         c.Template.APR,
		GracePeriod: c.Template.GracePeriodSeconds,
		MinAmount:   c.tokens(c.Template.MinAmountTokens),
		MinDuration: c.Template.MinDurationSeconds,
		MaxDuration: c.Template.MaxDurationSeconds,
	}
}

func (c Config) tokenConfig() TokenConfig {
	return TokenConfig{
		Symbol:   strings.ToUpper(strings.TrimSpace(c.TokenSymbol)),
		Decimals: c.TokenDecimals,
		OneToken: c.OneToken(),
	}
}
