package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config captures the runtime configuration for the lending service.
type Config struct {
	ListenAddress string       `toml:"ListenAddress"`
	DataDir       string       `toml:"DataDir"`
	Environment   string       `toml:"Environment"`
	LogFile       string       `toml:"LogFile"`
	Treasury      string       `toml:"Treasury"`
	Admin         string       `toml:"Admin"`
	Pools         []PoolConfig `toml:"pool"`
	Feeds         []FeedConfig `toml:"feed"`
}

// PoolConfig describes one collateral/borrow pair.
type PoolConfig struct {
	ID              string `toml:"ID"`
	CollateralToken string `toml:"CollateralToken"`
	BorrowToken     string `toml:"BorrowToken"`
	// LTVBps is the loan-to-value limit in basis points (8000 = 80%).
	LTVBps uint64 `toml:"LTVBps"`
}

// FeedConfig seeds a static price feed for a token.
type FeedConfig struct {
	Token string `toml:"Token"`
	// Price is a decimal integer in the feed's own decimals.
	Price         string `toml:"Price"`
	FeedDecimals  uint8  `toml:"FeedDecimals"`
	TokenDecimals uint8  `toml:"TokenDecimals"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8544"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
}

// Validate rejects malformed addresses and out-of-range pool parameters.
func (c *Config) Validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("config: at least one pool required")
	}
	seen := make(map[string]struct{})
	for _, pool := range c.Pools {
		id := strings.TrimSpace(pool.ID)
		if id == "" {
			return fmt.Errorf("config: pool missing ID")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: duplicate pool ID %q", id)
		}
		seen[id] = struct{}{}
		if !common.IsHexAddress(pool.CollateralToken) {
			return fmt.Errorf("config: pool %s: invalid collateral token %q", id, pool.CollateralToken)
		}
		if !common.IsHexAddress(pool.BorrowToken) {
			return fmt.Errorf("config: pool %s: invalid borrow token %q", id, pool.BorrowToken)
		}
		if pool.LTVBps == 0 || pool.LTVBps >= 10_000 {
			return fmt.Errorf("config: pool %s: LTVBps %d out of range (0, 10000)", id, pool.LTVBps)
		}
	}
	for _, feed := range c.Feeds {
		if !common.IsHexAddress(feed.Token) {
			return fmt.Errorf("config: feed: invalid token %q", feed.Token)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(feed.Price), 10); !ok {
			return fmt.Errorf("config: feed %s: invalid price %q", feed.Token, feed.Price)
		}
	}
	return nil
}

// LTV converts a pool's basis-point limit to 18-decimal fixed point.
func (p PoolConfig) LTV() *big.Int {
	ltv := new(big.Int).SetUint64(p.LTVBps)
	return ltv.Mul(ltv, big.NewInt(100_000_000_000_000)) // bps -> 1e18 scale
}

// ParsePrice returns the feed's price as a big integer.
func (f FeedConfig) ParsePrice() *big.Int {
	price, _ := new(big.Int).SetString(strings.TrimSpace(f.Price), 10)
	if price == nil {
		price = big.NewInt(0)
	}
	return price
}
