// Package config loads the HCL configuration of the blackjack server.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/store"
	"github.com/lox/blackjack/internal/wager"
)

// Config represents the complete server configuration
type Config struct {
	Server  *ServerSettings `hcl:"server,block"`
	Rules   *RulesConfig    `hcl:"rules,block"`
	Wagers  *WagersConfig   `hcl:"wagers,block"`
	Store   *StoreConfig    `hcl:"store,block"`
	Players []PlayerConfig  `hcl:"player,block"`
}

// ServerSettings contains listener and logging settings
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// RulesConfig defines the table rules
type RulesConfig struct {
	Decks            int  `hcl:"decks,optional"`
	DealerStand      int  `hcl:"dealer_stand,optional"`
	DealerHitsSoft17 bool `hcl:"dealer_hits_soft_17,optional"`
	MaxSplitDepth    int  `hcl:"max_split_depth,optional"`
}

// WagersConfig defines the demo stake and the live range of each wager type
type WagersConfig struct {
	DemoStake int64         `hcl:"demo_stake,optional"`
	Limits    []LimitConfig `hcl:"limit,block"`
}

// LimitConfig is the live range of one wager type
type LimitConfig struct {
	Type string `hcl:"type,label"`
	Min  int64  `hcl:"min"`
	Max  int64  `hcl:"max"`
}

// StoreConfig defines persistence. An empty data dir keeps rounds in memory.
type StoreConfig struct {
	DataDir       string `hcl:"data_dir,optional"`
	CacheTTL      string `hcl:"cache_ttl,optional"`
	LockTimeout   string `hcl:"lock_timeout,optional"`
	CacheCapacity int    `hcl:"cache_capacity,optional"`
}

// PlayerConfig registers a player at startup
type PlayerConfig struct {
	ID         string `hcl:"id,label"`
	Name       string `hcl:"name,optional"`
	ClientSeed string `hcl:"client_seed,optional"`
}

// Default returns the default configuration
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from an HCL file. A missing file yields the
// defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = "localhost:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	def := game.DefaultRules()
	if c.Rules == nil {
		c.Rules = &RulesConfig{DealerHitsSoft17: def.DealerHitsSoft17}
	}
	if c.Rules.Decks == 0 {
		c.Rules.Decks = def.Decks
	}
	if c.Rules.DealerStand == 0 {
		c.Rules.DealerStand = def.DealerStand
	}
	if c.Rules.MaxSplitDepth == 0 {
		c.Rules.MaxSplitDepth = def.MaxSplitDepth
	}

	if c.Wagers == nil {
		c.Wagers = &WagersConfig{}
	}
	if c.Wagers.DemoStake == 0 {
		c.Wagers.DemoStake = 1
	}
	if len(c.Wagers.Limits) == 0 {
		c.Wagers.Limits = []LimitConfig{{Type: wager.Main, Min: 10, Max: 5000}}
	}

	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.CacheTTL == "" {
		c.Store.CacheTTL = store.DefaultCacheTTL.String()
	}
	if c.Store.LockTimeout == "" {
		c.Store.LockTimeout = store.DefaultLockTimeout.String()
	}
	if c.Store.CacheCapacity == 0 {
		c.Store.CacheCapacity = 10000
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Rules.Decks < 1 || c.Rules.Decks > 16 {
		return fmt.Errorf("rules: decks must be between 1 and 16, got %d", c.Rules.Decks)
	}
	if c.Rules.DealerStand < 12 || c.Rules.DealerStand > game.MaxHandValue {
		return fmt.Errorf("rules: dealer_stand must be between 12 and %d, got %d", game.MaxHandValue, c.Rules.DealerStand)
	}
	if c.Rules.MaxSplitDepth < 0 {
		return fmt.Errorf("rules: max_split_depth must not be negative")
	}
	if err := c.Limits().Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, l := range c.Wagers.Limits {
		if seen[l.Type] {
			return fmt.Errorf("wagers: duplicate limit %q", l.Type)
		}
		seen[l.Type] = true
	}
	if _, err := c.StoreOptions(); err != nil {
		return err
	}
	if c.Store.CacheCapacity < 0 {
		return fmt.Errorf("store: cache_capacity must not be negative")
	}
	ids := make(map[string]bool)
	for _, p := range c.Players {
		if ids[p.ID] {
			return fmt.Errorf("player %s: defined twice", p.ID)
		}
		ids[p.ID] = true
	}
	return nil
}

// GameRules returns the table rules
func (c *Config) GameRules() game.Rules {
	return game.Rules{
		Decks:            c.Rules.Decks,
		DealerStand:      c.Rules.DealerStand,
		DealerHitsSoft17: c.Rules.DealerHitsSoft17,
		MaxSplitDepth:    c.Rules.MaxSplitDepth,
	}
}

// Limits returns the wager limits
func (c *Config) Limits() wager.Limits {
	l := wager.Limits{DemoStake: c.Wagers.DemoStake, ByType: make(map[string]wager.Range, len(c.Wagers.Limits))}
	for _, lim := range c.Wagers.Limits {
		l.ByType[lim.Type] = wager.Range{Min: lim.Min, Max: lim.Max}
	}
	return l
}

// StoreOptions returns the round store options
func (c *Config) StoreOptions() (store.Options, error) {
	ttl, err := time.ParseDuration(c.Store.CacheTTL)
	if err != nil || ttl <= 0 {
		return store.Options{}, fmt.Errorf("store: invalid cache_ttl %q", c.Store.CacheTTL)
	}
	lock, err := time.ParseDuration(c.Store.LockTimeout)
	if err != nil || lock <= 0 {
		return store.Options{}, fmt.Errorf("store: invalid lock_timeout %q", c.Store.LockTimeout)
	}
	return store.Options{CacheTTL: ttl, LockTimeout: lock}, nil
}

// ShoeSize is the number of cards in a shoe under these rules
func (c *Config) ShoeSize() int {
	return c.Rules.Decks * cards.DeckSize
}
