package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/engine"
	"github.com/lox/blackjack/internal/fairness"
	"github.com/lox/blackjack/internal/players"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/store"
	"github.com/rs/zerolog"
)

// ServeCmd runs the HTTP round server
type ServeCmd struct {
	Config   string `kong:"default='blackjack.hcl',help='Path to HCL config file'"`
	Addr     string `kong:"help='Listen address, overrides the config file'"`
	Debug    bool   `kong:"help='Enable debug logging'"`
	JSONLogs bool   `kong:"name='json-logs',help='Write structured JSON logs'"`
}

func (c *ServeCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", c.Config, err)
	}

	level := cfg.Server.LogLevel
	if c.Debug {
		level = "debug"
	}
	logger, err := shared.SetupLogger(level, c.JSONLogs)
	if err != nil {
		return err
	}

	addr := cfg.Server.Address
	if c.Addr != "" {
		addr = c.Addr
	}

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	s := server.NewServer(eng, logger)

	logger.Info().
		Str("address", addr).
		Int("decks", cfg.Rules.Decks).
		Int("dealer_stand", cfg.Rules.DealerStand).
		Bool("dealer_hits_soft_17", cfg.Rules.DealerHitsSoft17).
		Int("max_split_depth", cfg.Rules.MaxSplitDepth).
		Str("data_dir", cfg.Store.DataDir).
		Int("players", len(cfg.Players)).
		Msg("Starting blackjack server")

	ctx := shared.SetupSignalHandler(logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := s.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// buildEngine wires the round store, the player directory and the engine
// from cfg.
func buildEngine(cfg *config.Config, logger zerolog.Logger) (*engine.Engine, error) {
	var docs store.Documents = store.NewMemoryDocuments()
	if cfg.Store.DataDir != "" {
		fd, err := store.NewFileDocuments(cfg.Store.DataDir)
		if err != nil {
			return nil, err
		}
		docs = fd
	} else {
		logger.Warn().Msg("No data_dir configured, rounds are kept in memory only")
	}

	opts, err := cfg.StoreOptions()
	if err != nil {
		return nil, err
	}
	cache := store.NewMemoryCache(quartz.NewReal(), cfg.Store.CacheCapacity)
	rounds := store.New(docs, cache, opts, logger)

	users := players.NewDirectory(fairness.RoundValue, logger)
	for _, p := range cfg.Players {
		if _, err := users.Register(players.User{ID: p.ID, Name: p.Name, ClientSeed: p.ClientSeed}); err != nil {
			return nil, fmt.Errorf("register player %s: %w", p.ID, err)
		}
	}

	return engine.New(rounds, users, users, engine.Config{
		Rules:  cfg.GameRules(),
		Limits: cfg.Limits(),
	}, logger), nil
}
