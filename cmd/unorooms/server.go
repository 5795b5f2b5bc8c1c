package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	rand "math/rand/v2"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/dln/unorooms/cmd/unorooms/shared"
	"github.com/dln/unorooms/internal/randutil"
	"github.com/dln/unorooms/internal/room"
	"github.com/dln/unorooms/internal/server"
	"github.com/dln/unorooms/internal/store/sqlite"
)

// sweepInterval is how often finished rooms are checked for collection.
const sweepInterval = time.Minute

// ServerCmd contains core server configuration
type ServerCmd struct {
	Config  string `kong:"default='unorooms.hcl',help='Path to HCL configuration file'"`
	Addr    string `kong:"help='Server address, overrides the config file'"`
	Debug   bool   `kong:"help='Enable debug logging'"`
	LogJSON bool   `kong:"help='Emit structured JSON logs instead of console output'"`
	Seed    *int64 `kong:"help='Deterministic RNG seed for the server (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel, c.Debug)
	if c.LogJSON {
		logger = shared.SetupStructuredLogger(cfg.Server.LogLevel, c.Debug)
	}
	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	// Setup RNG and seed
	var rng *rand.Rand
	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed")
		rng = randutil.New(seed)
	} else {
		seed = time.Now().UnixNano()
		logger.Info().Int64("seed", seed).Msg("Using random seed")
		rng = randutil.New(seed)
	}

	// Room metadata store; in-memory only when no path is configured
	var store room.Store = room.NopStore{}
	if cfg.Server.StoragePath != "" {
		db, err := sqlite.Open(cfg.Server.StoragePath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		store = db
		logger.Info().Str("path", cfg.Server.StoragePath).Msg("Room persistence enabled")
	}

	roomCfg := room.DefaultConfig()
	roomCfg.DefaultTurnTime = cfg.TurnTimeLimit()
	roomCfg.FinishedTTL = cfg.FinishedTTL()
	roomCfg.MaxPlayersLimit = cfg.Rooms.MaxPlayers

	service := room.NewService(logger, store, quartz.NewReal(), rng, roomCfg)
	s := server.NewServer(logger, service)

	logger.Info().
		Str("address", addr).
		Int("max_players", cfg.Rooms.MaxPlayers).
		Dur("turn_time", cfg.TurnTimeLimit()).
		Bool("enable_bots", cfg.Rooms.EnableBots).
		Dur("finished_ttl", cfg.FinishedTTL()).
		Msg("Starting unorooms server")

	// Setup graceful shutdown
	ctx := shared.SetupSignalHandler(logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := service.SweepExpired(ctx); n > 0 {
					logger.Debug().Int("collected", n).Msg("Swept finished rooms")
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
