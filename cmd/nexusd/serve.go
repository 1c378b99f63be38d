package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nexusdex/internal/amm"
	"nexusdex/internal/api"
	"nexusdex/internal/bootstrap"
	"nexusdex/internal/config"
	"nexusdex/internal/metrics"
	"nexusdex/internal/persistence"
	"nexusdex/internal/pool"
	"nexusdex/internal/reconcile"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Info().Msg("Starting nexusd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Application error")
		return err
	}

	log.Info().Msg("nexusd shutdown complete")
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := m.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.Shutdown(shutdownCtx)
		}()
		log.Info().Int("port", cfg.Metrics.Port).Msg("Metrics server started")
	}

	var store *persistence.Store
	if cfg.Persistence.Enabled {
		var err error
		store, err = persistence.NewStore(cfg.Persistence.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info().Str("path", cfg.Persistence.SQLitePath).Msg("SQLite initialized")
	}

	p, err := bootstrap.Run(ctx, cfg, bootstrap.Options{
		Store:   store,
		Journal: store != nil,
		Seed:    true,
		Metrics: m,
	})
	if err != nil {
		return err
	}
	defer p.Manager.Close()

	rec := reconcile.NewReconciler(p.Manager, store, m)
	if store != nil {
		res, err := rec.Replay(ctx)
		if err != nil {
			return err
		}
		if !res.Consistent {
			log.Warn().
				Uint64("replayed_sequence", res.LastSequence).
				Uint64("pool_sequence", p.Manager.Sequence()).
				Msg("Journal replay does not match persisted pool state")
		}
	}
	if res, err := rec.CheckCustody(ctx); err != nil {
		return err
	} else if !res.Healthy() {
		log.Warn().
			Str("surplus_a", res.SurplusA.String()).
			Str("surplus_b", res.SurplusB.String()).
			Msg("Custody balance below recorded reserves")
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Reconcile.Enabled {
		g.Go(func() error {
			log.Info().Dur("interval", cfg.Reconcile.Interval).Msg("Starting reconciler...")
			return rec.Run(gCtx, cfg.Reconcile.Interval)
		})
	}

	if cfg.API.Enabled {
		srv := api.NewServer(api.Config{
			Port:         cfg.API.Port,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
			RateLimit:    cfg.API.RateLimit,
			RateBurst:    cfg.API.RateBurst,
		}, p.Manager, m)

		g.Go(srv.ListenAndServe)
		g.Go(func() error {
			return srv.StreamUpdates(gCtx)
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		g.Go(func() error {
			return logUpdates(gCtx, p.Manager)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// logUpdates consumes reserve updates when no API is streaming them.
func logUpdates(ctx context.Context, manager *pool.Manager) error {
	tokA, tokB := manager.Token(pool.SideA), manager.Token(pool.SideB)
	updates := manager.Updates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			log.Info().
				Str("kind", u.Kind).
				Uint64("sequence", u.Sequence).
				Str("reserve_a", amm.FormatUnits(u.ReserveA, tokA.Decimals())).
				Str("reserve_b", amm.FormatUnits(u.ReserveB, tokB.Decimals())).
				Msg("Reserves updated")
		}
	}
}
