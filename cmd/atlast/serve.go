package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/internal/pipeline"
	"github.com/mohammad-safakhou/atlast/internal/progress"
	"github.com/mohammad-safakhou/atlast/internal/runtime"
	"github.com/mohammad-safakhou/atlast/internal/search"
	srv "github.com/mohammad-safakhou/atlast/internal/server"
	"github.com/mohammad-safakhou/atlast/internal/store"
	"github.com/mohammad-safakhou/atlast/internal/targets"
	"github.com/mohammad-safakhou/atlast/internal/worker"
	"github.com/mohammad-safakhou/atlast/provider"
	"github.com/mohammad-safakhou/atlast/repository"
	"github.com/mohammad-safakhou/atlast/session"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var migDir string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if serveAddr != "" {
				cfg.General.Listen = serveAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, migDir)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides general.listen)")
	serve.Flags().StringVar(&migDir, "migrations", "file://migrations", "migrations source applied at start when postgres is configured")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	return serve
}

func run(ctx context.Context, cfg *config.Config, migDir string) error {
	logger := newLogger("[HTTP] ")

	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{
		ServiceName:    "atlast",
		ServiceVersion: version,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	ks, err := repository.NewKeyStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer ks.Close()

	doc, err := config.LoadTargets(cfg.Targets.PoolFile)
	if err != nil {
		return err
	}
	pools := targets.NewPools(doc)
	logger.Printf("loaded target pools v%d: %v", pools.Version(), pools.Tiers())

	set, err := provider.NewSet(cfg.LLM)
	if err != nil {
		return err
	}
	if len(set.Generators) == 0 {
		logger.Printf("no generators configured; every riddle will come from the cache or built-in items")
	}

	selOpts := []targets.Option{targets.WithLogger(newLogger("[TARGETS] "))}
	if set.Proposer != nil {
		selOpts = append(selOpts, targets.WithProposer(set.Proposer, cfg.Pipeline.ProposerTimeout))
	}

	tasks := worker.NewPool(newLogger("[WORKER] "), cfg.Buffer.Workers, cfg.Buffer.QueueSize, tel.Meter)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.Timeout)
		defer cancel()
		if err := tasks.Close(sctx); err != nil {
			logger.Printf("worker drain: %v", err)
		}
	}()

	progressCh := progress.NewChannel(ks, newLogger("[PROGRESS] "))
	deps := pipeline.Deps{
		Selector:   targets.NewSelector(pools, selOpts...),
		Generators: set.Generators,
		Critics:    set.Critics,
		Tasks:      tasks,
		Progress:   progressCh,
	}

	index, err := search.NewIndex()
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Add(pools.Names()...); err != nil {
		return err
	}

	srvDeps := srv.Deps{
		Streams: progressCh,
		Index:   index,
		Metrics: tel.Handler(),
		Tracer:  tel.Tracer,
		Logger:  logger,
	}

	if cfg.Storage.Postgres.Enabled() {
		st, err := openCache(ctx, cfg, migDir)
		if err != nil {
			return err
		}
		defer st.Close()
		deps.Cache = st
		srvDeps.Names = st

		cacheLogger := newLogger("[CACHE] ")
		pruner, err := store.NewPruner(st, cfg.Cache.PruneCron, cfg.Cache.RetentionDays, cacheLogger)
		if err != nil {
			return err
		}
		go pruner.Start(ctx)
	} else {
		logger.Printf("postgres not configured; cache fallback disabled")
	}

	pipe := pipeline.New(deps, cfg.Pipeline, newLogger("[PIPELINE] "), tel.Meter, tel.Tracer)
	srvDeps.Sessions = session.NewManager(ks, pipe, tasks, cfg.Buffer,
		session.WithTiers(pools),
		session.WithGazetteer(pools),
		session.WithLogger(newLogger("[BUFFER] ")),
		session.WithTracer(tel.Tracer),
		session.WithMeter(tel.Meter),
	)

	e := srv.New(srvDeps)
	addr := cfg.General.Listen
	if addr != "" && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	if addr == "" {
		addr = ":10001"
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}

func openCache(ctx context.Context, cfg *config.Config, migDir string) (*store.Store, error) {
	dsn, err := runtime.BuildPostgresDSN(cfg.Storage.Postgres)
	if err != nil {
		return nil, err
	}
	if err := srv.Migrate(migDir, dsn, "up", 0); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	timeout := cfg.Storage.Postgres.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	octx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := store.NewWithDSN(octx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return st, nil
}
