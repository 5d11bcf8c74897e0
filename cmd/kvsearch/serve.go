package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hupe1980/kvsearch"
	"github.com/hupe1980/kvsearch/config"
	"github.com/hupe1980/kvsearch/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the catalog tables and serve them over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctrl := cfg.Controller()
	cat, err := cfg.OpenCatalog(ctx, logger, ctrl)
	if err != nil {
		return err
	}
	tableOpts := cfg.TableOptions(logger, ctrl, reg)

	srv := server.New(func(o *server.Options) {
		o.Catalog = cat
		o.TableOptions = tableOpts
		o.Gatherer = reg
		o.Logger = logger
		o.MaxBodyBytes = cfg.Server.MaxBodyBytes
		o.RequestsPerSec = cfg.Server.RequestsPerSec
		o.Burst = cfg.Server.Burst
	})

	names, err := cat.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if cfg.Server.Table != "" && name != cfg.Server.Table {
			continue
		}
		t, err := kvsearch.Open(ctx, cat, name, tableOpts...)
		if err != nil {
			return errors.Join(err, srv.Close())
		}
		srv.Register(t)
	}
	if cfg.Server.Table != "" {
		if _, ok := srv.Table(cfg.Server.Table); !ok {
			logger.Warn("configured table not in catalog", zap.String("table", cfg.Server.Table))
		}
	}

	return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout)
}
