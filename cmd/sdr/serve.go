package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Napageneral/sdr/internal/channels"
	"github.com/Napageneral/sdr/internal/config"
	"github.com/Napageneral/sdr/internal/db"
	"github.com/Napageneral/sdr/internal/logging"
	"github.com/Napageneral/sdr/internal/outreach"
	"github.com/Napageneral/sdr/internal/server"
	"github.com/Napageneral/sdr/internal/users"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Addr string `json:"addr,omitempty"`
			}
			result := Result{status: status{OK: true}}

			configPath, err := config.GetConfigPath()
			if err != nil {
				fail(&result, "Failed to get config path: %v", err)
			}
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				fail(&result, "Failed to load config: %v", err)
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			result.Addr = cfg.Server.Addr

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				fail(&result, "Failed to create logger: %v", err)
			}
			defer logger.Sync()

			if err := db.Init(cfg); err != nil {
				fail(&result, "Failed to initialize database: %v", err)
			}
			database, err := db.Open(cfg)
			if err != nil {
				fail(&result, "Failed to open database: %v", err)
			}

			registry, err := channels.Build(cfg, logger.Sugar().Infof)
			if err != nil {
				database.Close()
				fail(&result, "Failed to build channels: %v", err)
			}
			logger.Info("channels ready", zap.Strings("kinds", registry.Kinds()))
			outreach.Register(prometheus.DefaultRegisterer)

			dispatcher := &outreach.Dispatcher{
				DB:              database,
				Channels:        registry,
				Logger:          logger.Named("outreach"),
				DefaultInterval: time.Duration(cfg.Dispatch.DefaultIntervalSeconds) * time.Second,
			}
			srv := &server.Server{
				DB:         database,
				Config:     cfg,
				Dispatcher: dispatcher,
				Tokens:     users.NewTokenCache(database, time.Minute),
				Logger:     logger.Named("http"),
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx)
			})
			if _, err := os.Stat(configPath); err == nil {
				g.Go(func() error {
					return config.Watch(gctx, configPath, 0, func(next *config.Config) {
						if err := logging.SetLevel(next.Logging.Level); err != nil {
							logger.Warn("config reload ignored", zap.Error(err))
							return
						}
						logger.Info("config reloaded", zap.String("log_level", logging.Level()))
					}, logger.Sugar().Warnf)
				})
			}

			runErr := g.Wait()
			if err := multierr.Append(runErr, database.Close()); err != nil {
				fail(&result, "Server stopped: %v", err)
			}
			result.Message = "Server stopped"
			if jsonOutput {
				printJSON(result)
			}
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	return cmd
}
