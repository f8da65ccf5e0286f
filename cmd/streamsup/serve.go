// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/streamsupervisor/internal/api"
	"github.com/ZSC714725/streamsupervisor/internal/metrics"
	"github.com/ZSC714725/streamsupervisor/internal/session"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			log := newLogger()

			ff, err := newFFmpeg(&cfg.FFmpeg)
			if err != nil {
				return err
			}
			log.Info("Using %s (version %s)", ff.Binary(), ff.Version())

			store := session.NewStore(session.StoreConfig{
				FFmpeg:       ff,
				Logger:       log,
				Metrics:      metrics.New(prometheus.DefaultRegisterer),
				ReadyTimeout: cfg.FFmpeg.ReadyTimeout(),
			})

			if !cfg.Log.Debug {
				gin.SetMode(gin.ReleaseMode)
			}
			r := gin.New()
			r.Use(gin.Recovery(), cors.Default())
			api.NewHandler(store).Register(r.Group("/api/v1"))
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))

			srv := &http.Server{Addr: cfg.Server.Bind, Handler: r}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("StreamSupervisor listening on %s", cfg.Server.Bind)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP shutdown: %v", err)
			}
			return store.Close(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Bind address (overrides config)")
	return cmd
}
