// Package main wires the RouteCodex gateway's HTTP surface together.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/routecodex/routecodex/api"
	"github.com/routecodex/routecodex/config"
	"github.com/routecodex/routecodex/internal/gateway"
	"github.com/routecodex/routecodex/internal/metrics"
	"github.com/routecodex/routecodex/internal/server"
	"github.com/routecodex/routecodex/internal/telemetry"
)

// Server is RouteCodex's top-level process: it owns the gateway
// pipeline, the inbound HTTP listener, the metrics listener, and the
// config hot-reload manager, the same composition shape as the
// teacher's cmd/agentflow Server but pointed at a *gateway.Gateway
// instead of a bag of not-yet-wired handlers.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	gw     *gateway.Gateway
	cancel context.CancelFunc

	httpManager    *server.Manager
	metricsManager *server.Manager

	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer creates a Server; configPath enables file-watch hot reload
// when non-empty.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, configPath: configPath, logger: logger}
}

// Start builds the gateway and brings up the HTTP and metrics listeners.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	tp, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	s.telemetry = tp

	gw, err := gateway.Build(ctx, s.cfg, s.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build gateway: %w", err)
	}
	s.gw = gw

	s.metricsCollector = metrics.NewCollector("routecodex", s.logger)

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)
	return nil
}

func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{config.WithHotReloadLogger(s.logger)}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("configuration reloaded, rebuilding gateway")
		s.cfg = newConfig
		gw, err := gateway.Build(context.Background(), newConfig, s.logger)
		if err != nil {
			s.logger.Error("gateway rebuild failed, keeping previous pipeline", zap.Error(err))
			return
		}
		s.gw = gw
	})

	if err := s.hotReloadManager.Start(context.Background()); err != nil {
		return err
	}
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()
	apiHandler := api.NewServer(s.gw, s.logger).Handler()
	mux.Handle("/v1/", apiHandler)
	mux.Handle("/healthz", apiHandler)
	mux.Handle("/admin/", apiHandler)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
	}

	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		SecurityHeaders(),
		CORS(nil),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal or server error, then
// tears everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops every owned component in dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.gw != nil {
		if err := s.gw.Close(); err != nil {
			s.logger.Error("gateway shutdown error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
