// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/routecodex/routecodex/config"
	"github.com/routecodex/routecodex/internal/migration"
	"github.com/routecodex/routecodex/internal/tlsutil"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)
	if *configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			*configPath = filepath.Join(home, ".routecodex", "config.json")
		}
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting routecodex",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	srv := NewServer(cfg, *configPath, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
	logger.Info("routecodex stopped")
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:4000", "Server address")
	fs.Parse(args)

	client := tlsutil.SecureHTTPClient(5 * time.Second)
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

// runMigrate drives the cooldown mirror store's schema, the one sqlite
// database RouteCodex actually migrates (see internal/migration,
// vrouter/cooldownstore). Mirrors the teacher's own migrate subcommand
// shape (a CLI wrapper over a Migrator), scoped to one driver.
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	action := "up"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.CooldownStore.Enabled {
		fmt.Fprintln(os.Stderr, "cooldownStore is not enabled in this config, nothing to migrate")
		os.Exit(1)
	}

	migrator, err := migration.NewMigratorFromSQLitePath(cfg.CooldownStore.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	ctx := context.Background()

	var runErr error
	switch action {
	case "up":
		runErr = cli.RunUp(ctx)
	case "down":
		runErr = cli.RunDown(ctx)
	case "status":
		runErr = cli.RunStatus(ctx)
	case "version":
		runErr = cli.RunVersion(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate action: %s (want up|down|status|version)\n", action)
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", runErr)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("routecodex %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`routecodex - local multi-protocol LLM gateway

Usage:
  routecodex <command> [options]

Commands:
  serve     Start the gateway server
  version   Show version information
  health    Check server health
  migrate   Run the cooldown store's schema migrations
  help      Show this help message

Options for 'serve' and 'migrate':
  --config <path>   Path to the JSON configuration file
                    (serve defaults to ~/.routecodex/config.json)

Migrate actions (routecodex migrate [action]):
  up        Apply all pending migrations (default)
  down      Roll back the last migration
  status    Show applied/pending migration status
  version   Show the current schema version

Examples:
  routecodex serve
  routecodex serve --config /etc/routecodex/config.json
  routecodex health --addr http://localhost:4000
  routecodex migrate up --config /etc/routecodex/config.json
  routecodex version`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format != "console" {
		zapConfig.Encoding = "json"
	}

	opts := make([]zap.Option, 0, 2)
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
