package main

import (
	// Go Internal Packages
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	// Local Packages
	config "tx-intake/config"

	// External Packages
	"github.com/alecthomas/kingpin/v2"
	_ "github.com/jsternberg/zap-logfmt"
	"github.com/knadh/koanf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"
)

// LoadConfig loads the default configuration and overrides it with the config file
// specified by the path defined in the config flag
func LoadConfig() (*koanf.Koanf, string) {
	configPathMsg := "Path to the application config file"
	configPath := kingpin.Flag("config", configPathMsg).Short('c').Default("config.yml").String()
	role := kingpin.Flag("role", "Components to run").Default(RoleAll).Enum(RoleAPI, RoleWorker, RoleAll)

	kingpin.Parse()
	k, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error reading config: %v", err)
	}
	return k, *role
}

func NewLogger(level string, appKonf *config.Config) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(level))
	cfg.InitialFields = make(map[string]any)
	cfg.InitialFields["host"], _ = os.Hostname()
	cfg.InitialFields["service"] = appKonf.Application
	cfg.OutputPaths = []string{"stdout"}
	logger, _ := cfg.Build()
	return logger
}

func main() {
	k, role := LoadConfig()

	// Unmarshalling config into struct and applying secrets
	appKonf, err := config.Unmarshal(k)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Validate the config loaded
	if err = appKonf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if !appKonf.IsProdMode {
		k.Print()
	}

	logger := NewLogger(k.String("logger.level"), &appKonf)
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if appKonf.Queue.Driver == config.DriverMemory && role != RoleAll {
		logger.Warn("memory queue is process local; api and worker roles will not share jobs", zap.String("role", role))
	}

	app, err := NewApp(ctx, &appKonf, logger)
	if err != nil {
		logger.Fatal("cannot wire application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("error closing resources", zap.Error(err))
		}
	}()

	// First component to fail stops the others
	g, gctx := errgroup.WithContext(ctx)
	if role == RoleAPI || role == RoleAll {
		g.Go(func() error { return app.Serve(gctx) })
		if app.Consumer != nil {
			g.Go(func() error { return app.Consumer.Poll(gctx) })
		}
	}
	if role == RoleWorker || role == RoleAll {
		g.Go(func() error { return app.Worker.Run(gctx) })
		if app.Maintainer != nil {
			g.Go(func() error { return app.Maintainer.Run(gctx, appKonf.Queue.PromoteInterval) })
		}
	}

	logger.Info("service started", zap.String("role", role))
	if err := g.Wait(); err != nil && err != http.ErrServerClosed {
		logger.Error("service stopped with error", zap.Error(err))
		return
	}
	logger.Info("service stopped")
}
