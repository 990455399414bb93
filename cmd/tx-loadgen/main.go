package main

import (
	// Go Internal Packages
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Local Packages
	helpers "tx-intake/helpers"
	loadgen "tx-intake/services/loadgen"

	// External Packages
	"github.com/alecthomas/kingpin/v2"
	_ "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
)

func main() {
	url := kingpin.Flag("url", "Base URL of the intake API").Default("http://localhost:3000").String()
	count := kingpin.Flag("count", "Number of transactions to send").Default("10000").Int()
	batch := kingpin.Flag("batch", "Requests sent in parallel per batch").Default("10").Int()
	duplicates := kingpin.Flag("duplicates", "Fraction of requests that repeat an earlier one").Default("0").Float64()
	seed := kingpin.Flag("seed", "Random seed, 0 picks one from the clock").Default("0").Int64()
	level := kingpin.Flag("log-level", "Logger level").Default("info").String()
	kingpin.Parse()

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(*level))
	cfg.InitialFields = map[string]any{"service": "tx-loadgen"}
	cfg.OutputPaths = []string{"stdout"}
	logger, _ := cfg.Build()
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	reqs := loadgen.NewGenerator(*seed).Batch(*count, *duplicates)

	start := time.Now()
	summary, err := loadgen.NewSender(*url, *batch, logger).SendAll(ctx, reqs)
	logger.Info("load run finished", zap.Duration("took", time.Since(start)), zap.Int("sent", summary.Sent))
	helpers.PrintStruct(summary)
	if err != nil {
		logger.Fatal("load run aborted", zap.Error(err))
	}
}
