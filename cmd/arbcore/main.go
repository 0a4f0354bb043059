// Command arbcore runs the cross-market arbitrage detector and
// executor as a single long-lived process: load config, build the
// exchange client and every core component, then run the orchestrator
// until SIGINT/SIGTERM. Shape follows the teacher's cmd/trader/main.go
// (flag-based config path, ApplyEnv for secrets, signal.Notify +
// context cancellation for shutdown).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kalshi-arb/arbcore/internal/adapter/exchange"
	"github.com/kalshi-arb/arbcore/internal/adapter/llm"
	"github.com/kalshi-arb/arbcore/internal/alert"
	"github.com/kalshi-arb/arbcore/internal/api"
	"github.com/kalshi-arb/arbcore/internal/app"
	"github.com/kalshi-arb/arbcore/internal/catalog"
	"github.com/kalshi-arb/arbcore/internal/config"
	"github.com/kalshi-arb/arbcore/internal/fees"
	"github.com/kalshi-arb/arbcore/internal/logging"
	"github.com/kalshi-arb/arbcore/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	logger, err := logging.New(cfg.LogDev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("arbcore starting", zap.Bool("dry_run", cfg.DryRun))

	if cfg.Exchange.APIKeyID == "" || cfg.Exchange.APISecret == "" {
		logger.Fatal("ARBCORE_API_KEY_ID and ARBCORE_API_SECRET are required")
	}

	client := exchange.NewRESTClient(exchange.RESTConfig{
		BaseURL:      cfg.Exchange.BaseURL,
		APIKeyID:     cfg.Exchange.APIKeyID,
		APISecret:    cfg.Exchange.APISecret,
		Timeout:      cfg.Exchange.Timeout,
		RateLimitRPS: cfg.Exchange.RateLimitN,
	})

	feeEstimator := fees.New(cfg.Exchange.FeeRatePerContractC)

	var revalidator catalog.Revalidator
	if cfg.LLM.Enabled {
		revalidator = llm.New(cfg.LLM.BaseURL, cfg.LLM.Timeout)
	}

	var alertSink alert.Sink
	if cfg.Alert.Enabled {
		alertSink = alert.NewWebhookSink(cfg.Alert.WebhookURL, true, func(err error) {
			logger.Warn("alert delivery failed", zap.Error(err))
		})
	} else {
		alertSink = alert.NoopSink{}
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			logger.Fatal("opening store", zap.Error(err))
		}
		defer st.Close()
	}

	a := app.New(cfg, logger, client, cfg.Exchange.WSURL, feeEstimator, revalidator, alertSink, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.New(cfg.API.Addr, a.Governor, a.Catalog, a.Detector, logger)
		go func() {
			if err := apiServer.Run(ctx); err != nil {
				logger.Warn("api server stopped", zap.Error(err))
			}
		}()
	}

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("orchestrator stopped", zap.Error(err))
	}

	logger.Info("arbcore shut down cleanly")
}
