package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"costflow/book"
	"costflow/config"
	"costflow/estimator"
	"costflow/fees"
	"costflow/impact"
	"costflow/internal/channel"
	"costflow/logger"
	"costflow/processor"
	"costflow/reader/binance"
	"costflow/reader/okx"
	"costflow/simulator"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath, "config/config.yml", nil))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Costflow.Name,
		"version":     cfg.Costflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting costflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(cfg.Channels.RawBuffer)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)

	liveBook := book.New(cfg.Simulator.MaxDepth)

	impactModel := impact.NewModel(impact.Params{
		TemporaryImpactFactor: cfg.Simulator.Impact.TemporaryImpactFactor,
		PermanentImpactFactor: cfg.Simulator.Impact.PermanentImpactFactor,
		MarketVolFactor:       cfg.Simulator.Impact.MarketVolFactor,
		RiskAversion:          cfg.Simulator.Impact.RiskAversion,
	})
	slippageEst, err := estimator.NewSlippage(
		estimator.RegressionType(cfg.Simulator.Slippage.Regression),
		cfg.Simulator.Slippage.Quantile,
	)
	if err != nil {
		log.WithError(err).Error("Failed to build slippage estimator")
		os.Exit(1)
	}
	sim := simulator.New(liveBook, impactModel, slippageEst, estimator.NewMakerTaker())

	for exchange, markets := range cfg.Fees.Overrides {
		tiers := make(map[string]fees.MarketRates, len(markets))
		for market, rates := range markets {
			tiers[market] = fees.MarketRates{
				Maker: fees.TierRates(rates.Maker),
				Taker: fees.TierRates(rates.Taker),
			}
		}
		sim.SetFeeTiers(exchange, tiers)
	}

	feed := processor.NewFeed(cfg, channels.Raw, liveBook)

	var okxReader *okx.Reader
	if cfg.Source.Okx.Orderbook.Snapshots.Enabled {
		okxReader = okx.NewReader(cfg, channels, cfg.Source.Okx.Orderbook.Snapshots.Symbols)
	}
	var binanceReader *binance.Reader
	if cfg.Source.Binance.Orderbook.Snapshots.Enabled {
		binanceReader = binance.NewReader(cfg, channels, cfg.Source.Binance.Orderbook.Snapshots.Symbols)
	}
	if okxReader == nil && binanceReader == nil {
		if config.IsProductionLike(config.AppEnvironment()) {
			log.WithComponent("main").Error("no feed source enabled")
			os.Exit(1)
		}
		log.WithComponent("main").Warn("no feed source enabled; simulations will report an empty order book")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Start(ctx); err != nil {
			log.WithError(err).Warn("feed processor failed to start")
		}
	}()

	if okxReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := okxReader.Start(ctx); err != nil {
				log.WithError(err).Warn("okx reader failed to start")
			}
		}()
	}
	if binanceReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := binanceReader.Start(ctx); err != nil {
				log.WithError(err).Warn("binance reader failed to start")
			}
		}()
	}

	if cfg.Simulator.Sample.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSampleSimulations(ctx, cfg, sim, log)
		}()
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping feed processor")
	feed.Stop()

	if okxReader != nil {
		log.Info("stopping okx reader")
		okxReader.Stop()
	}
	if binanceReader != nil {
		log.Info("stopping binance reader")
		binanceReader.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("costflow stopped")
}

// runSampleSimulations periodically estimates the cost of a configured sample
// order and logs the breakdown. It stands in for an interactive consumer of
// the query interface.
func runSampleSimulations(ctx context.Context, cfg *config.Config, sim *simulator.Simulator, log *logger.Log) {
	sample := cfg.Simulator.Sample
	interval := sample.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	side, err := simulator.ParseSide(sample.Side)
	if err != nil {
		log.WithComponent("main").WithError(err).Warn("invalid sample side, defaulting to buy")
		side = simulator.SideBuy
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			est, err := sim.Simulate(side, sample.Quantity, sample.Exchange, sample.MarketType, sample.FeeTier, cfg.Simulator.DefaultVolatility)
			if err != nil {
				log.WithComponent("main").WithError(err).Debug("sample simulation not ready")
				continue
			}
			log.WithComponent("main").WithFields(logger.Fields{
				"id":               est.ID,
				"symbol":           est.Symbol,
				"mid_price":        est.MidPrice,
				"execution_price":  est.ExecutionPrice,
				"order_value":      est.OrderValue,
				"maker_proportion": est.MakerProportion,
				"total_fee":        est.Fees.TotalFee,
				"slippage":         est.Slippage,
				"total_impact":     est.Impact.TotalImpact,
				"net_cost":         est.NetCost,
				"net_cost_pct":     est.NetCostPct,
				"avg_latency_us":   sim.AverageProcessingTime().Microseconds(),
			}).Info("sample cost estimate")
		}
	}
}
