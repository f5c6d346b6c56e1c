// Parsing Service daemon.
// Polls raw chat messages, parses them into structured trade signals, and
// feeds each new signal into consensus detection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/config"
	"github.com/ajitpratap0/consensus-engine/internal/consensus"
	"github.com/ajitpratap0/consensus-engine/internal/dbx"
	"github.com/ajitpratap0/consensus-engine/internal/eventbus"
	"github.com/ajitpratap0/consensus-engine/internal/indicators"
	"github.com/ajitpratap0/consensus-engine/internal/marketdata"
	"github.com/ajitpratap0/consensus-engine/internal/notify"
	"github.com/ajitpratap0/consensus-engine/internal/parser"
	"github.com/ajitpratap0/consensus-engine/internal/parsing"
	"github.com/ajitpratap0/consensus-engine/internal/patterns"
	"github.com/ajitpratap0/consensus-engine/internal/rules"
	"github.com/ajitpratap0/consensus-engine/internal/secrets"
)

var (
	configFile = flag.String("config", "", "Path to config file (defaults to ./configs/config.yaml)")
	interval   = flag.Duration("interval", 10*time.Second, "Polling interval between parse batches")
	batchLimit = flag.Int("batch-limit", 0, "Cap on messages processed per batch (0 = unbounded)")
	once       = flag.Bool("once", false, "Run a single batch and exit instead of polling forever")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	vaultCfg := secrets.GetVaultConfigFromEnv()
	if vaultCfg.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := secrets.LoadSecretsFromVault(ctx, cfg, vaultCfg); err != nil {
			log.Fatal().Err(err).Msg("failed to load secrets from vault")
		}
		cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := dbx.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	patternStore := patterns.NewStore(db)
	ruleStore := rules.NewStore(db)
	p := parser.New(patternStore)
	indicatorService := indicators.NewService()
	gate := consensus.NewIndicatorGate(db, indicatorService)

	if cfg.MarketData.Provider == "binance" && cfg.MarketData.APIKey != "" {
		tickers, err := rulesTickers(ctx, ruleStore)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve tickers for market data sync")
		} else if len(tickers) == 0 {
			log.Warn().Msg("no active rule names a specific ticker; market data sync has nothing to pull")
		} else {
			client := marketdata.NewClient(marketdata.Config{
				APIKey: cfg.MarketData.APIKey, SecretKey: cfg.MarketData.SecretKey, Testnet: cfg.MarketData.Testnet,
			})
			syncer := marketdata.NewSyncer(client, db, tickers, 15*time.Minute, 48*time.Hour)
			go func() {
				if err := syncer.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("market data syncer exited")
				}
			}()
			defer syncer.Stop()
		}
	}

	detector := consensus.NewDetector(db, ruleStore, db, gate)

	if cfg.Telegram.Enabled {
		sender, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize telegram sender, notifications disabled")
		} else {
			detector = detector.WithNotifier(notify.NewDispatcher(sender))
		}
	}

	publisher, err := eventbus.NewPublisher(eventbus.Config{URL: cfg.NATS.URL})
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to NATS, event publication disabled")
	} else {
		defer publisher.Close()
		detector = detector.WithEventPublisher(publisher)
	}

	service := parsing.NewService(db, p, detector)

	if *once {
		runBatch(ctx, service, *batchLimit)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	log.Info().Dur("interval", *interval).Msg("parsing service started")
	runBatch(ctx, service, *batchLimit)

	for {
		select {
		case <-ticker.C:
			runBatch(ctx, service, *batchLimit)
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("shutting down parsing service")
			return
		}
	}
}

// rulesTickers collects the distinct tickers named across every active
// rule's filter, the sync list for the market-data Syncer. Rules with an
// empty filter (apply to every ticker) contribute nothing here — there is
// no fixed list to poll for those.
func rulesTickers(ctx context.Context, ruleStore *rules.Store) ([]string, error) {
	activeRules, err := ruleStore.Active(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tickers []string
	for _, r := range activeRules {
		for _, t := range r.TickerFilter {
			if !seen[t] {
				seen[t] = true
				tickers = append(tickers, t)
			}
		}
	}
	return tickers, nil
}

func runBatch(ctx context.Context, service *parsing.Service, limit int) {
	stats, err := service.ParseAllUnprocessed(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("parse batch failed")
		return
	}
	if stats.TotalProcessed == 0 {
		return
	}
	log.Info().
		Int("total", stats.TotalProcessed).
		Int("successful", stats.SuccessfulParses).
		Int("failed", stats.FailedParses).
		Int("trading", stats.Trading).
		Int("non_trading", stats.NonTrading).
		Msg("parse batch completed")
	if len(stats.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "batch had %d errors; first: %s\n", len(stats.Errors), stats.Errors[0])
	}
}
