// Position Tracker daemon.
// Resolves realized entry prices for newly parsed signals and watches open
// positions for a stop-loss, take-profit, or tracking-timeout exit.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/config"
	"github.com/ajitpratap0/consensus-engine/internal/dbx"
	"github.com/ajitpratap0/consensus-engine/internal/secrets"
	"github.com/ajitpratap0/consensus-engine/internal/signaltracker"
)

var (
	configFile = flag.String("config", "", "Path to config file (defaults to ./configs/config.yaml)")
	interval   = flag.Duration("interval", time.Minute, "Polling interval between tracking passes")
	once       = flag.Bool("once", false, "Run a single pass and exit instead of polling forever")
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
		vctx, vcancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := secrets.LoadSecretsFromVault(vctx, cfg, vaultCfg); err != nil {
			log.Fatal().Err(err).Msg("failed to load secrets from vault")
		}
		vcancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := dbx.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	tracker := signaltracker.NewTracker(db).WithResultStore(db, db)

	if *once {
		runPass(ctx, tracker)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	log.Info().Dur("interval", *interval).Msg("position tracker started")
	runPass(ctx, tracker)

	for {
		select {
		case <-ticker.C:
			runPass(ctx, tracker)
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("shutting down position tracker")
			return
		}
	}
}

func runPass(ctx context.Context, tracker *signaltracker.Tracker) {
	now := time.Now().UTC()

	tracked, err := tracker.ProcessUntrackedSignals(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("process untracked signals failed")
	} else if tracked > 0 {
		log.Info().Int("tracked", tracked).Msg("opened new positions")
	}

	closed, err := tracker.UpdateActivePositions(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("update active positions failed")
	} else if closed > 0 {
		log.Info().Int("closed", closed).Msg("closed positions")
	}
}
