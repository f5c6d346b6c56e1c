// Backtest Runner CLI.
// Replays consensus detection across a historical date range for one rule
// and simulates trades against real candle history.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/config"
	"github.com/ajitpratap0/consensus-engine/internal/consensus"
	"github.com/ajitpratap0/consensus-engine/internal/dbx"
	"github.com/ajitpratap0/consensus-engine/internal/indicators"
	"github.com/ajitpratap0/consensus-engine/internal/rules"
	"github.com/ajitpratap0/consensus-engine/internal/secrets"
	"github.com/ajitpratap0/consensus-engine/internal/types"
	"github.com/ajitpratap0/consensus-engine/pkg/backtest"
)

var (
	configFile      = flag.String("config", "", "Path to config file (defaults to ./configs/config.yaml)")
	ruleID          = flag.Int64("rule", 0, "Consensus rule id to backtest (required)")
	tickers         = flag.String("tickers", "", "Comma-separated ticker override (defaults to the rule's own filter)")
	startDate       = flag.String("start", "", "Start date (YYYY-MM-DD, required)")
	endDate         = flag.String("end", "", "End date (YYYY-MM-DD, required)")
	initialCapital  = flag.Float64("capital", 10000.0, "Initial capital")
	takeProfitPct   = flag.Float64("take-profit", backtest.DefaultTakeProfitPct, "Take-profit percentage")
	stopLossPct     = flag.Float64("stop-loss", backtest.DefaultStopLossPct, "Stop-loss percentage")
	holdingHours    = flag.Int("holding-hours", backtest.DefaultHoldingHours, "Maximum holding period before a timeout exit")
	positionSizePct = flag.Float64("position-size", 10.0, "Percent of capital risked per trade")
	verbose         = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *ruleID == 0 {
		fmt.Fprintln(os.Stderr, "Error: -rule flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if *startDate == "" || *endDate == "" {
		fmt.Fprintln(os.Stderr, "Error: -start and -end dates are required")
		flag.Usage()
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid start date (use YYYY-MM-DD)")
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid end date (use YYYY-MM-DD)")
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

	ctx := context.Background()
	db, err := dbx.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ruleStore := rules.NewStore(db)
	indicatorService := indicators.NewService()
	gate := consensus.NewIndicatorGate(db, indicatorService)
	detector := consensus.NewDetector(db, ruleStore, db, gate)
	runner := backtest.NewRunner(db, ruleStore, detector, db, db)

	params := backtest.Params{
		RuleID:          *ruleID,
		StartDate:       start,
		EndDate:         end,
		Tickers:         parseTickers(*tickers),
		TakeProfitPct:   *takeProfitPct,
		StopLossPct:     *stopLossPct,
		HoldingHours:    *holdingHours,
		InitialCapital:  *initialCapital,
		PositionSizePct: *positionSizePct,
	}

	log.Info().Int64("rule_id", params.RuleID).Str("start", *startDate).Str("end", *endDate).
		Float64("capital", params.InitialCapital).Msg("starting backtest")

	result, err := runner.RunBacktest(ctx, params)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	printReport(result)
}

func parseTickers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printReport(bt *types.ConsensusBacktest) {
	fmt.Printf("Backtest #%d — rule %d\n", bt.ID, bt.RuleID)
	fmt.Printf("Period:        %s to %s\n", bt.StartDate.Format("2006-01-02"), bt.EndDate.Format("2006-01-02"))
	fmt.Printf("Tickers:       %s\n", strings.Join(bt.Tickers, ", "))
	fmt.Printf("Total trades:  %d\n", bt.TotalTrades)
	fmt.Printf("Win rate:      %.2f%%\n", bt.WinRate)
	fmt.Printf("Avg profit:    %.2f%%\n", bt.AvgProfitPct)
	fmt.Printf("Avg loss:      %.2f%%\n", bt.AvgLossPct)
	fmt.Printf("Max profit:    %.2f%%\n", bt.MaxProfitPct)
	fmt.Printf("Max loss:      %.2f%%\n", bt.MaxLossPct)
	fmt.Printf("Total return:  %.2f%%\n", bt.TotalReturn)
	fmt.Printf("Total profit:  %.2f\n", bt.TotalProfitAbs)
	fmt.Printf("Execution time: %s\n", bt.ExecutionTime)

	if len(bt.ResultsByTicker) == 0 {
		return
	}
	fmt.Println("\nPer-ticker breakdown:")
	for ticker, rollup := range bt.ResultsByTicker {
		fmt.Printf("  %-10s trades=%d profitable=%d total_pnl_pct=%.2f%% total_profit_abs=%.2f\n",
			ticker, rollup.Count, rollup.Profitable, rollup.TotalPnLPct, rollup.TotalProfitAbs)
	}
}
