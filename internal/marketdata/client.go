// Package marketdata is the market-data adapter: it resolves tickers to
// instruments and fetches OHLCV candle history from an external exchange,
// so cmd/parsingsvc can keep the candles table warm.
// Client construction and circuit-breaker wiring follow
// internal/exchange.BinanceExchange; the interval/candle shapes are
// generalized from internal/market's CoinGecko client's market-chart
// parsing into this engine's fixed CandleInterval set.
package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	cbMinRequests     = 5
	cbFailureRatio    = 0.5
	cbOpenTimeout     = 30 * time.Second
	cbHalfOpenMaxReqs = 3
	cbCountInterval   = time.Minute
)

// intervalCodes maps the engine's closed CandleInterval set onto Binance's
// kline interval strings.
var intervalCodes = map[types.CandleInterval]string{
	types.Interval1Min: "1m",
	types.Interval5Min: "5m",
	types.IntervalHour: "1h",
	types.IntervalDay:  "1d",
}

// Client resolves tickers to instruments and loads candle history from
// Binance, guarded by a circuit breaker so a vendor outage degrades to a
// KindTransientIO error instead of cascading into callers.
type Client struct {
	api     *binance.Client
	breaker *gobreaker.CircuitBreaker
}

// Config configures a Client.
type Config struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// NewClient builds a Client against Binance's REST API.
func NewClient(cfg Config) *Client {
	if cfg.Testnet {
		binance.UseTestnet = true
		log.Info().Msg("marketdata client initialized against Binance testnet")
	}
	api := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata",
		MaxRequests: cbHalfOpenMaxReqs,
		Interval:    cbCountInterval,
		Timeout:     cbOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cbMinRequests && failureRatio >= cbFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("marketdata circuit breaker state change")
		},
	})

	return &Client{api: api, breaker: breaker}
}

func guard[T any](c *Client, op string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return zero, types.NewError(types.KindTransientIO, op, fmt.Errorf("marketdata: circuit breaker open"))
		}
		return zero, types.NewError(types.KindTransientIO, op, err)
	}
	return result.(T), nil
}

// FindInstrument resolves ticker to an Instrument by asking Binance for its
// exchange symbol metadata. FIGI is synthesized as "BINANCE:<symbol>" since
// the engine keys candles by FIGI but Binance has no such concept.
func (c *Client) FindInstrument(ctx context.Context, ticker string) (*types.Instrument, error) {
	const op = "marketdata: find instrument"
	return guard(c, op, func() (*types.Instrument, error) {
		info, err := c.api.NewExchangeInfoService().Symbol(ticker).Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(info.Symbols) == 0 {
			return nil, types.NewError(types.KindNotFound, op, fmt.Errorf("symbol %s not found on exchange", ticker))
		}
		sym := info.Symbols[0]
		return &types.Instrument{
			FIGI:     "BINANCE:" + sym.Symbol,
			Ticker:   sym.Symbol,
			Name:     sym.BaseAsset + "/" + sym.QuoteAsset,
			Type:     "crypto",
			Currency: sym.QuoteAsset,
			Lot:      1,
			IsActive: sym.Status == "TRADING",
		}, nil
	})
}

// GetCandles fetches up to limit OHLCV bars for figi/interval within
// [from, to], ordered ascending by time. limit<=0 uses Binance's default
// page size (500).
func (c *Client) GetCandles(ctx context.Context, figi string, interval types.CandleInterval, from, to time.Time, limit int) ([]types.Candle, error) {
	const op = "marketdata: get candles"
	code, ok := intervalCodes[interval]
	if !ok {
		return nil, types.NewError(types.KindValidationError, op, fmt.Errorf("unsupported interval %q", interval))
	}
	symbol := symbolFromFIGI(figi)

	return guard(c, op, func() ([]types.Candle, error) {
		svc := c.api.NewKlinesService().
			Symbol(symbol).
			Interval(code).
			StartTime(from.UnixMilli()).
			EndTime(to.UnixMilli())
		if limit > 0 {
			svc = svc.Limit(limit)
		}
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, err
		}

		out := make([]types.Candle, 0, len(klines))
		for _, k := range klines {
			candle, err := candleFromKline(figi, interval, k)
			if err != nil {
				return nil, err
			}
			out = append(out, candle)
		}
		return out, nil
	})
}

func symbolFromFIGI(figi string) string {
	const prefix = "BINANCE:"
	if len(figi) > len(prefix) && figi[:len(prefix)] == prefix {
		return figi[len(prefix):]
	}
	return figi
}

func candleFromKline(figi string, interval types.CandleInterval, k *binance.Kline) (types.Candle, error) {
	open, err := parseFloat(k.Open)
	if err != nil {
		return types.Candle{}, err
	}
	high, err := parseFloat(k.High)
	if err != nil {
		return types.Candle{}, err
	}
	low, err := parseFloat(k.Low)
	if err != nil {
		return types.Candle{}, err
	}
	closePrice, err := parseFloat(k.Close)
	if err != nil {
		return types.Candle{}, err
	}
	volume, err := parseFloat(k.Volume)
	if err != nil {
		return types.Candle{}, err
	}

	return types.Candle{
		InstrumentID: figi,
		Interval:     interval,
		Time:         time.UnixMilli(k.OpenTime),
		Open:         open,
		High:         high,
		Low:          low,
		Close:        closePrice,
		Volume:       volume,
	}, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
