// Package indicators computes technical indicators (OBV, SMA, EMA, MACD,
// RSI, Bollinger Bands) over ordered candle sequences, and derives the
// categorical signals the Consensus Detector gates on. Every function is
// pure and deterministic over its input slice; none mutate their argument.
package indicators

import (
	"math"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// opInsufficientData is the op of the KindInsufficientData *types.Error
// returned whenever a function is given fewer bars than its lookback requires.
const opInsufficientData = "indicators: insufficient data"

func insufficientData(required, got int) error {
	return types.NewError(types.KindInsufficientData, opInsufficientData,
		errBarCount{required: required, got: got})
}

type errBarCount struct {
	required, got int
}

func (e errBarCount) Error() string {
	return "need at least " + itoa(e.required) + " bars, got " + itoa(e.got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func closes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// OBV computes On-Balance Volume for the full candle sequence. obv[0] seeds
// at volume[0]; for i>=1, obv[i] = obv[i-1] + sign(close[i]-close[i-1])*volume[i].
func OBV(candles []types.Candle) ([]float64, error) {
	if len(candles) < 1 {
		return nil, insufficientData(1, len(candles))
	}

	obv := make([]float64, len(candles))
	obv[0] = candles[0].Volume

	for i := 1; i < len(candles); i++ {
		diff := candles[i].Close - candles[i-1].Close
		switch {
		case diff > 0:
			obv[i] = obv[i-1] + candles[i].Volume
		case diff < 0:
			obv[i] = obv[i-1] - candles[i].Volume
		default:
			obv[i] = obv[i-1]
		}
	}

	return obv, nil
}

// SMA computes the simple moving average of the last n closes. Requires at
// least n bars.
func SMA(values []float64, n int) (float64, error) {
	if len(values) < n || n <= 0 {
		return 0, insufficientData(n, len(values))
	}

	window := values[len(values)-n:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(n), nil
}

// EMA computes the exponential moving average series of length n over
// values, using the recursive form seeded at bar 0 (ema[0] = values[0]),
// with alpha = 2/(n+1). Requires at least n bars so the series is
// meaningful once warmed up; returns one EMA value per input bar.
func EMA(values []float64, n int) ([]float64, error) {
	if len(values) < n || n <= 0 {
		return nil, insufficientData(n, len(values))
	}

	alpha := 2.0 / (float64(n) + 1.0)
	ema := make([]float64, len(values))
	ema[0] = values[0]
	for i := 1; i < len(values); i++ {
		ema[i] = alpha*values[i] + (1-alpha)*ema[i-1]
	}
	return ema, nil
}

// MACDResult holds the three series MACD(12,26,9) produces, each with one
// value per input bar.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes MACD(fast, slow, signal) over closes. Requires at least
// slow+signal bars for a meaningful signal line.
func MACD(values []float64, fast, slow, signalPeriod int) (*MACDResult, error) {
	if len(values) < slow+signalPeriod {
		return nil, insufficientData(slow+signalPeriod, len(values))
	}

	emaFast, err := EMA(values, fast)
	if err != nil {
		return nil, err
	}
	emaSlow, err := EMA(values, slow)
	if err != nil {
		return nil, err
	}

	macd := make([]float64, len(values))
	for i := range values {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signal, err := EMA(macd, signalPeriod)
	if err != nil {
		return nil, err
	}

	histogram := make([]float64, len(values))
	for i := range values {
		histogram[i] = macd[i] - signal[i]
	}

	return &MACDResult{MACD: macd, Signal: signal, Histogram: histogram}, nil
}

// DefaultMACD runs MACD with the canonical (12, 26, 9) periods.
func DefaultMACD(values []float64) (*MACDResult, error) {
	return MACD(values, 12, 26, 9)
}

// RSI computes Wilder's RSI(n) over closes, one value per bar once warmed
// up (the first n bars have no defined value and are omitted). Requires at
// least n+1 bars (n deltas).
func RSI(values []float64, n int) ([]float64, error) {
	if len(values) < n+1 {
		return nil, insufficientData(n+1, len(values))
	}

	gains := make([]float64, 0, len(values)-1)
	losses := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < n; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)

	rsi := make([]float64, len(gains)-n+1)
	rsi[0] = rsiFromAverages(avgGain, avgLoss)

	for i := n; i < len(gains); i++ {
		avgGain = (avgGain*float64(n-1) + gains[i]) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + losses[i]) / float64(n)
		rsi[i-n+1] = rsiFromAverages(avgGain, avgLoss)
	}

	return rsi, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// BollingerBands holds one bar's band values.
type BollingerBands struct {
	Middle    float64
	Upper     float64
	Lower     float64
	Bandwidth float64
	PercentB  float64
}

// Bollinger computes Bollinger Bands(n, k) for the latest bar only, using
// sample (n-1) standard deviation of the last n closes.
func Bollinger(values []float64, n int, k float64) (*BollingerBands, error) {
	if len(values) < n {
		return nil, insufficientData(n, len(values))
	}

	window := values[len(values)-n:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(n)

	var sumSq float64
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	variance := sumSq / float64(n-1)
	std := math.Sqrt(variance)

	upper := mean + k*std
	lower := mean - k*std
	close := values[len(values)-1]

	var bandwidth, percentB float64
	if mean != 0 {
		bandwidth = (upper - lower) / mean * 100
	}
	if upper != lower {
		percentB = (close - lower) / (upper - lower)
	}

	return &BollingerBands{
		Middle:    mean,
		Upper:     upper,
		Lower:     lower,
		Bandwidth: bandwidth,
		PercentB:  percentB,
	}, nil
}
