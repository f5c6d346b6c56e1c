package indicators

import (
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// RSIPeriod, MACD, and Bollinger defaults the Service applies when the
// Consensus Detector asks for a gate check without overriding them.
const (
	DefaultRSIPeriod       = 14
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
)

// Evaluation is the full set of derived indicator values and categorical
// signals for one instrument at one point in its candle history, the shape
// internal/consensus evaluates rule predicates against.
type Evaluation struct {
	RSI             float64
	RSISignal       string
	MACD            float64
	MACDSignalVal   float64
	MACDSignal      string
	Bollinger       *BollingerBands
	BollingerSignal string
	OBVSignal       string
}

// Service computes indicator evaluations over candle history, logging each
// calculation at Debug.
type Service struct{}

// NewService constructs a Service. It holds no state; every method is a
// pure function of its candles argument.
func NewService() *Service {
	log.Debug().Msg("indicator service initialized")
	return &Service{}
}

// Evaluate computes RSI(14), MACD(12,26,9), Bollinger(20,2) and OBV over
// candles and classifies each into its categorical signal. Returns
// types.KindInsufficientData if candles is too short for any indicator.
func (s *Service) Evaluate(candles []types.Candle) (*Evaluation, error) {
	log.Debug().Int("candles", len(candles)).Msg("evaluating indicators")

	closeValues := closes(candles)

	rsiSeries, err := RSI(closeValues, DefaultRSIPeriod)
	if err != nil {
		return nil, err
	}
	latestRSI := rsiSeries[len(rsiSeries)-1]
	log.Debug().Float64("rsi", latestRSI).Msg("rsi calculated")

	macd, err := DefaultMACD(closeValues)
	if err != nil {
		return nil, err
	}
	last := len(macd.MACD) - 1
	macdSignal := MACDSignal(macd.MACD[last-1], macd.Signal[last-1], macd.MACD[last], macd.Signal[last])
	log.Debug().Float64("macd", macd.MACD[last]).Float64("signal", macd.Signal[last]).
		Str("classification", macdSignal).Msg("macd calculated")

	bands, err := Bollinger(closeValues, DefaultBollingerPeriod, DefaultBollingerK)
	if err != nil {
		return nil, err
	}
	bbSignal := BollingerSignal(closeValues[len(closeValues)-1], bands)
	log.Debug().Float64("upper", bands.Upper).Float64("lower", bands.Lower).
		Str("classification", bbSignal).Msg("bollinger bands calculated")

	obv, err := OBV(candles)
	if err != nil {
		return nil, err
	}
	obvSignal, err := OBVSignal(obv)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("classification", obvSignal).Msg("obv calculated")

	return &Evaluation{
		RSI:             latestRSI,
		RSISignal:       RSISignal(latestRSI),
		MACD:            macd.MACD[last],
		MACDSignalVal:   macd.Signal[last],
		MACDSignal:      macdSignal,
		Bollinger:       bands,
		BollingerSignal: bbSignal,
		OBVSignal:       obvSignal,
	}, nil
}
