// Package types holds the entity structs shared across the consensus engine:
// raw chat messages, parsed signals, consensus rules/events, instruments and
// candles, plus the error taxonomy every other package returns.
package types

import "time"

// Direction is the side a signal or consensus event takes on an instrument.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionExit  Direction = "exit"
	DirectionMixed Direction = "mixed"
)

// SignalType distinguishes an entry from an exit or an update to an existing position.
type SignalType string

const (
	SignalTypeEntry  SignalType = "entry"
	SignalTypeExit   SignalType = "exit"
	SignalTypeUpdate SignalType = "update"
)

// ResultStatus is the lifecycle state of a SignalResult.
type ResultStatus string

const (
	ResultStatusActive  ResultStatus = "active"
	ResultStatusClosed  ResultStatus = "closed"
	ResultStatusStopped ResultStatus = "stopped"
	ResultStatusExpired ResultStatus = "expired"
)

// ExitReason is why a simulated or tracked position closed.
type ExitReason string

const (
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTimeout    ExitReason = "timeout"
	ExitReasonManual     ExitReason = "manual"
)

// EventStatus is the lifecycle state of a ConsensusEvent.
type EventStatus string

const (
	EventStatusActive  EventStatus = "active"
	EventStatusClosed  EventStatus = "closed"
	EventStatusExpired EventStatus = "expired"
)

// CandleInterval is the closed set of bar granularities the core understands.
type CandleInterval string

const (
	Interval1Min CandleInterval = "1min"
	Interval5Min CandleInterval = "5min"
	IntervalHour CandleInterval = "hour"
	IntervalDay  CandleInterval = "day"
)

// RawMessage is one chat message ingested by the scraper, unique on
// (ChannelID, MessageID). The core only mutates IsProcessed/ParseSuccess.
type RawMessage struct {
	ID           int64
	ChannelID    string
	MessageID    string
	Timestamp    time.Time
	Text         string
	Author       string
	IsProcessed  bool
	ParseSuccess bool
}

// ParsedSignal is the structured trade idea the Parser extracts from one
// RawMessage. Immutable after creation.
type ParsedSignal struct {
	ID              string // UUID
	RawMessageID    int64
	Timestamp       time.Time
	ChannelID       string
	Author          string
	Ticker          string
	Direction       Direction
	SignalType      SignalType
	TargetPrice     *float64
	StopLoss        *float64
	TakeProfit      *float64
	ConfidenceScore float64
	ParserVersion   string
	OriginalText    string
	ExtractedData   map[string]any
}

// Trader is a chat participant whose signals the system tracks.
type Trader struct {
	ID        int64
	Name      string
	ChannelID string
	IsActive  bool
	// CachedStats holds denormalized per-trader rollups (win rate, signal
	// count, ...) refreshed out of band; never read by the core pipeline.
	CachedStats map[string]any
}

// SignalResult is the realized outcome of one ParsedSignal, produced by the
// signal-matching component (internal/signaltracker in-memory, or an
// external persisted owner). The core only depends on the shape.
type SignalResult struct {
	ID              int64
	SignalID        string
	PlannedEntry    *float64
	ActualEntry     *float64
	ExitPrice       *float64
	PnLPct          *float64
	PnLAbs          *float64
	EntryTime       *time.Time
	ExitTime        *time.Time
	DurationMinutes *int
	Status          ResultStatus
	ExitReason      ExitReason
}

// IndicatorConditionSet is the rule-level indicator predicate bundle a
// ConsensusRule evaluates against an instrument's latest indicator values.
type IndicatorConditionSet struct {
	RSI       *RSICondition       `json:"rsi,omitempty"`
	MACD      *SignalCondition    `json:"macd,omitempty"`
	Bollinger *SignalCondition    `json:"bollinger,omitempty"`
	OBV       *SignalCondition    `json:"obv,omitempty"`
}

// RSICondition bounds the latest RSI(14) value.
type RSICondition struct {
	Enabled bool     `json:"enabled"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

// SignalCondition requires a derived categorical indicator signal to equal Signal.
type SignalCondition struct {
	Enabled bool   `json:"enabled"`
	Signal  string `json:"signal,omitempty"`
}

// NotificationSettings is the opaque, rule-owned configuration for
// internal/notify; the core only threads it through unread except for the
// "telegram.enabled" flag notify itself inspects.
type NotificationSettings struct {
	Telegram struct {
		Enabled bool `json:"enabled"`
	} `json:"telegram"`
}

// ConsensusRule is an ordered, filterable policy the Detector evaluates
// against new signals.
type ConsensusRule struct {
	ID                   int64
	Name                 string
	IsActive             bool
	Priority             int
	MinTraders           int
	WindowMinutes        int
	StrictConsensus      bool
	TickerFilter         []string
	DirectionFilter      Direction
	MinConfidence        *float64
	MinStrength          *float64
	IndicatorConditions  *IndicatorConditionSet
	NotificationSettings NotificationSettings
	Config               map[string]any
	CreatedAt            time.Time
}

// ConsensusEventMetadata is the free-form bag attached to a ConsensusEvent.
type ConsensusEventMetadata struct {
	Authors        []string `json:"authors"`
	TriggerSignalID string  `json:"trigger_signal_id"`
	TotalSignals   int      `json:"total_signals"`
}

// ConsensusEvent is the Detector's output: a group of same-direction signals
// on one ticker within a time window.
type ConsensusEvent struct {
	ID              string // UUID
	Ticker          string
	Direction       Direction
	TradersCount    int
	WindowMinutes   int
	RuleID          *int64
	FirstSignalAt   time.Time
	LastSignalAt    time.Time
	DetectedAt      time.Time
	AvgEntryPrice   *float64
	MinEntryPrice   *float64
	MaxEntryPrice   *float64
	PriceSpreadPct  *float64
	ConsensusStrength float64
	Status          EventStatus
	Metadata        ConsensusEventMetadata
}

// ConsensusSignal is the junction row between a ConsensusEvent and the
// ParsedSignal rows that compose it.
type ConsensusSignal struct {
	ConsensusID string
	SignalID    string
	IsInitiator bool
}

// TickerBacktestResult is the per-ticker rollup inside a ConsensusBacktest.
type TickerBacktestResult struct {
	Count          int
	Profitable     int
	TotalPnLPct    float64
	TotalProfitAbs float64
}

// ConsensusTradeDetail is one simulated trade's full record, kept in
// ConsensusBacktest.ConsensusDetails for after-the-fact inspection.
type ConsensusTradeDetail struct {
	EventID      string
	Ticker       string
	Direction    Direction
	EntryTime    time.Time
	EntryPrice   float64
	ExitTime     time.Time
	ExitPrice    float64
	Shares       float64
	PnLPct       float64
	PnLAbs       float64
	ExitReason   ExitReason
	CapitalAfter float64
}

// ConsensusBacktest is the persisted output of one Backtester run.
type ConsensusBacktest struct {
	ID               int64
	RuleID           int64
	StartDate        time.Time
	EndDate          time.Time
	Tickers          []string
	TotalTrades      int
	WinRate          float64
	AvgProfitPct     float64
	AvgLossPct       float64
	MaxProfitPct     float64
	MaxLossPct       float64
	TotalReturn      float64
	TotalProfitAbs   float64
	ResultsByTicker  map[string]TickerBacktestResult
	ConsensusDetails []ConsensusTradeDetail
	ExecutionTime    time.Duration
	Status           string
}

// Instrument is an externally-owned tradable security, keyed by FIGI.
type Instrument struct {
	FIGI     string
	Ticker   string
	Name     string
	Type     string
	Currency string
	Lot      int
	IsActive bool
}

// Candle is one OHLCV bar, unique on (InstrumentID, Interval, Time).
type Candle struct {
	InstrumentID string
	Interval     CandleInterval
	Time         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
}

// ParsingPattern is one entry in the Pattern Store: a named, categorized,
// priority-ordered regular expression.
type ParsingPattern struct {
	ID          int64
	Name        string
	Category    string
	Pattern     string
	Priority    int
	IsActive    bool
	Description string
}

// PriceMatch is an in-memory record produced when internal/signaltracker
// resolves a signal's realized entry price against candle history. It never
// has a backing table; it feeds SignalResult.ActualEntry.
type PriceMatch struct {
	SignalID      string
	SignalTime    time.Time
	TargetPrice   *float64
	ActualPrice   float64
	PriceTime     time.Time
	SlippagePct   float64
	DelayMinutes  float64
}

// ExitDecision is returned by the per-row callback internal/dbx's
// UpdateActivePositions invokes for each active SignalResult, inside the
// same transaction that holds its row lock. A nil decision leaves the
// position open.
type ExitDecision struct {
	Price  float64
	Time   time.Time
	Reason ExitReason
}
