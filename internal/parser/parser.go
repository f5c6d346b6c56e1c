// Package parser implements the Message Parser: a reentrant, stateless
// pipeline turning one raw chat message into a structured trade signal
// using the category-ordered regular expressions from internal/patterns.
package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// Version is stamped onto every ParsedSignal this Parser produces, carried
// verbatim from the original MessageParser.VERSION.
const Version = "3.1.0"

// tradingEmojis is the fixed glyph allow-list the triviality check falls
// back to when no keyword or ticker pattern matches.
var tradingEmojis = []string{"🔥", "🎪", "📈", "📉", "⭐"}

// minPrice and maxPrice bound any value accepted as a target/stop/take price.
const (
	minPrice = 0.01
	maxPrice = 100000
)

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// PatternSource resolves the regex patterns for a category, ordered
// descending by priority. internal/patterns.Store satisfies this.
type PatternSource interface {
	Patterns(ctx context.Context, category string) ([]types.ParsingPattern, error)
}

// Input is one raw message to parse.
type Input struct {
	ID        int64
	ChannelID string
	MessageID string
	Timestamp time.Time
	Text      string
	Author    string
}

// Result is the outcome of parsing one message.
type Result struct {
	Success bool
	Signal  *types.ParsedSignal
	Error   string
}

// Parser turns raw messages into ParsedSignals. It holds no mutable state
// of its own; every call resolves patterns through its PatternSource, so it
// is safe to share across goroutines.
type Parser struct {
	patterns PatternSource
}

// New constructs a Parser backed by patterns.
func New(patterns PatternSource) *Parser {
	return &Parser{patterns: patterns}
}

// Parse runs the 8-step pipeline over in and returns a Result. Parse never
// mutates in or any shared state; it is safe to call from multiple
// goroutines concurrently.
func (p *Parser) Parse(ctx context.Context, in Input) (Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Result{Success: false, Error: "Empty message text"}, nil
	}

	author, err := p.extractAuthor(ctx, in.Text, in.Author)
	if err != nil {
		return Result{}, err
	}

	trading, err := p.isTradingMessage(ctx, text)
	if err != nil {
		return Result{}, err
	}
	if !trading {
		return Result{Success: false, Error: "Not a trading message"}, nil
	}

	ticker, allTickers, err := p.extractTicker(ctx, text)
	if err != nil {
		return Result{}, err
	}
	if ticker == "" {
		return Result{Success: false, Error: "No ticker found"}, nil
	}

	signalType, direction, err := p.classifyOperation(ctx, text)
	if err != nil {
		return Result{}, err
	}

	target, stop, take, err := p.extractPrices(ctx, text)
	if err != nil {
		return Result{}, err
	}

	confidence := confidenceScore(text, ticker, direction, signalType)

	signal := &types.ParsedSignal{
		ID:              uuid.NewString(),
		RawMessageID:    in.ID,
		Timestamp:       in.Timestamp,
		ChannelID:       in.ChannelID,
		Author:          author,
		Ticker:          ticker,
		Direction:       direction,
		SignalType:      signalType,
		TargetPrice:     target,
		StopLoss:        stop,
		TakeProfit:      take,
		ConfidenceScore: confidence,
		ParserVersion:   Version,
		OriginalText:    in.Text,
		ExtractedData: map[string]any{
			"cleaned_text": text,
			"all_tickers":  allTickers,
			"all_numbers":  extractAllNumbers(text),
		},
	}

	return Result{Success: true, Signal: signal}, nil
}

func (p *Parser) extractAuthor(ctx context.Context, originalText, fallback string) (string, error) {
	patterns, err := p.patterns.Patterns(ctx, "author")
	if err != nil {
		return "", err
	}
	for _, pat := range patterns {
		re, err := regexp.Compile(pat.Pattern)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(originalText); m != nil {
			if len(m) > 1 {
				return m[1], nil
			}
			return m[0], nil
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "Unknown", nil
}

func (p *Parser) isTradingMessage(ctx context.Context, text string) (bool, error) {
	keywords, err := p.patterns.Patterns(ctx, "trading_keyword")
	if err != nil {
		return false, err
	}
	if anyMatches(keywords, text, true) {
		return true, nil
	}

	tickers, err := p.patterns.Patterns(ctx, "ticker")
	if err != nil {
		return false, err
	}
	if anyMatches(tickers, text, false) {
		return true, nil
	}

	for _, emoji := range tradingEmojis {
		if strings.Contains(text, emoji) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Parser) extractTicker(ctx context.Context, text string) (string, []string, error) {
	patterns, err := p.patterns.Patterns(ctx, "ticker")
	if err != nil {
		return "", nil, err
	}

	var ticker string
	seen := map[string]bool{}
	var all []string

	for _, pat := range patterns {
		re, err := regexp.Compile(pat.Pattern)
		if err != nil {
			continue
		}
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			candidate := m[0]
			if len(m) > 1 {
				candidate = m[1]
			}
			candidate = strings.ToUpper(candidate)
			if !seen[candidate] {
				seen[candidate] = true
				all = append(all, candidate)
			}
		}
		if ticker == "" {
			if m := re.FindStringSubmatch(text); m != nil {
				if len(m) > 1 {
					ticker = strings.ToUpper(m[1])
				} else {
					ticker = strings.ToUpper(m[0])
				}
			}
		}
	}

	return ticker, all, nil
}

func (p *Parser) classifyOperation(ctx context.Context, text string) (types.SignalType, types.Direction, error) {
	exitPatterns, err := p.patterns.Patterns(ctx, "operation_exit")
	if err != nil {
		return "", "", err
	}
	for _, pat := range exitPatterns {
		re, err := regexp.Compile("(?i)" + pat.Pattern)
		if err != nil {
			continue
		}
		if m := re.FindString(text); m != "" {
			switch {
			case regexp.MustCompile(`(?i)long`).MatchString(m):
				return types.SignalTypeExit, types.DirectionLong, nil
			case regexp.MustCompile(`(?i)short`).MatchString(m):
				return types.SignalTypeExit, types.DirectionShort, nil
			default:
				return types.SignalTypeExit, types.DirectionMixed, nil
			}
		}
	}

	longPatterns, err := p.patterns.Patterns(ctx, "direction_long")
	if err != nil {
		return "", "", err
	}
	if anyMatches(longPatterns, text, true) {
		return types.SignalTypeEntry, types.DirectionLong, nil
	}

	shortPatterns, err := p.patterns.Patterns(ctx, "direction_short")
	if err != nil {
		return "", "", err
	}
	if anyMatches(shortPatterns, text, true) {
		return types.SignalTypeEntry, types.DirectionShort, nil
	}

	switch {
	case regexp.MustCompile(`(?i)\blong\b`).MatchString(text):
		return types.SignalTypeEntry, types.DirectionLong, nil
	case regexp.MustCompile(`(?i)\bshort\b`).MatchString(text):
		return types.SignalTypeEntry, types.DirectionShort, nil
	}

	return types.SignalTypeEntry, types.DirectionMixed, nil
}

func (p *Parser) extractPrices(ctx context.Context, text string) (target, stop, take *float64, err error) {
	target, err = p.extractPrice(ctx, "price_target", text)
	if err != nil {
		return nil, nil, nil, err
	}
	stop, err = p.extractPrice(ctx, "price_stop", text)
	if err != nil {
		return nil, nil, nil, err
	}
	take, err = p.extractPrice(ctx, "price_take", text)
	if err != nil {
		return nil, nil, nil, err
	}
	return target, stop, take, nil
}

func (p *Parser) extractPrice(ctx context.Context, category, text string) (*float64, error) {
	patterns, err := p.patterns.Patterns(ctx, category)
	if err != nil {
		return nil, err
	}
	for _, pat := range patterns {
		re, err := regexp.Compile("(?i)" + pat.Pattern)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := m[0]
		if len(m) > 1 {
			raw = m[1]
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			continue
		}
		if value >= minPrice && value <= maxPrice {
			return &value, nil
		}
	}
	return nil, nil
}

func anyMatches(patterns []types.ParsingPattern, text string, caseInsensitive bool) bool {
	for _, pat := range patterns {
		expr := pat.Pattern
		if caseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func extractAllNumbers(text string) []float64 {
	var out []float64
	for _, m := range numberPattern.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			continue
		}
		if v >= minPrice && v <= maxPrice {
			out = append(out, v)
		}
	}
	return out
}

func confidenceScore(text, ticker string, direction types.Direction, signalType types.SignalType) float64 {
	var score float64
	if ticker != "" {
		score += 0.4
	}
	if direction != types.DirectionMixed {
		score += 0.3
	}
	if signalType != "" {
		score += 0.2
	}
	if len(strings.Fields(text)) > 3 {
		score += 0.05
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "deal") || strings.Contains(lower, "position") || strings.Contains(lower, "signal") {
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
