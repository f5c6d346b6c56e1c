// Package parsing implements the Parsing Service: the batch entry point
// that pulls unprocessed raw messages, runs them through the Parser,
// persists successful signals, and feeds each new signal to the Consensus
// Detector. Drains messages in pages with per-item error isolation, in the
// zerolog Info/Warn texture used across the engine.
package parsing

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/obsmetrics"
	"github.com/ajitpratap0/consensus-engine/internal/parser"
	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// pageSize is the batch size parse_all_unprocessed reads at a time.
const pageSize = 100

// nonTradingError must match parser.Result.Error's text for a message the
// Parser classified as not a trading message at all, the one failure mode
// the service counts separately from a true parse error.
const nonTradingError = "Not a trading message"

// MessageSource is the subset of internal/dbx the service reads raw
// messages and writes processed-flags/signals through.
type MessageSource interface {
	UnparsedMessages(ctx context.Context, limit int) ([]types.RawMessage, error)
	MarkMessageProcessed(ctx context.Context, id int64, success bool) error
	SaveSignal(ctx context.Context, s *types.ParsedSignal) (string, error)
	DeleteAllSignals(ctx context.Context) error
	DeleteAllSignalResults(ctx context.Context) error
	ResetMessageProcessed(ctx context.Context) error
}

// Parser turns one raw message into a signal, satisfied by
// internal/parser.Parser.
type Parser interface {
	Parse(ctx context.Context, in parser.Input) (parser.Result, error)
}

// Detector is notified of each newly saved signal, satisfied by
// internal/consensus.Detector. A detector error is logged and swallowed:
// the batch must never fail because consensus detection did.
type Detector interface {
	CheckNewSignal(ctx context.Context, signalID string) (*types.ConsensusEvent, error)
}

// Stats is the aggregate result of one parse_all_unprocessed call.
type Stats struct {
	TotalProcessed   int
	SuccessfulParses int
	FailedParses     int
	Trading          int
	NonTrading       int
	Errors           []string
}

// Service is the Parsing Service.
type Service struct {
	messages MessageSource
	parser   Parser
	detector Detector
}

// NewService builds a Service around its collaborators.
func NewService(messages MessageSource, p Parser, detector Detector) *Service {
	return &Service{messages: messages, parser: p, detector: detector}
}

// ParseAllUnprocessed pulls is_processed=false messages in pages of up to
// pageSize, parses each, and persists a signal on success. limit caps the
// total number of messages processed across all pages; limit<=0 means
// unbounded (drain until no unprocessed messages remain).
func (s *Service) ParseAllUnprocessed(ctx context.Context, limit int) (Stats, error) {
	timer := prometheus.NewTimer(obsmetrics.ParseBatchDuration)
	defer timer.ObserveDuration()

	var stats Stats
	for {
		batchSize := pageSize
		if limit > 0 {
			remaining := limit - stats.TotalProcessed
			if remaining <= 0 {
				break
			}
			if remaining < batchSize {
				batchSize = remaining
			}
		}

		messages, err := s.messages.UnparsedMessages(ctx, batchSize)
		if err != nil {
			return stats, err
		}
		if len(messages) == 0 {
			break
		}

		log.Debug().Int("batch", len(messages)).Msg("parsing service processing batch")
		for _, msg := range messages {
			s.processOne(ctx, msg, &stats)
		}

		if len(messages) < batchSize {
			break
		}
	}

	log.Info().Int("total", stats.TotalProcessed).Int("successful", stats.SuccessfulParses).
		Int("failed", stats.FailedParses).Msg("parsing service batch complete")
	return stats, nil
}

// processOne parses and persists a single message, isolating any failure
// to this message's slot in stats so one bad message never aborts a batch.
func (s *Service) processOne(ctx context.Context, msg types.RawMessage, stats *Stats) {
	stats.TotalProcessed++

	result, err := s.parser.Parse(ctx, parser.Input{
		ID: msg.ID, ChannelID: msg.ChannelID, MessageID: msg.MessageID,
		Timestamp: msg.Timestamp, Text: msg.Text, Author: msg.Author,
	})
	if err != nil {
		stats.FailedParses++
		stats.Errors = append(stats.Errors, err.Error())
		s.markProcessed(ctx, msg.ID, false, stats)
		obsmetrics.MessagesParsed.WithLabelValues(obsmetrics.OutcomeFailure).Inc()
		return
	}

	if !result.Success {
		stats.FailedParses++
		if result.Error == nonTradingError {
			stats.NonTrading++
		} else {
			stats.Errors = append(stats.Errors, result.Error)
		}
		s.markProcessed(ctx, msg.ID, false, stats)
		obsmetrics.MessagesParsed.WithLabelValues(obsmetrics.OutcomeFailure).Inc()
		return
	}

	result.Signal.RawMessageID = msg.ID
	signalID, err := s.messages.SaveSignal(ctx, result.Signal)
	if err != nil {
		stats.FailedParses++
		stats.Errors = append(stats.Errors, err.Error())
		s.markProcessed(ctx, msg.ID, false, stats)
		obsmetrics.MessagesParsed.WithLabelValues(obsmetrics.OutcomeFailure).Inc()
		return
	}

	stats.SuccessfulParses++
	stats.Trading++
	s.markProcessed(ctx, msg.ID, true, stats)
	obsmetrics.MessagesParsed.WithLabelValues(obsmetrics.OutcomeSuccess).Inc()

	if s.detector == nil {
		return
	}
	if _, err := s.detector.CheckNewSignal(ctx, signalID); err != nil {
		log.Warn().Err(err).Str("signal_id", signalID).Msg("detector failed for new signal")
	}
}

func (s *Service) markProcessed(ctx context.Context, id int64, success bool, stats *Stats) {
	if err := s.messages.MarkMessageProcessed(ctx, id, success); err != nil {
		stats.Errors = append(stats.Errors, err.Error())
	}
}

// FullReparse optionally wipes every existing signal, signal result, and
// processed-flag before replaying the batch flow, used to re-derive
// signals after a pattern-set change.
func (s *Service) FullReparse(ctx context.Context, force bool) (Stats, error) {
	if force {
		if err := s.messages.DeleteAllSignals(ctx); err != nil {
			return Stats{}, err
		}
		if err := s.messages.DeleteAllSignalResults(ctx); err != nil {
			return Stats{}, err
		}
		if err := s.messages.ResetMessageProcessed(ctx); err != nil {
			return Stats{}, err
		}
		log.Info().Msg("full reparse: cleared signals, results, and processed flags")
	}
	return s.ParseAllUnprocessed(ctx, 0)
}
