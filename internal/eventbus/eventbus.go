// Package eventbus publishes ConsensusEvents onto NATS for downstream
// subscribers (dashboards, external bots), one subject per ticker under
// consensus.events.<ticker>. Connection handling and reconnect policy
// follow internal/orchestrator/messagebus.go's MessageBus.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const subjectPrefix = "consensus.events."

// Subject returns the NATS subject a ConsensusEvent for ticker publishes
// on, exported so callers can subscribe without importing nats.go directly.
func Subject(ticker string) string {
	return subjectPrefix + ticker
}

// Config configures a Publisher's NATS connection.
type Config struct {
	URL string
}

// DefaultConfig returns the conventional local NATS URL, mirroring
// MessageBusConfig's default.
func DefaultConfig() Config {
	return Config{URL: nats.DefaultURL}
}

// Publisher publishes ConsensusEvents to NATS.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher connects to NATS with infinite reconnects, the same
// resilience policy MessageBus uses for agent-to-agent messaging.
func NewPublisher(cfg Config) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("consensus-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("eventbus: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("eventbus: nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to nats: %w", err)
	}
	log.Info().Str("url", cfg.URL).Msg("eventbus publisher initialized")
	return &Publisher{nc: nc}, nil
}

// Publish sends ev as JSON on consensus.events.<ticker>. Errors are
// returned to the caller: unlike internal/notify's best-effort alerts, a
// bus publish failure is surfaced so the Detector can log it distinctly.
func (p *Publisher) Publish(ev types.ConsensusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal consensus event: %w", err)
	}
	subject := Subject(ev.Ticker)
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("eventbus: publish to %s: %w", subject, err)
	}
	log.Debug().Str("subject", subject).Str("event_id", ev.ID).Msg("eventbus: published consensus event")
	return nil
}

// Close closes the underlying NATS connection without draining it.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
