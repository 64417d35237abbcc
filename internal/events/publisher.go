// Package events publishes transaction lifecycle events to NATS so other
// services (accounting, notification) can react without polling the chain.
package events

import (
	"encoding/json"
	"time"

	"wallet-backend/internal/config"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const defaultSubject = "wallet.tx.broadcast"

// TransactionEvent describes a transaction the engine signed and broadcast.
type TransactionEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"` // swap, approve
	TxHash     string    `json:"tx_hash"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Route      []string  `json:"route,omitempty"`
	Commission string    `json:"commission"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher pushes transaction events to NATS. A nil Publisher is valid and
// drops every event, so callers never need to branch on whether eventing is
// configured.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

// NewPublisher connects to NATS. Returns (nil, nil) when no URL is
// configured; eventing is optional.
func NewPublisher(cfg *config.NATSConfig, logger *logrus.Logger) (*Publisher, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}

	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}

	logger.WithFields(logrus.Fields{
		"url":     cfg.URL,
		"subject": subject,
	}).Info("nats event publisher connected")

	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishTransaction emits a broadcast event. Failures are logged, not
// surfaced: eventing must never fail a transaction that is already on chain.
func (p *Publisher) PublishTransaction(evt *TransactionEvent) {
	if p == nil {
		return
	}

	evt.ID = uuid.New().String()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.WithError(err).Warn("failed to marshal transaction event")
		return
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject": p.subject,
			"tx_hash": evt.TxHash,
			"error":   err.Error(),
		}).Warn("failed to publish transaction event")
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
