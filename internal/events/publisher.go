package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	subjectPrefix        = "creditline.events."
	connectionName       = "creditlined"
	reconnectWait        = 2 * time.Second
	maxReconnectAttempts = 10
)

// eventPayload is the wire form of a creditline.Event.
type eventPayload struct {
	Kind               string `json:"kind"`
	CreditHash         string `json:"credit_hash"`
	Borrower           string `json:"borrower"`
	ReceivableID       string `json:"receivable_id,omitempty"`
	Amount             int64  `json:"amount"`
	NextDueDateUnixUTC int64  `json:"next_due_date_unix_utc,omitempty"`
	OccurredUnixUTC    int64  `json:"occurred_unix_utc"`
}

// Publisher implements creditline.Notifier over NATS. Publishing is
// best-effort: failures are logged and never fail the operation that
// produced the event.
type Publisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials the NATS servers and returns a Publisher.
func Connect(servers string, logger *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(connectionName),
		nats.MaxReconnects(maxReconnectAttempts),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// Notify publishes the event as JSON on creditline.events.<kind>.
func (publisher *Publisher) Notify(ctx context.Context, event creditline.Event) {
	payload := eventPayload{
		Kind:               string(event.Kind),
		CreditHash:         event.CreditHash.String(),
		Borrower:           event.Borrower.String(),
		ReceivableID:       event.ReceivableID.String(),
		Amount:             event.Amount.Int64(),
		NextDueDateUnixUTC: event.NextDueDateUnixUTC,
		OccurredUnixUTC:    event.OccurredUnixUTC,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		publisher.logger.Error("event marshal failed", zap.String("kind", payload.Kind), zap.Error(err))
		return
	}
	if err := publisher.conn.Publish(subjectPrefix+payload.Kind, data); err != nil {
		publisher.logger.Error("event publish failed", zap.String("kind", payload.Kind), zap.Error(err))
	}
}

// Close drains the connection.
func (publisher *Publisher) Close() {
	if err := publisher.conn.Drain(); err != nil {
		publisher.logger.Warn("nats drain failed", zap.Error(err))
	}
}
