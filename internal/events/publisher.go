package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"landed-cost-service/internal/models"
)

const subjectCalculationCompleted = "landedcost.calculation.completed"

// CalculationCompletedEvent is the message published after every
// successful calculation run
type CalculationCompletedEvent struct {
	ShipmentID    uuid.UUID `json:"shipmentId"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency,omitempty"`
	LandedTotal   string    `json:"landedTotal,omitempty"`
	EngineVersion string    `json:"engineVersion"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher emits calculation events over NATS. Publishing is
// fire-and-forget: failures are logged, never returned.
type Publisher struct {
	nc  *nats.Conn
	log *logrus.Entry
}

func NewPublisher(natsURL string, log *logrus.Logger) (*Publisher, error) {
	entry := log.WithField("component", "event_publisher")
	nc, err := nats.Connect(natsURL,
		nats.Name("landed-cost-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			entry.WithError(err).Warn("nats disconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			entry.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{nc: nc, log: entry}, nil
}

func (p *Publisher) CalculationCompleted(ctx context.Context, shipmentID uuid.UUID, result *models.CalculationResult) {
	event := CalculationCompletedEvent{
		ShipmentID:    shipmentID,
		Status:        result.Status,
		Currency:      result.Currency,
		EngineVersion: result.EngineVersion,
		OccurredAt:    time.Now().UTC(),
	}
	if result.Breakdown != nil {
		event.LandedTotal = result.Breakdown.LandedCostTotal.String()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("marshal calculation event")
		return
	}
	if err := p.nc.Publish(subjectCalculationCompleted, payload); err != nil {
		p.log.WithError(err).WithField("shipment_id", shipmentID).Warn("publish calculation event failed")
	}
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}
