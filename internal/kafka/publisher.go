// Package kafka publishes completed risk calculation results to downstream
// consumers (limit monitors, reporting, archival).
package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

// Event types carried on the results topic
const (
	EventVaRCalculated        = "risk.var.calculated"
	EventMonteCarloCompleted  = "risk.montecarlo.completed"
	EventStressTestCompleted  = "risk.stress.completed"
	EventCorrelationCompleted = "risk.correlation.completed"
)

// Envelope wraps every published result with routing metadata
type Envelope struct {
	EventType   string      `json:"eventType"`
	PortfolioID string      `json:"portfolioId"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// Publisher writes risk results to a Kafka topic. Safe for concurrent use;
// Close flushes buffered messages.
type Publisher struct {
	writer *kafkago.Writer
	log    *logger.Logger
}

// NewPublisher creates a publisher for the given brokers and topic
func NewPublisher(brokers []string, topic string) *Publisher {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
	return &Publisher{
		writer: writer,
		log:    logger.GetLogger("kafka.publisher"),
	}
}

// PublishVaR publishes a completed VaR result
func (p *Publisher) PublishVaR(ctx context.Context, result *models.VaRResult) error {
	return p.publish(ctx, EventVaRCalculated, result.PortfolioID, result)
}

// PublishMonteCarlo publishes a completed simulation result
func (p *Publisher) PublishMonteCarlo(ctx context.Context, result *models.MonteCarloResult) error {
	return p.publish(ctx, EventMonteCarloCompleted, result.PortfolioID, result)
}

// PublishStressTest publishes a completed stress test result
func (p *Publisher) PublishStressTest(ctx context.Context, result *models.StressTestResult) error {
	return p.publish(ctx, EventStressTestCompleted, result.PortfolioID, result)
}

// PublishCorrelation publishes a completed correlation analysis
func (p *Publisher) PublishCorrelation(ctx context.Context, result *models.CorrelationAnalysisResult) error {
	return p.publish(ctx, EventCorrelationCompleted, result.PortfolioID, result)
}

// publish keys messages by portfolio ID so per-portfolio ordering is
// preserved across partitions
func (p *Publisher) publish(ctx context.Context, eventType, portfolioID string, payload interface{}) error {
	envelope := Envelope{
		EventType:   eventType,
		PortfolioID: portfolioID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrapf(err, "marshaling %s event", eventType)
	}

	msg := kafkago.Message{
		Key:   []byte(portfolioID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Errorf("failed to publish %s for portfolio %s: %v", eventType, portfolioID, err)
		return errors.Wrapf(err, "publishing %s event", eventType)
	}

	p.log.Debugf("published %s for portfolio %s (%d bytes)", eventType, portfolioID, len(value))
	return nil
}

// Close flushes and closes the underlying writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
