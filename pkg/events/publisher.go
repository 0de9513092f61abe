package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event names emitted by the service.
const (
	BatchPrepared     = "batch.prepared"
	EvidencePrepared  = "evidence.prepared"
	EvidenceInitiated = "evidence.initiated"
	EvidenceStarted   = "evidence.started"
)

// Event is the wire shape published to the broker.
type Event struct {
	Name     string         `json:"name"`
	PrjID    string         `json:"prj_id,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	At       int64          `json:"at"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Publisher fans service events out to interested consumers. A nil
// *AMQPPublisher is valid and drops events, so the broker stays optional.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQPPublisher publishes JSON events on a topic exchange, routing key =
// event name.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = "assessd.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, ev.Name, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ Publisher = (*AMQPPublisher)(nil)
