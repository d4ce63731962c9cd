package events

import (
	"encoding/json"
	"time"

	"telecare/internal/logger"
	"telecare/pkg"

	"github.com/streadway/amqp"
)

// ConnectionExchange is the fanout exchange connection lifecycle events are
// published on.
const ConnectionExchange = "doctor-patient-connections"

// Publisher abstracts the broker so the emitter can be tested without one.
type Publisher interface {
	Publish(exchange string, body []byte) error
}

// AMQPPublisher publishes to RabbitMQ.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher connects to RabbitMQ at the given URL.
func NewAMQPPublisher(amqpURL string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

// Publish publishes a message to the given fanout exchange.
func (p *AMQPPublisher) Publish(exchange string, body []byte) error {
	err := p.channel.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	return p.channel.Publish(
		exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Close closes the RabbitMQ connection and channel.
func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// ConnectionEvent is the payload other services receive when a
// doctor-patient connection changes.
type ConnectionEvent struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id"`
	PatientID    string    `json:"patient_id"`
	DoctorID     string    `json:"doctor_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Emitter publishes connection lifecycle events. A nil Publisher makes
// every emit a no-op, so binaries without a broker configured just skip it.
type Emitter struct {
	pub Publisher
}

// NewEmitter wraps a publisher; pub may be nil.
func NewEmitter(pub Publisher) *Emitter {
	return &Emitter{pub: pub}
}

// ConnectionRequested announces a new pending connection.
func (e *Emitter) ConnectionRequested(c pkg.Connection) {
	e.emit("connection.requested", c)
}

// ConnectionAccepted announces a connection moving to connected.
func (e *Emitter) ConnectionAccepted(c pkg.Connection) {
	e.emit("connection.accepted", c)
}

func (e *Emitter) emit(eventType string, c pkg.Connection) {
	if e.pub == nil {
		return
	}
	body, err := json.Marshal(ConnectionEvent{
		Type:         eventType,
		ConnectionID: c.ID,
		PatientID:    c.PatientID,
		DoctorID:     c.DoctorID,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.pub.Publish(ConnectionExchange, body); err != nil {
		logger.For("events").WithError(err).WithField("type", eventType).
			Warn("event publish failed")
	}
}
