package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/events"
)

const (
	exchangeKind = "topic"
	// redialInterval spaces dial attempts after a failed one.
	redialInterval = time.Second
)

var errBrokerUnavailable = errors.New("rabbitmq unavailable, waiting to redial")

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// amqpSession is one connection plus the channel publishing on it.
type amqpSession struct {
	conn    io.Closer
	channel publisher
}

func (s *amqpSession) close() {
	_ = s.channel.Close()
	_ = s.conn.Close()
}

type dialFunc func(url, exchange string, logger *zap.Logger) (*amqpSession, error)

// AMQPSink publishes events to a RabbitMQ topic exchange keyed by
// ticket.<kind>. A dropped connection is redialled on the next delivery.
type AMQPSink struct {
	url      string
	exchange string
	logger   *zap.Logger
	dial     dialFunc
	now      func() time.Time

	mu         sync.Mutex
	session    *amqpSession
	failedDial time.Time
}

// NewAMQPSink dials url and declares a durable topic exchange. The first
// dial must succeed.
func NewAMQPSink(url, exchange string, logger *zap.Logger) (*AMQPSink, error) {
	return newAMQPSink(url, exchange, logger, dialSession, time.Now)
}

func newAMQPSink(url, exchange string, logger *zap.Logger, dial dialFunc, now func() time.Time) (*AMQPSink, error) {
	s := &AMQPSink{url: url, exchange: exchange, logger: logger, dial: dial, now: now}
	session, err := dial(url, exchange, logger)
	if err != nil {
		return nil, err
	}
	s.session = session
	return s, nil
}

func dialSession(url, exchange string, logger *zap.Logger) (*amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if reason, ok := <-closed; ok && reason != nil {
			logger.Warn("rabbitmq connection lost", zap.String("reason", reason.Reason), zap.Int("code", reason.Code))
		}
	}()

	return &amqpSession{conn: conn, channel: ch}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

// Deliver publishes one event. Channels are not safe for concurrent
// publishing, so deliveries share a lock. A publish that fails on a closed
// channel is retried once on a fresh session.
func (s *AMQPSink) Deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Body:         body,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; ; attempt++ {
		session, err := s.ensureSession()
		if err != nil {
			return err
		}
		err = session.channel.PublishWithContext(ctx, s.exchange, event.RoutingKey(), false, false, msg)
		if err == nil {
			return nil
		}
		if !session.channel.IsClosed() && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("publish message: %w", err)
		}
		s.drop()
		if attempt > 0 {
			return fmt.Errorf("publish message: %w", err)
		}
	}
}

// ensureSession returns a live session. After a failed dial it waits
// redialInterval before dialling again. Callers hold s.mu.
func (s *AMQPSink) ensureSession() (*amqpSession, error) {
	if s.session != nil && !s.session.channel.IsClosed() {
		return s.session, nil
	}
	s.drop()

	now := s.now()
	if !s.failedDial.IsZero() && now.Sub(s.failedDial) < redialInterval {
		return nil, errBrokerUnavailable
	}
	session, err := s.dial(s.url, s.exchange, s.logger)
	if err != nil {
		s.failedDial = now
		return nil, err
	}
	s.failedDial = time.Time{}
	s.logger.Info("rabbitmq session re-established", zap.String("exchange", s.exchange))
	s.session = session
	return session, nil
}

func (s *AMQPSink) drop() {
	if s.session != nil {
		s.session.close()
		s.session = nil
	}
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop()
}
