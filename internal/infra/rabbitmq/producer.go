package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/infra/mq"
)

const reconnectDelay = 5 * time.Second

var (
	ErrClosed       = errors.New("rabbitmq: producer closed")
	ErrNotConnected = errors.New("rabbitmq: not connected")
)

// RabbitMQProducer publishes to a topic exchange. The connection is made
// lazily in the background and re-established when the broker drops it.
type RabbitMQProducer struct {
	cfg    config.RabbitMQConfig
	url    string
	logger *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	isClosed bool

	reconnectC chan struct{}
	done       chan struct{}
}

var _ mq.Producer = (*RabbitMQProducer)(nil)

func NewRabbitMQProducer(cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQProducer, error) {
	connURL, err := BuildURL(cfg.URL, cfg.VirtualHost)
	if err != nil {
		return nil, err
	}
	p := &RabbitMQProducer{
		cfg:        cfg,
		url:        connURL,
		logger:     logger,
		reconnectC: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	go p.handleReconnect()
	p.signalReconnect()
	return p, nil
}

// BuildURL puts vhost into the path of an AMQP URL, replacing any vhost the
// URL already carries. A leading "/" of the vhost is escaped as %2f.
func BuildURL(rawURL, vhost string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("rabbitmq: invalid url: %w", err)
	}
	if vhost == "" {
		return rawURL, nil
	}
	u.Path = "/" + vhost
	u.RawPath = "/" + url.PathEscape(vhost)
	if strings.HasPrefix(vhost, "/") {
		u.RawPath = "/%2f" + url.PathEscape(vhost[1:])
	}
	return u.String(), nil
}

func maskURL(raw string) string {
	if u, err := amqp.ParseURI(raw); err == nil {
		u.Password = "******"
		return u.String()
	}
	return raw
}

func (p *RabbitMQProducer) connect() error {
	p.logger.Debug("Connecting to RabbitMQ", zap.String("url", maskURL(p.url)))
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := p.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		ch.Close()
		conn.Close()
		return ErrClosed
	}
	p.conn, p.ch = conn, ch
	p.mu.Unlock()

	go func() {
		if amqpErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1)); ok {
			p.logger.Warn("RabbitMQ connection lost", zap.String("reason", amqpErr.Reason))
			p.signalReconnect()
		}
	}()

	p.logger.Info("Connected to RabbitMQ", zap.String("url", maskURL(p.url)), zap.String("exchange", p.cfg.Exchange))
	return nil
}

// declare 声明 topic 交换机; 配置了队列时同时声明并绑定
func (p *RabbitMQProducer) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.cfg.Exchange, err)
	}
	if p.cfg.QueueName == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(p.cfg.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.cfg.QueueName, err)
	}
	if err := ch.QueueBind(p.cfg.QueueName, p.cfg.RoutingKey, p.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", p.cfg.QueueName, err)
	}
	return nil
}

func (p *RabbitMQProducer) signalReconnect() {
	select {
	case p.reconnectC <- struct{}{}:
	default:
	}
}

func (p *RabbitMQProducer) handleReconnect() {
	for {
		select {
		case <-p.done:
			return
		case <-p.reconnectC:
		}
		for {
			err := p.connect()
			if err == nil || errors.Is(err, ErrClosed) {
				break
			}
			p.logger.Error("Failed to connect to RabbitMQ, retrying", zap.Error(err), zap.Duration("delay", reconnectDelay))
			select {
			case <-p.done:
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

// Produce publishes one payload. key (the robot name) is appended to the
// configured routing key so consumers can bind per robot.
func (p *RabbitMQProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return ErrClosed
	}
	ch := p.ch
	p.mu.Unlock()

	if ch == nil || ch.IsClosed() {
		p.signalReconnect()
		return ErrNotConnected
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal payload: %w", err)
	}

	routingKey := RoutingKey(p.cfg.RoutingKey, key)
	err = ch.PublishWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        topic,
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	p.logger.Debug("Published message to RabbitMQ", zap.String("exchange", p.cfg.Exchange), zap.String("routing_key", routingKey))
	return nil
}

// RoutingKey joins the base routing key and a robot name into a dotted
// key, e.g. "esc.frame.colossal_avian".
func RoutingKey(base, robot string) string {
	if robot == "" {
		return base
	}
	seg := strings.ToLower(strings.NewReplacer(" ", "_", ".", "_", "*", "_", "#", "_").Replace(robot))
	if base == "" {
		return seg
	}
	return base + "." + seg
}

func (p *RabbitMQProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	p.isClosed = true
	close(p.done)
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
