// Package publish pushes report summaries to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/config"
	"github.com/yardstick/benchalign/internal/report"
	"github.com/yardstick/benchalign/internal/results"
)

const (
	DefaultTopicPrefix = "benchalign"
	defaultTimeout     = 5 * time.Second
	disconnectQuiesce  = 250
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: operation timed out")

type client interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is one retained publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher sends one retained message per report section plus the offsets.
type Publisher struct {
	client  client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "benchalign"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(timeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}

	return newPublisher(c, cfg.TopicPrefix, timeout, logger), nil
}

func newPublisher(c client, prefix string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{
		client:  c,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger.With("component", "mqtt"),
	}
}

type sectionPayload struct {
	GeneratedAt time.Time `json:"generated_at"`
	report.Section
}

type offsetsPayload struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Offsets     []align.Entry `json:"offsets"`
}

// Messages renders rep into topic/payload pairs.
func (p *Publisher) Messages(rep *report.Report) ([]Message, error) {
	if rep == nil {
		return nil, nil
	}
	out := make([]Message, 0, len(rep.Sections)+1)

	payload, err := json.Marshal(offsetsPayload{GeneratedAt: rep.GeneratedAt, Offsets: rep.Offsets})
	if err != nil {
		return nil, fmt.Errorf("encode offsets: %w", err)
	}
	out = append(out, Message{Topic: p.prefix + "/offsets", Payload: payload})

	for _, section := range rep.Sections {
		payload, err := json.Marshal(sectionPayload{GeneratedAt: rep.GeneratedAt, Section: section})
		if err != nil {
			return nil, fmt.Errorf("encode section %s: %w", section.Column, err)
		}
		out = append(out, Message{Topic: p.prefix + "/" + section.Column, Payload: payload})
	}
	return out, nil
}

// Publish sends every message for rep, stopping at the first failure.
func (p *Publisher) Publish(rep *report.Report) error {
	messages, err := p.Messages(rep)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		token := p.client.Publish(msg.Topic, 1, true, msg.Payload)
		if !token.WaitTimeout(p.timeout) {
			return fmt.Errorf("publish %s: %w", msg.Topic, ErrTimeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Topic, err)
		}
	}
	p.logger.Info("report published", "topics", len(messages))
	return nil
}

// Follow publishes every snapshot the manager produces until ctx ends.
func (p *Publisher) Follow(ctx context.Context, manager *results.Manager) {
	updates, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := p.Publish(snapshot.Report); err != nil {
				p.logger.Warn("publish failed", "sequence", snapshot.Sequence, "err", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}
