package forwarder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/timzifer/influxpersist/config"
)

// Subscriber feeds readings published on <prefix>/<deviceRef>/value into a Forwarder.
type Subscriber struct {
	cfg       config.MQTTConfig
	forwarder *Forwarder
	logger    zerolog.Logger
	client    mqtt.Client
	ctx       context.Context
}

// NewSubscriber prepares a subscriber; Start connects it.
func NewSubscriber(cfg config.MQTTConfig, fwd *Forwarder, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		cfg:       cfg,
		forwarder: fwd,
		logger:    logger.With().Str("component", "mqtt").Logger(),
		ctx:       context.Background(),
	}
}

// Topic returns the subscription filter.
func (s *Subscriber) Topic() string {
	return strings.TrimSuffix(s.cfg.TopicPrefix, "/") + "/+/value"
}

// Start connects to the broker and subscribes on every (re)connect.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("mqtt connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := s.Topic()
		s.logger.Info().Str("topic", topic).Msg("mqtt connected")
		if token := c.Subscribe(topic, s.cfg.QoS, s.HandleMessage); token.Wait() && token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", topic).Msg("mqtt subscribe failed")
		}
	}

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect mqtt %s: %w", s.cfg.Broker, token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(500)
	}
}

// HandleMessage forwards one published reading. Malformed messages are logged and dropped.
func (s *Subscriber) HandleMessage(_ mqtt.Client, m mqtt.Message) {
	ref, ok := ParseTopic(s.cfg.TopicPrefix, m.Topic())
	if !ok {
		s.logger.Warn().Str("topic", m.Topic()).Msg("unexpected topic")
		return
	}
	reading := Reading{DeviceRefID: ref, Value: string(m.Payload()), Time: time.Now()}
	if _, err := s.forwarder.Forward(s.ctx, reading); err != nil {
		s.logger.Warn().Err(err).Str("topic", m.Topic()).Msg("forward reading")
	}
}

// ParseTopic extracts the device ref from <prefix>/<ref>/value.
func ParseTopic(prefix, topic string) (int, bool) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	if !strings.HasPrefix(topic, prefix) {
		return 0, false
	}
	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != 2 || parts[1] != "value" {
		return 0, false
	}
	ref, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	return ref, true
}
