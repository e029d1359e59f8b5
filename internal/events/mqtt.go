package events

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 500 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	QoS         byte
}

// mqttClient is the subset of pahomqtt.Client the publisher uses.
type mqttClient interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes JSON envelopes to an MQTT broker. Device records are
// retained so late subscribers see the known receivers.
type MQTTPublisher struct {
	client mqttClient
	prefix string
	qos    byte
	logger *slog.Logger
	now    func() time.Time
}

func buildClientOptions(cfg MQTTConfig, logger *slog.Logger) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt_connection_lost", slog.String("error", err.Error()))
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logger.Debug("mqtt_connected", slog.String("broker", cfg.Broker))
	})
	return opts
}

// ConnectMQTT dials the broker and waits for the first connection.
func ConnectMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.QoS > maxQoS {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}

	client := pahomqtt.NewClient(buildClientOptions(cfg, logger))
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return newMQTTPublisher(client, cfg, logger), nil
}

func newMQTTPublisher(client mqttClient, cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTPublisher{
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		logger: logger,
		now:    time.Now,
	}
}

func (p *MQTTPublisher) Publish(deviceID, kind string, payload any) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	body, err := encode(deviceID, kind, payload, p.now())
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublishFailed, kind, err)
	}

	topic := Topic(p.prefix, deviceID, kind)
	token := p.client.Publish(topic, p.qos, kind == "device", body)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	p.logger.Debug("mqtt_publish", slog.String("topic", topic), slog.Int("bytes", len(body)))
	return nil
}

func (p *MQTTPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*MQTTPublisher)(nil)
)
