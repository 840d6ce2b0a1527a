package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/command"
)

const (
	qos              = 1
	subscribeTimeout = 5 * time.Second
	eventBuffer      = 32
)

// Client is a paho-backed transport.
type Client struct {
	client paho.Client
	cfg    Config
	events chan command.Event
}

// NewClient connects to the broker. An unreachable broker is not fatal; paho keeps
// retrying in the background and subscriptions are made on every connect.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}
	c := &Client{
		cfg:    cfg,
		events: make(chan command.Event, eventBuffer),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "zone-heater"
	}
	clientID += "-" + uuid.NewString()[:8]

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn().Str("broker", cfg.Broker).Msg("MQTT broker not reachable yet, retrying in background")
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *Client) onConnect(client paho.Client) {
	filters := make(map[string]byte)
	for _, t := range CommandTopics(c.cfg.BasePath) {
		filters[t] = qos
	}

	token := client.SubscribeMultiple(filters, c.handle)
	if !token.WaitTimeout(subscribeTimeout) {
		log.Error().Msg("MQTT subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Msg("MQTT subscribe failed")
		return
	}
	log.Info().Str("broker", c.cfg.Broker).Int("topics", len(filters)).Msg("MQTT connected and subscribed")
}

func (c *Client) handle(_ paho.Client, msg paho.Message) {
	suffix, ok := CommandSuffix(c.cfg.BasePath, msg.Topic())
	if !ok {
		return
	}
	ev := command.Event{Topic: suffix, Value: DecodePayload(msg.Payload())}

	log.Debug().Str("topic", msg.Topic()).Str("value", ev.Value.String()).Msg("MQTT command received")

	select {
	case c.events <- ev:
	default:
		log.Warn().Str("topic", suffix).Msg("Command queue full, dropping")
	}
}

// Events delivers decoded inbound commands.
func (c *Client) Events() <-chan command.Event {
	return c.events
}

// Publish sends a retained value under W/<base>/<path>. It waits for the broker only
// until ctx is done.
func (c *Client) Publish(ctx context.Context, path, value string) error {
	return c.publish(ctx, PublishTopic(c.cfg.BasePath, path), []byte(value))
}

// Keepalive asks the supervisor to keep forwarding the command paths.
func (c *Client) Keepalive(ctx context.Context) error {
	return c.publish(ctx, KeepaliveTopic(c.cfg.SystemID), KeepalivePayload(c.cfg.BasePath, c.cfg.SystemID))
}

func (c *Client) publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return waitToken(ctx, topic, c.client.Publish(topic, qos, true, payload))
}

// waitToken blocks until the broker acknowledges or ctx is done. An abandoned publish
// may still be delivered later; the value is retained so a resend is harmless.
func waitToken(ctx context.Context, topic string, token paho.Token) error {
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether the broker link is up.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) Close() error {
	c.client.Disconnect(1000)
	return nil
}
