package mymqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
)

const PRIVATE_PORT = 1883

const PUBLIC_PORT = 8883

const DEFAULT_TIMEOUT = 14 * time.Second

var ErrMissingUsername = errors.New("missing MQTT username")

type Options struct {
	// Host is a hostname or IP address; empty means lookup over mDNS
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	// Timeout bounds connection and publication, 0 means DEFAULT_TIMEOUT
	Timeout     time.Duration
	MdnsTimeout time.Duration
	ClientId    string
}

// Message is a message received on a subscribed topic.
type Message struct {
	Topic    string `json:"topic"`
	Payload  []byte `json:"payload"`
	Retained bool   `json:"retained"`
}

type Handler func(msg Message)

type Client struct {
	Id        string      // MQTT client_id (this client)
	mqtt      mqtt.Client // MQTT stack
	brokerUrl *url.URL    // MQTT broker to connect to
	log       logr.Logger
	timeout   time.Duration

	mu            sync.Mutex
	subscriptions map[string]Handler
}

func defaultClientId() string {
	return fmt.Sprintf("%v%v", path.Base(os.Args[0]), os.Getpid())
}

// NewClientE resolves the broker and prepares a client; Connect must be called before use.
func NewClientE(ctx context.Context, log logr.Logger, options Options) (*Client, error) {
	if options.Username == "" && options.Password != "" {
		return nil, ErrMissingUsername
	}
	if options.ClientId == "" {
		options.ClientId = defaultClientId()
	}
	if options.Timeout <= 0 {
		options.Timeout = DEFAULT_TIMEOUT
	}
	log = log.WithName("MqttClient")
	log.Info("Initializing MQTT client", "client_id", options.ClientId)

	brokerUrl, err := lookupBroker(ctx, log, options)
	if err != nil {
		log.Error(err, "Could not find MQTT broker", "host", options.Host)
		return nil, err
	}
	log.Info("Using MQTT broker", "url", brokerUrl)

	c := &Client{
		Id:            options.ClientId,
		brokerUrl:     brokerUrl,
		log:           log,
		timeout:       options.Timeout,
		subscriptions: make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerUrl.String())
	opts.SetClientID(options.ClientId)
	if options.Username != "" {
		opts.SetUsername(options.Username)
		opts.SetPassword(options.Password)
	}
	if options.TLS {
		opts.SetTLSConfig(&tls.Config{ServerName: brokerUrl.Hostname()})
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(3 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error(err, "MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Info("Reconnecting to MQTT broker", "url", brokerUrl)
	})
	c.mqtt = mqtt.NewClient(opts)

	log.Info("MQTT client initialized", "client_id", options.ClientId)
	return c, nil
}

// Connect waits until the client is connected, the timeout elapsed or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	if c.mqtt.IsConnectionOpen() {
		return nil
	}
	c.log.Info("Connecting to MQTT broker", "url", c.brokerUrl)
	token := c.mqtt.Connect()
	deadline := time.Now().Add(c.timeout)
	for !token.WaitTimeout(3 * time.Second) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			c.mqtt.Disconnect(0)
			return fmt.Errorf("timed out connecting to MQTT broker %s after %v", c.brokerUrl, c.timeout)
		}
		c.log.Info("MQTT client trying to connect", "client_id", c.Id)
	}
	if err := token.Error(); err != nil {
		c.log.Error(err, "MQTT client failed to connect", "client_id", c.Id)
		return err
	}
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info("Connected to MQTT broker", "url", c.brokerUrl, "client_id", c.Id)
	c.mu.Lock()
	subscriptions := make(map[string]Handler, len(c.subscriptions))
	for topic, handler := range c.subscriptions {
		subscriptions[topic] = handler
	}
	c.mu.Unlock()

	// The session is clean: subscriptions are renewed on every connection.
	// Waiting for the tokens would block paho's connection routine.
	for topic, handler := range subscriptions {
		c.log.Info("Subscribing to MQTT topic", "topic", topic)
		client.Subscribe(topic, 0, c.dispatch(handler))
	}
}

func (c *Client) dispatch(handler Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		handler(Message{
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			Retained: msg.Retained(),
		})
	}
}

// Subscribe registers handler for topic. The subscription is renewed on every
// (re)connection. Handlers are called sequentially and must not block.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) error {
	c.mu.Lock()
	c.subscriptions[topic] = handler
	c.mu.Unlock()

	if !c.mqtt.IsConnectionOpen() {
		return nil
	}
	c.log.Info("Subscribing to MQTT topic", "topic", topic)
	return c.wait(ctx, c.mqtt.Subscribe(topic, 0, c.dispatch(handler)))
}

func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()

	c.log.Info("Unsubscribing", "topic", topic)
	return c.wait(ctx, c.mqtt.Unsubscribe(topic))
}

// Publish sends payload at QoS 0 and waits until it is handed over to the network.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.log.V(1).Info("Publishing", "topic", topic, "payload", string(payload), "retain", retain)
	if err := c.wait(ctx, c.mqtt.Publish(topic, 0, retain, payload)); err != nil {
		return fmt.Errorf("failed to publish MQTT message on topic %s: %w", topic, err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("MQTT operation timed out after %v", c.timeout)
	}
}

// IsConnected reports whether the connection to the broker is up. Unlike
// paho's IsConnected, it is false while paho is (re)connecting.
func (c *Client) IsConnected() bool {
	return c.mqtt.IsConnectionOpen()
}

func (c *Client) BrokerUrl() *url.URL {
	return c.brokerUrl
}

// Close disconnects, also stopping any pending reconnection.
func (c *Client) Close() {
	if c.mqtt.IsConnected() {
		c.log.Info("Disconnecting from MQTT broker")
		c.mqtt.Disconnect(250 /* milliseconds */)
	}
}
