// Package mqtt provides the single broker connection used for topic subscriptions.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ibs-source/mqtt-router/internal/config"
	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/subscription"
)

var (
	// ErrSubscribeRejected is returned when the broker refuses a subscription.
	ErrSubscribeRejected = errors.New("subscription rejected by broker")
	// ErrConnectionRefused is returned when the broker refuses the connection.
	ErrConnectionRefused = errors.New("connection refused by broker")
)

// subackFailure is the SUBACK return code for a refused filter.
const subackFailure = 0x80

// Handler receives every inbound message.
type Handler func(topic string, payload []byte)

// Client is a paho connection implementing subscription.Broker.
type Client struct {
	client            mqtt.Client
	qos               byte
	disconnectTimeout uint
	listener          subscription.Listener
	mu                sync.RWMutex
	log               *log.Logger
}

// NewClient builds an MQTT client. It does not connect; call Connect.
// handler is called for every message on any subscribed pattern.
func NewClient(cfg *config.MQTTConfig, handler Handler, logger *log.Logger) (*Client, error) {
	c := &Client{
		qos:               cfg.QoS,
		disconnectTimeout: cfg.DisconnectTimeout,
		log:               logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(instanceClientID(cfg.ClientID))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.ConnectRetryInterval)

	// Subscriptions are owned by the subscription manager, which
	// replays the routing table on every new session.
	opts.SetCleanSession(true)
	opts.SetResumeSubs(false)
	opts.SetOrderMatters(false)

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost: %v", err)
		if l := c.getListener(); l != nil {
			l.Disconnected(err)
		}
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
		if l := c.getListener(); l != nil {
			l.Connecting()
		}
	})

	opts.SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
		logger.Debug("MQTT connection attempt to %s", broker.Host)
		return tlsCfg
	})

	// paho runs this in its own goroutine, so the listener may block on subscribes.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected successfully")
		if l := c.getListener(); l != nil {
			l.Connected()
		}
	})

	// Configure TLS if enabled
	if cfg.TLSEnabled {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// instanceClientID suffixes the configured client ID with host and pid so
// that two router instances sharing a config do not evict each other.
func instanceClientID(base string) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", base, hostname, os.Getpid())
}

// newTLSConfig creates a TLS configuration from MQTT config
func newTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		// Note: Enabling InsecureSkipVerify weakens TLS security and should only be used for testing.
		InsecureSkipVerify: cfg.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	// Load CA certificate if provided
	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	// Load client certificate and key if provided
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// SetListener registers the receiver of connection events.
func (c *Client) SetListener(l subscription.Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *Client) getListener() subscription.Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listener
}

// Connect starts the connection. paho keeps retrying in the background, so
// this returns once connected, when the broker refuses, or when ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if err := wait(ctx, token); err != nil {
		return err
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}
	return nil
}

// Subscribe subscribes to a topic filter. Messages reach the default handler.
func (c *Client) Subscribe(ctx context.Context, pattern string) error {
	token := c.client.Subscribe(pattern, c.qos, nil)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", pattern, err)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	if st, ok := token.(*mqtt.SubscribeToken); ok {
		if code, ok := st.Result()[pattern]; ok && code == subackFailure {
			return fmt.Errorf("%w: %s", ErrSubscribeRejected, pattern)
		}
	}
	return nil
}

// Unsubscribe removes a topic filter.
func (c *Client) Unsubscribe(ctx context.Context, pattern string) error {
	token := c.client.Unsubscribe(pattern)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("mqtt unsubscribe %s: %w", pattern, err)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", pattern, err)
	}
	return nil
}

// wait blocks until the token completes or ctx ends.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether the session is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close disconnects from the MQTT broker and stops reconnect attempts.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Disconnect(c.disconnectTimeout)
	}
	return nil
}

var _ subscription.Broker = (*Client)(nil)
