package mqtt

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ibs-source/mqtt-router/internal/config"
	"github.com/ibs-source/mqtt-router/internal/log"
)

// setupIntegrationConfig returns a config for the broker named by
// MQTT_TEST_BROKER, skipping the test when it is not set.
func setupIntegrationConfig(t *testing.T) *config.MQTTConfig {
	t.Helper()

	broker := os.Getenv("MQTT_TEST_BROKER")
	if broker == "" || testing.Short() {
		t.Skip("MQTT_TEST_BROKER not set, skipping integration test")
	}

	return &config.MQTTConfig{
		Broker:               broker,
		ClientID:             "integration-test-client",
		QoS:                  1,
		KeepAlive:            30 * time.Second,
		ConnectTimeout:       5 * time.Second,
		ConnectRetryInterval: time.Second,
		MaxReconnectInterval: 5 * time.Second,
		SubscribeTimeout:     5 * time.Second,
		DisconnectTimeout:    250,
	}
}

type eventRecorder struct {
	connected chan struct{}
	once      sync.Once
}

func (r *eventRecorder) Connecting()        {}
func (r *eventRecorder) Disconnected(error) {}
func (r *eventRecorder) Connected()         { r.once.Do(func() { close(r.connected) }) }

// TestIntegration_SubscribeReceives connects, subscribes to a wildcard and
// publishes through the same session.
func TestIntegration_SubscribeReceives(t *testing.T) {
	cfg := setupIntegrationConfig(t)

	received := make(chan string, 1)
	client, err := NewClient(cfg, func(topic string, _ []byte) {
		select {
		case received <- topic:
		default:
		}
	}, log.New())
	if err != nil {
		t.Fatalf("Failed to create MQTT client: %v", err)
	}
	defer func() { _ = client.Close() }()

	rec := &eventRecorder{connected: make(chan struct{})}
	client.SetListener(rec)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	select {
	case <-rec.connected:
	case <-ctx.Done():
		t.Fatal("listener never saw Connected")
	}

	if err := client.Subscribe(ctx, "mqtt-router-it/+/temp"); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	token := client.client.Publish("mqtt-router-it/1/temp", 1, false, []byte(`{"v":1}`))
	if err := wait(ctx, token); err != nil || token.Error() != nil {
		t.Fatalf("Failed to publish: %v %v", err, token.Error())
	}

	select {
	case topic := <-received:
		if topic != "mqtt-router-it/1/temp" {
			t.Errorf("topic = %s", topic)
		}
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}

	if err := client.Unsubscribe(ctx, "mqtt-router-it/+/temp"); err != nil {
		t.Errorf("Failed to unsubscribe: %v", err)
	}
}
