package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roadstream/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTNotifier publishes events to a broker topic.
type MQTTNotifier struct {
	broker string
	topic  string
	client mqtt.Client
	logger *logger.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// MQTTStats is a snapshot of publish counters.
type MQTTStats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// NewMQTTNotifier returns an unconnected notifier for broker (host:port).
func NewMQTTNotifier(broker, topic string, log *logger.Logger) *MQTTNotifier {
	return &MQTTNotifier{broker: broker, topic: topic, logger: log}
}

// Connect dials the broker with automatic reconnection.
func (n *MQTTNotifier) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", n.broker))
	opts.SetClientID("roadstream-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		n.logger.Info("MQTT connection established: %s", n.broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		n.logger.Warning("MQTT connection lost, will auto-reconnect: %v", err)
	}

	n.client = mqtt.NewClient(opts)
	token := n.client.Connect()

	deadline := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	if !token.WaitTimeout(deadline) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	n.setConnected(true)
	return nil
}

// Notify publishes ev in the background.
func (n *MQTTNotifier) Notify(_ context.Context, ev Event) {
	if !n.isConnected() {
		n.countError()
		return
	}
	payload, err := ev.JSON()
	if err != nil {
		n.countError()
		n.logger.Error("Failed to marshal alert %s: %v", ev.ID, err)
		return
	}

	token := n.client.Publish(n.topic, 1, false, payload)
	go func() {
		if !token.WaitTimeout(2 * time.Second) {
			n.countError()
			n.logger.Warning("MQTT publish of alert %s timed out", ev.ID)
			return
		}
		if err := token.Error(); err != nil {
			n.countError()
			n.logger.Warning("MQTT publish of alert %s failed: %v", ev.ID, err)
			return
		}
		n.mu.Lock()
		n.published++
		n.mu.Unlock()
	}()
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() error {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		n.logger.Info("MQTT disconnected")
	}
	n.setConnected(false)
	return nil
}

// Stats returns the publish counters.
func (n *MQTTNotifier) Stats() MQTTStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return MQTTStats{Connected: n.connected, Published: n.published, Errors: n.errors}
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}
