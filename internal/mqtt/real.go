package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/webhouse/internal/logger"
	"github.com/sweeney/webhouse/internal/protocol"
)

// BufferSize is how many messages the outbox holds while the broker is unreachable.
const BufferSize = 256

var errPublishTimeout = errors.New("publish timeout")

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected wait in an outbox and are replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics

	mu            sync.Mutex
	buffer        *outbox
	connected     bool
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is established in the background and retried until Close.
func NewRealPublisher(broker, clientID, baseTopic string) (*RealPublisher, error) {
	if broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	topics := NewTopics(baseTopic)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	p := newPublisher(nil, topics)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()

	return p, nil
}

func newPublisher(client paho.Client, topics Topics) *RealPublisher {
	return &RealPublisher{
		client: client,
		topics: topics,
		buffer: newOutbox(BufferSize),
	}
}

// Mirror publishes changed telemetry at QoS 0, retained so a new subscriber
// sees the last known values.
func (p *RealPublisher) Mirror(_ context.Context, at time.Time, t protocol.Telemetry) error {
	payload, err := FormatPayload(at, t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Telemetry, payload: payload, retained: true, latestOnly: true})
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns how many messages are waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("%s: %w", msg.topic, errPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect(paho.Client) {
	ctx := context.Background()

	p.mu.Lock()
	reconnected := p.everConnected
	p.connected = true
	p.everConnected = true
	pending := p.buffer.drain()
	p.mu.Unlock()

	if reconnected {
		logger.Infof(ctx, "mqtt: reconnected, replaying %d buffered messages", len(pending))
	} else {
		logger.Infof(ctx, "mqtt: connected")
	}

	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			logger.Warnf(ctx, "mqtt: replay: %v", err)
		}
	}

	if reconnected {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			logger.Warnf(ctx, "mqtt: publish reconnect event: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	logger.Warnf(context.Background(), "mqtt: connection lost: %v", err)
}
