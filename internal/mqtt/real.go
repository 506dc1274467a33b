package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/tilt-volume/internal/state"
)

// DefaultBufferSize is how many system/volume messages are kept while offline.
const DefaultBufferSize = 256

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrNotConnected is returned for snapshots published while offline.
// Snapshots are not buffered; a newer one will follow.
var ErrNotConnected = errors.New("mqtt not connected")

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // empty = "tilt-volume-<uuid>"
	BufferSize int    // zero = DefaultBufferSize
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	log    *zap.Logger

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // set once the first connection succeeded
}

// NewRealPublisher creates a publisher for the given broker. If the broker is
// unreachable the client keeps retrying in the background and system/volume
// messages are buffered until it connects.
func NewRealPublisher(opts Options, log *zap.Logger) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: empty broker address")
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "tilt-volume-" + uuid.NewString()
	}

	p := &RealPublisher{
		log: log,
		buf: newRingBuffer(bufferSize(opts.BufferSize)),
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(WillPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn("mqtt broker not reachable yet, buffering", zap.String("broker", opts.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// newPublisher wraps an existing client. Used by tests.
func newPublisher(client paho.Client, bufSize int, log *zap.Logger) *RealPublisher {
	return &RealPublisher{client: client, log: log, buf: newRingBuffer(bufferSize(bufSize))}
}

func bufferSize(n int) int {
	if n <= 0 {
		return DefaultBufferSize
	}
	return n
}

// onConnect replays buffered messages. On reconnects it also announces
// RECONNECTED on the system topic.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buf.drainAll()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	p.log.Info("mqtt connected", zap.Int("replay", len(pending)), zap.Bool("reconnect", reconnect))

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		pending = append(pending, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: true})
	}

	// Replay runs on paho's callback goroutine; don't wait on tokens here.
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// PublishSnapshot sends a sensor snapshot. QoS 0, not retained, not buffered.
func (p *RealPublisher) PublishSnapshot(snap state.Snapshot) error {
	payload, err := FormatSnapshotPayload(snap)
	if err != nil {
		return fmt.Errorf("format snapshot payload: %w", err)
	}
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return p.send(TopicSnapshot, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should arrive
	return p.publishOrBuffer(TopicSystem, 1, event.Retained, payload)
}

// PublishVolume sends a volume raise command.
func (p *RealPublisher) PublishVolume(signal float64, at time.Time) error {
	payload, err := FormatVolumePayload(signal, at)
	if err != nil {
		return fmt.Errorf("format volume payload: %w", err)
	}
	return p.publishOrBuffer(TopicVolume, 0, false, payload)
}

func (p *RealPublisher) publishOrBuffer(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		dropped := p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		n := p.buf.len()
		p.mu.Unlock()
		if dropped {
			p.log.Warn("mqtt buffer full, dropping oldest", zap.Int("capacity", n))
		}
		return nil
	}
	return p.send(topic, qos, retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
