package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/presenced/internal/presence"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Subject  string
	Topics   Topics
	// BufferSize is the number of messages kept while disconnected; 0 drops them.
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are buffered and replayed
// in order on reconnect.
type RealPublisher struct {
	client  paho.Client
	subject string
	topics  Topics

	mu        sync.Mutex
	handler   ActivityHandler
	buf       *ringBuffer
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting. It does not fail if the broker is unreachable; the client keeps
// retrying in the background and buffers in the meantime.
func NewRealPublisher(o Options) *RealPublisher {
	p := &RealPublisher{
		subject: o.Subject,
		topics:  o.Topics,
	}
	if o.BufferSize > 0 {
		p.buf = newRingBuffer(o.BufferSize)
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(o.Topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", o.Broker)
	} else if err := token.Error(); err != nil {
		log.Printf("mqtt: connect to %s: %v", o.Broker, err)
	}
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	handler := p.handler
	var pending []bufferedMsg
	if p.buf != nil {
		pending = p.buf.drainAll()
	}
	p.mu.Unlock()

	log.Printf("mqtt: connected (%d buffered messages)", len(pending))

	if handler != nil {
		c.Subscribe(p.topics.Activity, 1, p.onMessage)
	}
	if reconnect {
		// Replaces the retained last will.
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		pending = append(pending, bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: true})
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay to %s: %v", m.topic, err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

func (p *RealPublisher) onMessage(_ paho.Client, m paho.Message) {
	ev, err := ParseActivity(m.Payload())
	if err != nil {
		log.Printf("mqtt: %s: %v", m.Topic(), err)
		return
	}
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	handler(ev)
}

// SubscribeActivity passes raw activity events arriving on the activity topic
// to h, now and after every reconnect.
func (p *RealPublisher) SubscribeActivity(h ActivityHandler) {
	p.mu.Lock()
	p.handler = h
	connected := p.connected
	p.mu.Unlock()

	if connected {
		p.client.Subscribe(p.topics.Activity, 1, p.onMessage)
	}
}

// Publish sends a presence transition to the state topic (QoS 1, retained).
func (p *RealPublisher) Publish(t presence.Transition) error {
	payload, err := FormatPayload(p.subject, t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.State, payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event to the system topic (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		if p.buf != nil {
			p.buf.push(m)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf == nil {
		return 0
	}
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
