// Package mqttbridge republishes scanner events to an MQTT broker as a
// best-effort additional sink alongside the Fan-out Plane, grounded on
// mqtt_publisher.go's MQTTPublisher: paho client options (auto-reconnect,
// keepalive, connection-lost/reconnecting log handlers), a JSON payload
// struct, and a publish method that never blocks the caller on broker
// slowness beyond paho's own QoS wait.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cwsl/sdrcore/internal/config"
	"github.com/cwsl/sdrcore/internal/scanner"
)

// Bridge publishes scanner_hit/scanner_state events to MQTT.
type Bridge struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	logger      *log.Logger
}

// eventPayload is the JSON document published for every scanner event.
type eventPayload struct {
	Timestamp   int64   `json:"timestamp"`
	Type        string  `json:"type"`
	State       string  `json:"state,omitempty"`
	FrequencyHz uint64  `json:"frequency_hz,omitempty"`
	StrengthDB  float64 `json:"strength_db,omitempty"`
	DurationMs  int64   `json:"duration_ms,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// New connects to cfg.Broker and returns a Bridge. Returns an error if the
// initial connect fails, same as NewMQTTPublisher.
func New(cfg config.MQTTConfig) (*Bridge, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sdrcore"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	logger := log.New(log.Writer(), "[mqttbridge] ", log.LstdFlags)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Println("connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Printf("connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Println("reconnecting")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttbridge: connect to %s: %w", cfg.Broker, token.Error())
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "sdrcore"
	}

	return &Bridge{client: client, topicPrefix: prefix, qos: 0, logger: logger}, nil
}

// OnEvent is a scanner.Event callback suitable for passing to scanner.New;
// it republishes the event to MQTT and never returns an error since a
// publish failure must never affect the scanner's own state machine.
func (b *Bridge) OnEvent(ev scanner.Event) {
	topic, data, err := encodeEvent(b.topicPrefix, ev, time.Now())
	if err != nil {
		b.logger.Printf("marshal event %s: %v", ev.Type, err)
		return
	}

	token := b.client.Publish(topic, b.qos, false, data)
	if token.Wait() && token.Error() != nil {
		b.logger.Printf("publish to %s: %v", topic, token.Error())
	}
}

// encodeEvent builds the MQTT topic and JSON payload for one scanner
// event, split out from OnEvent so it can be tested without a broker.
func encodeEvent(topicPrefix string, ev scanner.Event, now time.Time) (topic string, data []byte, err error) {
	payload := eventPayload{
		Timestamp:   now.Unix(),
		Type:        ev.Type,
		State:       ev.State,
		FrequencyHz: ev.FrequencyHz,
		StrengthDB:  ev.StrengthDB,
		DurationMs:  ev.DurationMs,
		Reason:      ev.Reason,
	}
	data, err = json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}
	topic = fmt.Sprintf("%s/%s", topicPrefix, ev.Type)
	return topic, data, nil
}

// Disconnect closes the MQTT connection with a short quiesce period.
func (b *Bridge) Disconnect() {
	b.client.Disconnect(250)
}
