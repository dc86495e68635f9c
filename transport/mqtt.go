package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// MQTTClient defines the subset of the paho client the transport uses.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Presence receives reachability changes reported over MQTT.
type Presence interface {
	MarkOnline(deviceID string)
	MarkOffline(deviceID string)
}

// DialMQTT connects a paho client with auto reconnect.
func DialMQTT(broker, clientID, username, password string) (MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, token.Error())
	}
	return client, nil
}

// MQTT publishes envelopes on <prefix>/<device>/commands. Devices report presence on
// <prefix>/<device>/status ("online" or "offline") and events on <prefix>/<device>/events.
type MQTT struct {
	client MQTTClient
	prefix string
	qos    byte
	online cmap.ConcurrentMap[string, time.Time]
	logger zerolog.Logger

	sink     Sink
	presence Presence
}

func NewMQTT(client MQTTClient, prefix string, qos byte, logger zerolog.Logger) *MQTT {
	return &MQTT{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
		online: cmap.New[time.Time](),
		logger: logger,
	}
}

func (m *MQTT) Name() string { return "mqtt" }

// Start subscribes to the status and event topics of every device.
func (m *MQTT) Start(sink Sink, presence Presence) error {
	m.sink = sink
	m.presence = presence

	statusTopic := m.prefix + "/+/status"
	if token := m.client.Subscribe(statusTopic, m.qos, m.handleStatus); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", statusTopic, token.Error())
	}
	eventsTopic := m.prefix + "/+/events"
	if token := m.client.Subscribe(eventsTopic, m.qos, m.handleEvent); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", eventsTopic, token.Error())
	}
	m.logger.Info().Str("prefix", m.prefix).Msg("MQTT transport subscribed")
	return nil
}

func (m *MQTT) Stop() {
	m.client.Unsubscribe(m.prefix+"/+/status", m.prefix+"/+/events")
	m.client.Disconnect(250)
	m.logger.Info().Msg("MQTT transport stopped")
}

func (m *MQTT) Reachable(deviceID string) bool {
	return m.online.Has(deviceID)
}

func (m *MQTT) Deliver(ctx context.Context, deviceID string, env Envelope) error {
	if !m.Reachable(deviceID) {
		return ErrUnreachable
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("%s/%s/commands", m.prefix, deviceID)
	token := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			m.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish envelope")
			return err
		}
	case <-ctx.Done():
		m.logger.Warn().Str("topic", topic).Msg("Publish operation cancelled")
		return ctx.Err()
	}
	return nil
}

// deviceFromTopic extracts the device id of <prefix>/<device>/<suffix>.
func (m *MQTT) deviceFromTopic(topic, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, m.prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/"+suffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (m *MQTT) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := m.deviceFromTopic(msg.Topic(), "status")
	if !ok {
		m.logger.Warn().Str("topic", msg.Topic()).Msg("Ignoring status on unexpected topic")
		return
	}

	switch strings.ToLower(strings.TrimSpace(string(msg.Payload()))) {
	case "online":
		m.online.Set(deviceID, time.Now())
		if m.presence != nil {
			m.presence.MarkOnline(deviceID)
		}
	case "offline":
		m.online.Remove(deviceID)
		if m.presence != nil {
			m.presence.MarkOffline(deviceID)
		}
	default:
		m.logger.Warn().Str("device_id", deviceID).Str("payload", string(msg.Payload())).Msg("Unknown status payload")
	}
}

func (m *MQTT) handleEvent(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := m.deviceFromTopic(msg.Topic(), "events")
	if !ok {
		m.logger.Warn().Str("topic", msg.Topic()).Msg("Ignoring event on unexpected topic")
		return
	}
	ev, err := DecodeEvent(msg.Payload())
	if err != nil {
		m.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Invalid event payload")
		return
	}
	if m.sink == nil {
		return
	}
	if err := Route(m.sink, deviceID, ev); err != nil {
		m.logger.Warn().Err(err).Str("device_id", deviceID).Str("type", ev.Type).Msg("Failed to handle device event")
	}
}
