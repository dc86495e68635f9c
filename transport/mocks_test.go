package transport

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

type mockToken struct {
	mock.Mock
}

func (m *mockToken) Error() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockToken) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockToken) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

func (m *mockToken) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}

type mockMQTTClient struct {
	mock.Mock
}

func (m *mockMQTTClient) Connect() mqtt.Token {
	args := m.Called()
	return args.Get(0).(mqtt.Token)
}

func (m *mockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *mockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	args := m.Called(topic, qos, callback)
	return args.Get(0).(mqtt.Token)
}

func (m *mockMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	args := m.Called(topics)
	return args.Get(0).(mqtt.Token)
}

func (m *mockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) CommandResult(deviceID, commandID string, applied bool, message string) error {
	args := m.Called(deviceID, commandID, applied, message)
	return args.Error(0)
}

func (m *mockSink) PushProgress(deviceID, jobID string, transferred int64) error {
	args := m.Called(deviceID, jobID, transferred)
	return args.Error(0)
}

func (m *mockSink) PushResult(deviceID, jobID string, ok bool, transferred *int64, message string) error {
	args := m.Called(deviceID, jobID, ok, transferred, message)
	return args.Error(0)
}

func (m *mockSink) Seen(deviceID string) {
	m.Called(deviceID)
}

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) MarkOnline(deviceID string)  { m.Called(deviceID) }
func (m *mockPresence) MarkOffline(deviceID string) { m.Called(deviceID) }

// message is a minimal mqtt.Message.
type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}
