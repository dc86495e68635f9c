package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func doneToken(err error) *mockToken {
	ch := make(chan struct{})
	close(ch)
	tok := new(mockToken)
	tok.On("Wait").Return(true)
	tok.On("Done").Return((<-chan struct{})(ch))
	tok.On("Error").Return(err)
	return tok
}

// startMQTT subscribes a transport on a mock client and returns the captured handlers.
func startMQTT(t *testing.T, sink Sink, presence Presence) (*MQTT, *mockMQTTClient, map[string]mqtt.MessageHandler) {
	t.Helper()
	client := new(mockMQTTClient)
	handlers := make(map[string]mqtt.MessageHandler)
	client.On("Subscribe", mock.Anything, byte(1), mock.Anything).
		Run(func(args mock.Arguments) {
			handlers[args.String(0)] = args.Get(2).(mqtt.MessageHandler)
		}).
		Return(doneToken(nil))

	m := NewMQTT(client, "signage/", 1, zerolog.Nop())
	require.NoError(t, m.Start(sink, presence))
	require.Contains(t, handlers, "signage/+/status")
	require.Contains(t, handlers, "signage/+/events")
	return m, client, handlers
}

func TestMQTT_StatusTracksPresence(t *testing.T) {
	presence := new(mockPresence)
	presence.On("MarkOnline", "D1").Once()
	presence.On("MarkOffline", "D1").Once()
	m, _, handlers := startMQTT(t, new(mockSink), presence)

	assert.False(t, m.Reachable("D1"))
	handlers["signage/+/status"](nil, message{topic: "signage/D1/status", payload: []byte("online")})
	assert.True(t, m.Reachable("D1"))
	handlers["signage/+/status"](nil, message{topic: "signage/D1/status", payload: []byte("OFFLINE")})
	assert.False(t, m.Reachable("D1"))

	// Malformed topics and payloads are ignored.
	handlers["signage/+/status"](nil, message{topic: "signage/a/b/status", payload: []byte("online")})
	handlers["signage/+/status"](nil, message{topic: "signage/D2/status", payload: []byte("sleepy")})
	assert.False(t, m.Reachable("D2"))
	presence.AssertExpectations(t)
}

func TestMQTT_DeliverPublishesEnvelope(t *testing.T) {
	presence := new(mockPresence)
	presence.On("MarkOnline", "D1")
	m, client, handlers := startMQTT(t, new(mockSink), presence)

	env := Envelope{Kind: KindCommand, ID: "c1", DeviceID: "D1", Command: "MUTE"}
	assert.ErrorIs(t, m.Deliver(context.Background(), "D1", env), ErrUnreachable)

	handlers["signage/+/status"](nil, message{topic: "signage/D1/status", payload: []byte("online")})

	var published []byte
	client.On("Publish", "signage/D1/commands", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(3).([]byte) }).
		Return(doneToken(nil)).Once()
	require.NoError(t, m.Deliver(context.Background(), "D1", env))

	var got Envelope
	require.NoError(t, json.Unmarshal(published, &got))
	assert.Equal(t, "command", got.Kind)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "MUTE", got.Command)
	client.AssertExpectations(t)
}

func TestMQTT_DeliverReportsPublishError(t *testing.T) {
	presence := new(mockPresence)
	presence.On("MarkOnline", "D1")
	m, client, handlers := startMQTT(t, new(mockSink), presence)
	handlers["signage/+/status"](nil, message{topic: "signage/D1/status", payload: []byte("online")})

	client.On("Publish", "signage/D1/commands", byte(1), false, mock.Anything).Return(doneToken(errors.New("broker gone")))
	err := m.Deliver(context.Background(), "D1", Envelope{ID: "c1"})
	assert.EqualError(t, err, "broker gone")
}

func TestMQTT_DeliverHonoursContext(t *testing.T) {
	presence := new(mockPresence)
	presence.On("MarkOnline", "D1")
	m, client, handlers := startMQTT(t, new(mockSink), presence)
	handlers["signage/+/status"](nil, message{topic: "signage/D1/status", payload: []byte("online")})

	pending := new(mockToken)
	pending.On("Done").Return((<-chan struct{})(make(chan struct{})))
	client.On("Publish", "signage/D1/commands", byte(1), false, mock.Anything).Return(pending)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Deliver(ctx, "D1", Envelope{ID: "c1"}), context.DeadlineExceeded)
}

func TestMQTT_EventsAreRouted(t *testing.T) {
	sink := new(mockSink)
	sink.On("Seen", "D1")
	sink.On("CommandResult", "D1", "c1", true, "done").Return(nil).Once()
	sink.On("PushProgress", "D1", "j1", int64(512)).Return(nil).Once()
	_, _, handlers := startMQTT(t, sink, new(mockPresence))

	events := handlers["signage/+/events"]
	events(nil, message{topic: "signage/D1/events", payload: []byte(`{"type":"command_ack","command_id":"c1","status":"applied","message":"done"}`)})
	events(nil, message{topic: "signage/D1/events", payload: []byte(`{"type":"push_progress","job_id":"j1","transferred_bytes":512}`)})
	events(nil, message{topic: "signage/D1/events", payload: []byte(`not json`)})

	sink.AssertExpectations(t)
	sink.AssertNumberOfCalls(t, "Seen", 2)
}

func TestMQTT_StartFailsWhenSubscribeFails(t *testing.T) {
	client := new(mockMQTTClient)
	client.On("Subscribe", "signage/+/status", byte(0), mock.Anything).Return(doneToken(errors.New("not authorised")))

	m := NewMQTT(client, "signage", 0, zerolog.Nop())
	err := m.Start(new(mockSink), nil)
	assert.ErrorContains(t, err, "not authorised")
}

func TestMQTT_Stop(t *testing.T) {
	m, client, _ := startMQTT(t, new(mockSink), new(mockPresence))
	client.On("Unsubscribe", []string{"signage/+/status", "signage/+/events"}).Return(doneToken(nil)).Once()
	client.On("Disconnect", uint(250)).Once()

	m.Stop()
	client.AssertExpectations(t)
}
