package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testConnection() Connection {
	return Connection{
		Broker:       "127.0.0.1",
		Port:         1883,
		ClientID:     "iotix-test",
		QoS:          1,
		KeepAlive:    60,
		CleanSession: true,
	}
}

// ====== Initial State ======

func TestMQTTAdapter_InitialState(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	if a.IsConnected() {
		t.Error("IsConnected() = true before Connect(), want false")
	}
	if got := a.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", got)
	}
	if a.HasSubscription("any/topic") {
		t.Error("HasSubscription() = true on fresh adapter, want false")
	}
}

func TestMQTTAdapter_DisconnectBeforeConnect(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	if err := a.Disconnect(); err != nil {
		t.Errorf("Disconnect() before Connect() error = %v, want nil", err)
	}
}

// ====== Publish Validation ======

func TestMQTTAdapter_PublishEmptyTopic(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Publish(context.Background(), "", map[string]any{"v": 1}, 1)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestMQTTAdapter_PublishInvalidQoS(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Publish(context.Background(), "devices/s1/temp", map[string]any{"v": 1}, 3)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestMQTTAdapter_PublishDisconnected(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Publish(context.Background(), "devices/s1/temp", map[string]any{"v": 1}, 1)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestMQTTAdapter_PublishOversizedPayload(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	huge := []byte(strings.Repeat("x", maxPayloadSize+1))
	err := a.Publish(context.Background(), "devices/s1/temp", huge, 1)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed for oversized payload", err)
	}
}

func TestMQTTAdapter_PublishCancelledContext(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Publish(ctx, "devices/s1/temp", map[string]any{"v": 1}, 1)
	if err == nil {
		t.Error("Publish() expected error for cancelled context")
	}
}

// ====== Subscribe Validation ======

func TestMQTTAdapter_SubscribeEmptyTopic(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Subscribe(context.Background(), "", func(string, any) {}, 1)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestMQTTAdapter_SubscribeInvalidQoS(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Subscribe(context.Background(), "devices/+/temp", func(string, any) {}, 3)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestMQTTAdapter_SubscribeNilHandler(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Subscribe(context.Background(), "devices/+/temp", nil, 1)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestMQTTAdapter_SubscribeDisconnected(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Subscribe(context.Background(), "devices/+/temp", func(string, any) {}, 1)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

// ====== Unsubscribe Validation ======

func TestMQTTAdapter_UnsubscribeEmptyTopic(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestMQTTAdapter_UnsubscribeDisconnected(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	err := a.Unsubscribe("devices/+/temp")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

// ====== Connect Validation ======

func TestMQTTAdapter_ConnectCancelledContext(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Connect(ctx)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// ====== Inbound Routing ======

func TestMQTTAdapter_RouteDispatch(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	var wildcardGot, exactGot any
	a.subscriptions["devices/+/temp"] = mqttSubscription{
		handler: func(_ string, payload any) { wildcardGot = payload },
		qos:     1,
	}
	a.subscriptions["devices/s1/temp"] = mqttSubscription{
		handler: func(_ string, payload any) { exactGot = payload },
		qos:     1,
	}
	a.subscriptions["other/#"] = mqttSubscription{
		handler: func(string, any) { t.Error("non-matching handler invoked") },
		qos:     1,
	}

	a.route(nil, &fakeMessage{topic: "devices/s1/temp", payload: []byte(`{"v":21.5}`)})

	want := map[string]any{"v": 21.5}
	for name, got := range map[string]any{"wildcard": wildcardGot, "exact": exactGot} {
		m, ok := got.(map[string]any)
		if !ok {
			t.Fatalf("%s handler payload = %T, want map[string]any", name, got)
		}
		if m["v"] != want["v"] {
			t.Errorf("%s handler payload = %v, want %v", name, m, want)
		}
	}
}

func TestMQTTAdapter_RoutePanicRecovery(t *testing.T) {
	a := NewMQTTAdapter(testConnection(), nil)

	invoked := false
	a.subscriptions["devices/bad/temp"] = mqttSubscription{
		handler: func(string, any) { panic("handler bug") },
		qos:     0,
	}
	a.subscriptions["devices/+/temp"] = mqttSubscription{
		handler: func(string, any) { invoked = true },
		qos:     0,
	}

	// Must not panic the routing goroutine.
	a.route(nil, &fakeMessage{topic: "devices/bad/temp", payload: []byte(`1`)})

	if !invoked {
		t.Error("surviving handler was not invoked after sibling panic")
	}
}

// fakeMessage implements the paho Message interface for routing tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
