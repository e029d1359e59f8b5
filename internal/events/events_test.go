package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err      error
	complete bool
}

func newToken() *fakeToken { return &fakeToken{complete: true} }

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) incomplete() *fakeToken {
	t.complete = false
	return t
}

func (t *fakeToken) setError(err error) *fakeToken {
	t.err = err
	return t
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	connected    bool
	disconnected bool
	token        *fakeToken
	sent         []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }
func (c *fakeClient) Disconnect(uint)   { c.disconnected = true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return c.token
}

func newPublisher(client *fakeClient) *MQTTPublisher {
	p := newMQTTPublisher(client, MQTTConfig{TopicPrefix: "home/cast/", QoS: 1}, nil)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "castbeam/devices/Chromecast-abc._googlecast._tcp.local/status",
		Topic("castbeam", "Chromecast-abc._googlecast._tcp.local", "status"))
	assert.Equal(t, "home/devices/a_b_c_d/device", Topic("/home/", "a/b+c#d", "device"))
	assert.Equal(t, "p/devices/_/finished", Topic("p", " ", "finished"))
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{connected: true, token: newToken()}
	p := newPublisher(client)

	require.NoError(t, p.Publish("dev-1", "status", map[string]any{"playerState": "PLAYING"}))
	require.NoError(t, p.Publish("dev-1", "device", map[string]any{"name": "Living Room"}))

	require.Len(t, client.sent, 2)
	assert.Equal(t, "home/cast/devices/dev-1/status", client.sent[0].topic)
	assert.EqualValues(t, 1, client.sent[0].qos)
	assert.False(t, client.sent[0].retained)
	assert.True(t, client.sent[1].retained)

	var env map[string]any
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &env))
	assert.Equal(t, "dev-1", env["device_id"])
	assert.Equal(t, "status", env["kind"])
	assert.Equal(t, "2026-01-02T03:04:05Z", env["at"])
	assert.Equal(t, "PLAYING", env["data"].(map[string]any)["playerState"])
}

func TestMQTTPublishFailures(t *testing.T) {
	p := newPublisher(&fakeClient{connected: false, token: newToken()})
	require.ErrorIs(t, p.Publish("dev-1", "status", nil), ErrNotConnected)

	p = newPublisher(&fakeClient{connected: true, token: newToken().incomplete()})
	require.ErrorIs(t, p.Publish("dev-1", "status", nil), ErrPublishFailed)

	brokerErr := errors.New("not authorized")
	p = newPublisher(&fakeClient{connected: true, token: newToken().setError(brokerErr)})
	err := p.Publish("dev-1", "status", nil)
	require.ErrorIs(t, err, ErrPublishFailed)
	require.ErrorIs(t, err, brokerErr)

	p = newPublisher(&fakeClient{connected: true, token: newToken()})
	require.ErrorIs(t, p.Publish("dev-1", "status", func() {}), ErrPublishFailed)
}

func TestMQTTClose(t *testing.T) {
	client := &fakeClient{connected: true, token: newToken()}
	require.NoError(t, newPublisher(client).Close())
	assert.True(t, client.disconnected)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.Publish("x", "status", nil))
	require.NoError(t, p.Close())
}
