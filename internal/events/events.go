// Package events fans device events out to external subscribers.
package events

import (
	"encoding/json"
	"strings"
	"time"
)

// Publisher receives device, status, finished, connected and disconnected
// events. Publish must not block for long; callers run it on event paths.
type Publisher interface {
	Publish(deviceID, kind string, payload any) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, string, any) error { return nil }
func (Nop) Close() error                      { return nil }

// Envelope is the JSON body of every published event.
type Envelope struct {
	DeviceID string    `json:"device_id"`
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
	Data     any       `json:"data,omitempty"`
}

func encode(deviceID, kind string, payload any, at time.Time) ([]byte, error) {
	return json.Marshal(Envelope{DeviceID: deviceID, Kind: kind, At: at.UTC(), Data: payload})
}

var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")

// Topic builds <prefix>/devices/<id>/<kind>, replacing MQTT wildcard and
// level characters in the id.
func Topic(prefix, deviceID, kind string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	id := topicReplacer.Replace(strings.TrimSpace(deviceID))
	if id == "" {
		id = "_"
	}
	return prefix + "/devices/" + id + "/" + kind
}
