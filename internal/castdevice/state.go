package castdevice

import (
	"time"

	"go2tv.app/castbeam/internal/domain"
)

type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateSessionActive State = "session_active"
)

type EventKind string

const (
	EventStatus       EventKind = "status"
	EventFinished     EventKind = "finished"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// Event is delivered to handlers registered with Device.OnEvent. Status is set
// for status and finished events, Err for disconnects caused by a failure.
type Event struct {
	Kind     EventKind
	DeviceID string
	Status   *domain.MediaStatus
	Err      error
	At       time.Time
}

// Snapshot is a point-in-time copy of a device's state.
type Snapshot struct {
	Record       domain.DeviceRecord
	State        State
	AppID        string
	SessionID    string
	LastStatus   *domain.MediaStatus
	LastActivity time.Time
	IdleSince    time.Time
}
