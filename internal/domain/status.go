package domain

type PlayerState string

const (
	PlayerStateIdle      PlayerState = "IDLE"
	PlayerStatePlaying   PlayerState = "PLAYING"
	PlayerStatePaused    PlayerState = "PAUSED"
	PlayerStateBuffering PlayerState = "BUFFERING"
)

const IdleReasonFinished = "FINISHED"

type MediaStatus struct {
	MediaSessionID int              `json:"mediaSessionId"`
	PlayerState    PlayerState      `json:"playerState"`
	IdleReason     string           `json:"idleReason,omitempty"`
	CurrentTime    float64          `json:"currentTime"`
	PlaybackRate   float64          `json:"playbackRate,omitempty"`
	ActiveTrackIDs []int            `json:"activeTrackIds,omitempty"`
	Media          *MediaDescriptor `json:"media,omitempty"`
	Volume         *Volume          `json:"volume,omitempty"`
}

// Finished reports whether playback ended on its own.
func (s MediaStatus) Finished() bool {
	return s.PlayerState == PlayerStateIdle && s.IdleReason == IdleReasonFinished
}

type Volume struct {
	Level *float64 `json:"level,omitempty"`
	Muted *bool    `json:"muted,omitempty"`
}

type ApplicationInfo struct {
	AppID       string   `json:"appId"`
	DisplayName string   `json:"displayName,omitempty"`
	SessionID   string   `json:"sessionId"`
	TransportID string   `json:"transportId"`
	StatusText  string   `json:"statusText,omitempty"`
	Namespaces  []string `json:"-"`
}

type ReceiverStatus struct {
	Applications []ApplicationInfo `json:"applications"`
	Volume       Volume            `json:"volume"`
}
