package domain

type SubtitleSpec struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

type CoverSpec struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

type CastRequest struct {
	TargetDevice   string          `json:"target_device"`
	Source         string          `json:"source"`
	ContentType    string          `json:"content_type,omitempty"`
	Subtitles      []SubtitleSpec  `json:"subtitles,omitempty"`
	SubtitlesStyle *TextTrackStyle `json:"subtitles_style,omitempty"`
	Cover          *CoverSpec      `json:"cover,omitempty"`
	StartTime      float64         `json:"start_time,omitempty"`
}

type CastResult struct {
	OK          bool         `json:"ok"`
	DeviceID    string       `json:"device_id"`
	DeviceName  string       `json:"device_name"`
	AppID       string       `json:"app_id"`
	ContentID   string       `json:"content_id,omitempty"`
	ContentType string       `json:"content_type,omitempty"`
	VideoID     string       `json:"video_id,omitempty"`
	Status      *MediaStatus `json:"status,omitempty"`
	Warnings    []string     `json:"warnings"`
}

type ControlRequest struct {
	TargetDevice string   `json:"target_device"`
	Action       string   `json:"action"`
	Value        *float64 `json:"value,omitempty"`
}

type ControlResult struct {
	OK          bool         `json:"ok"`
	DeviceID    string       `json:"device_id"`
	Action      string       `json:"action"`
	Status      *MediaStatus `json:"status,omitempty"`
	CurrentTime *float64     `json:"current_time,omitempty"`
}

type StatusRequest struct {
	TargetDevice string `json:"target_device"`
}

type StatusResult struct {
	DeviceID        string          `json:"device_id"`
	ConnectionState string          `json:"connection_state"`
	Receiver        *ReceiverStatus `json:"receiver,omitempty"`
	Media           *MediaStatus    `json:"media,omitempty"`
}

type StopRequest struct {
	TargetDevice string `json:"target_device"`
}

type StopResult struct {
	OK       bool   `json:"ok"`
	DeviceID string `json:"device_id"`
}

type ToolError struct {
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Limitations    []Limitation   `json:"limitations,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// ControlActions are the accepted control_playback actions.
var ControlActions = []string{
	"pause", "resume", "stop", "seek", "seek_to", "volume",
	"mute", "unmute", "subtitles_off", "subtitles", "subtitles_size",
}
