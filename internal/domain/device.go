package domain

// DeviceRecord is the discovery directory's view of one physical receiver.
// Name and Host stay empty until a responder supplies them.
type DeviceRecord struct {
	ID       string `json:"id"`
	Instance string `json:"instance,omitempty"`
	Name     string `json:"name,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// Resolved reports whether the record carries both a friendly name and a host.
func (r DeviceRecord) Resolved() bool {
	return r.Name != "" && r.Host != ""
}

// Device is the listing entry returned by list_cast_devices.
type Device struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	InstanceName    string       `json:"instance_name"`
	Host            string       `json:"host"`
	Address         string       `json:"address"`
	Protocol        string       `json:"protocol"`
	ConnectionState string       `json:"connection_state,omitempty"`
	Cached          bool         `json:"cached,omitempty"`
	Capabilities    Capabilities `json:"capabilities"`
}

type Capabilities struct {
	SupportsURLSource  bool         `json:"supports_url_source"`
	SupportsHLSM3U8URL bool         `json:"supports_hls_m3u8_url"`
	SupportsYouTube    bool         `json:"supports_youtube"`
	SupportsSubtitles  bool         `json:"supports_subtitles"`
	Limitations        []Limitation `json:"limitations"`
}

type Limitation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
