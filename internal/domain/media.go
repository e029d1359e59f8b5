package domain

// Stream types accepted by the media namespace.
const (
	StreamTypeBuffered = "BUFFERED"
	StreamTypeLive     = "LIVE"
)

type MediaDescriptor struct {
	ContentID      string          `json:"contentId"`
	ContentType    string          `json:"contentType"`
	StreamType     string          `json:"streamType,omitempty"`
	Duration       float64         `json:"duration,omitempty"`
	Metadata       *Metadata       `json:"metadata,omitempty"`
	Tracks         []Track         `json:"tracks,omitempty"`
	TextTrackStyle *TextTrackStyle `json:"textTrackStyle,omitempty"`
}

type Track struct {
	TrackID          int    `json:"trackId"`
	Type             string `json:"type"`
	TrackContentID   string `json:"trackContentId"`
	TrackContentType string `json:"trackContentType"`
	Name             string `json:"name,omitempty"`
	Language         string `json:"language,omitempty"`
	Subtype          string `json:"subtype,omitempty"`
}

// TextTrackStyle mirrors the receiver's textTrackStyle object. Colors are
// #RRGGBBAA strings.
type TextTrackStyle struct {
	BackgroundColor           string  `json:"backgroundColor,omitempty" mapstructure:"backgroundColor"`
	ForegroundColor           string  `json:"foregroundColor,omitempty" mapstructure:"foregroundColor"`
	EdgeType                  string  `json:"edgeType,omitempty" mapstructure:"edgeType"`
	EdgeColor                 string  `json:"edgeColor,omitempty" mapstructure:"edgeColor"`
	FontScale                 float64 `json:"fontScale,omitempty" mapstructure:"fontScale"`
	FontStyle                 string  `json:"fontStyle,omitempty" mapstructure:"fontStyle"`
	FontFamily                string  `json:"fontFamily,omitempty" mapstructure:"fontFamily"`
	FontGenericFamily         string  `json:"fontGenericFamily,omitempty" mapstructure:"fontGenericFamily"`
	WindowColor               string  `json:"windowColor,omitempty" mapstructure:"windowColor"`
	WindowRoundedCornerRadius float64 `json:"windowRoundedCornerRadius,omitempty" mapstructure:"windowRoundedCornerRadius"`
	WindowType                string  `json:"windowType,omitempty" mapstructure:"windowType"`
}

// Clone returns an independent copy, or nil for a nil style.
func (s *TextTrackStyle) Clone() *TextTrackStyle {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

type Metadata struct {
	Type         int     `json:"type"`
	MetadataType int     `json:"metadataType"`
	Title        string  `json:"title,omitempty"`
	Images       []Image `json:"images,omitempty"`
}

type Image struct {
	URL string `json:"url"`
}

// LoadOptions are the per-load options sent alongside a MediaDescriptor.
type LoadOptions struct {
	Autoplay       *bool    `json:"autoplay,omitempty"`
	CurrentTime    *float64 `json:"currentTime,omitempty"`
	ActiveTrackIDs []int    `json:"activeTrackIds,omitempty"`
}

// EditTracksRequest is the body of an EDIT_TRACKS_INFO media request.
// A non-nil empty ActiveTrackIDs disables all tracks.
type EditTracksRequest struct {
	ActiveTrackIDs []int           `json:"activeTrackIds"`
	TextTrackStyle *TextTrackStyle `json:"textTrackStyle,omitempty"`
}
