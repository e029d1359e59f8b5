package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/domain"
)

const (
	defaultContentType = "video/mp4"
	hlsSegmentType     = "video/mp2t"
	subtitleType       = "text/vtt"
)

var hlsPlaylistTypes = map[string]struct{}{
	"application/x-mpegurl":         {},
	"application/vnd.apple.mpegurl": {},
	"audio/mpegurl":                 {},
	"audio/x-mpegurl":               {},
}

// Request is the structured form of a playback request. Maps passed to
// Resolve are decoded into it.
type Request struct {
	URL            string                 `mapstructure:"url"`
	ContentType    string                 `mapstructure:"contentType"`
	Subtitles      []domain.SubtitleSpec  `mapstructure:"subtitles"`
	SubtitlesStyle *domain.TextTrackStyle `mapstructure:"subtitles_style"`
	Cover          *domain.CoverSpec      `mapstructure:"cover"`
	V              string                 `mapstructure:"v"`
}

type PlayOptions struct {
	StartTime      float64
	Autoplay       *bool
	ActiveTrackIDs []int
}

// Resolution is either a YouTube video id or a media descriptor with its load
// options.
type Resolution struct {
	VideoID string
	Media   *domain.MediaDescriptor
	Options domain.LoadOptions
	Style   *domain.TextTrackStyle
}

func (r Resolution) IsYouTube() bool {
	return r.VideoID != ""
}

type Resolver struct {
	mime adapters.MimeInferrer
}

func NewResolver(mime adapters.MimeInferrer) *Resolver {
	return &Resolver{mime: mime}
}

func (r *Resolver) Resolve(resource any, opts PlayOptions) (Resolution, error) {
	switch v := resource.(type) {
	case string:
		if id, ok := YouTubeID(v); ok {
			return Resolution{VideoID: id}, nil
		}
		return r.resolveRequest(Request{URL: v}, opts)
	case Request:
		return r.resolveRequest(v, opts)
	case *Request:
		if v == nil {
			return Resolution{}, errors.New("nil media request")
		}
		return r.resolveRequest(*v, opts)
	case map[string]any:
		req, err := decodeRequest(v)
		if err != nil {
			return Resolution{}, err
		}
		return r.resolveRequest(req, opts)
	default:
		return Resolution{}, fmt.Errorf("unsupported media resource type %T", resource)
	}
}

func decodeRequest(raw map[string]any) (Request, error) {
	var req Request
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Request{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Request{}, fmt.Errorf("decode media request: %w", err)
	}
	return req, nil
}

func (r *Resolver) resolveRequest(req Request, opts PlayOptions) (Resolution, error) {
	if strings.TrimSpace(req.V) != "" {
		id, ok := YouTubeID(req.V)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: %s", domain.ErrNotYouTube, req.V)
		}
		return Resolution{VideoID: id}, nil
	}

	contentID := strings.TrimSpace(req.URL)
	if contentID == "" {
		return Resolution{}, errors.New("media request has no url")
	}

	media := &domain.MediaDescriptor{
		ContentID:   contentID,
		ContentType: r.contentType(req.ContentType, contentID),
		StreamType:  domain.StreamTypeBuffered,
	}

	res := Resolution{Media: media}

	if len(req.Subtitles) > 0 {
		media.Tracks = make([]domain.Track, 0, len(req.Subtitles))
		for i, sub := range req.Subtitles {
			media.Tracks = append(media.Tracks, domain.Track{
				TrackID:          i,
				Type:             "TEXT",
				TrackContentID:   sub.URL,
				TrackContentType: subtitleType,
				Name:             sub.Name,
				Language:         sub.Language,
				Subtype:          "SUBTITLES",
			})
		}
		res.Options.ActiveTrackIDs = []int{0}
		if opts.ActiveTrackIDs != nil {
			res.Options.ActiveTrackIDs = append([]int(nil), opts.ActiveTrackIDs...)
		}
	}

	if req.SubtitlesStyle != nil {
		media.TextTrackStyle = req.SubtitlesStyle.Clone()
		res.Style = req.SubtitlesStyle.Clone()
	}

	if req.Cover != nil {
		media.Metadata = &domain.Metadata{
			Type:         0,
			MetadataType: 0,
			Title:        req.Cover.Title,
			Images:       []domain.Image{{URL: req.Cover.URL}},
		}
	}

	if isPlayable(media.ContentType) {
		autoplay := true
		if opts.Autoplay != nil {
			autoplay = *opts.Autoplay
		}
		res.Options.Autoplay = &autoplay
		start := opts.StartTime
		res.Options.CurrentTime = &start
	}

	return res, nil
}

func (r *Resolver) contentType(explicit, contentID string) string {
	ct := strings.TrimSpace(explicit)
	if ct == "" && r.mime != nil {
		ct = r.mime.InferMimeType(contentID)
	}
	if ct == "" {
		ct = defaultContentType
	}
	if IsHLSPlaylist(ct) {
		return hlsSegmentType
	}
	return ct
}

// IsHLSPlaylist reports whether contentType names an HLS playlist.
func IsHLSPlaylist(contentType string) bool {
	base, _, _ := strings.Cut(contentType, ";")
	_, ok := hlsPlaylistTypes[strings.ToLower(strings.TrimSpace(base))]
	return ok
}

func isPlayable(contentType string) bool {
	lower := strings.ToLower(contentType)
	return strings.Contains(lower, "video") || strings.Contains(lower, "audio")
}
