// Package apps describes the receiver applications castbeam knows how to drive.
package apps

import (
	"encoding/json"
	"fmt"

	"go2tv.app/castbeam/internal/domain"
)

const (
	DefaultMediaReceiverID = "CC1AD845"
	YouTubeID              = "233637DE"

	MediaNamespace = "urn:x-cast:com.google.cast.media"
	MdxNamespace   = "urn:x-cast:com.google.youtube.mdx"
)

// Descriptor is the static description of a receiver application.
type Descriptor struct {
	AppID       string
	Name        string
	Launchable  bool
	Namespaces  []string
	ParseStatus func(payload []byte) (*domain.MediaStatus, error)
}

type Registry struct {
	order []string
	byID  map[string]Descriptor
}

func NewRegistry(descriptors ...Descriptor) *Registry {
	r := &Registry{byID: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.ParseStatus == nil {
			d.ParseStatus = ParseMediaStatus
		}
		if _, exists := r.byID[d.AppID]; !exists {
			r.order = append(r.order, d.AppID)
		}
		r.byID[d.AppID] = d
	}
	return r
}

func DefaultRegistry() *Registry {
	return NewRegistry(
		Descriptor{
			AppID:      DefaultMediaReceiverID,
			Name:       "Default Media Receiver",
			Launchable: true,
			Namespaces: []string{MediaNamespace},
		},
		Descriptor{
			AppID:      YouTubeID,
			Name:       "YouTube",
			Launchable: true,
			Namespaces: []string{MediaNamespace, MdxNamespace},
		},
	)
}

func (r *Registry) Lookup(appID string) (Descriptor, bool) {
	d, ok := r.byID[appID]
	return d, ok
}

// Match returns the first running application that can be joined. An empty
// appID accepts any registered application.
func (r *Registry) Match(running []domain.ApplicationInfo, appID string) (domain.ApplicationInfo, bool) {
	for _, app := range running {
		if app.TransportID == "" {
			continue
		}
		if appID != "" {
			if app.AppID == appID {
				return app, true
			}
			continue
		}
		if _, ok := r.byID[app.AppID]; ok {
			return app, true
		}
	}
	return domain.ApplicationInfo{}, false
}

// ParseStatus decodes a MEDIA_STATUS payload with the application's parser.
func (r *Registry) ParseStatus(appID string, payload []byte) (*domain.MediaStatus, error) {
	if d, ok := r.byID[appID]; ok {
		return d.ParseStatus(payload)
	}
	return ParseMediaStatus(payload)
}

// ParseMediaStatus decodes the first entry of a MEDIA_STATUS payload. An empty
// status list means nothing is loaded and reports IDLE.
func ParseMediaStatus(payload []byte) (*domain.MediaStatus, error) {
	var envelope struct {
		Status []domain.MediaStatus `json:"status"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode media status: %w", err)
	}
	if len(envelope.Status) == 0 {
		return &domain.MediaStatus{PlayerState: domain.PlayerStateIdle}, nil
	}
	status := envelope.Status[0]
	return &status, nil
}
