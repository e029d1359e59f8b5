package castv2

import (
	"encoding/json"
	"fmt"

	"go2tv.app/castbeam/internal/domain"
)

const (
	namespaceConnection = "urn:x-cast:com.google.cast.tp.connection"
	namespaceHeartbeat  = "urn:x-cast:com.google.cast.tp.heartbeat"
	namespaceReceiver   = "urn:x-cast:com.google.cast.receiver"
	namespaceMedia      = "urn:x-cast:com.google.cast.media"

	receiverID = "receiver-0"
)

// Message types that reject a request.
var rejectionTypes = map[string]struct{}{
	"INVALID_REQUEST":      {},
	"LAUNCH_ERROR":         {},
	"LOAD_FAILED":          {},
	"LOAD_CANCELLED":       {},
	"INVALID_PLAYER_STATE": {},
}

type typed struct {
	Type string `json:"type"`
}

type launchPayload struct {
	Type  string `json:"type"`
	AppID string `json:"appId"`
}

type stopPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type volumePayload struct {
	Type   string        `json:"type"`
	Volume domain.Volume `json:"volume"`
}

type loadPayload struct {
	Type           string                 `json:"type"`
	SessionID      string                 `json:"sessionId,omitempty"`
	Media          domain.MediaDescriptor `json:"media"`
	Autoplay       *bool                  `json:"autoplay,omitempty"`
	CurrentTime    *float64               `json:"currentTime,omitempty"`
	ActiveTrackIDs []int                  `json:"activeTrackIds,omitempty"`
}

type mediaCommand struct {
	Type           string   `json:"type"`
	MediaSessionID int      `json:"mediaSessionId"`
	CurrentTime    *float64 `json:"currentTime,omitempty"`
}

type receiverStatusEnvelope struct {
	Status struct {
		Applications []struct {
			AppID       string `json:"appId"`
			DisplayName string `json:"displayName"`
			SessionID   string `json:"sessionId"`
			TransportID string `json:"transportId"`
			StatusText  string `json:"statusText"`
			Namespaces  []struct {
				Name string `json:"name"`
			} `json:"namespaces"`
		} `json:"applications"`
		Volume domain.Volume `json:"volume"`
	} `json:"status"`
}

func parseReceiverStatus(payload []byte) (*domain.ReceiverStatus, error) {
	var env receiverStatusEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode receiver status: %w", err)
	}
	status := &domain.ReceiverStatus{
		Applications: make([]domain.ApplicationInfo, 0, len(env.Status.Applications)),
		Volume:       env.Status.Volume,
	}
	for _, a := range env.Status.Applications {
		info := domain.ApplicationInfo{
			AppID:       a.AppID,
			DisplayName: a.DisplayName,
			SessionID:   a.SessionID,
			TransportID: a.TransportID,
			StatusText:  a.StatusText,
		}
		for _, ns := range a.Namespaces {
			info.Namespaces = append(info.Namespaces, ns.Name)
		}
		status.Applications = append(status.Applications, info)
	}
	return status, nil
}
