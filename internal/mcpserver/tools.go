package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go2tv.app/castbeam/internal/domain"
)

var errInvalidParams = errors.New("invalid params")

type toolOutcome struct {
	deviceID   string
	text       string
	structured any
}

type toolHandler func(ctx context.Context, rawArgs json.RawMessage) (toolOutcome, error)

func notConfigured(what string) error {
	return &domain.ToolError{Code: "INTERNAL_ERROR", Message: what + " is not configured"}
}

func (s *Server) listCastDevices(ctx context.Context, rawArgs json.RawMessage) (toolOutcome, error) {
	if s.deviceLister == nil {
		return toolOutcome{}, notConfigured("discovery service")
	}

	var args struct {
		TimeoutMS          *int  `json:"timeout_ms,omitempty"`
		IncludeUnreachable *bool `json:"include_unreachable,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return toolOutcome{}, errInvalidParams
	}
	timeoutMS := defaultDiscoveryTimeoutMS
	if args.TimeoutMS != nil {
		if *args.TimeoutMS < minDiscoveryTimeoutMS {
			return toolOutcome{}, errInvalidParams
		}
		timeoutMS = *args.TimeoutMS
	}
	includeUnreachable := args.IncludeUnreachable != nil && *args.IncludeUnreachable
	s.logLifecycle(
		slog.LevelDebug,
		"list_cast_devices_request",
		slog.Int("timeout_ms", timeoutMS),
		slog.Bool("include_unreachable", includeUnreachable),
	)

	devices, err := s.deviceLister.ListDevices(ctx, timeoutMS, includeUnreachable)
	if err != nil {
		return toolOutcome{}, err
	}
	s.logLifecycle(slog.LevelDebug, "list_cast_devices_result", slog.Int("discovered_count", len(devices)))

	text := fmt.Sprintf("Discovered %d device(s).", len(devices))
	if len(devices) > 0 {
		text += "\n" + formatDevices(devices)
	}
	return toolOutcome{
		text: text,
		structured: map[string]any{
			"count":   len(devices),
			"devices": devices,
		},
	}, nil
}

func (s *Server) castMedia(ctx context.Context, rawArgs json.RawMessage) (toolOutcome, error) {
	if s.castController == nil {
		return toolOutcome{}, notConfigured("cast controller")
	}

	var args struct {
		TargetDevice   string                 `json:"target_device"`
		Source         string                 `json:"source"`
		ContentType    *string                `json:"content_type,omitempty"`
		Subtitles      []domain.SubtitleSpec  `json:"subtitles,omitempty"`
		SubtitlesStyle *domain.TextTrackStyle `json:"subtitles_style,omitempty"`
		Cover          *domain.CoverSpec      `json:"cover,omitempty"`
		StartTime      *float64               `json:"start_time,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return toolOutcome{}, errInvalidParams
	}
	req := domain.CastRequest{
		TargetDevice:   strings.TrimSpace(args.TargetDevice),
		Source:         strings.TrimSpace(args.Source),
		Subtitles:      args.Subtitles,
		SubtitlesStyle: args.SubtitlesStyle,
		Cover:          args.Cover,
	}
	if req.Source == "" || req.TargetDevice == "" {
		return toolOutcome{deviceID: req.TargetDevice}, errInvalidParams
	}
	if args.ContentType != nil {
		req.ContentType = strings.TrimSpace(*args.ContentType)
	}
	if args.StartTime != nil {
		if *args.StartTime < 0 {
			return toolOutcome{deviceID: req.TargetDevice}, errInvalidParams
		}
		req.StartTime = *args.StartTime
	}
	for _, sub := range req.Subtitles {
		if strings.TrimSpace(sub.URL) == "" {
			return toolOutcome{deviceID: req.TargetDevice}, errInvalidParams
		}
	}

	result, err := s.castController.CastMedia(ctx, req)
	if err != nil {
		return toolOutcome{deviceID: req.TargetDevice}, err
	}

	what := result.ContentID
	if result.VideoID != "" {
		what = "YouTube video " + result.VideoID
	}
	return toolOutcome{
		deviceID:   result.DeviceID,
		text:       fmt.Sprintf("Casting %s on %s (app %s).", what, result.DeviceName, result.AppID),
		structured: result,
	}, nil
}

func (s *Server) controlPlayback(ctx context.Context, rawArgs json.RawMessage) (toolOutcome, error) {
	if s.castController == nil {
		return toolOutcome{}, notConfigured("cast controller")
	}

	var args struct {
		TargetDevice string   `json:"target_device"`
		Action       string   `json:"action"`
		Value        *float64 `json:"value,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return toolOutcome{}, errInvalidParams
	}
	req := domain.ControlRequest{
		TargetDevice: strings.TrimSpace(args.TargetDevice),
		Action:       strings.ToLower(strings.TrimSpace(args.Action)),
		Value:        args.Value,
	}
	if req.TargetDevice == "" || !slices.Contains(domain.ControlActions, req.Action) {
		return toolOutcome{deviceID: req.TargetDevice}, errInvalidParams
	}

	result, err := s.castController.Control(ctx, req)
	if err != nil {
		return toolOutcome{deviceID: req.TargetDevice}, err
	}
	text := fmt.Sprintf("Applied %s on device %s.", result.Action, result.DeviceID)
	if result.Status != nil {
		text += fmt.Sprintf(" Player is %s at %.1fs.", result.Status.PlayerState, result.Status.CurrentTime)
	}
	return toolOutcome{deviceID: result.DeviceID, text: text, structured: result}, nil
}

func (s *Server) playbackStatus(ctx context.Context, rawArgs json.RawMessage) (toolOutcome, error) {
	if s.castController == nil {
		return toolOutcome{}, notConfigured("cast controller")
	}

	var args struct {
		TargetDevice string `json:"target_device"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return toolOutcome{}, errInvalidParams
	}
	target := strings.TrimSpace(args.TargetDevice)
	if target == "" {
		return toolOutcome{}, errInvalidParams
	}

	result, err := s.castController.Status(ctx, domain.StatusRequest{TargetDevice: target})
	if err != nil {
		return toolOutcome{deviceID: target}, err
	}
	text := fmt.Sprintf("Device %s is %s.", result.DeviceID, result.ConnectionState)
	if result.Media != nil {
		text += fmt.Sprintf(" Player is %s at %.1fs.", result.Media.PlayerState, result.Media.CurrentTime)
	} else {
		text += " Nothing is playing."
	}
	return toolOutcome{deviceID: result.DeviceID, text: text, structured: result}, nil
}

func (s *Server) stopCasting(ctx context.Context, rawArgs json.RawMessage) (toolOutcome, error) {
	if s.castController == nil {
		return toolOutcome{}, notConfigured("cast controller")
	}

	var args struct {
		TargetDevice string `json:"target_device"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return toolOutcome{}, errInvalidParams
	}
	target := strings.TrimSpace(args.TargetDevice)
	if target == "" {
		return toolOutcome{}, errInvalidParams
	}

	result, err := s.castController.StopCasting(ctx, domain.StopRequest{TargetDevice: target})
	if err != nil {
		return toolOutcome{deviceID: target}, err
	}
	return toolOutcome{
		deviceID:   result.DeviceID,
		text:       fmt.Sprintf("Stopped casting on device %s.", result.DeviceID),
		structured: result,
	}, nil
}

func formatDevices(devices []domain.Device) string {
	var out strings.Builder
	for i, dev := range devices {
		if i > 0 {
			out.WriteByte('\n')
		}
		fmt.Fprintf(
			&out,
			"%d. id=%s name=%s address=%s",
			i+1,
			strings.TrimSpace(dev.ID),
			strings.TrimSpace(dev.Name),
			strings.TrimSpace(dev.Address),
		)
		if dev.Cached {
			out.WriteString(" (cached)")
		}
	}
	return out.String()
}

func targetDeviceSchema() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "The target device id or name. Obtain this by calling 'list_cast_devices' first.",
	}
}

func staticTools() []tool {
	return []tool{
		{
			Name:        "list_cast_devices",
			Description: "Discover Chromecast receivers on the local network over mDNS and SSDP. Call this first to find 'target_device' ids or names.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timeout_ms": map[string]any{
						"type":        "integer",
						"minimum":     minDiscoveryTimeoutMS,
						"default":     defaultDiscoveryTimeoutMS,
						"description": "Discovery timeout in milliseconds.",
					},
					"include_unreachable": map[string]any{
						"type":        "boolean",
						"default":     false,
						"description": "Include devices that fail the reachability check and cached devices that did not answer.",
					},
				},
				"additionalProperties": false,
			},
		},
		{
			Name:        "cast_media",
			Description: "Play a media URL or a YouTube video on a Chromecast. URLs must be reachable from the receiver.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_device": targetDeviceSchema(),
					"source": map[string]any{
						"type":        "string",
						"description": "An http/https media URL, a YouTube link, or a bare YouTube video id.",
					},
					"content_type": map[string]any{
						"type":        "string",
						"description": "Optional MIME type. Inferred from the URL when omitted.",
					},
					"subtitles": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"url":      map[string]any{"type": "string"},
								"name":     map[string]any{"type": "string"},
								"language": map[string]any{"type": "string"},
							},
							"required":             []string{"url"},
							"additionalProperties": false,
						},
						"description": "WebVTT subtitle tracks. The first one is enabled.",
					},
					"subtitles_style": map[string]any{
						"type":        "object",
						"description": "Receiver text track style, for example {\"fontScale\": 1.2, \"foregroundColor\": \"#FFFFFFFF\"}.",
					},
					"cover": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"title": map[string]any{"type": "string"},
							"url":   map[string]any{"type": "string"},
						},
						"additionalProperties": false,
					},
					"start_time": map[string]any{
						"type":        "number",
						"minimum":     0,
						"description": "Start offset in seconds.",
					},
				},
				"required":             []string{"target_device", "source"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "control_playback",
			Description: "Control playback on a device: pause, resume, stop, seek by seconds, seek to a position, volume, mute and subtitles.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_device": targetDeviceSchema(),
					"action": map[string]any{
						"type": "string",
						"enum": domain.ControlActions,
					},
					"value": map[string]any{
						"type":        "number",
						"description": "Seconds for seek/seek_to, 0..1 for volume, a track id for subtitles, a scale for subtitles_size.",
					},
				},
				"required":             []string{"target_device", "action"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "get_playback_status",
			Description: "Report the receiver status and the current media status of a device.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_device": targetDeviceSchema(),
				},
				"required":             []string{"target_device"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "stop_casting",
			Description: "Stop the running application on a device and close its connection.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_device": targetDeviceSchema(),
				},
				"required":             []string{"target_device"},
				"additionalProperties": false,
			},
		},
	}
}
