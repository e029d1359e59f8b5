package beam

import (
	"errors"
	"fmt"
	"strings"

	"go2tv.app/castbeam/internal/domain"
)

func toolError(code, message string) *domain.ToolError {
	return &domain.ToolError{Code: code, Message: message}
}

// deviceToolError maps a device operation failure to its tool error code.
func deviceToolError(deviceID, op string, err error) *domain.ToolError {
	var te *domain.ToolError
	if errors.As(err, &te) {
		return te
	}
	details := map[string]any{"device_id": deviceID, "operation": op}

	var rejection *domain.ProtocolRejectionError
	var precondition *domain.PreconditionError
	switch {
	case errors.Is(err, domain.ErrNoSession):
		return &domain.ToolError{
			Code:    "NO_SESSION",
			Message: err.Error(),
			SuggestedFixes: []string{
				"Start playback with cast_media before sending playback controls.",
			},
			Details: details,
		}
	case errors.As(err, &precondition):
		return &domain.ToolError{
			Code:    "PRECONDITION_FAILED",
			Message: precondition.Reason,
			SuggestedFixes: []string{
				"Cast the media again with subtitles_style set, then change the subtitle size.",
			},
			Details: details,
		}
	case errors.As(err, &rejection):
		details["rejection_type"] = rejection.Type
		if rejection.Reason != "" {
			details["reason"] = rejection.Reason
		}
		return &domain.ToolError{
			Code:    "PROTOCOL_REJECTED",
			Message: err.Error(),
			Details: details,
		}
	case domain.IsTransportError(err):
		return &domain.ToolError{
			Code:    "DEVICE_UNREACHABLE",
			Message: err.Error(),
			SuggestedFixes: []string{
				"Check the device is powered on and on the same network.",
				"Run list_cast_devices to refresh its address.",
			},
			Details: details,
		}
	default:
		return &domain.ToolError{Code: "INTERNAL_ERROR", Message: err.Error(), Details: details}
	}
}

func unsupportedMediaError(source string, err error) *domain.ToolError {
	limitation := domain.Limitation{Code: "MEDIA_UNRESOLVED", Message: err.Error()}
	if errors.Is(err, domain.ErrNotYouTube) {
		limitation = domain.Limitation{
			Code:    "NOT_A_YOUTUBE_VIDEO",
			Message: "The value looks like a URL or path but is not a YouTube link.",
		}
	}
	return &domain.ToolError{
		Code:        "UNSUPPORTED_MEDIA",
		Message:     fmt.Sprintf("cannot cast source: %v", err),
		Limitations: []domain.Limitation{limitation},
		SuggestedFixes: []string{
			"Use an http/https URL reachable from the receiver, or a YouTube link or video id.",
		},
		Details: map[string]any{"source": source},
	}
}

func invalidActionError(action string) *domain.ToolError {
	return &domain.ToolError{
		Code:    "INVALID_ACTION",
		Message: fmt.Sprintf("unknown control action %q", strings.TrimSpace(action)),
		SuggestedFixes: []string{
			"Use one of: " + strings.Join(domain.ControlActions, ", ") + ".",
		},
	}
}
