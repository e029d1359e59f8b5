package beam

import (
	"context"
	"math"

	"go2tv.app/castbeam/internal/castdevice"
	"go2tv.app/castbeam/internal/domain"
)

type controlAction struct {
	needsValue bool
	run        func(ctx context.Context, dev *castdevice.Device, value float64) (*domain.MediaStatus, error)
}

var controlActions = map[string]controlAction{
	"pause": {run: func(ctx context.Context, dev *castdevice.Device, _ float64) (*domain.MediaStatus, error) {
		return dev.Pause(ctx)
	}},
	"resume": {run: func(ctx context.Context, dev *castdevice.Device, _ float64) (*domain.MediaStatus, error) {
		return dev.Resume(ctx)
	}},
	"stop": {run: func(ctx context.Context, dev *castdevice.Device, _ float64) (*domain.MediaStatus, error) {
		return dev.Stop(ctx)
	}},
	"seek": {needsValue: true, run: func(ctx context.Context, dev *castdevice.Device, v float64) (*domain.MediaStatus, error) {
		return dev.Seek(ctx, v)
	}},
	"seek_to": {needsValue: true, run: func(ctx context.Context, dev *castdevice.Device, v float64) (*domain.MediaStatus, error) {
		return dev.SeekTo(ctx, v)
	}},
	"volume": {needsValue: true, run: func(ctx context.Context, dev *castdevice.Device, v float64) (*domain.MediaStatus, error) {
		_, err := dev.SetVolume(ctx, v)
		return nil, err
	}},
	"mute": {run: func(ctx context.Context, dev *castdevice.Device, _ float64) (*domain.MediaStatus, error) {
		_, err := dev.SetVolumeMuted(ctx, true)
		return nil, err
	}},
	"unmute": {run: func(ctx context.Context, dev *castdevice.Device, _ float64) (*domain.MediaStatus, error) {
		_, err := dev.SetVolumeMuted(ctx, false)
		return nil, err
	}},
	"subtitles_off": {run: func(ctx context.Context, dev *castdevice.Device, _ float64) (*domain.MediaStatus, error) {
		return dev.SubtitlesOff(ctx)
	}},
	"subtitles": {needsValue: true, run: func(ctx context.Context, dev *castdevice.Device, v float64) (*domain.MediaStatus, error) {
		return dev.ChangeSubtitles(ctx, int(math.Round(v)))
	}},
	"subtitles_size": {needsValue: true, run: func(ctx context.Context, dev *castdevice.Device, v float64) (*domain.MediaStatus, error) {
		return dev.ChangeSubtitlesSize(ctx, v)
	}},
}
