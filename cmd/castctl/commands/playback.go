package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"go2tv.app/castbeam/internal/domain"
)

var playFlags struct {
	contentType string
	subtitles   []string
	startTime   float64
	title       string
	cover       string
	fontScale   float64
}

var playCmd = &cobra.Command{
	Use:   "play <device> <source>",
	Short: "Cast a media URL or YouTube video",
	Args:  cobra.ExactArgs(2),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		req := domain.CastRequest{
			TargetDevice: args[0],
			Source:       args[1],
			ContentType:  playFlags.contentType,
			StartTime:    playFlags.startTime,
		}
		for _, url := range playFlags.subtitles {
			req.Subtitles = append(req.Subtitles, domain.SubtitleSpec{URL: url})
		}
		if playFlags.fontScale > 0 {
			req.SubtitlesStyle = &domain.TextTrackStyle{FontScale: playFlags.fontScale}
		}
		if playFlags.cover != "" || playFlags.title != "" {
			req.Cover = &domain.CoverSpec{Title: playFlags.title, URL: playFlags.cover}
		}

		result, err := s.rt.Manager.CastMedia(s.ctx, req)
		if err != nil {
			return err
		}
		if s.out.json {
			return json.NewEncoder(s.out.w).Encode(result)
		}
		what := result.ContentID
		if result.VideoID != "" {
			what = "YouTube " + result.VideoID
		}
		s.out.linef("%s %s on %s", s.out.paint(ansiGreen, "casting"), what, s.out.paint(ansiBold, result.DeviceName))
		for _, w := range result.Warnings {
			s.out.linef("warning: %s", w)
		}
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status <device>",
	Short: "Show receiver and media status",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		result, err := s.rt.Manager.Status(s.ctx, domain.StatusRequest{TargetDevice: args[0]})
		if err != nil {
			return err
		}
		if s.out.json {
			return json.NewEncoder(s.out.w).Encode(result)
		}
		s.out.linef("device:     %s (%s)", result.DeviceID, result.ConnectionState)
		if r := result.Receiver; r != nil && r.Volume.Level != nil {
			muted := r.Volume.Muted != nil && *r.Volume.Muted
			s.out.linef("volume:     %.2f muted=%v", *r.Volume.Level, muted)
		}
		if result.Media == nil {
			s.out.linef("media:      %s", s.out.paint(ansiDim, "nothing playing"))
			return nil
		}
		s.out.linef("media:      %s at %.1fs", result.Media.PlayerState, result.Media.CurrentTime)
		return nil
	}),
}

var closeCmd = &cobra.Command{
	Use:   "close <device>",
	Short: "Stop the receiver application and disconnect",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		result, err := s.rt.Manager.StopCasting(s.ctx, domain.StopRequest{TargetDevice: args[0]})
		if err != nil {
			return err
		}
		if s.out.json {
			return json.NewEncoder(s.out.w).Encode(result)
		}
		s.out.linef("closed %s", result.DeviceID)
		return nil
	}),
}

type controlSpec struct {
	use    string
	action string
	short  string
	// valueArg names the positional value, empty when the action takes none.
	valueArg string
}

var controlSpecs = []controlSpec{
	{use: "pause", action: "pause", short: "Pause playback"},
	{use: "resume", action: "resume", short: "Resume playback"},
	{use: "stop", action: "stop", short: "Stop the current media"},
	{use: "seek", action: "seek", short: "Seek by a number of seconds (negative rewinds)", valueArg: "seconds"},
	{use: "seek-to", action: "seek_to", short: "Seek to an absolute position in seconds", valueArg: "seconds"},
	{use: "volume", action: "volume", short: "Set the volume between 0 and 1", valueArg: "level"},
	{use: "mute", action: "mute", short: "Mute the receiver"},
	{use: "unmute", action: "unmute", short: "Unmute the receiver"},
	{use: "subtitles", action: "subtitles", short: "Enable a subtitle track by id", valueArg: "track"},
	{use: "subtitles-off", action: "subtitles_off", short: "Disable subtitles"},
	{use: "subtitles-size", action: "subtitles_size", short: "Change the subtitle font scale", valueArg: "scale"},
}

func controlCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(controlSpecs))
	for _, spec := range controlSpecs {
		use := spec.use + " <device>"
		nargs := 1
		if spec.valueArg != "" {
			use += " <" + spec.valueArg + ">"
			nargs = 2
		}
		cmds = append(cmds, &cobra.Command{
			Use:   use,
			Short: spec.short,
			Args:  cobra.ExactArgs(nargs),
			RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
				return runControl(s, spec, args)
			}),
		})
	}
	return cmds
}

func runControl(s *session, spec controlSpec, args []string) error {
	req := domain.ControlRequest{TargetDevice: args[0], Action: spec.action}
	if spec.valueArg != "" {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", spec.valueArg, args[1], err)
		}
		req.Value = &v
	}

	result, err := s.rt.Manager.Control(s.ctx, req)
	if err != nil {
		return err
	}
	if s.out.json {
		return json.NewEncoder(s.out.w).Encode(result)
	}
	line := fmt.Sprintf("%s on %s", result.Action, result.DeviceID)
	if result.Status != nil {
		line += fmt.Sprintf(": %s at %.1fs", result.Status.PlayerState, result.Status.CurrentTime)
	}
	s.out.linef("%s", line)
	return nil
}
