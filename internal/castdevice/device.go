// Package castdevice drives one receiver: lazy connect, join-or-launch of an
// application session, and the media, volume and subtitle operations on top.
package castdevice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/buger/jsonparser"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/apps"
	"go2tv.app/castbeam/internal/domain"
	"go2tv.app/castbeam/internal/media"
)

var errNoVideoLoader = errors.New("youtube playback is not configured")

// VideoLoader queues a video on a YouTube receiver identified by its screen id.
type VideoLoader interface {
	PlayVideo(ctx context.Context, screenID, videoID string) error
}

type Options struct {
	Dialer   adapters.CastDialer
	Registry *apps.Registry
	Resolver *media.Resolver
	YouTube  VideoLoader
	Logger   *slog.Logger
	Now      func() time.Time
}

// Device is the public handle for one discovered receiver. Operations may be
// issued concurrently; each performs its own ensure-connected and
// ensure-session steps, so overlapping calls can dial or launch twice. The
// losing handle is closed and the winner's adopted.
type Device struct {
	dialer   adapters.CastDialer
	registry *apps.Registry
	resolver *media.Resolver
	youtube  VideoLoader
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	record    domain.DeviceRecord
	state     State
	dialing   int
	conn      adapters.CastConnection
	session   adapters.CastSession
	style     *domain.TextTrackStyle
	last      *domain.MediaStatus
	activity  time.Time
	idleSince time.Time
	handlers  []func(Event)
}

func New(rec domain.DeviceRecord, opts Options) *Device {
	if opts.Registry == nil {
		opts.Registry = apps.DefaultRegistry()
	}
	if opts.Resolver == nil {
		opts.Resolver = media.NewResolver(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Device{
		dialer:   opts.Dialer,
		registry: opts.Registry,
		resolver: opts.Resolver,
		youtube:  opts.YouTube,
		logger:   opts.Logger.With("device_id", rec.ID),
		now:      opts.Now,
		record:   rec,
		state:    StateDisconnected,
	}
}

func (d *Device) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record.ID
}

func (d *Device) Record() domain.DeviceRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record
}

// UpdateRecord replaces the discovery record. An open connection is kept; the
// new address is used on the next connect.
func (d *Device) UpdateRecord(rec domain.DeviceRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record = rec
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := Snapshot{
		Record:       d.record,
		State:        d.state,
		LastActivity: d.activity,
		IdleSince:    d.idleSince,
	}
	if d.session != nil {
		snap.AppID = d.session.AppID()
		snap.SessionID = d.session.SessionID()
	}
	if d.last != nil {
		status := *d.last
		snap.LastStatus = &status
	}
	return snap
}

// OnEvent registers a handler for device events. Handlers run on the
// goroutine that observed the event and must not block.
func (d *Device) OnEvent(handler func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler)
}

// Play resolves resource and plays it. YouTube ids go to the YouTube
// application and return a nil status; progress arrives as status events.
func (d *Device) Play(ctx context.Context, resource any, opts media.PlayOptions) (*domain.MediaStatus, error) {
	res, err := d.resolver.Resolve(resource, opts)
	if err != nil {
		return nil, err
	}
	return d.PlayResolved(ctx, res)
}

// PlayResolved plays a resolution produced by media.Resolver.
func (d *Device) PlayResolved(ctx context.Context, res media.Resolution) (*domain.MediaStatus, error) {
	if res.IsYouTube() {
		return nil, d.playYouTube(ctx, res.VideoID)
	}
	if res.Media == nil {
		return nil, errors.New("resolution has no media")
	}

	conn, sess, err := d.ensureSession(ctx, apps.DefaultMediaReceiverID)
	if err != nil {
		return nil, err
	}
	status, err := sess.Load(ctx, *res.Media, res.Options)
	if err != nil {
		return nil, d.failSession(conn, sess, err)
	}

	d.mu.Lock()
	if res.Style != nil && d.session == sess {
		d.style = res.Style.Clone()
	}
	d.mu.Unlock()

	d.logger.Info("device_play", "content_id", res.Media.ContentID, "content_type", res.Media.ContentType)
	d.observe(status)
	return status, nil
}

func (d *Device) playYouTube(ctx context.Context, videoID string) error {
	if d.youtube == nil {
		return errNoVideoLoader
	}
	conn, sess, err := d.ensureSession(ctx, apps.YouTubeID)
	if err != nil {
		return err
	}
	raw, err := sess.Request(ctx, apps.MdxNamespace, map[string]string{"type": "getMdxSessionStatus"})
	if err != nil {
		return d.failSession(conn, sess, err)
	}
	screenID, err := jsonparser.GetString(raw, "data", "screenId")
	if err != nil || screenID == "" {
		return &domain.ProtocolRejectionError{Type: "MDX_SESSION_STATUS", Reason: "no screen id in reply"}
	}
	if err := d.youtube.PlayVideo(ctx, screenID, videoID); err != nil {
		return fmt.Errorf("queue youtube video %s: %w", videoID, err)
	}
	d.logger.Info("device_play_youtube", "video_id", videoID)
	d.touch()
	return nil
}

func (d *Device) Pause(ctx context.Context) (*domain.MediaStatus, error) {
	return d.sessionOp(ctx, func(s adapters.CastSession) (*domain.MediaStatus, error) {
		return s.Pause(ctx)
	})
}

func (d *Device) Unpause(ctx context.Context) (*domain.MediaStatus, error) {
	return d.sessionOp(ctx, func(s adapters.CastSession) (*domain.MediaStatus, error) {
		return s.Play(ctx)
	})
}

func (d *Device) Resume(ctx context.Context) (*domain.MediaStatus, error) {
	return d.Unpause(ctx)
}

func (d *Device) Stop(ctx context.Context) (*domain.MediaStatus, error) {
	return d.sessionOp(ctx, func(s adapters.CastSession) (*domain.MediaStatus, error) {
		return s.Stop(ctx)
	})
}

func (d *Device) GetStatus(ctx context.Context) (*domain.MediaStatus, error) {
	return d.sessionOp(ctx, func(s adapters.CastSession) (*domain.MediaStatus, error) {
		return s.GetStatus(ctx)
	})
}

func (d *Device) GetCurrentTime(ctx context.Context) (float64, error) {
	status, err := d.GetStatus(ctx)
	if err != nil {
		return 0, err
	}
	return status.CurrentTime, nil
}

// Seek moves playback by delta seconds relative to the current position.
func (d *Device) Seek(ctx context.Context, delta float64) (*domain.MediaStatus, error) {
	status, err := d.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return d.SeekTo(ctx, max(status.CurrentTime+delta, 0))
}

func (d *Device) SeekTo(ctx context.Context, t float64) (*domain.MediaStatus, error) {
	return d.sessionOp(ctx, func(s adapters.CastSession) (*domain.MediaStatus, error) {
		return s.Seek(ctx, t)
	})
}

func (d *Device) GetReceiverStatus(ctx context.Context) (*domain.ReceiverStatus, error) {
	conn, err := d.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	status, err := conn.ReceiverStatus(ctx)
	if err != nil {
		return nil, d.fail(conn, err)
	}
	return status, nil
}

func (d *Device) SetVolume(ctx context.Context, level float64) (*domain.ReceiverStatus, error) {
	level = min(max(level, 0), 1)
	return d.volumeOp(ctx, domain.Volume{Level: &level})
}

func (d *Device) SetVolumeMuted(ctx context.Context, muted bool) (*domain.ReceiverStatus, error) {
	return d.volumeOp(ctx, domain.Volume{Muted: &muted})
}

func (d *Device) volumeOp(ctx context.Context, v domain.Volume) (*domain.ReceiverStatus, error) {
	conn, _, err := d.ensureSession(ctx, "")
	if err != nil {
		return nil, err
	}
	status, err := conn.SetVolume(ctx, v)
	if err != nil {
		return nil, d.fail(conn, err)
	}
	d.touch()
	return status, nil
}

func (d *Device) SubtitlesOff(ctx context.Context) (*domain.MediaStatus, error) {
	return d.sessionOp(ctx, func(s adapters.CastSession) (*domain.MediaStatus, error) {
		return s.EditTracks(ctx, domain.EditTracksRequest{ActiveTrackIDs: []int{}})
	})
}

func (d *Device) ChangeSubtitles(ctx context.Context, trackID int) (*domain.MediaStatus, error) {
	return d.sessionOp(ctx, func(s adapters.CastSession) (*domain.MediaStatus, error) {
		return s.EditTracks(ctx, domain.EditTracksRequest{ActiveTrackIDs: []int{trackID}})
	})
}

// ChangeSubtitlesSize rescales the subtitle style set by the last Play on the
// current session. It fails with ErrNoSubtitleStyle before any request when no
// style has been set.
func (d *Device) ChangeSubtitlesSize(ctx context.Context, scale float64) (*domain.MediaStatus, error) {
	d.mu.Lock()
	style := d.style.Clone()
	owner := d.session
	d.mu.Unlock()
	if style == nil || owner == nil {
		return nil, domain.ErrNoSubtitleStyle
	}

	conn, sess, err := d.ensureSession(ctx, "")
	if err != nil {
		return nil, err
	}
	if sess != owner {
		return nil, domain.ErrNoSubtitleStyle
	}

	style.FontScale = scale
	status, err := sess.EditTracks(ctx, domain.EditTracksRequest{TextTrackStyle: style})
	if err != nil {
		return nil, d.failSession(conn, sess, err)
	}

	d.mu.Lock()
	if d.session == sess {
		d.style = style
	}
	d.mu.Unlock()
	d.observe(status)
	return status, nil
}

// Close stops the active application, closes the connection and clears both
// handles. The next operation connects again.
func (d *Device) Close(ctx context.Context) error {
	return d.shutdown(ctx, true)
}

// Disconnect closes the connection but leaves the receiver application
// running, so playback continues without this sender.
func (d *Device) Disconnect(ctx context.Context) error {
	return d.shutdown(ctx, false)
}

func (d *Device) shutdown(ctx context.Context, stopApp bool) error {
	d.mu.Lock()
	conn, sess := d.conn, d.session
	d.conn, d.session, d.style = nil, nil, nil
	d.state = StateDisconnected
	d.mu.Unlock()

	if conn == nil {
		return nil
	}
	var errs []error
	if stopApp && sess != nil {
		if err := conn.StopSession(ctx, sess.SessionID()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := conn.Close(); err != nil {
		errs = append(errs, err)
	}
	d.logger.Info("device_close", "stop_app", stopApp)
	d.emit(Event{Kind: EventDisconnected})
	return errors.Join(errs...)
}

func (d *Device) sessionOp(ctx context.Context, op func(adapters.CastSession) (*domain.MediaStatus, error)) (*domain.MediaStatus, error) {
	conn, sess, err := d.ensureSession(ctx, "")
	if err != nil {
		return nil, err
	}
	status, err := op(sess)
	if err != nil {
		return nil, d.failSession(conn, sess, err)
	}
	d.observe(status)
	return status, nil
}
