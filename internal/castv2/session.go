package castv2

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/domain"
)

// Session is a joined receiver application. It implements
// adapters.CastSession.
type Session struct {
	conn *Conn
	app  domain.ApplicationInfo

	mu             sync.Mutex
	mediaSessionID int
	handler        func(domain.MediaStatus)
	closed         bool
}

func newSession(c *Conn, app domain.ApplicationInfo) *Session {
	return &Session{conn: c, app: app}
}

func (s *Session) AppID() string     { return s.app.AppID }
func (s *Session) SessionID() string { return s.app.SessionID }

func (s *Session) OnStatus(handler func(domain.MediaStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *Session) Load(ctx context.Context, media domain.MediaDescriptor, opts domain.LoadOptions) (*domain.MediaStatus, error) {
	return s.mediaRequest(ctx, loadPayload{
		Type:           "LOAD",
		SessionID:      s.app.SessionID,
		Media:          media,
		Autoplay:       opts.Autoplay,
		CurrentTime:    opts.CurrentTime,
		ActiveTrackIDs: opts.ActiveTrackIDs,
	})
}

func (s *Session) Play(ctx context.Context) (*domain.MediaStatus, error) {
	return s.mediaRequest(ctx, s.command("PLAY", nil))
}

func (s *Session) Pause(ctx context.Context) (*domain.MediaStatus, error) {
	return s.mediaRequest(ctx, s.command("PAUSE", nil))
}

func (s *Session) Stop(ctx context.Context) (*domain.MediaStatus, error) {
	return s.mediaRequest(ctx, s.command("STOP", nil))
}

func (s *Session) Seek(ctx context.Context, currentTime float64) (*domain.MediaStatus, error) {
	return s.mediaRequest(ctx, s.command("SEEK", &currentTime))
}

func (s *Session) GetStatus(ctx context.Context) (*domain.MediaStatus, error) {
	return s.mediaRequest(ctx, typed{Type: "GET_STATUS"})
}

// EditTracks sends EDIT_TRACKS_INFO. activeTrackIds is omitted when nil so a
// style-only edit leaves the active tracks alone.
func (s *Session) EditTracks(ctx context.Context, req domain.EditTracksRequest) (*domain.MediaStatus, error) {
	payload := map[string]any{
		"type":           "EDIT_TRACKS_INFO",
		"mediaSessionId": s.currentMediaSession(),
	}
	if req.ActiveTrackIDs != nil {
		payload["activeTrackIds"] = req.ActiveTrackIDs
	}
	if req.TextTrackStyle != nil {
		payload["textTrackStyle"] = req.TextTrackStyle
	}
	return s.mediaRequest(ctx, payload)
}

// Request sends an application-defined message and returns the raw reply.
// Replies without a requestId on the same namespace are accepted.
func (s *Session) Request(ctx context.Context, namespace string, payload any) (json.RawMessage, error) {
	if s.Closed() {
		return nil, domain.ErrNoSession
	}
	r, err := s.conn.exchange(ctx, s.app.TransportID, namespace, payload, true)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(r.payload), nil
}

func (s *Session) command(typ string, currentTime *float64) mediaCommand {
	return mediaCommand{Type: typ, MediaSessionID: s.currentMediaSession(), CurrentTime: currentTime}
}

func (s *Session) mediaRequest(ctx context.Context, payload any) (*domain.MediaStatus, error) {
	if s.Closed() {
		return nil, domain.ErrNoSession
	}
	r, err := s.conn.request(ctx, s.app.TransportID, namespaceMedia, payload)
	if err != nil {
		return nil, err
	}
	if r.typ != "MEDIA_STATUS" {
		return nil, fmt.Errorf("unexpected %s reply on media namespace", r.typ)
	}
	status, err := s.conn.opts.Registry.ParseStatus(s.app.AppID, r.payload)
	if err != nil {
		return nil, err
	}
	s.track(status)
	return status, nil
}

func (s *Session) handleStatus(payload []byte) {
	status, err := s.conn.opts.Registry.ParseStatus(s.app.AppID, payload)
	if err != nil {
		s.conn.logger.Debug("castv2_status_invalid", "app_id", s.app.AppID, "error", err.Error())
		return
	}
	s.track(status)

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		snapshot := *status
		s.conn.enqueue(func() { handler(snapshot) })
	}
}

func (s *Session) track(status *domain.MediaStatus) {
	if status == nil || status.MediaSessionID == 0 {
		return
	}
	s.mu.Lock()
	s.mediaSessionID = status.MediaSessionID
	s.mu.Unlock()
}

func (s *Session) currentMediaSession() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaSessionID
}

func (s *Session) supports(namespace string) bool {
	if len(s.app.Namespaces) == 0 {
		return true
	}
	for _, ns := range s.app.Namespaces {
		if ns == namespace {
			return true
		}
	}
	return false
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ adapters.CastSession = (*Session)(nil)
