package castdevice

import (
	"context"
	"encoding/json"
	"sync"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/apps"
	"go2tv.app/castbeam/internal/domain"
)

var testRecord = domain.DeviceRecord{
	ID:       "0123456789abcdef0123456789abcdef",
	Instance: "Chromecast-0123456789abcdef0123456789abcdef._googlecast._tcp.local",
	Name:     "Living Room",
	Host:     "192.168.1.20",
	Port:     8009,
}

type fakeDialer struct {
	mu      sync.Mutex
	err     error
	running []domain.ApplicationInfo
	conns   []*fakeConn
	arrived chan struct{}
	gate    chan struct{}
}

func (f *fakeDialer) Dial(ctx context.Context, host string, port int) (adapters.CastConnection, error) {
	if f.arrived != nil {
		f.arrived <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{
		host:    host,
		running: append([]domain.ApplicationInfo(nil), f.running...),
		done:    make(chan struct{}),
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeDialer) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeDialer) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

type fakeConn struct {
	host string

	mu       sync.Mutex
	running  []domain.ApplicationInfo
	launches []string
	joins    []string
	stopped  []string
	volumes  []domain.Volume
	sessions []*fakeSession
	closed   bool
	done     chan struct{}
	err      error
}

func (c *fakeConn) GetSessions(ctx context.Context) ([]domain.ApplicationInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ApplicationInfo(nil), c.running...), nil
}

func (c *fakeConn) ReceiverStatus(ctx context.Context) (*domain.ReceiverStatus, error) {
	running, _ := c.GetSessions(ctx)
	return &domain.ReceiverStatus{Applications: running}, nil
}

func (c *fakeConn) Launch(ctx context.Context, appID string) (adapters.CastSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launches = append(c.launches, appID)
	app := domain.ApplicationInfo{AppID: appID, SessionID: "launched-" + appID, TransportID: "web-1"}
	c.running = append(c.running, app)
	s := newFakeSession(app)
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *fakeConn) Join(ctx context.Context, app domain.ApplicationInfo) (adapters.CastSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, app.AppID)
	s := newFakeSession(app)
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *fakeConn) StopSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = append(c.stopped, sessionID)
	return nil
}

func (c *fakeConn) SetVolume(ctx context.Context, v domain.Volume) (*domain.ReceiverStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes = append(c.volumes, v)
	return &domain.ReceiverStatus{Volume: v}, nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// sever simulates the receiver dropping the connection.
func (c *fakeConn) sever(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	_ = c.Close()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) session(i int) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[i]
}

type fakeSession struct {
	app domain.ApplicationInfo

	mu       sync.Mutex
	calls    []string
	loads    []domain.MediaDescriptor
	options  []domain.LoadOptions
	seeks    []float64
	edits    []domain.EditTracksRequest
	current  float64
	err      error
	mdx      json.RawMessage
	requests []string
	handler  func(domain.MediaStatus)
	ended    bool
}

func newFakeSession(app domain.ApplicationInfo) *fakeSession {
	return &fakeSession{
		app: app,
		mdx: json.RawMessage(`{"type":"mdxSessionStatus","data":{"screenId":"screen-42","deviceId":"abc"}}`),
	}
}

func (s *fakeSession) AppID() string     { return s.app.AppID }
func (s *fakeSession) SessionID() string { return s.app.SessionID }

func (s *fakeSession) record(call string) (*domain.MediaStatus, error) {
	s.calls = append(s.calls, call)
	if s.err != nil {
		return nil, s.err
	}
	state := domain.PlayerStatePlaying
	if call == "pause" {
		state = domain.PlayerStatePaused
	}
	if call == "stop" {
		state = domain.PlayerStateIdle
	}
	return &domain.MediaStatus{MediaSessionID: 1, PlayerState: state, CurrentTime: s.current}, nil
}

func (s *fakeSession) Load(ctx context.Context, m domain.MediaDescriptor, opts domain.LoadOptions) (*domain.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, m)
	s.options = append(s.options, opts)
	return s.record("load")
}

func (s *fakeSession) Play(ctx context.Context) (*domain.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("play")
}

func (s *fakeSession) Pause(ctx context.Context) (*domain.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("pause")
}

func (s *fakeSession) Stop(ctx context.Context) (*domain.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("stop")
}

func (s *fakeSession) Seek(ctx context.Context, t float64) (*domain.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, t)
	s.current = t
	return s.record("seek")
}

func (s *fakeSession) GetStatus(ctx context.Context) (*domain.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("status")
}

func (s *fakeSession) EditTracks(ctx context.Context, req domain.EditTracksRequest) (*domain.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.TextTrackStyle = req.TextTrackStyle.Clone()
	s.edits = append(s.edits, req)
	return s.record("edit")
}

func (s *fakeSession) Request(ctx context.Context, namespace string, payload any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, namespace)
	if namespace != apps.MdxNamespace {
		return nil, &domain.ProtocolRejectionError{Type: "INVALID_REQUEST"}
	}
	return s.mdx, nil
}

func (s *fakeSession) OnStatus(handler func(domain.MediaStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *fakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// end simulates the receiver closing the application's transport.
func (s *fakeSession) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.err = domain.ErrNoSession
}

func (s *fakeSession) push(status domain.MediaStatus) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(status)
	}
}

func (s *fakeSession) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSession) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeLoader struct {
	mu     sync.Mutex
	played []string
}

func (l *fakeLoader) PlayVideo(ctx context.Context, screenID, videoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.played = append(l.played, screenID+"/"+videoID)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}
