package beam

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/apps"
	"go2tv.app/castbeam/internal/domain"
)

type fakeDiscovery struct {
	devices       []domain.Device
	err           error
	calls         int
	timeoutCalls  []int
	includeCalls  []bool
	devicesByCall [][]domain.Device
}

func (f *fakeDiscovery) ListLocalHardware(ctx context.Context, timeoutMS int, includeUnreachable bool) ([]domain.Device, error) {
	f.timeoutCalls = append(f.timeoutCalls, timeoutMS)
	f.includeCalls = append(f.includeCalls, includeUnreachable)
	callIdx := f.calls
	f.calls++

	if f.err != nil {
		return nil, f.err
	}
	if len(f.devicesByCall) > 0 {
		if callIdx >= len(f.devicesByCall) {
			callIdx = len(f.devicesByCall) - 1
		}
		return append([]domain.Device{}, f.devicesByCall[callIdx]...), nil
	}
	return append([]domain.Device{}, f.devices...), nil
}

type fakeDialer struct {
	mu      sync.Mutex
	err     error
	running []domain.ApplicationInfo
	status  domain.PlayerState
	conns   []*fakeConn
}

func (f *fakeDialer) Dial(ctx context.Context, host string, port int) (adapters.CastConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	state := f.status
	if state == "" {
		state = domain.PlayerStatePlaying
	}
	c := &fakeConn{
		addr:    host,
		port:    port,
		running: append([]domain.ApplicationInfo{}, f.running...),
		state:   state,
		done:    make(chan struct{}),
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeDialer) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeConn struct {
	addr string
	port int

	mu       sync.Mutex
	running  []domain.ApplicationInfo
	state    domain.PlayerState
	stopped  []string
	volumes  []domain.Volume
	launches []string
	closed   bool
	done     chan struct{}
}

func (c *fakeConn) GetSessions(ctx context.Context) ([]domain.ApplicationInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ApplicationInfo{}, c.running...), nil
}

func (c *fakeConn) ReceiverStatus(ctx context.Context) (*domain.ReceiverStatus, error) {
	running, _ := c.GetSessions(ctx)
	level := 0.5
	return &domain.ReceiverStatus{Applications: running, Volume: domain.Volume{Level: &level}}, nil
}

func (c *fakeConn) Launch(ctx context.Context, appID string) (adapters.CastSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launches = append(c.launches, appID)
	app := domain.ApplicationInfo{AppID: appID, SessionID: "sess-" + appID, TransportID: "web-1"}
	c.running = append(c.running, app)
	return &fakeSession{conn: c, app: app}, nil
}

func (c *fakeConn) Join(ctx context.Context, app domain.ApplicationInfo) (adapters.CastSession, error) {
	return &fakeSession{conn: c, app: app}, nil
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
func (c *fakeConn) Err() error            { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setState(state domain.PlayerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

type fakeSession struct {
	conn *fakeConn
	app  domain.ApplicationInfo
}

func (s *fakeSession) AppID() string     { return s.app.AppID }
func (s *fakeSession) SessionID() string { return s.app.SessionID }

func (s *fakeSession) status() (*domain.MediaStatus, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return &domain.MediaStatus{MediaSessionID: 1, PlayerState: s.conn.state, CurrentTime: 42}, nil
}

func (s *fakeSession) Load(ctx context.Context, m domain.MediaDescriptor, opts domain.LoadOptions) (*domain.MediaStatus, error) {
	return s.status()
}
func (s *fakeSession) Play(ctx context.Context) (*domain.MediaStatus, error)  { return s.status() }
func (s *fakeSession) Pause(ctx context.Context) (*domain.MediaStatus, error) { return s.status() }
func (s *fakeSession) Stop(ctx context.Context) (*domain.MediaStatus, error)  { return s.status() }
func (s *fakeSession) Seek(ctx context.Context, t float64) (*domain.MediaStatus, error) {
	return s.status()
}
func (s *fakeSession) GetStatus(ctx context.Context) (*domain.MediaStatus, error) { return s.status() }
func (s *fakeSession) EditTracks(ctx context.Context, req domain.EditTracksRequest) (*domain.MediaStatus, error) {
	return s.status()
}

func (s *fakeSession) Request(ctx context.Context, namespace string, payload any) (json.RawMessage, error) {
	if namespace != apps.MdxNamespace {
		return nil, errors.New("unexpected namespace")
	}
	return json.RawMessage(`{"type":"mdxSessionStatus","data":{"screenId":"screen-1"}}`), nil
}

func (s *fakeSession) OnStatus(func(domain.MediaStatus)) {}
func (s *fakeSession) Closed() bool                      { return false }

type fakeLoader struct {
	videos []string
}

func (l *fakeLoader) PlayVideo(ctx context.Context, screenID, videoID string) error {
	l.videos = append(l.videos, videoID)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	records []domain.DeviceRecord
	upserts []domain.DeviceRecord
}

func (c *fakeCache) Upsert(ctx context.Context, rec domain.DeviceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts = append(c.upserts, rec)
	return nil
}

func (c *fakeCache) List(ctx context.Context) ([]domain.DeviceRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.DeviceRecord{}, c.records...), nil
}

type publishedEvent struct {
	deviceID string
	kind     string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (e *fakeEvents) Publish(deviceID, kind string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{deviceID: deviceID, kind: kind})
	return nil
}

func (e *fakeEvents) kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.kind)
	}
	return out
}
