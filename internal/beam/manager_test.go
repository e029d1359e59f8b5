package beam

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go2tv.app/castbeam/internal/apps"
	"go2tv.app/castbeam/internal/castdevice"
	"go2tv.app/castbeam/internal/domain"
)

var livingRoom = domain.DeviceRecord{
	ID:       "0123456789abcdef0123456789abcdef",
	Instance: "Chromecast-0123456789abcdef0123456789abcdef._googlecast._tcp.local",
	Name:     "Living Room",
	Host:     "192.168.1.20",
	Port:     8009,
}

func livingRoomListing() domain.Device {
	return domain.Device{
		ID:           livingRoom.ID,
		Name:         livingRoom.Name,
		InstanceName: livingRoom.Instance,
		Host:         livingRoom.Host,
		Address:      "192.168.1.20:8009",
		Protocol:     "chromecast",
	}
}

func newTestManager(t *testing.T, disc *fakeDiscovery, dialer *fakeDialer, cfg Config) *Manager {
	t.Helper()
	manager := NewManager(disc, castdevice.Options{Dialer: dialer, YouTube: &fakeLoader{}}, cfg)
	t.Cleanup(func() { _ = manager.Close(context.Background()) })
	return manager
}

func toolCode(t *testing.T, err error) string {
	t.Helper()
	var te *domain.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected tool error, got %T: %v", err, err)
	}
	return te.Code
}

func TestCastMediaResolvesDeviceThroughDiscovery(t *testing.T) {
	disc := &fakeDiscovery{devices: []domain.Device{livingRoomListing()}}
	dialer := &fakeDialer{}
	manager := newTestManager(t, disc, dialer, Config{})

	result, err := manager.CastMedia(context.Background(), domain.CastRequest{
		TargetDevice: "Living Room",
		Source:       "http://media.local/movie.mp4",
	})
	if err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if !result.OK || result.DeviceID != livingRoom.ID {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.AppID != apps.DefaultMediaReceiverID {
		t.Fatalf("expected default media receiver, got %q", result.AppID)
	}
	if result.ContentType != "video/mp4" {
		t.Fatalf("expected video/mp4, got %q", result.ContentType)
	}
	conn := dialer.last()
	if conn == nil || conn.addr != livingRoom.Host || conn.port != 8009 {
		t.Fatalf("expected dial to %s:8009, got %+v", livingRoom.Host, conn)
	}
}

func TestCastMediaResolveDeviceFallsBackToLongerDiscoveryTimeout(t *testing.T) {
	disc := &fakeDiscovery{devicesByCall: [][]domain.Device{{}, {livingRoomListing()}}}
	manager := newTestManager(t, disc, &fakeDialer{}, Config{})

	if _, err := manager.CastMedia(context.Background(), domain.CastRequest{
		TargetDevice: livingRoom.ID,
		Source:       "http://media.local/movie.mp4",
	}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if !slices.Equal(disc.timeoutCalls, []int{defaultDiscoveryTimeoutMS, fallbackDiscoveryTimeoutMS}) {
		t.Fatalf("unexpected discovery timeouts: %v", disc.timeoutCalls)
	}
	for _, include := range disc.includeCalls {
		if !include {
			t.Fatal("expected device resolution to include unreachable devices")
		}
	}
}

func TestCastMediaMatchesSuffixedName(t *testing.T) {
	manager := newTestManager(t, &fakeDiscovery{}, &fakeDialer{}, Config{})
	manager.HandleRecord(livingRoom)

	result, err := manager.CastMedia(context.Background(), domain.CastRequest{
		TargetDevice: "living room (Chromecast)",
		Source:       "http://media.local/movie.mp4",
	})
	if err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if result.DeviceName != "Living Room" {
		t.Fatalf("unexpected device name %q", result.DeviceName)
	}
}

func TestCastMediaUnknownDevice(t *testing.T) {
	disc := &fakeDiscovery{}
	manager := newTestManager(t, disc, &fakeDialer{}, Config{})

	_, err := manager.CastMedia(context.Background(), domain.CastRequest{TargetDevice: "Kitchen", Source: "http://media.local/a.mp4"})
	if code := toolCode(t, err); code != "DEVICE_NOT_FOUND" {
		t.Fatalf("expected DEVICE_NOT_FOUND, got %s", code)
	}
	if disc.calls != 2 {
		t.Fatalf("expected two discovery passes, got %d", disc.calls)
	}
}

func TestCastMediaYouTubeSource(t *testing.T) {
	loader := &fakeLoader{}
	dialer := &fakeDialer{}
	manager := NewManager(&fakeDiscovery{}, castdevice.Options{Dialer: dialer, YouTube: loader}, Config{})
	defer manager.Close(context.Background())
	manager.HandleRecord(livingRoom)

	result, err := manager.CastMedia(context.Background(), domain.CastRequest{
		TargetDevice: livingRoom.ID,
		Source:       "https://youtu.be/dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if result.VideoID != "dQw4w9WgXcQ" || result.AppID != apps.YouTubeID {
		t.Fatalf("unexpected youtube result: %+v", result)
	}
	if !slices.Equal(loader.videos, []string{"dQw4w9WgXcQ"}) {
		t.Fatalf("unexpected queued videos: %v", loader.videos)
	}
}

func TestCastMediaHLSContentTypeWarning(t *testing.T) {
	manager := newTestManager(t, &fakeDiscovery{}, &fakeDialer{}, Config{})
	manager.HandleRecord(livingRoom)

	result, err := manager.CastMedia(context.Background(), domain.CastRequest{
		TargetDevice: livingRoom.ID,
		Source:       "http://media.local/live/index.m3u8",
		ContentType:  "application/vnd.apple.mpegurl",
	})
	if err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if result.ContentType != "video/mp2t" {
		t.Fatalf("expected HLS remap to video/mp2t, got %q", result.ContentType)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Warnings)
	}
}

func TestCastMediaErrors(t *testing.T) {
	cases := []struct {
		name   string
		dialer *fakeDialer
		req    domain.CastRequest
		code   string
	}{
		{
			name:   "empty source",
			dialer: &fakeDialer{},
			req:    domain.CastRequest{TargetDevice: livingRoom.ID},
			code:   "UNSUPPORTED_MEDIA",
		},
		{
			name:   "unreachable",
			dialer: &fakeDialer{err: errors.New("connection refused")},
			req:    domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"},
			code:   "DEVICE_UNREACHABLE",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager := newTestManager(t, &fakeDiscovery{}, tc.dialer, Config{})
			manager.HandleRecord(livingRoom)
			_, err := manager.CastMedia(context.Background(), tc.req)
			if code := toolCode(t, err); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestControlPlaybackErrors(t *testing.T) {
	value := 1.5
	cases := []struct {
		name string
		req  domain.ControlRequest
		code string
	}{
		{name: "unknown action", req: domain.ControlRequest{TargetDevice: livingRoom.ID, Action: "rewind"}, code: "INVALID_ACTION"},
		{name: "missing value", req: domain.ControlRequest{TargetDevice: livingRoom.ID, Action: "seek"}, code: "INVALID_ACTION"},
		{name: "no session", req: domain.ControlRequest{TargetDevice: livingRoom.ID, Action: "pause"}, code: "NO_SESSION"},
		{name: "no subtitle style", req: domain.ControlRequest{TargetDevice: livingRoom.ID, Action: "subtitles_size", Value: &value}, code: "PRECONDITION_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager := newTestManager(t, &fakeDiscovery{}, &fakeDialer{}, Config{})
			manager.HandleRecord(livingRoom)
			_, err := manager.Control(context.Background(), tc.req)
			if code := toolCode(t, err); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestControlPlaybackSeekAndVolume(t *testing.T) {
	dialer := &fakeDialer{}
	manager := newTestManager(t, &fakeDiscovery{}, dialer, Config{})
	manager.HandleRecord(livingRoom)
	ctx := context.Background()

	if _, err := manager.CastMedia(ctx, domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}

	delta := 10.0
	result, err := manager.Control(ctx, domain.ControlRequest{TargetDevice: livingRoom.ID, Action: "SEEK", Value: &delta})
	if err != nil {
		t.Fatalf("seek returned error: %v", err)
	}
	if result.Action != "seek" || result.CurrentTime == nil {
		t.Fatalf("unexpected seek result: %+v", result)
	}

	level := 0.3
	if _, err := manager.Control(ctx, domain.ControlRequest{TargetDevice: livingRoom.ID, Action: "volume", Value: &level}); err != nil {
		t.Fatalf("volume returned error: %v", err)
	}
	if _, err := manager.Control(ctx, domain.ControlRequest{TargetDevice: livingRoom.ID, Action: "mute"}); err != nil {
		t.Fatalf("mute returned error: %v", err)
	}
	conn := dialer.last()
	if len(conn.volumes) != 2 || *conn.volumes[0].Level != 0.3 || !*conn.volumes[1].Muted {
		t.Fatalf("unexpected volume calls: %+v", conn.volumes)
	}
}

func TestStatusWithoutSessionReportsReceiverOnly(t *testing.T) {
	manager := newTestManager(t, &fakeDiscovery{}, &fakeDialer{}, Config{})
	manager.HandleRecord(livingRoom)

	result, err := manager.Status(context.Background(), domain.StatusRequest{TargetDevice: livingRoom.ID})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if result.Receiver == nil || result.Media != nil {
		t.Fatalf("expected receiver status only, got %+v", result)
	}
	if result.ConnectionState != string(castdevice.StateConnected) {
		t.Fatalf("unexpected connection state %q", result.ConnectionState)
	}
}

func TestStopCastingClosesDevice(t *testing.T) {
	dialer := &fakeDialer{}
	manager := newTestManager(t, &fakeDiscovery{}, dialer, Config{})
	manager.HandleRecord(livingRoom)
	ctx := context.Background()

	if _, err := manager.CastMedia(ctx, domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	result, err := manager.StopCasting(ctx, domain.StopRequest{TargetDevice: livingRoom.ID})
	if err != nil {
		t.Fatalf("StopCasting returned error: %v", err)
	}
	if !result.OK {
		t.Fatal("expected ok stop result")
	}
	conn := dialer.last()
	if !conn.isClosed() || len(conn.stopped) != 1 {
		t.Fatalf("expected stopped session and closed connection, got stopped=%v closed=%v", conn.stopped, conn.isClosed())
	}
}

func TestHandleRecordNotifiesCachesAndPublishes(t *testing.T) {
	cache := &fakeCache{}
	events := &fakeEvents{}
	manager := newTestManager(t, &fakeDiscovery{}, &fakeDialer{}, Config{Cache: cache, Events: events})

	var notified []string
	manager.OnDevice(func(dev *castdevice.Device) {
		notified = append(notified, dev.Record().Name)
	})

	manager.HandleRecord(domain.DeviceRecord{ID: livingRoom.ID, Host: livingRoom.Host})
	manager.HandleRecord(livingRoom)
	renamed := livingRoom
	renamed.Name = "Den"
	manager.HandleRecord(renamed)

	if !slices.Equal(notified, []string{"Living Room", "Den"}) {
		t.Fatalf("unexpected notifications: %v", notified)
	}
	if len(cache.upserts) != 2 {
		t.Fatalf("expected two cache writes, got %d", len(cache.upserts))
	}
	if !slices.Equal(events.kinds(), []string{"device", "device"}) {
		t.Fatalf("unexpected published events: %v", events.kinds())
	}
	if devs := manager.Devices(); len(devs) != 1 || devs[0].Record().Name != "Den" {
		t.Fatalf("expected one renamed device, got %d", len(devs))
	}
}

func TestSeedMarksCachedDevicesUntilDiscovered(t *testing.T) {
	cache := &fakeCache{records: []domain.DeviceRecord{livingRoom, {ID: "unresolved"}}}
	disc := &fakeDiscovery{devicesByCall: [][]domain.Device{{}, {livingRoomListing()}}}
	manager := newTestManager(t, disc, &fakeDialer{}, Config{Cache: cache})

	seeded, err := manager.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}
	if seeded != 1 {
		t.Fatalf("expected one seeded device, got %d", seeded)
	}

	devs, err := manager.ListDevices(context.Background(), 100, true)
	if err != nil {
		t.Fatalf("ListDevices returned error: %v", err)
	}
	if len(devs) != 1 || !devs[0].Cached {
		t.Fatalf("expected one cached listing entry, got %+v", devs)
	}

	manager.HandleRecord(livingRoom)
	devs, _ = manager.ListDevices(context.Background(), 100, true)
	if len(devs) != 1 || devs[0].Cached {
		t.Fatalf("expected discovered device to drop cached flag, got %+v", devs)
	}
	if len(cache.upserts) != 1 {
		t.Fatalf("expected seeding not to rewrite the cache, got %d writes", len(cache.upserts))
	}
}

func TestDeviceEventsArePublished(t *testing.T) {
	events := &fakeEvents{}
	dialer := &fakeDialer{}
	manager := newTestManager(t, &fakeDiscovery{}, dialer, Config{Events: events})
	manager.HandleRecord(livingRoom)
	ctx := context.Background()

	if _, err := manager.CastMedia(ctx, domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if _, err := manager.StopCasting(ctx, domain.StopRequest{TargetDevice: livingRoom.ID}); err != nil {
		t.Fatalf("StopCasting returned error: %v", err)
	}
	if !slices.Equal(events.kinds(), []string{"device", "connected", "disconnected"}) {
		t.Fatalf("unexpected published events: %v", events.kinds())
	}
}

func TestCleanupSweepClosesIdleSession(t *testing.T) {
	dialer := &fakeDialer{}
	manager := newTestManager(t, &fakeDiscovery{}, dialer, Config{IdleCleanupAfter: time.Minute})
	manager.HandleRecord(livingRoom)
	ctx := context.Background()

	if _, err := manager.CastMedia(ctx, domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	conn := dialer.last()
	conn.setState(domain.PlayerStateIdle)

	manager.cleanupSweep(ctx)
	if conn.isClosed() {
		t.Fatal("expected session to survive the first idle observation")
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	manager.cleanupSweep(ctx)

	waitForCondition(t, 400*time.Millisecond, conn.isClosed)
	if len(conn.stopped) != 1 {
		t.Fatalf("expected idle session stop once, got %d", len(conn.stopped))
	}
	dev, _ := manager.Device(livingRoom.ID)
	if dev.State() != castdevice.StateDisconnected {
		t.Fatalf("expected disconnected device, got %s", dev.State())
	}
}

func TestCleanupSweepKeepsPlayingSession(t *testing.T) {
	dialer := &fakeDialer{}
	manager := newTestManager(t, &fakeDiscovery{}, dialer, Config{IdleCleanupAfter: time.Minute})
	manager.HandleRecord(livingRoom)
	ctx := context.Background()

	if _, err := manager.CastMedia(ctx, domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	manager.now = func() time.Time { return time.Now().Add(time.Hour) }
	manager.cleanupSweep(ctx)

	if dialer.last().isClosed() {
		t.Fatal("expected playing session to be kept")
	}
}

func TestManagerCloseTeardownClosesDevices(t *testing.T) {
	dialer := &fakeDialer{}
	manager := NewManager(&fakeDiscovery{}, castdevice.Options{Dialer: dialer}, Config{})
	manager.HandleRecord(livingRoom)

	if _, err := manager.CastMedia(context.Background(), domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if err := manager.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !dialer.last().isClosed() {
		t.Fatal("expected device connection to be closed")
	}
	if _, err := manager.CastMedia(context.Background(), domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); toolCode(t, err) != "INTERNAL_ERROR" {
		t.Fatalf("expected shutdown error, got %v", err)
	}
}

func TestManagerCloseLeaveRunningDisconnectsOnly(t *testing.T) {
	dialer := &fakeDialer{}
	manager := NewManager(&fakeDiscovery{}, castdevice.Options{Dialer: dialer}, Config{LeaveRunning: true})
	manager.HandleRecord(livingRoom)

	if _, err := manager.CastMedia(context.Background(), domain.CastRequest{TargetDevice: livingRoom.ID, Source: "http://media.local/a.mp4"}); err != nil {
		t.Fatalf("CastMedia returned error: %v", err)
	}
	if err := manager.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	conn := dialer.last()
	if !conn.isClosed() {
		t.Fatal("expected device connection to be closed")
	}
	conn.mu.Lock()
	stopped := len(conn.stopped)
	conn.mu.Unlock()
	if stopped != 0 {
		t.Fatalf("expected no StopSession calls, got %d", stopped)
	}
}

func TestMatchTargetDevice(t *testing.T) {
	devices := []domain.Device{
		{ID: "aaa", Name: "Kitchen", InstanceName: "Chromecast-aaa._googlecast._tcp.local"},
		{ID: "bbb", Name: "Living Room"},
	}
	cases := map[string]string{
		"aaa":                                   "aaa",
		"Living Room":                           "bbb",
		"living room":                           "bbb",
		"Kitchen (Chromecast)":                  "aaa",
		"chromecast-aaa._googlecast._tcp.local": "aaa",
	}
	for target, want := range cases {
		got := matchTargetDevice(devices, target)
		if got == nil || got.ID != want {
			t.Fatalf("target %q: expected %s, got %+v", target, want, got)
		}
	}
	if matchTargetDevice(devices, "Bedroom") != nil {
		t.Fatal("expected no match")
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEveryControlActionHasHandler(t *testing.T) {
	for _, action := range domain.ControlActions {
		if _, ok := controlActions[action]; !ok {
			t.Fatalf("action %s has no handler", action)
		}
	}
	if len(controlActions) != len(domain.ControlActions) {
		t.Fatalf("handlers=%d actions=%d", len(controlActions), len(domain.ControlActions))
	}
}
