package beam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go2tv.app/castbeam/internal/castdevice"
	"go2tv.app/castbeam/internal/discovery"
	"go2tv.app/castbeam/internal/domain"
	"go2tv.app/castbeam/internal/media"
)

const (
	defaultDiscoveryTimeoutMS  = 2500
	fallbackDiscoveryTimeoutMS = 12000

	defaultIdleCleanupAfter  = 10 * time.Minute
	defaultCleanupSweepEvery = 5 * time.Second
	sweepStatusTimeout       = 3 * time.Second
	cleanupCloseTimeout      = 5 * time.Second
	cacheWriteTimeout        = 2 * time.Second
)

type deviceLister interface {
	ListLocalHardware(ctx context.Context, timeoutMS int, includeUnreachable bool) ([]domain.Device, error)
}

// deviceCache persists resolved records between runs.
type deviceCache interface {
	Upsert(ctx context.Context, rec domain.DeviceRecord) error
	List(ctx context.Context) ([]domain.DeviceRecord, error)
}

type eventPublisher interface {
	Publish(deviceID, kind string, payload any) error
}

type Config struct {
	DiscoveryTimeoutMS         int
	FallbackDiscoveryTimeoutMS int
	IdleCleanupAfter           time.Duration
	CleanupSweepEvery          time.Duration
	// LeaveRunning makes Close disconnect without stopping receiver apps.
	LeaveRunning bool
	Cache        deviceCache
	Events       eventPublisher
	Logger       *slog.Logger
}

// Manager owns the public Device handles, keyed by canonical device id, and
// exposes the tool-level cast operations on top of them.
type Manager struct {
	discovery  deviceLister
	deviceOpts castdevice.Options
	resolver   *media.Resolver
	cache      deviceCache
	events     eventPublisher
	logger     *slog.Logger

	discoveryTimeouts []int
	idleCleanupAfter  time.Duration
	cleanupSweepEvery time.Duration
	leaveRunning      bool
	now               func() time.Time

	cleanupLoopCancel context.CancelFunc
	cleanupLoopDone   chan struct{}
	closeOnce         sync.Once
	closeErr          error

	mu       sync.Mutex
	devices  map[string]*castdevice.Device
	cached   map[string]bool
	handlers []func(*castdevice.Device)
	closed   bool
}

func NewManager(discovery deviceLister, deviceOpts castdevice.Options, cfg Config) *Manager {
	if deviceOpts.Resolver == nil {
		deviceOpts.Resolver = media.NewResolver(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deviceOpts.Logger == nil {
		deviceOpts.Logger = logger
	}
	primary := cfg.DiscoveryTimeoutMS
	if primary <= 0 {
		primary = defaultDiscoveryTimeoutMS
	}
	fallback := cfg.FallbackDiscoveryTimeoutMS
	if fallback <= 0 {
		fallback = fallbackDiscoveryTimeoutMS
	}
	idleAfter := cfg.IdleCleanupAfter
	if idleAfter == 0 {
		idleAfter = defaultIdleCleanupAfter
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	manager := &Manager{
		discovery:         discovery,
		deviceOpts:        deviceOpts,
		resolver:          deviceOpts.Resolver,
		cache:             cfg.Cache,
		events:            cfg.Events,
		logger:            logger,
		discoveryTimeouts: []int{primary, fallback},
		idleCleanupAfter:  idleAfter,
		cleanupSweepEvery: cfg.CleanupSweepEvery,
		leaveRunning:      cfg.LeaveRunning,
		now:               time.Now,
		cleanupLoopCancel: cleanupCancel,
		cleanupLoopDone:   make(chan struct{}),
		devices:           map[string]*castdevice.Device{},
		cached:            map[string]bool{},
	}
	go manager.runCleanupLoop(cleanupCtx)
	return manager
}

// OnDevice registers a handler called with the public handle every time
// discovery resolves or changes a device.
func (m *Manager) OnDevice(handler func(*castdevice.Device)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// HandleRecord is the discovery scanner's device callback.
func (m *Manager) HandleRecord(rec domain.DeviceRecord) {
	dev, ok := m.upsert(rec, false)
	if !ok {
		return
	}

	if m.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		if err := m.cache.Upsert(ctx, rec); err != nil {
			m.logger.Warn("device_cache_write_failed", "device_id", rec.ID, "error", err)
		}
		cancel()
	}
	m.publish(rec.ID, "device", discovery.DeviceFromRecord(rec))

	m.mu.Lock()
	handlers := append([]func(*castdevice.Device){}, m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(dev)
	}
}

// Seed loads cached records so cast targets resolve before discovery has
// answered. Seeded devices are reported as cached until discovery sees them.
func (m *Manager) Seed(ctx context.Context) (int, error) {
	if m.cache == nil {
		return 0, nil
	}
	records, err := m.cache.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load device cache: %w", err)
	}
	seeded := 0
	for _, rec := range records {
		if _, ok := m.upsert(rec, true); ok {
			seeded++
		}
	}
	m.logger.Info("device_cache_seeded", "count", seeded)
	return seeded, nil
}

func (m *Manager) upsert(rec domain.DeviceRecord, fromCache bool) (*castdevice.Device, bool) {
	if rec.ID == "" || !rec.Resolved() {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false
	}

	if dev, ok := m.devices[rec.ID]; ok {
		if fromCache {
			return dev, false
		}
		dev.UpdateRecord(rec)
		delete(m.cached, rec.ID)
		return dev, true
	}

	dev := castdevice.New(rec, m.deviceOpts)
	dev.OnEvent(m.onDeviceEvent)
	m.devices[rec.ID] = dev
	if fromCache {
		m.cached[rec.ID] = true
	}
	return dev, true
}

func (m *Manager) Device(id string) (*castdevice.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[id]
	return dev, ok
}

// Devices returns the known handles ordered by name.
func (m *Manager) Devices() []*castdevice.Device {
	m.mu.Lock()
	out := make([]*castdevice.Device, 0, len(m.devices))
	for _, dev := range m.devices {
		out = append(out, dev)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Record(), out[j].Record()
		if !strings.EqualFold(a.Name, b.Name) {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		return a.ID < b.ID
	})
	return out
}

// ListDevices runs a discovery pass and merges in cached devices that did not
// answer. Entries carry the live connection state of their handle.
func (m *Manager) ListDevices(ctx context.Context, timeoutMS int, includeUnreachable bool) ([]domain.Device, error) {
	var found []domain.Device
	if m.discovery != nil {
		devs, err := m.discovery.ListLocalHardware(ctx, timeoutMS, includeUnreachable)
		if err != nil {
			return nil, toolError("INTERNAL_ERROR", fmt.Sprintf("device discovery failed: %v", err))
		}
		found = devs
	}

	seen := make(map[string]bool, len(found))
	for i := range found {
		seen[found[i].ID] = true
		if dev, ok := m.Device(found[i].ID); ok {
			found[i].ConnectionState = string(dev.State())
		}
	}
	if includeUnreachable {
		for _, entry := range m.listing() {
			if !seen[entry.ID] && entry.Cached {
				found = append(found, entry)
			}
		}
	}
	return found, nil
}

func (m *Manager) listing() []domain.Device {
	devs := m.Devices()
	out := make([]domain.Device, 0, len(devs))
	m.mu.Lock()
	cached := make(map[string]bool, len(m.cached))
	for id := range m.cached {
		cached[id] = true
	}
	m.mu.Unlock()

	for _, dev := range devs {
		entry := discovery.DeviceFromRecord(dev.Record())
		entry.ConnectionState = string(dev.State())
		entry.Cached = cached[entry.ID]
		out = append(out, entry)
	}
	return out
}

func (m *Manager) CastMedia(ctx context.Context, req domain.CastRequest) (*domain.CastResult, error) {
	if m.isClosed() {
		return nil, toolError("INTERNAL_ERROR", "cast manager is shutting down")
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return nil, toolError("UNSUPPORTED_MEDIA", "source is empty")
	}

	res, err := m.resolver.Resolve(castResource(req), media.PlayOptions{StartTime: req.StartTime})
	if err != nil {
		return nil, unsupportedMediaError(source, err)
	}

	dev, err := m.resolveDevice(ctx, req.TargetDevice)
	if err != nil {
		return nil, err
	}

	status, err := dev.PlayResolved(ctx, res)
	if err != nil {
		return nil, deviceToolError(dev.ID(), "cast", err)
	}

	snap := dev.Snapshot()
	result := &domain.CastResult{
		OK:         true,
		DeviceID:   snap.Record.ID,
		DeviceName: snap.Record.Name,
		AppID:      snap.AppID,
		VideoID:    res.VideoID,
		Status:     status,
		Warnings:   []string{},
	}
	if res.Media != nil {
		result.ContentID = res.Media.ContentID
		result.ContentType = res.Media.ContentType
		if media.IsHLSPlaylist(req.ContentType) {
			result.Warnings = append(result.Warnings, "HLS playlist content type sent as video/mp2t")
		}
	}
	m.logger.Info("cast_media", "device_id", result.DeviceID, "app_id", result.AppID, "video_id", result.VideoID, "content_type", result.ContentType)
	return result, nil
}

// castResource keeps a bare string when nothing but the source is given so
// YouTube links and ids are detected.
func castResource(req domain.CastRequest) any {
	source := strings.TrimSpace(req.Source)
	if req.ContentType == "" && len(req.Subtitles) == 0 && req.SubtitlesStyle == nil && req.Cover == nil {
		return source
	}
	if _, ok := media.YouTubeID(source); ok {
		return source
	}
	return media.Request{
		URL:            source,
		ContentType:    req.ContentType,
		Subtitles:      req.Subtitles,
		SubtitlesStyle: req.SubtitlesStyle,
		Cover:          req.Cover,
	}
}

func (m *Manager) Control(ctx context.Context, req domain.ControlRequest) (*domain.ControlResult, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	op, ok := controlActions[action]
	if !ok {
		return nil, invalidActionError(req.Action)
	}
	if op.needsValue && req.Value == nil {
		return nil, toolError("INVALID_ACTION", fmt.Sprintf("action %q requires a value", action))
	}

	dev, err := m.resolveDevice(ctx, req.TargetDevice)
	if err != nil {
		return nil, err
	}

	value := 0.0
	if req.Value != nil {
		value = *req.Value
	}
	status, err := op.run(ctx, dev, value)
	if err != nil {
		return nil, deviceToolError(dev.ID(), action, err)
	}

	result := &domain.ControlResult{OK: true, DeviceID: dev.ID(), Action: action, Status: status}
	if status != nil {
		current := status.CurrentTime
		result.CurrentTime = &current
	}
	m.logger.Info("control_playback", "device_id", result.DeviceID, "action", action)
	return result, nil
}

func (m *Manager) Status(ctx context.Context, req domain.StatusRequest) (*domain.StatusResult, error) {
	dev, err := m.resolveDevice(ctx, req.TargetDevice)
	if err != nil {
		return nil, err
	}

	receiver, err := dev.GetReceiverStatus(ctx)
	if err != nil {
		return nil, deviceToolError(dev.ID(), "status", err)
	}
	result := &domain.StatusResult{DeviceID: dev.ID(), Receiver: receiver}

	status, err := dev.GetStatus(ctx)
	switch {
	case err == nil:
		result.Media = status
	case errors.Is(err, domain.ErrNoSession):
	default:
		return nil, deviceToolError(dev.ID(), "status", err)
	}
	result.ConnectionState = string(dev.State())
	return result, nil
}

func (m *Manager) StopCasting(ctx context.Context, req domain.StopRequest) (*domain.StopResult, error) {
	if strings.TrimSpace(req.TargetDevice) == "" {
		return nil, toolError("DEVICE_NOT_FOUND", "target_device is empty")
	}
	dev, err := m.resolveDevice(ctx, req.TargetDevice)
	if err != nil {
		return nil, err
	}
	if err := dev.Close(ctx); err != nil {
		return nil, deviceToolError(dev.ID(), "stop_casting", err)
	}
	return &domain.StopResult{OK: true, DeviceID: dev.ID()}, nil
}

func (m *Manager) resolveDevice(ctx context.Context, target string) (*castdevice.Device, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, toolError("DEVICE_NOT_FOUND", "target_device is empty")
	}
	if matched := matchTargetDevice(m.listing(), target); matched != nil {
		if dev, ok := m.Device(matched.ID); ok {
			return dev, nil
		}
	}
	if m.discovery == nil {
		return nil, toolError("DEVICE_NOT_FOUND", fmt.Sprintf("device not found: %s", target))
	}

	timeouts := m.discoveryTimeouts
	for i, timeoutMS := range timeouts {
		if i > 0 && timeoutMS == timeouts[i-1] {
			continue
		}

		devs, err := m.discovery.ListLocalHardware(ctx, timeoutMS, true)
		if err != nil {
			return nil, toolError("INTERNAL_ERROR", fmt.Sprintf("device discovery failed: %v", err))
		}
		if matched := matchTargetDevice(devs, target); matched != nil {
			if dev, ok := m.Device(matched.ID); ok {
				return dev, nil
			}
			if dev, ok := m.upsert(recordFromListing(*matched), false); ok {
				return dev, nil
			}
		}
	}

	return nil, toolError("DEVICE_NOT_FOUND", fmt.Sprintf("device not found: %s", target))
}

func recordFromListing(dev domain.Device) domain.DeviceRecord {
	rec := domain.DeviceRecord{
		ID:       dev.ID,
		Instance: dev.InstanceName,
		Name:     dev.Name,
		Host:     dev.Host,
		Port:     discovery.DefaultCastPort,
	}
	if host, port, err := net.SplitHostPort(dev.Address); err == nil {
		if rec.Host == "" {
			rec.Host = host
		}
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			rec.Port = p
		}
	}
	return rec
}

func matchTargetDevice(devices []domain.Device, target string) *domain.Device {
	target = strings.TrimSpace(target)
	normalizedTarget := normalizeDeviceTarget(target)

	for i := range devices {
		if strings.TrimSpace(devices[i].ID) == target {
			return &devices[i]
		}
	}
	for i := range devices {
		if strings.TrimSpace(devices[i].Name) == target {
			return &devices[i]
		}
	}
	for i := range devices {
		if strings.EqualFold(strings.TrimSpace(devices[i].ID), target) {
			return &devices[i]
		}
		if strings.EqualFold(strings.TrimSpace(devices[i].Name), target) {
			return &devices[i]
		}
		if strings.EqualFold(devices[i].InstanceName, target) {
			return &devices[i]
		}
		if normalizeDeviceTarget(devices[i].Name) == normalizedTarget {
			return &devices[i]
		}
	}
	return nil
}

func normalizeDeviceTarget(v string) string {
	normalized := strings.ToLower(strings.TrimSpace(v))
	if idx := strings.LastIndex(normalized, " ("); idx > 0 && strings.HasSuffix(normalized, ")") {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	return normalized
}

func (m *Manager) onDeviceEvent(ev castdevice.Event) {
	switch ev.Kind {
	case castdevice.EventStatus, castdevice.EventFinished:
		m.publish(ev.DeviceID, string(ev.Kind), ev.Status)
	case castdevice.EventDisconnected:
		payload := map[string]any{"at": ev.At}
		if ev.Err != nil {
			payload["error"] = ev.Err.Error()
		}
		m.publish(ev.DeviceID, string(ev.Kind), payload)
	case castdevice.EventConnected:
		m.publish(ev.DeviceID, string(ev.Kind), map[string]any{"at": ev.At})
	}
}

func (m *Manager) publish(deviceID, kind string, payload any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(deviceID, kind, payload); err != nil {
		m.logger.Warn("event_publish_failed", "device_id", deviceID, "kind", kind, "error", err)
	}
}

func (m *Manager) runCleanupLoop(ctx context.Context) {
	defer close(m.cleanupLoopDone)

	sweepEvery := m.cleanupSweepEvery
	if sweepEvery <= 0 {
		sweepEvery = defaultCleanupSweepEvery
	}
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupSweep(ctx)
		}
	}
}

// cleanupSweep refreshes the status of every active session and closes the
// ones that stayed idle past idleCleanupAfter.
func (m *Manager) cleanupSweep(ctx context.Context) {
	if m.idleCleanupAfter <= 0 {
		return
	}
	now := m.now()
	for _, dev := range m.Devices() {
		if dev.State() != castdevice.StateSessionActive {
			continue
		}
		statusCtx, cancel := context.WithTimeout(ctx, sweepStatusTimeout)
		_, _ = dev.GetStatus(statusCtx)
		cancel()

		if !shouldCleanupDevice(dev.Snapshot(), now, m.idleCleanupAfter) {
			continue
		}
		closeCtx, cancelClose := context.WithTimeout(ctx, cleanupCloseTimeout)
		if err := dev.Close(closeCtx); err != nil {
			m.logger.Warn("idle_cleanup_failed", "device_id", dev.ID(), "error", err)
		} else {
			m.logger.Info("idle_cleanup", "device_id", dev.ID())
		}
		cancelClose()
	}
}

func shouldCleanupDevice(snap castdevice.Snapshot, now time.Time, idleAfter time.Duration) bool {
	if snap.State != castdevice.StateSessionActive || snap.IdleSince.IsZero() {
		return false
	}
	return now.Sub(snap.IdleSince) >= idleAfter
}

func (m *Manager) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		if m.cleanupLoopCancel != nil {
			m.cleanupLoopCancel()
		}
		if m.cleanupLoopDone != nil {
			select {
			case <-m.cleanupLoopDone:
			case <-ctx.Done():
				m.closeErr = ctx.Err()
				return
			}
		}

		var errs []error
		for _, dev := range m.Devices() {
			if dev.State() == castdevice.StateDisconnected {
				continue
			}
			closeDevice := dev.Close
			if m.leaveRunning {
				closeDevice = dev.Disconnect
			}
			if err := closeDevice(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", dev.ID(), err))
			}
		}
		m.closeErr = errors.Join(errs...)
	})

	return m.closeErr
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
