package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go2tv.app/castbeam/internal/domain"
)

const (
	defaultTimeoutMS = 2500
	reachabilityWait = 400 * time.Millisecond
	pollInterval     = 50 * time.Millisecond
	quietPeriod      = 600 * time.Millisecond
)

var isReachableAddress = defaultReachableAddress

// Service is the listing facade over a Scanner.
type Service struct {
	scanner  *Scanner
	loopCtx  context.Context
	once     sync.Once
	startErr error
}

func NewService(scanner *Scanner, loopCtx context.Context) *Service {
	if loopCtx == nil {
		loopCtx = context.Background()
	}

	return &Service{
		scanner: scanner,
		loopCtx: loopCtx,
	}
}

func (s *Service) Scanner() *Scanner {
	return s.scanner
}

// Start starts the scanner once; later calls return the first result.
func (s *Service) Start() error {
	if s.scanner == nil {
		return errors.New("discovery scanner is not configured")
	}
	s.once.Do(func() {
		s.startErr = s.scanner.Start(s.loopCtx)
	})
	return s.startErr
}

// ListLocalHardware rescans and collects devices until the set has been quiet
// for a short period or timeoutMS elapses.
func (s *Service) ListLocalHardware(ctx context.Context, timeoutMS int, includeUnreachable bool) ([]domain.Device, error) {
	if err := s.Start(); err != nil {
		return nil, err
	}
	if timeoutMS <= 0 {
		timeoutMS = defaultTimeoutMS
	}

	_ = s.scanner.Rescan()

	records, err := s.collect(ctx, time.Duration(timeoutMS)*time.Millisecond)
	if err != nil {
		return nil, err
	}

	normalized := normalizeRecords(records)
	if !includeUnreachable {
		normalized = filterReachable(normalized)
	}
	sortDevices(normalized)
	return normalized, nil
}

func (s *Service) collect(ctx context.Context, window time.Duration) ([]domain.DeviceRecord, error) {
	deadline := time.NewTimer(window)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastCount := -1
	lastChange := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return s.scanner.Devices(), nil
		case <-ticker.C:
			current := s.scanner.Devices()
			if len(current) != lastCount {
				lastCount = len(current)
				lastChange = time.Now()
				continue
			}
			if lastCount > 0 && time.Since(lastChange) >= quietPeriod {
				return current, nil
			}
		}
	}
}

func normalizeRecords(records []domain.DeviceRecord) []domain.Device {
	result := make([]domain.Device, 0, len(records))
	for _, rec := range records {
		result = append(result, DeviceFromRecord(rec))
	}
	return result
}

// DeviceFromRecord builds the listing entry for a resolved record.
func DeviceFromRecord(rec domain.DeviceRecord) domain.Device {
	port := rec.Port
	if port <= 0 {
		port = DefaultCastPort
	}
	instance := rec.Instance
	if instance == "" {
		instance = InstanceName(rec.ID)
	}

	return domain.Device{
		ID:           rec.ID,
		Name:         strings.TrimSpace(rec.Name),
		InstanceName: instance,
		Host:         rec.Host,
		Address:      net.JoinHostPort(rec.Host, strconv.Itoa(port)),
		Protocol:     "chromecast",
		Capabilities: chromecastCapabilities(),
	}
}

func filterReachable(all []domain.Device) []domain.Device {
	filtered := make([]domain.Device, 0, len(all))
	for _, dev := range all {
		if isReachableAddress(dev.Address, reachabilityWait) {
			filtered = append(filtered, dev)
		}
	}
	return filtered
}

func sortDevices(all []domain.Device) {
	sort.Slice(all, func(i, j int) bool {
		if strings.ToLower(all[i].Name) != strings.ToLower(all[j].Name) {
			return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name)
		}
		if strings.ToLower(all[i].Address) != strings.ToLower(all[j].Address) {
			return strings.ToLower(all[i].Address) < strings.ToLower(all[j].Address)
		}
		return all[i].ID < all[j].ID
	})
}

func chromecastCapabilities() domain.Capabilities {
	return domain.Capabilities{
		SupportsURLSource:  true,
		SupportsHLSM3U8URL: true,
		SupportsYouTube:    true,
		SupportsSubtitles:  true,
		Limitations: []domain.Limitation{
			{
				Code:    "LOCAL_FILES_UNSUPPORTED",
				Message: "Receivers fetch media themselves; sources must be URLs reachable from the device.",
			},
		},
	}
}

func defaultReachableAddress(address string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
