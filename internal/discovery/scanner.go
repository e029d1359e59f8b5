package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/domain"
)

const (
	DefaultSearchTarget = "urn:dial-multiscreen-org:service:dial:1"
	DefaultManufacturer = "Google"
	defaultFetchTimeout = 5 * time.Second
	inboxSize           = 64
)

var (
	ErrScannerRunning    = errors.New("scanner already running")
	ErrScannerNotRunning = errors.New("scanner not running")
	ErrScannerStopped    = errors.New("scanner stopped")
)

type ScannerConfig struct {
	Service        string
	SearchTarget   string
	Manufacturer   string
	FetchTimeout   time.Duration
	RescanInterval time.Duration
}

func (c ScannerConfig) withDefaults() ScannerConfig {
	if c.Service == "" {
		c.Service = ServiceName
	}
	if c.SearchTarget == "" {
		c.SearchTarget = DefaultSearchTarget
	}
	if c.Manufacturer == "" {
		c.Manufacturer = DefaultManufacturer
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	return c
}

type scanEvent struct {
	partials []partial
}

// Scanner runs the multicast DNS and SSDP listeners and folds their answers
// into a Directory. All directory mutation and handler calls happen on one
// loop goroutine. No handler runs after Stop returns.
type Scanner struct {
	mdns    adapters.MulticastDNS
	probe   adapters.SSDPProbe
	fetcher adapters.Fetcher
	cfg     ScannerConfig
	logger  *slog.Logger
	dir     *Directory

	inflight sync.Map
	fetchMu  sync.Mutex
	draining bool
	fetches  sync.WaitGroup

	mu       sync.Mutex
	handlers []func(domain.DeviceRecord)
	running  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScanner builds a scanner. Either listener may be nil; fetcher is required
// when probe is set.
func NewScanner(mdns adapters.MulticastDNS, probe adapters.SSDPProbe, fetcher adapters.Fetcher, cfg ScannerConfig, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{
		mdns:    mdns,
		probe:   probe,
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		dir:     NewDirectory(),
	}
}

// OnDevice registers a handler for records that become resolved or change.
func (s *Scanner) OnDevice(handler func(domain.DeviceRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrScannerStopped
	}
	if s.running {
		return ErrScannerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	inbox := make(chan scanEvent, inboxSize)

	var (
		g       errgroup.Group
		started atomic.Int32
	)
	if s.mdns != nil {
		g.Go(func() error {
			err := s.mdns.Start(runCtx, func(resp adapters.MulticastResponse) {
				s.onMulticast(runCtx, inbox, resp)
			})
			if err != nil {
				s.logger.Warn("scanner_listener_failed", "listener", "mdns", "error", err.Error())
				return fmt.Errorf("mdns: %w", err)
			}
			started.Add(1)
			return nil
		})
	}
	if s.probe != nil && s.fetcher != nil {
		g.Go(func() error {
			err := s.probe.Start(runCtx, func(resp adapters.ProbeResponse) {
				s.onProbe(runCtx, inbox, resp)
			})
			if err != nil {
				s.logger.Warn("scanner_listener_failed", "listener", "ssdp", "error", err.Error())
				return fmt.Errorf("ssdp: %w", err)
			}
			started.Add(1)
			return nil
		})
	}

	err := g.Wait()
	if started.Load() == 0 {
		cancel()
		if err == nil {
			err = errors.New("no discovery listeners configured")
		}
		return fmt.Errorf("start scanner: %w", err)
	}

	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	go s.loop(runCtx, inbox, done)

	s.logger.Info("scanner_start", "listeners", started.Load())
	s.query()
	return nil
}

// Rescan re-issues the pointer query and the SSDP search.
func (s *Scanner) Rescan() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrScannerNotRunning
	}
	return s.query()
}

func (s *Scanner) query() error {
	var errs []error
	if s.mdns != nil {
		if err := s.mdns.Query(s.cfg.Service, adapters.RecordPTR); err != nil {
			errs = append(errs, fmt.Errorf("mdns query: %w", err))
		}
	}
	if s.probe != nil && s.fetcher != nil {
		if err := s.probe.Search(s.cfg.SearchTarget); err != nil {
			errs = append(errs, fmt.Errorf("ssdp search: %w", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Debug("scanner_query_failed", "error", err.Error())
	}
	return err
}

// Stop cancels both listeners, waits for the loop and pending descriptor
// fetches, and releases the adapters. A stopped scanner cannot restart.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	var errs []error
	if s.mdns != nil {
		if err := s.mdns.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.probe != nil {
		if err := s.probe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	<-done
	s.fetchMu.Lock()
	s.draining = true
	s.fetchMu.Unlock()
	s.fetches.Wait()

	s.logger.Info("scanner_stop", "devices", s.dir.Len())
	return errors.Join(errs...)
}

// Devices returns the resolved records known so far.
func (s *Scanner) Devices() []domain.DeviceRecord {
	return s.dir.Records()
}

func (s *Scanner) Lookup(id string) (domain.DeviceRecord, bool) {
	return s.dir.Lookup(id)
}

func (s *Scanner) loop(ctx context.Context, inbox <-chan scanEvent, done chan<- struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.cfg.RescanInterval > 0 {
		ticker := time.NewTicker(s.cfg.RescanInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-inbox:
			s.apply(ctx, ev)
		case <-tick:
			_ = s.query()
		}
	}
}

func (s *Scanner) apply(ctx context.Context, ev scanEvent) {
	for _, p := range ev.partials {
		for _, rec := range s.dir.Apply(p) {
			if ctx.Err() != nil {
				return
			}
			s.emit(rec)
		}
	}
}

func (s *Scanner) emit(rec domain.DeviceRecord) {
	s.mu.Lock()
	handlers := slices.Clone(s.handlers)
	s.mu.Unlock()

	s.logger.Debug("scanner_device", "id", rec.ID, "name", rec.Name, "host", rec.Host)
	for _, h := range handlers {
		h(rec)
	}
}

func (s *Scanner) post(ctx context.Context, inbox chan<- scanEvent, ev scanEvent) {
	select {
	case inbox <- ev:
	case <-ctx.Done():
	}
}

func (s *Scanner) onMulticast(ctx context.Context, inbox chan<- scanEvent, resp adapters.MulticastResponse) {
	partials := decodeMulticast(resp)
	if len(partials) == 0 {
		return
	}
	s.post(ctx, inbox, scanEvent{partials: partials})
}

func (s *Scanner) onProbe(ctx context.Context, inbox chan<- scanEvent, resp adapters.ProbeResponse) {
	location, ok := probeLocation(resp)
	if !ok || ctx.Err() != nil {
		return
	}
	if !s.beginFetch() {
		return
	}
	if _, busy := s.inflight.LoadOrStore(location, struct{}{}); busy {
		s.fetches.Done()
		return
	}

	go func() {
		defer s.fetches.Done()
		defer s.inflight.Delete(location)

		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()

		body, err := s.fetcher.Fetch(fetchCtx, location)
		if err != nil {
			s.logger.Debug("scanner_descriptor_fetch_failed", "location", location, "error", err.Error())
			return
		}
		desc, err := ParseDescriptor(body, s.cfg.Manufacturer)
		if err != nil {
			s.logger.Debug("scanner_descriptor_rejected", "location", location, "error", err.Error())
			return
		}
		s.post(ctx, inbox, scanEvent{partials: []partial{decodeProbe(desc, resp, location)}})
	}()
}

// beginFetch reserves a slot in fetches unless Stop is already waiting on it.
func (s *Scanner) beginFetch() bool {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if s.draining {
		return false
	}
	s.fetches.Add(1)
	return true
}
