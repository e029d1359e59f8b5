package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go2tv.app/castbeam/internal/apps"
	"go2tv.app/castbeam/internal/beam"
	"go2tv.app/castbeam/internal/castdevice"
	"go2tv.app/castbeam/internal/config"
	"go2tv.app/castbeam/internal/discovery"
	"go2tv.app/castbeam/internal/events"
	"go2tv.app/castbeam/internal/media"
	"go2tv.app/castbeam/internal/store"
	"go2tv.app/castbeam/internal/youtube"
)

// Runtime is the assembled castbeam object graph shared by the MCP server
// and the castctl CLI.
type Runtime struct {
	Bundle    Bundle
	Scanner   *discovery.Scanner
	Discovery *discovery.Service
	Manager   *beam.Manager
	Events    events.Publisher

	cache *store.Store
}

// Assemble builds every component from cfg. The scanner is not started until
// Discovery.Start or the first listing. loopCtx bounds the scanner loop.
func Assemble(loopCtx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	registry := apps.DefaultRegistry()

	bundle, err := NewBundle(cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	scanner := discovery.NewScanner(bundle.MulticastDNS, bundle.SSDP, bundle.Fetcher, discovery.ScannerConfig{
		Service:        cfg.Discovery.MDNSService,
		SearchTarget:   cfg.Discovery.SSDPSearchTarget,
		Manufacturer:   cfg.Discovery.Manufacturer,
		FetchTimeout:   cfg.Discovery.FetchTimeout,
		RescanInterval: cfg.Discovery.RescanInterval,
	}, logger.With(slog.String("component", "scanner")))

	rt := &Runtime{
		Bundle:    bundle,
		Scanner:   scanner,
		Discovery: discovery.NewService(scanner, loopCtx),
		Events:    events.Nop{},
	}

	managerCfg := beam.Config{
		DiscoveryTimeoutMS:         cfg.Manager.DiscoveryTimeoutMS,
		FallbackDiscoveryTimeoutMS: cfg.Manager.FallbackDiscoveryTimeoutMS,
		IdleCleanupAfter:           cfg.Manager.IdleCleanupAfter,
		CleanupSweepEvery:          cfg.Manager.CleanupSweepEvery,
		LeaveRunning:               cfg.Manager.LeaveRunningOnExit,
		Logger:                     logger.With(slog.String("component", "manager")),
	}

	if cfg.Cache.Path != "" {
		cache, err := store.Open(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open device cache: %w", err)
		}
		rt.cache = cache
		managerCfg.Cache = cache
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := events.ConnectMQTT(events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			QoS:         cfg.MQTT.QoS,
		}, logger.With(slog.String("component", "mqtt")))
		if err != nil {
			// Events are optional; keep running without them.
			logger.Warn("mqtt_unavailable", slog.String("broker", cfg.MQTT.Broker), slog.String("error", err.Error()))
		} else {
			rt.Events = publisher
		}
	}
	managerCfg.Events = rt.Events

	deviceOpts := castdevice.Options{
		Dialer:   bundle.Dialer,
		Registry: registry,
		Resolver: media.NewResolver(bundle.Mime),
		YouTube: youtube.NewLoader(youtube.Options{
			Retries: cfg.Cast.YouTubeRetries,
			Timeout: cfg.Cast.RequestTimeout,
			Logger:  logger.With(slog.String("component", "youtube")),
		}),
		Logger: logger.With(slog.String("component", "device")),
	}
	rt.Manager = beam.NewManager(rt.Discovery, deviceOpts, managerCfg)
	scanner.OnDevice(rt.Manager.HandleRecord)

	return rt, nil
}

// Close stops discovery, closes every open device connection and releases
// the cache and event publisher.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.Scanner.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop scanner: %w", err))
	}
	if err := r.Manager.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close manager: %w", err))
	}
	if err := r.Events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close events: %w", err))
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
