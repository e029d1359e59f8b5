package wiring

import (
	"fmt"
	"log/slog"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/adapters/httpfetch"
	"go2tv.app/castbeam/internal/adapters/mdns"
	"go2tv.app/castbeam/internal/adapters/mimetype"
	"go2tv.app/castbeam/internal/adapters/ssdp"
	"go2tv.app/castbeam/internal/apps"
	"go2tv.app/castbeam/internal/castv2"
	"go2tv.app/castbeam/internal/config"
)

// Bundle wires all concrete network adapters in one place.
type Bundle struct {
	MulticastDNS adapters.MulticastDNS
	SSDP         adapters.SSDPProbe
	Fetcher      adapters.Fetcher
	Mime         adapters.MimeInferrer
	Dialer       adapters.CastDialer
}

// Wired reports which adapters are present, for the self-test output.
type Wired struct {
	MulticastDNS string `json:"multicast_dns"`
	SSDP         bool   `json:"ssdp"`
	Fetcher      bool   `json:"fetcher"`
	Mime         bool   `json:"mime"`
	CastDialer   bool   `json:"cast_dialer"`
}

func NewBundle(cfg *config.Config, registry *apps.Registry, logger *slog.Logger) (Bundle, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var multicast adapters.MulticastDNS
	switch cfg.Discovery.MDNSBackend {
	case "", "listener":
		multicast = mdns.NewListener(logger.With(slog.String("component", "mdns")))
	case "browse":
		multicast = mdns.NewBrowser(cfg.Discovery.BrowseTimeout, logger.With(slog.String("component", "mdns")))
	default:
		return Bundle{}, fmt.Errorf("unknown mdns backend %q", cfg.Discovery.MDNSBackend)
	}

	return Bundle{
		MulticastDNS: multicast,
		SSDP:         ssdp.NewProbe(cfg.Discovery.SSDPWaitSeconds, "", logger.With(slog.String("component", "ssdp"))),
		Fetcher: httpfetch.New(httpfetch.Options{
			Retries:  cfg.Discovery.FetchRetries,
			MaxBytes: cfg.Discovery.FetchMaxBytes,
			Logger:   logger.With(slog.String("component", "fetch")),
		}),
		Mime: mimetype.New(),
		Dialer: &castv2.Dialer{
			DialTimeout: cfg.Cast.DialTimeout,
			Port:        cfg.Cast.Port,
			Options: castv2.Options{
				RequestTimeout:    cfg.Cast.RequestTimeout,
				HeartbeatInterval: cfg.Cast.HeartbeatInterval,
				Registry:          registry,
				Logger:            logger.With(slog.String("component", "castv2")),
			},
		},
	}, nil
}

func (b Bundle) Wired() Wired {
	w := Wired{
		SSDP:       b.SSDP != nil,
		Fetcher:    b.Fetcher != nil,
		Mime:       b.Mime != nil,
		CastDialer: b.Dialer != nil,
	}
	switch b.MulticastDNS.(type) {
	case *mdns.Listener:
		w.MulticastDNS = "listener"
	case *mdns.Browser:
		w.MulticastDNS = "browse"
	}
	return w
}
