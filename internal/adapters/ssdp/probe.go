package ssdp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	gossdp "github.com/alexballas/go-ssdp"

	"go2tv.app/castbeam/internal/adapters"
)

const defaultWaitSeconds = 2

// searchFunc matches gossdp.Search and is swapped in tests.
var searchFunc = gossdp.Search

// Probe runs M-SEARCH rounds through go-ssdp. go-ssdp only returns parsed
// positive responses, so every delivery reports status 200.
type Probe struct {
	waitSeconds int
	localAddr   string
	logger      *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	handler func(adapters.ProbeResponse)
	closed  bool
	wg      sync.WaitGroup
}

func NewProbe(waitSeconds int, localAddr string, logger *slog.Logger) *Probe {
	if waitSeconds <= 0 {
		waitSeconds = defaultWaitSeconds
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Probe{waitSeconds: waitSeconds, localAddr: localAddr, logger: logger}
}

func (p *Probe) Start(ctx context.Context, onResponse func(adapters.ProbeResponse)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != nil {
		return errors.New("ssdp probe already started")
	}
	p.ctx = ctx
	p.handler = onResponse
	return nil
}

// Search runs one search round in the background.
func (p *Probe) Search(serviceType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler == nil || p.closed {
		return errors.New("ssdp probe not running")
	}
	ctx, handler := p.ctx, p.handler

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		services, err := searchFunc(serviceType, p.waitSeconds, p.localAddr)
		if err != nil {
			p.logger.Debug("ssdp_search_failed", "search_target", serviceType, "error", err.Error())
			return
		}
		for _, svc := range services {
			if ctx.Err() != nil {
				return
			}
			handler(responseFromService(svc))
		}
	}()
	return nil
}

func (p *Probe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func responseFromService(svc gossdp.Service) adapters.ProbeResponse {
	header := http.Header{}
	header.Set("Location", svc.Location)
	header.Set("St", svc.Type)
	header.Set("Usn", svc.USN)
	if svc.Server != "" {
		header.Set("Server", svc.Server)
	}

	remote := ""
	if u, err := url.Parse(svc.Location); err == nil {
		remote = u.Hostname()
	}
	return adapters.ProbeResponse{Header: header, StatusCode: http.StatusOK, RemoteAddr: remote}
}

var _ adapters.SSDPProbe = (*Probe)(nil)
