package mdns

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	hmdns "github.com/hashicorp/mdns"

	"go2tv.app/castbeam/internal/adapters"
)

const defaultBrowseTimeout = 3 * time.Second

// Browser answers pointer queries with hashicorp/mdns lookups and replays
// each complete entry as a synthetic PTR/SRV/TXT/A response. Use it where
// binding 5353 with address reuse is not possible.
type Browser struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	handler func(adapters.MulticastResponse)
	wg      sync.WaitGroup
	closed  bool
}

func NewBrowser(timeout time.Duration, logger *slog.Logger) *Browser {
	if timeout <= 0 {
		timeout = defaultBrowseTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{timeout: timeout, logger: logger}
}

func (b *Browser) Start(ctx context.Context, onResponse func(adapters.MulticastResponse)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler != nil {
		return errors.New("mdns browser already started")
	}
	b.ctx = ctx
	b.handler = onResponse
	return nil
}

// Query only supports pointer lookups of a service name.
func (b *Browser) Query(name string, rtype adapters.RecordType) error {
	if rtype != adapters.RecordPTR {
		return errors.New("mdns browser only supports PTR queries")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler == nil || b.closed {
		return errors.New("mdns browser not running")
	}
	ctx, handler := b.ctx, b.handler

	service, domain := splitServiceName(name)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.browse(ctx, service, domain, handler)
	}()
	return nil
}

func (b *Browser) browse(ctx context.Context, service, domain string, handler func(adapters.MulticastResponse)) {
	entries := make(chan *hmdns.ServiceEntry, 16)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for e := range entries {
			if ctx.Err() != nil {
				continue
			}
			handler(responseFromEntry(service+"."+domain, e))
		}
	}()

	params := hmdns.DefaultParams(service)
	params.Domain = domain
	params.Timeout = b.timeout
	params.Entries = entries
	params.DisableIPv6 = true
	if err := hmdns.Query(params); err != nil {
		b.logger.Debug("mdns_browse_failed", "service", service, "error", err.Error())
	}
	close(entries)
	<-consumed
}

func (b *Browser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

func splitServiceName(name string) (string, string) {
	name = strings.TrimSuffix(name, ".")
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i], name[i+1:]
	}
	return name, "local"
}

func responseFromEntry(serviceName string, e *hmdns.ServiceEntry) adapters.MulticastResponse {
	resp := adapters.MulticastResponse{
		Answers: []adapters.DNSAnswer{
			{Type: adapters.RecordPTR, Name: serviceName, Target: e.Name},
		},
	}
	if e.Host != "" {
		resp.Additionals = append(resp.Additionals, adapters.DNSAnswer{
			Type: adapters.RecordSRV, Name: e.Name, Target: e.Host, Port: uint16(e.Port),
		})
	}
	if len(e.InfoFields) > 0 {
		resp.Additionals = append(resp.Additionals, adapters.DNSAnswer{
			Type: adapters.RecordTXT, Name: e.Name, Text: append([]string(nil), e.InfoFields...),
		})
	}
	if e.AddrV4 != nil && e.Host != "" {
		resp.Additionals = append(resp.Additionals, adapters.DNSAnswer{
			Type: adapters.RecordA, Name: e.Host, IP: e.AddrV4.String(),
		})
	}
	if e.AddrV4 != nil {
		resp.From = e.AddrV4.String()
	}
	return resp
}

var _ adapters.MulticastDNS = (*Browser)(nil)
