// Package mdns implements the multicast DNS collaborator on a raw socket
// joined to 224.0.0.251:5353, plus a browse backend built on hashicorp/mdns.
package mdns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/miekg/dns"
	"golang.org/x/net/ipv4"

	"go2tv.app/castbeam/internal/adapters"
)

const (
	mdnsPort    = 5353
	maxDatagram = 9000
)

var groupIPv4 = net.IPv4(224, 0, 0, 251)

// Listener binds the mDNS port with address reuse so it can coexist with a
// system responder.
type Listener struct {
	logger *slog.Logger

	mu     sync.Mutex
	conn   net.PacketConn
	pc     *ipv4.PacketConn
	closed bool
}

func NewListener(logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{logger: logger}
}

func (l *Listener) Start(ctx context.Context, onResponse func(adapters.MulticastResponse)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return errors.New("mdns listener already started")
	}

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", mdnsPort))
	if err != nil {
		return fmt.Errorf("listen mdns: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	joined := joinGroups(pc, l.logger)
	if joined == 0 {
		_ = conn.Close()
		return errors.New("mdns: no multicast interface could join 224.0.0.251")
	}
	_ = pc.SetMulticastLoopback(true)

	l.conn = conn
	l.pc = pc

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	go l.readLoop(pc, onResponse)
	return nil
}

func joinGroups(pc *ipv4.PacketConn, logger *slog.Logger) int {
	ifaces, err := net.Interfaces()
	if err != nil {
		logger.Warn("mdns_interfaces_failed", "error", err.Error())
		return 0
	}
	group := &net.UDPAddr{IP: groupIPv4}
	joined := 0
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&iface, group); err != nil {
			logger.Debug("mdns_join_failed", "interface", iface.Name, "error", err.Error())
			continue
		}
		joined++
	}
	return joined
}

func (l *Listener) readLoop(pc *ipv4.PacketConn, onResponse func(adapters.MulticastResponse)) {
	buf := make([]byte, maxDatagram)
	for {
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Debug("mdns_read_failed", "error", err.Error())
			}
			return
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			l.logger.Debug("mdns_unpack_failed", "error", err.Error())
			continue
		}
		if !msg.Response {
			continue
		}
		from := ""
		if src != nil {
			from = src.String()
		}
		onResponse(responseFromMsg(msg, from))
	}
}

func (l *Listener) Query(name string, rtype adapters.RecordType) error {
	l.mu.Lock()
	pc := l.pc
	l.mu.Unlock()
	if pc == nil {
		return errors.New("mdns listener not started")
	}

	payload, err := buildQuery(name, rtype)
	if err != nil {
		return fmt.Errorf("pack mdns query: %w", err)
	}
	if _, err := pc.WriteTo(payload, nil, &net.UDPAddr{IP: groupIPv4, Port: mdnsPort}); err != nil {
		return fmt.Errorf("send mdns query: %w", err)
	}
	return nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.conn == nil {
		l.closed = true
		return nil
	}
	l.closed = true
	err := l.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var _ adapters.MulticastDNS = (*Listener)(nil)
