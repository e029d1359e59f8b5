// Package castv2 speaks the Cast control protocol: length-prefixed protobuf
// envelopes over TLS carrying JSON payloads per namespace.
package castv2

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/apps"
	"go2tv.app/castbeam/internal/domain"
)

const (
	DefaultPort              = 8009
	defaultRequestTimeout    = 10 * time.Second
	defaultHeartbeatInterval = 5 * time.Second
	defaultDialTimeout       = 5 * time.Second
	notifyBuffer             = 64
)

var (
	ErrClosed           = errors.New("cast connection closed")
	errClosedByReceiver = errors.New("receiver closed the connection")
	errRequestTimeout   = errors.New("request timed out")

	connectPayload = []byte(`{"type":"CONNECT","origin":{}}`)
	closePayload   = []byte(`{"type":"CLOSE"}`)
	pingPayload    = []byte(`{"type":"PING"}`)
	pongPayload    = []byte(`{"type":"PONG"}`)
)

type Options struct {
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	Registry          *apps.Registry
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = defaultHeartbeatInterval
	}
	if o.Registry == nil {
		o.Registry = apps.DefaultRegistry()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Dialer opens TLS control connections to receivers. Port is used for
// records that carry no port of their own.
type Dialer struct {
	DialTimeout time.Duration
	Port        int
	Options     Options
}

func (d *Dialer) Dial(ctx context.Context, host string, port int) (adapters.CastConnection, error) {
	if port <= 0 {
		port = d.Port
	}
	if port <= 0 {
		port = DefaultPort
	}
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	// Receivers present device certificates that do not chain to a public root.
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &domain.TransportError{Op: "dial " + addr, Err: err}
	}
	c, err := newConn(nc, d.Options)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type reply struct {
	typ     string
	payload []byte
}

type waiterKey struct {
	source    string
	namespace string
}

// Conn is one control connection. It implements adapters.CastConnection.
type Conn struct {
	nc       net.Conn
	senderID string
	opts     Options
	logger   *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64
	notify  chan func()

	mu       sync.Mutex
	pending  map[int64]chan reply
	waiters  map[waiterKey][]chan reply
	sessions map[string]*Session
	err      error

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(nc net.Conn, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	c := &Conn{
		nc:       nc,
		senderID: "sender-" + uuid.NewString(),
		opts:     opts,
		logger:   opts.Logger,
		notify:   make(chan func(), notifyBuffer),
		pending:  make(map[int64]chan reply),
		waiters:  make(map[waiterKey][]chan reply),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	go c.notifyLoop()
	if opts.HeartbeatInterval > 0 {
		go c.heartbeat(opts.HeartbeatInterval)
	}
	if err := c.send(receiverID, namespaceConnection, connectPayload); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends CLOSE to every joined application and the platform receiver,
// then tears the socket down.
func (c *Conn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.mu.Lock()
	transports := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		transports = append(transports, id)
	}
	c.mu.Unlock()

	for _, id := range transports {
		_ = c.send(id, namespaceConnection, closePayload)
	}
	_ = c.send(receiverID, namespaceConnection, closePayload)
	c.fail(ErrClosed)
	return nil
}

func (c *Conn) ReceiverStatus(ctx context.Context) (*domain.ReceiverStatus, error) {
	r, err := c.request(ctx, receiverID, namespaceReceiver, typed{Type: "GET_STATUS"})
	if err != nil {
		return nil, err
	}
	return parseReceiverStatus(r.payload)
}

func (c *Conn) GetSessions(ctx context.Context) ([]domain.ApplicationInfo, error) {
	status, err := c.ReceiverStatus(ctx)
	if err != nil {
		return nil, err
	}
	return status.Applications, nil
}

func (c *Conn) Launch(ctx context.Context, appID string) (adapters.CastSession, error) {
	r, err := c.request(ctx, receiverID, namespaceReceiver, launchPayload{Type: "LAUNCH", AppID: appID})
	if err != nil {
		return nil, err
	}
	status, err := parseReceiverStatus(r.payload)
	if err != nil {
		return nil, err
	}
	for _, app := range status.Applications {
		if app.AppID == appID && app.TransportID != "" {
			return c.Join(ctx, app)
		}
	}
	return nil, &domain.ProtocolRejectionError{Type: "LAUNCH_ERROR", Reason: "application " + appID + " is not running after launch"}
}

func (c *Conn) Join(ctx context.Context, app domain.ApplicationInfo) (adapters.CastSession, error) {
	if app.TransportID == "" {
		return nil, fmt.Errorf("application %s has no transport id", app.AppID)
	}
	s := newSession(c, app)

	c.mu.Lock()
	c.sessions[app.TransportID] = s
	c.mu.Unlock()

	if err := c.send(app.TransportID, namespaceConnection, connectPayload); err != nil {
		c.dropSession(app.TransportID)
		return nil, err
	}
	if s.supports(namespaceMedia) {
		if _, err := s.GetStatus(ctx); err != nil {
			c.dropSession(app.TransportID)
			return nil, err
		}
	}
	c.logger.Debug("castv2_join", "app_id", app.AppID, "session_id", app.SessionID)
	return s, nil
}

func (c *Conn) StopSession(ctx context.Context, sessionID string) error {
	_, err := c.request(ctx, receiverID, namespaceReceiver, stopPayload{Type: "STOP", SessionID: sessionID})
	return err
}

func (c *Conn) SetVolume(ctx context.Context, volume domain.Volume) (*domain.ReceiverStatus, error) {
	r, err := c.request(ctx, receiverID, namespaceReceiver, volumePayload{Type: "SET_VOLUME", Volume: volume})
	if err != nil {
		return nil, err
	}
	return parseReceiverStatus(r.payload)
}

func (c *Conn) request(ctx context.Context, dest, namespace string, payload any) (reply, error) {
	return c.exchange(ctx, dest, namespace, payload, false)
}

// exchange sends payload with a fresh requestId and waits for the reply
// carrying it. With untagged set, the first message on namespace from dest
// without a requestId is also accepted.
func (c *Conn) exchange(ctx context.Context, dest, namespace string, payload any, untagged bool) (reply, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return reply{}, fmt.Errorf("encode %s payload: %w", namespace, err)
	}
	id := c.nextID.Add(1)
	data, err = jsonparser.Set(data, []byte(strconv.FormatInt(id, 10)), "requestId")
	if err != nil {
		return reply{}, fmt.Errorf("tag request: %w", err)
	}

	ch := make(chan reply, 1)
	key := waiterKey{source: dest, namespace: namespace}
	c.mu.Lock()
	c.pending[id] = ch
	if untagged {
		c.waiters[key] = append(c.waiters[key], ch)
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		if untagged {
			c.removeWaiter(key, ch)
		}
		c.mu.Unlock()
	}()

	if err := c.send(dest, namespace, data); err != nil {
		return reply{}, err
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if _, rejected := rejectionTypes[r.typ]; rejected {
			reason, _ := jsonparser.GetString(r.payload, "reason")
			return r, &domain.ProtocolRejectionError{Type: r.typ, Reason: reason}
		}
		return r, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-timer.C:
		return reply{}, &domain.TransportError{Op: namespace, Err: errRequestTimeout}
	case <-c.done:
		return reply{}, c.transportErr()
	}
}

func (c *Conn) removeWaiter(key waiterKey, ch chan reply) {
	list := c.waiters[key]
	for i, w := range list {
		if w == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.waiters, key)
		return
	}
	c.waiters[key] = list
}

func (c *Conn) send(dest, namespace string, payload []byte) error {
	select {
	case <-c.done:
		return c.transportErr()
	default:
	}

	msg := newMessage(c.senderID, dest, namespace, payload)
	c.writeMu.Lock()
	err := writeFrame(c.nc, msg)
	c.writeMu.Unlock()
	if err != nil {
		terr := &domain.TransportError{Op: "write", Err: err}
		c.fail(terr)
		return terr
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		msg, err := readFrame(c.nc)
		if err != nil {
			c.fail(&domain.TransportError{Op: "read", Err: err})
			return
		}
		c.dispatch(msg.GetSourceId(), msg.GetNamespace(), []byte(msg.GetPayloadUtf8()))
	}
}

func (c *Conn) dispatch(source, namespace string, payload []byte) {
	typ, _ := jsonparser.GetString(payload, "type")

	switch namespace {
	case namespaceHeartbeat:
		if typ == "PING" {
			_ = c.send(source, namespaceHeartbeat, pongPayload)
		}
		return
	case namespaceConnection:
		if typ == "CLOSE" {
			if source == receiverID {
				c.fail(&domain.TransportError{Op: "read", Err: errClosedByReceiver})
				return
			}
			c.dropSession(source)
		}
		return
	}

	r := reply{typ: typ, payload: payload}
	if id, err := jsonparser.GetInt(payload, "requestId"); err == nil && id != 0 {
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- r:
			default:
			}
		}
	} else {
		key := waiterKey{source: source, namespace: namespace}
		c.mu.Lock()
		if list := c.waiters[key]; len(list) > 0 {
			select {
			case list[0] <- r:
			default:
			}
		}
		c.mu.Unlock()
	}

	if typ == "MEDIA_STATUS" {
		c.mu.Lock()
		s := c.sessions[source]
		c.mu.Unlock()
		if s != nil {
			s.handleStatus(payload)
		}
	}
}

func (c *Conn) dropSession(transportID string) {
	c.mu.Lock()
	s, ok := c.sessions[transportID]
	delete(c.sessions, transportID)
	c.mu.Unlock()
	if ok {
		s.markClosed()
	}
}

func (c *Conn) enqueue(fn func()) {
	select {
	case c.notify <- fn:
	case <-c.done:
	}
}

func (c *Conn) notifyLoop() {
	for {
		select {
		case fn := <-c.notify:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Conn) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.send(receiverID, namespaceHeartbeat, pingPayload)
		}
	}
}

func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		_ = c.nc.Close()
		if !errors.Is(err, ErrClosed) {
			c.logger.Debug("castv2_conn_failed", "error", err.Error())
		}
	})
}

// transportErr reports why the connection is gone as a TransportError.
func (c *Conn) transportErr() error {
	err := c.Err()
	if err == nil {
		err = ErrClosed
	}
	var terr *domain.TransportError
	if errors.As(err, &terr) {
		return err
	}
	return &domain.TransportError{Op: "send", Err: err}
}

var _ adapters.CastConnection = (*Conn)(nil)
