package castdevice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/domain"
)

func (d *Device) ensureConnected(ctx context.Context) (adapters.CastConnection, error) {
	d.mu.Lock()
	if d.conn != nil {
		conn := d.conn
		d.mu.Unlock()
		return conn, nil
	}
	rec := d.record
	d.dialing++
	d.state = StateConnecting
	d.mu.Unlock()

	if d.dialer == nil {
		d.finishDial(nil)
		return nil, &domain.TransportError{Op: "connect", Err: fmt.Errorf("no dialer configured")}
	}

	conn, err := d.dialer.Dial(ctx, rec.Host, rec.Port)
	if err != nil {
		d.finishDial(nil)
		if !domain.IsTransportError(err) {
			err = &domain.TransportError{Op: "connect", Err: err}
		}
		d.logger.Warn("device_connect_failed", "host", rec.Host, "error", err)
		return nil, err
	}

	if winner := d.finishDial(conn); winner != conn {
		_ = conn.Close()
		return winner, nil
	}

	d.logger.Info("device_connect", "host", rec.Host, "port", rec.Port)
	go d.watch(conn)
	d.emit(Event{Kind: EventConnected})
	return conn, nil
}

// finishDial records the outcome of one dial and returns the connection the
// device now holds.
func (d *Device) finishDial(conn adapters.CastConnection) adapters.CastConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialing--
	if d.conn == nil && conn != nil {
		d.conn = conn
		d.state = StateConnected
	}
	if d.conn == nil && d.dialing == 0 {
		d.state = StateDisconnected
	}
	return d.conn
}

// ensureSession returns a session for appID, joining a running one before
// launching. An empty appID joins any registered application and never
// launches.
func (d *Device) ensureSession(ctx context.Context, appID string) (adapters.CastConnection, adapters.CastSession, error) {
	conn, err := d.ensureConnected(ctx)
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	seen := d.session
	d.mu.Unlock()
	if seen != nil && seen.Closed() {
		d.dropSession(seen)
		seen = nil
	}
	if seen != nil && (appID == "" || seen.AppID() == appID) {
		return conn, seen, nil
	}

	running, err := conn.GetSessions(ctx)
	if err != nil {
		return nil, nil, d.fail(conn, err)
	}

	var sess adapters.CastSession
	if app, ok := d.registry.Match(running, appID); ok {
		d.logger.Debug("device_join", "app_id", app.AppID, "session_id", app.SessionID)
		sess, err = conn.Join(ctx, app)
	} else if appID == "" {
		return nil, nil, domain.ErrNoSession
	} else if desc, ok := d.registry.Lookup(appID); ok && desc.Launchable {
		d.logger.Debug("device_launch", "app_id", appID)
		sess, err = conn.Launch(ctx, appID)
	} else {
		return nil, nil, fmt.Errorf("%w: application %s cannot be launched", domain.ErrNoSession, appID)
	}
	if err != nil {
		return nil, nil, d.fail(conn, err)
	}

	return conn, d.adoptSession(conn, seen, sess, appID), nil
}

func (d *Device) adoptSession(conn adapters.CastConnection, seen, sess adapters.CastSession, appID string) adapters.CastSession {
	d.mu.Lock()
	if cur := d.session; cur != seen && cur != nil && (appID == "" || cur.AppID() == appID) {
		d.mu.Unlock()
		return cur
	}
	if d.conn != conn {
		d.mu.Unlock()
		return sess
	}
	if d.session == nil || d.session.SessionID() != sess.SessionID() {
		d.style = nil
	}
	d.session = sess
	d.state = StateSessionActive
	d.activity = d.now()
	d.mu.Unlock()

	sess.OnStatus(func(status domain.MediaStatus) {
		d.handleStatus(sess, status)
	})
	return sess
}

// watch resets the device when the connection it holds ends.
func (d *Device) watch(conn adapters.CastConnection) {
	<-conn.Done()
	if d.reset(conn) {
		d.logger.Info("device_disconnect", "error", conn.Err())
		d.emit(Event{Kind: EventDisconnected, Err: conn.Err()})
	}
}

// fail resets the device after a transport failure on conn and returns err.
func (d *Device) fail(conn adapters.CastConnection, err error) error {
	if !domain.IsTransportError(err) {
		return err
	}
	if d.reset(conn) {
		_ = conn.Close()
		d.logger.Warn("device_transport_error", "error", err)
		d.emit(Event{Kind: EventDisconnected, Err: err})
	}
	return err
}

// failSession is fail for errors from an operation on sess. A session the
// receiver has ended is dropped so the next call joins or launches again.
func (d *Device) failSession(conn adapters.CastConnection, sess adapters.CastSession, err error) error {
	if errors.Is(err, domain.ErrNoSession) || sess.Closed() {
		d.dropSession(sess)
	}
	return d.fail(conn, err)
}

func (d *Device) dropSession(sess adapters.CastSession) {
	d.mu.Lock()
	if d.session != sess {
		d.mu.Unlock()
		return
	}
	d.session, d.style = nil, nil
	if d.conn != nil {
		d.state = StateConnected
	}
	d.mu.Unlock()
	d.logger.Info("device_session_ended", "app_id", sess.AppID(), "session_id", sess.SessionID())
}

func (d *Device) reset(conn adapters.CastConnection) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != conn {
		return false
	}
	d.conn, d.session, d.style = nil, nil, nil
	if d.dialing == 0 {
		d.state = StateDisconnected
	} else {
		d.state = StateConnecting
	}
	return true
}

func (d *Device) handleStatus(sess adapters.CastSession, status domain.MediaStatus) {
	d.mu.Lock()
	current := d.session == sess
	d.mu.Unlock()
	if !current {
		return
	}
	d.observe(&status)
	d.emit(Event{Kind: EventStatus, Status: &status})
	if status.Finished() {
		d.emit(Event{Kind: EventFinished, Status: &status})
	}
}

func (d *Device) observe(status *domain.MediaStatus) {
	if status == nil {
		return
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *status
	d.last = &copied
	d.activity = now
	if status.PlayerState == domain.PlayerStateIdle {
		if d.idleSince.IsZero() {
			d.idleSince = now
		}
	} else {
		d.idleSince = time.Time{}
	}
}

func (d *Device) touch() {
	now := d.now()
	d.mu.Lock()
	d.activity = now
	d.mu.Unlock()
}

func (d *Device) emit(ev Event) {
	d.mu.Lock()
	handlers := slices.Clone(d.handlers)
	ev.DeviceID = d.record.ID
	d.mu.Unlock()
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	for _, h := range handlers {
		h(ev)
	}
}
