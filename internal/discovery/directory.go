package discovery

import (
	"net"
	"strings"
	"sync"

	"go2tv.app/castbeam/internal/domain"
)

const DefaultCastPort = 8009

type entry struct {
	rec       domain.DeviceRecord
	srvTarget string
	emitted   bool
	last      domain.DeviceRecord
}

// Directory folds partial facts into one record per canonical id. Apply is
// called from a single goroutine; readers may snapshot concurrently.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	hostIPs map[string]string
}

func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]*entry),
		hostIPs: make(map[string]string),
	}
}

// Apply merges p and returns the records that became resolved or changed a
// resolved field.
func (d *Directory) Apply(p partial) []domain.DeviceRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p.kind == partialAddress {
		key := strings.ToLower(p.target)
		d.hostIPs[key] = p.ip
		var out []domain.DeviceRecord
		for _, id := range d.order {
			e := d.entries[id]
			if strings.EqualFold(e.srvTarget, p.target) {
				e.rec.Host = p.ip
				if rec, ok := e.emit(); ok {
					out = append(out, rec)
				}
			}
		}
		return out
	}

	if p.id == "" {
		return nil
	}
	e := d.ensure(p.id)

	switch p.kind {
	case partialPointer:
		e.setInstance(p.instance)
	case partialService:
		e.setInstance(p.instance)
		e.srvTarget = p.target
		if ip, ok := d.hostIPs[strings.ToLower(p.target)]; ok {
			e.rec.Host = ip
		} else if net.ParseIP(e.rec.Host) == nil {
			// An unresolved target never replaces an address.
			e.rec.Host = p.target
		}
		if p.port > 0 {
			e.rec.Port = p.port
		}
	case partialText:
		e.setInstance(p.instance)
		e.rec.Name = p.name
	case partialProbe:
		if e.rec.Instance == "" {
			e.rec.Instance = p.instance
		}
		if p.name != "" {
			e.rec.Name = p.name
		}
		if p.host != "" {
			e.rec.Host = p.host
		}
	}

	if rec, ok := e.emit(); ok {
		return []domain.DeviceRecord{rec}
	}
	return nil
}

func (d *Directory) ensure(id string) *entry {
	if e, ok := d.entries[id]; ok {
		return e
	}
	e := &entry{rec: domain.DeviceRecord{ID: id, Port: DefaultCastPort}}
	d.entries[id] = e
	d.order = append(d.order, id)
	return e
}

// Records returns the resolved records in first-seen order.
func (d *Directory) Records() []domain.DeviceRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.DeviceRecord, 0, len(d.order))
	for _, id := range d.order {
		if rec := d.entries[id].rec; rec.Resolved() {
			out = append(out, rec)
		}
	}
	return out
}

func (d *Directory) Lookup(id string) (domain.DeviceRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[id]
	if !ok {
		return domain.DeviceRecord{}, false
	}
	return e.rec, true
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (e *entry) setInstance(instance string) {
	if instance != "" {
		e.rec.Instance = instance
	}
}

func (e *entry) emit() (domain.DeviceRecord, bool) {
	if !e.rec.Resolved() {
		return domain.DeviceRecord{}, false
	}
	if e.emitted && sameResolvedFields(e.rec, e.last) {
		e.last.Instance = e.rec.Instance
		return domain.DeviceRecord{}, false
	}
	e.emitted = true
	e.last = e.rec
	return e.rec, true
}

func sameResolvedFields(a, b domain.DeviceRecord) bool {
	return a.Name == b.Name && a.Host == b.Host && a.Port == b.Port
}
