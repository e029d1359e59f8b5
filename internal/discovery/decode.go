package discovery

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go2tv.app/castbeam/internal/adapters"
)

type partialKind int

const (
	partialAddress partialKind = iota
	partialPointer
	partialService
	partialText
	partialProbe
)

// partial is one decoded responder fact about a device.
type partial struct {
	kind     partialKind
	id       string
	instance string
	name     string
	target   string
	ip       string
	host     string
	port     int
}

// decodeMulticast turns one mDNS response into partials. Address facts sort
// first so that service records in the same response resolve to an IP.
func decodeMulticast(resp adapters.MulticastResponse) []partial {
	all := make([]adapters.DNSAnswer, 0, len(resp.Answers)+len(resp.Additionals))
	all = append(all, resp.Answers...)
	all = append(all, resp.Additionals...)

	out := make([]partial, 0, len(all))
	for _, a := range all {
		if p, ok := decodeAnswer(a); ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].kind < out[j].kind })
	return out
}

func decodeAnswer(a adapters.DNSAnswer) (partial, bool) {
	name := trimDot(a.Name)

	switch a.Type {
	case adapters.RecordPTR:
		target := trimDot(a.Target)
		if !strings.EqualFold(name, ServiceName) || !isServiceInstance(target) {
			return partial{}, false
		}
		return partial{kind: partialPointer, id: CanonicalID(target), instance: target}, true
	case adapters.RecordSRV:
		if !isServiceInstance(name) {
			return partial{}, false
		}
		target := trimDot(a.Target)
		if target == "" {
			return partial{}, false
		}
		return partial{kind: partialService, id: CanonicalID(name), instance: name, target: target, port: int(a.Port)}, true
	case adapters.RecordTXT:
		if !isServiceInstance(name) {
			return partial{}, false
		}
		friendly := friendlyNameFromTXT(DecodeTXTStrings(a.Text))
		if friendly == "" {
			return partial{}, false
		}
		return partial{kind: partialText, id: CanonicalID(name), instance: name, name: friendly}, true
	case adapters.RecordA:
		if name == "" || net.ParseIP(a.IP) == nil {
			return partial{}, false
		}
		return partial{kind: partialAddress, target: name, ip: a.IP}, true
	default:
		return partial{}, false
	}
}

// probeLocation returns the descriptor URL of a successful probe response.
func probeLocation(resp adapters.ProbeResponse) (string, bool) {
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	loc := strings.TrimSpace(resp.Header.Get("Location"))
	if loc == "" {
		return "", false
	}
	return loc, true
}

func decodeProbe(desc Descriptor, resp adapters.ProbeResponse, location string) partial {
	id := CanonicalID(desc.UDN)
	return partial{
		kind:     partialProbe,
		id:       id,
		instance: InstanceName(id),
		name:     desc.FriendlyName,
		host:     probeHost(resp.RemoteAddr, location),
	}
}

func probeHost(remote, location string) string {
	if remote != "" {
		if host, _, err := net.SplitHostPort(remote); err == nil {
			return host
		}
		return remote
	}
	if u, err := url.Parse(location); err == nil {
		return u.Hostname()
	}
	return ""
}
