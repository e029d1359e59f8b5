package discovery

import (
	"strings"
)

const (
	ServiceName  = "_googlecast._tcp.local"
	serviceLabel = "._googlecast._tcp.local"
	instanceHead = "Chromecast-"
)

// CanonicalID reduces a protocol-specific device identifier to the hex form of
// the device UUID. mDNS instance names ("Chromecast-<hex>._googlecast._tcp.local"),
// SSDP UDNs ("uuid:xxxxxxxx-xxxx-...") and bare ids all map to the same value.
func CanonicalID(raw string) string {
	s := strings.TrimSuffix(strings.TrimSpace(raw), ".")
	if i := strings.Index(strings.ToLower(s), serviceLabel); i >= 0 {
		s = s[:i]
	}
	lower := strings.ToLower(s)
	lower = strings.TrimPrefix(lower, "uuid:")

	if compact := strings.ReplaceAll(lower, "-", ""); isHex(compact) && len(compact) == 32 {
		return compact
	}

	parts := strings.Split(lower, "-")
	for i := len(parts) - 1; i >= 0; i-- {
		if len(parts[i]) == 32 && isHex(parts[i]) {
			return parts[i]
		}
	}
	return lower
}

// InstanceName synthesizes the mDNS identity key for a canonical id.
func InstanceName(id string) string {
	return instanceHead + id + serviceLabel
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

func trimDot(name string) string {
	return strings.TrimSuffix(strings.TrimSpace(name), ".")
}

func isServiceInstance(name string) bool {
	return strings.HasSuffix(strings.ToLower(trimDot(name)), serviceLabel)
}
