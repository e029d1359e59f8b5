package discovery

import (
	"strings"
)

// DecodeTXT folds one or more TXT payloads into a key/value map. Each payload
// may be a single "key=value" string or a DNS wire-format block of
// length-prefixed strings. Keys are lower-cased; a key without "=" maps to "".
// Later values win.
func DecodeTXT(payloads ...[]byte) map[string]string {
	out := make(map[string]string)
	for _, p := range payloads {
		if segments, ok := splitTextBlock(p); ok {
			for _, seg := range segments {
				addPair(out, seg)
			}
			continue
		}
		addPair(out, string(p))
	}
	return out
}

// DecodeTXTStrings is DecodeTXT for already split strings.
func DecodeTXTStrings(segments []string) map[string]string {
	out := make(map[string]string, len(segments))
	for _, seg := range segments {
		addPair(out, seg)
	}
	return out
}

func splitTextBlock(b []byte) ([]string, bool) {
	if len(b) == 0 {
		return nil, false
	}
	var out []string
	for i := 0; i < len(b); {
		n := int(b[i])
		i++
		if n == 0 || i+n > len(b) {
			return nil, false
		}
		out = append(out, string(b[i:i+n]))
		i += n
	}
	return out, true
}

func addPair(out map[string]string, seg string) {
	if seg == "" {
		return
	}
	key, value, _ := strings.Cut(seg, "=")
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return
	}
	out[key] = value
}

// friendlyNameFromTXT prefers "fn" over "n".
func friendlyNameFromTXT(txt map[string]string) string {
	if fn := strings.TrimSpace(txt["fn"]); fn != "" {
		return fn
	}
	return strings.TrimSpace(txt["n"])
}
