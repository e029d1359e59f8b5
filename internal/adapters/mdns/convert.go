package mdns

import (
	"github.com/miekg/dns"

	"go2tv.app/castbeam/internal/adapters"
)

// responseFromMsg converts a parsed DNS message. Unknown record types are
// skipped.
func responseFromMsg(msg *dns.Msg, from string) adapters.MulticastResponse {
	return adapters.MulticastResponse{
		Answers:     convertRRs(msg.Answer),
		Additionals: convertRRs(append(append([]dns.RR(nil), msg.Ns...), msg.Extra...)),
		From:        from,
	}
}

func convertRRs(rrs []dns.RR) []adapters.DNSAnswer {
	out := make([]adapters.DNSAnswer, 0, len(rrs))
	for _, rr := range rrs {
		if a, ok := convertRR(rr); ok {
			out = append(out, a)
		}
	}
	return out
}

func convertRR(rr dns.RR) (adapters.DNSAnswer, bool) {
	name := rr.Header().Name
	switch v := rr.(type) {
	case *dns.PTR:
		return adapters.DNSAnswer{Type: adapters.RecordPTR, Name: name, Target: v.Ptr}, true
	case *dns.SRV:
		return adapters.DNSAnswer{Type: adapters.RecordSRV, Name: name, Target: v.Target, Port: v.Port}, true
	case *dns.TXT:
		return adapters.DNSAnswer{Type: adapters.RecordTXT, Name: name, Text: append([]string(nil), v.Txt...)}, true
	case *dns.A:
		if v.A == nil {
			return adapters.DNSAnswer{}, false
		}
		return adapters.DNSAnswer{Type: adapters.RecordA, Name: name, IP: v.A.String()}, true
	default:
		return adapters.DNSAnswer{}, false
	}
}

func buildQuery(name string, rtype adapters.RecordType) ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), uint16(rtype))
	m.Id = 0
	m.RecursionDesired = false
	return m.Pack()
}
