package diagnostics

import "net"

var (
	listInterfaces = net.Interfaces
	interfaceAddrs = func(ifc net.Interface) ([]net.Addr, error) { return ifc.Addrs() }
)

type InterfaceStatus struct {
	Name      string   `json:"name"`
	Up        bool     `json:"up"`
	Multicast bool     `json:"multicast"`
	Loopback  bool     `json:"loopback"`
	IPv4      []string `json:"ipv4,omitempty"`
	Usable    bool     `json:"usable"`
}

// NetworkReport lists the interfaces discovery can join the mDNS and SSDP
// multicast groups on.
type NetworkReport struct {
	Interfaces     []InterfaceStatus `json:"interfaces"`
	MulticastReady bool              `json:"multicast_ready"`
	Error          string            `json:"error,omitempty"`
}

func DetectNetwork() NetworkReport {
	ifcs, err := listInterfaces()
	if err != nil {
		return NetworkReport{Error: err.Error()}
	}

	report := NetworkReport{Interfaces: make([]InterfaceStatus, 0, len(ifcs))}
	for _, ifc := range ifcs {
		status := InterfaceStatus{
			Name:      ifc.Name,
			Up:        ifc.Flags&net.FlagUp != 0,
			Multicast: ifc.Flags&net.FlagMulticast != 0,
			Loopback:  ifc.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := interfaceAddrs(ifc); err == nil {
			status.IPv4 = ipv4Addrs(addrs)
		}
		status.Usable = status.Up && status.Multicast && !status.Loopback && len(status.IPv4) > 0
		if status.Usable {
			report.MulticastReady = true
		}
		report.Interfaces = append(report.Interfaces, status)
	}
	return report
}

func ipv4Addrs(addrs []net.Addr) []string {
	var out []string
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			out = append(out, ip4.String())
		}
	}
	return out
}
