package discovery

import (
	"context"
	"errors"
	"sync"

	"go2tv.app/castbeam/internal/adapters"
)

type fakeMulticast struct {
	mu       sync.Mutex
	handler  func(adapters.MulticastResponse)
	queries  []string
	closed   bool
	startErr error
}

func (f *fakeMulticast) Start(ctx context.Context, onResponse func(adapters.MulticastResponse)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = onResponse
	return nil
}

func (f *fakeMulticast) Query(name string, rtype adapters.RecordType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, rtype.String()+" "+name)
	return nil
}

func (f *fakeMulticast) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMulticast) deliver(answers ...adapters.DNSAnswer) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(adapters.MulticastResponse{Answers: answers})
}

func (f *fakeMulticast) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeProbe struct {
	mu       sync.Mutex
	handler  func(adapters.ProbeResponse)
	searches []string
}

func (f *fakeProbe) Start(ctx context.Context, onResponse func(adapters.ProbeResponse)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = onResponse
	return nil
}

func (f *fakeProbe) Search(serviceType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, serviceType)
	return nil
}

func (f *fakeProbe) Close() error { return nil }

func (f *fakeProbe) deliver(resp adapters.ProbeResponse) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(resp)
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(body), nil
}

const (
	testUUID     = "4d1a2b3c-5e6f-7a8b-9c0d-1e2f3a4b5c6d"
	testHex      = "4d1a2b3c5e6f7a8b9c0d1e2f3a4b5c6d"
	testInstance = "Chromecast-" + testHex + "._googlecast._tcp.local."
	testTarget   = testUUID + ".local."
)

func ptrAnswer(instance string) adapters.DNSAnswer {
	return adapters.DNSAnswer{Type: adapters.RecordPTR, Name: "_googlecast._tcp.local.", Target: instance}
}

func srvAnswer(instance, target string) adapters.DNSAnswer {
	return adapters.DNSAnswer{Type: adapters.RecordSRV, Name: instance, Target: target, Port: 8009}
}

func txtAnswer(instance string, kv ...string) adapters.DNSAnswer {
	return adapters.DNSAnswer{Type: adapters.RecordTXT, Name: instance, Text: kv}
}

func aAnswer(name, ip string) adapters.DNSAnswer {
	return adapters.DNSAnswer{Type: adapters.RecordA, Name: name, IP: ip}
}

func googleDescriptor(udn, name string) string {
	return `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:dial-multiscreen-org:device:dial:1</deviceType>
    <friendlyName>` + name + `</friendlyName>
    <manufacturer>Google Inc.</manufacturer>
    <modelName>Eureka Dongle</modelName>
    <UDN>` + udn + `</UDN>
  </device>
</root>`
}
