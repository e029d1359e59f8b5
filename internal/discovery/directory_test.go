package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/castbeam/internal/adapters"
	"go2tv.app/castbeam/internal/domain"
)

func applyAll(d *Directory, answers ...adapters.DNSAnswer) []domain.DeviceRecord {
	var out []domain.DeviceRecord
	for _, p := range decodeMulticast(adapters.MulticastResponse{Answers: answers}) {
		out = append(out, d.Apply(p)...)
	}
	return out
}

func TestDirectoryResolvesInAnyOrder(t *testing.T) {
	answers := []adapters.DNSAnswer{
		ptrAnswer(testInstance),
		srvAnswer(testInstance, testTarget),
		txtAnswer(testInstance, "id="+testHex, "fn=Living Room TV"),
		aAnswer(testTarget, "192.168.1.20"),
	}
	orders := [][]int{
		{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}, {2, 1, 3, 0},
	}

	for _, order := range orders {
		d := NewDirectory()
		var emitted []domain.DeviceRecord
		for _, i := range order {
			emitted = append(emitted, applyAll(d, answers[i])...)
		}

		rec, ok := d.Lookup(testHex)
		require.True(t, ok, "order %v", order)
		assert.Equal(t, "Living Room TV", rec.Name, "order %v", order)
		assert.Equal(t, "192.168.1.20", rec.Host, "order %v", order)
		assert.Equal(t, 8009, rec.Port)
		assert.Equal(t, "Chromecast-"+testHex+"._googlecast._tcp.local", rec.Instance)
		require.NotEmpty(t, emitted, "order %v", order)
		assert.Equal(t, rec, emitted[len(emitted)-1], "order %v", order)
		assert.Equal(t, 1, d.Len())
	}
}

func TestDirectoryEmitsOnceForIdenticalRepeats(t *testing.T) {
	d := NewDirectory()
	batch := []adapters.DNSAnswer{
		ptrAnswer(testInstance),
		aAnswer(testTarget, "192.168.1.20"),
		srvAnswer(testInstance, testTarget),
		txtAnswer(testInstance, "fn=Living Room TV"),
	}

	first := applyAll(d, batch...)
	require.Len(t, first, 1)

	for i := 0; i < 5; i++ {
		assert.Empty(t, applyAll(d, batch...))
	}
}

func TestDirectoryReEmitsOnChange(t *testing.T) {
	d := NewDirectory()
	require.Len(t, applyAll(d, aAnswer(testTarget, "192.168.1.20"), srvAnswer(testInstance, testTarget), txtAnswer(testInstance, "fn=Old")), 1)

	changed := applyAll(d, txtAnswer(testInstance, "fn=New"))
	require.Len(t, changed, 1)
	assert.Equal(t, "New", changed[0].Name)

	moved := applyAll(d, aAnswer(testTarget, "192.168.1.21"))
	require.Len(t, moved, 1)
	assert.Equal(t, "192.168.1.21", moved[0].Host)
}

func TestDirectoryDoesNotEmitPartialRecords(t *testing.T) {
	d := NewDirectory()
	assert.Empty(t, applyAll(d, ptrAnswer(testInstance)))
	assert.Empty(t, applyAll(d, txtAnswer(testInstance, "fn=Only Name")))
	assert.Empty(t, d.Records())
}

func TestDirectoryMergesProbeAndMulticast(t *testing.T) {
	d := NewDirectory()
	desc := Descriptor{UDN: "uuid:" + testUUID, FriendlyName: "Living Room TV"}
	probe := decodeProbe(desc, adapters.ProbeResponse{RemoteAddr: "192.168.1.20:1900"}, "http://192.168.1.20:8008/ssdp/device-desc.xml")

	require.Len(t, d.Apply(probe), 1)
	assert.Empty(t, applyAll(d,
		ptrAnswer(testInstance),
		aAnswer(testTarget, "192.168.1.20"),
		srvAnswer(testInstance, testTarget),
		txtAnswer(testInstance, "fn=Living Room TV"),
	))

	records := d.Records()
	require.Len(t, records, 1)
	assert.Equal(t, testHex, records[0].ID)
}

func TestDirectoryKeepsProbeAddressOverBareTarget(t *testing.T) {
	d := NewDirectory()
	desc := Descriptor{UDN: "uuid:" + testUUID, FriendlyName: "Living Room TV"}
	probe := decodeProbe(desc, adapters.ProbeResponse{RemoteAddr: "192.168.1.20:1900"}, "http://192.168.1.20:8008/ssdp/device-desc.xml")
	withoutAddress := []adapters.DNSAnswer{
		ptrAnswer(testInstance),
		srvAnswer(testInstance, testTarget),
		txtAnswer(testInstance, "fn=Living Room TV"),
	}

	var hosts []string
	for i := 0; i < 3; i++ {
		for _, rec := range applyAll(d, withoutAddress...) {
			hosts = append(hosts, rec.Host)
		}
		for _, rec := range d.Apply(probe) {
			hosts = append(hosts, rec.Host)
		}
	}
	assert.Equal(t, []string{"4d1a2b3c-5e6f-7a8b-9c0d-1e2f3a4b5c6d.local", "192.168.1.20"}, hosts)

	rec, ok := d.Lookup(testHex)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.20", rec.Host)

	moved := applyAll(d, aAnswer(testTarget, "192.168.1.21"))
	require.Len(t, moved, 1)
	assert.Equal(t, "192.168.1.21", moved[0].Host)
}

func TestDecodeMulticastIgnoresForeignRecords(t *testing.T) {
	partials := decodeMulticast(adapters.MulticastResponse{Answers: []adapters.DNSAnswer{
		{Type: adapters.RecordPTR, Name: "_airplay._tcp.local.", Target: "TV._airplay._tcp.local."},
		{Type: adapters.RecordSRV, Name: "TV._airplay._tcp.local.", Target: "tv.local.", Port: 7000},
		{Type: adapters.RecordA, Name: "tv.local.", IP: "not-an-ip"},
	}})
	assert.Empty(t, partials)
}
