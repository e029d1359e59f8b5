package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalIDMatchesAcrossProtocols(t *testing.T) {
	inputs := []string{
		"uuid:" + testUUID,
		"UUID:" + "4D1A2B3C-5E6F-7A8B-9C0D-1E2F3A4B5C6D",
		testInstance,
		"Chromecast-" + testHex + "._googlecast._tcp.local",
		"Google-Home-Mini-" + testHex + "._googlecast._tcp.local.",
		testHex,
	}
	for _, in := range inputs {
		assert.Equal(t, testHex, CanonicalID(in), in)
	}
}

func TestCanonicalIDFallsBackToLowercasedName(t *testing.T) {
	assert.Equal(t, "my-speaker", CanonicalID("My-Speaker._googlecast._tcp.local."))
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "Chromecast-"+testHex+"._googlecast._tcp.local", InstanceName(testHex))
	assert.Equal(t, testHex, CanonicalID(InstanceName(testHex)))
}
