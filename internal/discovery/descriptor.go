package discovery

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"go2tv.app/castbeam/internal/domain"
)

var (
	udnPattern          = regexp.MustCompile(`(?s)<UDN>\s*(.+?)\s*</UDN>`)
	friendlyNamePattern = regexp.MustCompile(`(?s)<friendlyName>\s*(.+?)\s*</friendlyName>`)
	manufacturerPattern = regexp.MustCompile(`(?s)<manufacturer>\s*(.+?)\s*</manufacturer>`)
)

// Descriptor holds the fields of a UPnP device description document that
// discovery cares about.
type Descriptor struct {
	UDN          string
	FriendlyName string
	Manufacturer string
	ModelName    string
}

type descriptorDocument struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		UDN          string `xml:"UDN"`
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
	} `xml:"device"`
}

// ParseDescriptor extracts a Descriptor from a fetched description document.
// The structured parse decides acceptance; the pattern extraction must find the
// same fields. When the structured parse fails the pattern extraction is used
// on its own. Documents from other manufacturers are rejected.
func ParseDescriptor(body []byte, manufacturer string) (Descriptor, error) {
	text := toUTF8(body)

	fromPatterns := Descriptor{
		UDN:          firstGroup(udnPattern, text),
		FriendlyName: html.UnescapeString(firstGroup(friendlyNamePattern, text)),
		Manufacturer: html.UnescapeString(firstGroup(manufacturerPattern, text)),
	}

	desc := fromPatterns
	doc, err := decodeDescriptor(body)
	if err == nil {
		desc = Descriptor{
			UDN:          strings.TrimSpace(doc.Device.UDN),
			FriendlyName: strings.TrimSpace(doc.Device.FriendlyName),
			Manufacturer: strings.TrimSpace(doc.Device.Manufacturer),
			ModelName:    strings.TrimSpace(doc.Device.ModelName),
		}
		if (desc.UDN == "") != (fromPatterns.UDN == "") || (desc.FriendlyName == "") != (fromPatterns.FriendlyName == "") {
			return Descriptor{}, parseError("descriptor", errors.New("structured and pattern extraction disagree"))
		}
	}

	if manufacturer != "" && !strings.Contains(desc.Manufacturer, manufacturer) {
		return Descriptor{}, parseError("descriptor", fmt.Errorf("manufacturer %q does not match %q", desc.Manufacturer, manufacturer))
	}
	if desc.UDN == "" {
		return Descriptor{}, parseError("descriptor", errors.New("missing UDN"))
	}
	if desc.FriendlyName == "" {
		return Descriptor{}, parseError("descriptor", errors.New("missing friendlyName"))
	}
	return desc, nil
}

func decodeDescriptor(body []byte) (descriptorDocument, error) {
	var doc descriptorDocument
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		return descriptorDocument{}, err
	}
	return doc, nil
}

// toUTF8 converts undeclared non-UTF-8 bodies using a detected charset so the
// pattern extraction sees text.
func toUTF8(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil {
		return string(body)
	}
	r, err := charset.NewReaderLabel(result.Charset, bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(converted)
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func parseError(source string, err error) error {
	return &domain.DiscoveryParseError{Source: source, Err: err}
}
