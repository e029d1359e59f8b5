package adapters

import (
	"context"
	"encoding/json"
	"net/http"

	"go2tv.app/castbeam/internal/domain"
)

type RecordType uint16

// Values match the DNS RR type codes.
const (
	RecordA   RecordType = 1
	RecordPTR RecordType = 12
	RecordTXT RecordType = 16
	RecordSRV RecordType = 33
)

func (t RecordType) String() string {
	switch t {
	case RecordA:
		return "A"
	case RecordPTR:
		return "PTR"
	case RecordTXT:
		return "TXT"
	case RecordSRV:
		return "SRV"
	default:
		return "UNKNOWN"
	}
}

// DNSAnswer is one resource record from a multicast DNS response. Only the
// fields relevant to Type are set.
type DNSAnswer struct {
	Type   RecordType
	Name   string
	Target string
	Port   uint16
	Text   []string
	IP     string
}

type MulticastResponse struct {
	Answers     []DNSAnswer
	Additionals []DNSAnswer
	From        string
}

// MulticastDNS sends queries and delivers responses on the mDNS group.
type MulticastDNS interface {
	Start(ctx context.Context, onResponse func(MulticastResponse)) error
	Query(name string, rtype RecordType) error
	Close() error
}

type ProbeResponse struct {
	Header     http.Header
	StatusCode int
	RemoteAddr string
}

// SSDPProbe issues SSDP searches and delivers the responses.
type SSDPProbe interface {
	Start(ctx context.Context, onResponse func(ProbeResponse)) error
	Search(serviceType string) error
	Close() error
}

// Fetcher retrieves a device descriptor document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// MimeInferrer maps a path or URL to a MIME type, "" when unknown.
type MimeInferrer interface {
	InferMimeType(path string) string
}

// CastDialer opens control connections to receivers.
type CastDialer interface {
	Dial(ctx context.Context, host string, port int) (CastConnection, error)
}

// CastConnection is a control channel to the platform receiver.
type CastConnection interface {
	GetSessions(ctx context.Context) ([]domain.ApplicationInfo, error)
	ReceiverStatus(ctx context.Context) (*domain.ReceiverStatus, error)
	Launch(ctx context.Context, appID string) (CastSession, error)
	Join(ctx context.Context, app domain.ApplicationInfo) (CastSession, error)
	StopSession(ctx context.Context, sessionID string) error
	SetVolume(ctx context.Context, volume domain.Volume) (*domain.ReceiverStatus, error)
	Done() <-chan struct{}
	Err() error
	Close() error
}

// CastSession is a channel to one running receiver application.
type CastSession interface {
	AppID() string
	SessionID() string
	Load(ctx context.Context, media domain.MediaDescriptor, opts domain.LoadOptions) (*domain.MediaStatus, error)
	Play(ctx context.Context) (*domain.MediaStatus, error)
	Pause(ctx context.Context) (*domain.MediaStatus, error)
	Stop(ctx context.Context) (*domain.MediaStatus, error)
	Seek(ctx context.Context, currentTime float64) (*domain.MediaStatus, error)
	GetStatus(ctx context.Context) (*domain.MediaStatus, error)
	EditTracks(ctx context.Context, req domain.EditTracksRequest) (*domain.MediaStatus, error)
	Request(ctx context.Context, namespace string, payload any) (json.RawMessage, error)
	OnStatus(handler func(domain.MediaStatus))
	// Closed reports whether the receiver ended the application's transport.
	Closed() bool
}
