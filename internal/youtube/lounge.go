// Package youtube queues videos on a YouTube receiver through the lounge API,
// addressed by the screen id the receiver reports over the mdx namespace.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultBaseURL = "https://www.youtube.com/api/lounge"
	defaultName    = "castbeam"
	maxBody        = 1 << 20
)

var (
	sidPattern      = regexp.MustCompile(`"c","([^"]+)"`)
	gsessionPattern = regexp.MustCompile(`"S","([^"]+)"`)

	ErrNoLoungeToken = errors.New("youtube: no lounge token for screen")
	ErrBindFailed    = errors.New("youtube: lounge bind returned no session")
)

type Options struct {
	BaseURL string
	Name    string
	Retries int
	Timeout time.Duration
	Logger  *slog.Logger
}

type Loader struct {
	client   *retryablehttp.Client
	baseURL  string
	name     string
	deviceID string
	rid      atomic.Int64
	logger   *slog.Logger
}

func NewLoader(opts Options) *Loader {
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	client.RetryMax = max(opts.Retries, 0)
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = opts.Logger
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	name := opts.Name
	if name == "" {
		name = defaultName
	}

	l := &Loader{client: client, baseURL: base, name: name, deviceID: uuid.NewString(), logger: logger}
	l.rid.Store(1000)
	return l
}

// PlayVideo replaces the receiver's playlist with videoID.
func (l *Loader) PlayVideo(ctx context.Context, screenID, videoID string) error {
	token, err := l.loungeToken(ctx, screenID)
	if err != nil {
		return err
	}
	sid, gsession, err := l.bind(ctx, token)
	if err != nil {
		return err
	}
	if err := l.setPlaylist(ctx, token, sid, gsession, videoID); err != nil {
		return err
	}
	l.logger.Info("youtube_play", "video_id", videoID)
	return nil
}

func (l *Loader) loungeToken(ctx context.Context, screenID string) (string, error) {
	body, err := l.post(ctx, l.baseURL+"/pairing/get_lounge_token_batch", nil, url.Values{"screen_ids": {screenID}})
	if err != nil {
		return "", err
	}
	token, err := jsonparser.GetString(body, "screens", "[0]", "loungeToken")
	if err != nil || token == "" {
		return "", ErrNoLoungeToken
	}
	return token, nil
}

func (l *Loader) bind(ctx context.Context, token string) (string, string, error) {
	body, err := l.post(ctx, l.baseURL+"/bc/bind", l.bindQuery(token, nil), url.Values{"count": {"0"}})
	if err != nil {
		return "", "", err
	}
	sid := sidPattern.FindSubmatch(body)
	gsession := gsessionPattern.FindSubmatch(body)
	if sid == nil || gsession == nil {
		return "", "", ErrBindFailed
	}
	return string(sid[1]), string(gsession[1]), nil
}

func (l *Loader) setPlaylist(ctx context.Context, token, sid, gsession, videoID string) error {
	query := l.bindQuery(token, url.Values{"SID": {sid}, "gsessionid": {gsession}})
	form := url.Values{
		"count":             {"1"},
		"ofs":               {"0"},
		"req0__sc":          {"setPlaylist"},
		"req0_videoId":      {videoID},
		"req0_currentTime":  {"0"},
		"req0_currentIndex": {"-1"},
		"req0_audioOnly":    {"false"},
		"req0_params":       {""},
		"req0_playerParams": {""},
	}
	_, err := l.post(ctx, l.baseURL+"/bc/bind", query, form)
	return err
}

func (l *Loader) bindQuery(token string, extra url.Values) url.Values {
	q := url.Values{
		"device":        {"REMOTE_CONTROL"},
		"mdx-version":   {"3"},
		"ui":            {"1"},
		"v":             {"2"},
		"name":          {l.name},
		"app":           {"youtube-desktop"},
		"loungeIdToken": {token},
		"id":            {l.deviceID},
		"VER":           {"8"},
		"CVER":          {"1"},
		"RID":           {strconv.FormatInt(l.rid.Add(1), 10)},
	}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

func (l *Loader) post(ctx context.Context, endpoint string, query, form url.Values) ([]byte, error) {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("youtube: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("youtube: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube: %s returned status %d", endpoint, resp.StatusCode)
	}
	return body, nil
}
