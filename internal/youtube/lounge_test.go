package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loungeServer struct {
	mu       sync.Mutex
	playlist []string
	sids     []string
}

func (s *loungeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	switch r.URL.Path {
	case "/pairing/get_lounge_token_batch":
		if r.PostForm.Get("screen_ids") != "screen-42" {
			_, _ = w.Write([]byte(`{"screens":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"screens":[{"screenId":"screen-42","loungeToken":"tok-1","expiration":1}]}`))
	case "/bc/bind":
		if r.URL.Query().Get("loungeIdToken") != "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if r.PostForm.Get("count") == "0" {
			_, _ = w.Write([]byte("42\n[[0,[\"c\",\"SID-9\",\"\",8]],[1,[\"S\",\"GS-7\"]]]\n"))
			return
		}
		s.sids = append(s.sids, r.URL.Query().Get("SID")+"/"+r.URL.Query().Get("gsessionid"))
		s.playlist = append(s.playlist, r.PostForm.Get("req0__sc")+":"+r.PostForm.Get("req0_videoId"))
		_, _ = w.Write([]byte("ok"))
	default:
		http.NotFound(w, r)
	}
}

func TestPlayVideo(t *testing.T) {
	backend := &loungeServer{}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	l := NewLoader(Options{BaseURL: srv.URL})
	require.NoError(t, l.PlayVideo(context.Background(), "screen-42", "dQw4w9WgXcQ"))

	assert.Equal(t, []string{"setPlaylist:dQw4w9WgXcQ"}, backend.playlist)
	assert.Equal(t, []string{"SID-9/GS-7"}, backend.sids)
}

func TestPlayVideoUnknownScreen(t *testing.T) {
	srv := httptest.NewServer(&loungeServer{})
	defer srv.Close()

	err := NewLoader(Options{BaseURL: srv.URL}).PlayVideo(context.Background(), "other", "x")
	require.ErrorIs(t, err, ErrNoLoungeToken)
}
