package mimetype

import (
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"go2tv.app/go2tv/v2/utils"

	"go2tv.app/castbeam/internal/adapters"
)

const hlsPlaylist = "application/vnd.apple.mpegurl"

// Extensions the receiver cares about that filetype and the system table
// disagree on or lack.
var overrides = map[string]string{
	".m3u8": hlsPlaylist,
	".m3u":  "audio/x-mpegurl",
	".vtt":  "text/vtt",
	".ts":   "video/mp2t",
	".mkv":  "video/x-matroska",
	".flac": "audio/flac",
}

// Inferrer resolves MIME types from extensions, sniffing local files when
// they exist.
type Inferrer struct {
	// Sniff enables content sniffing of local paths.
	Sniff bool
}

func New() *Inferrer {
	return &Inferrer{Sniff: true}
}

func (i *Inferrer) InferMimeType(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}

	if isRemote(source) && utils.IsHLSStream(source, "") {
		return hlsPlaylist
	}

	ext := mediaExt(source)
	if ext != "" {
		if t, ok := overrides[ext]; ok {
			return t
		}
		if t := filetype.GetType(strings.TrimPrefix(ext, ".")); t != filetype.Unknown && t.MIME.Value != "" {
			return t.MIME.Value
		}
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			base, _, _ := strings.Cut(guessed, ";")
			return strings.TrimSpace(base)
		}
	}

	if i.Sniff && !isRemote(source) {
		if _, err := os.Stat(source); err == nil {
			if t, err := utils.GetMimeDetailsFromPath(source); err == nil && t != "" && t != "/" && t != "application/octet-stream" {
				return t
			}
		}
	}
	return ""
}

func isRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func mediaExt(source string) string {
	if parsed, err := url.Parse(source); err == nil && parsed.Path != "" {
		ext := strings.ToLower(path.Ext(parsed.Path))
		if isSafeExt(ext) {
			return ext
		}
	}

	ext := strings.ToLower(filepath.Ext(source))
	if isSafeExt(ext) {
		return ext
	}
	return ""
}

func isSafeExt(ext string) bool {
	if ext == "" || len(ext) > 16 || !strings.HasPrefix(ext, ".") {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

var _ adapters.MimeInferrer = (*Inferrer)(nil)
