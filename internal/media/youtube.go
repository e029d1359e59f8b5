package media

import (
	"regexp"
	"strings"
)

var (
	youtubePattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:music\.)?youtu(?:be\.com/watch\?(?:[^#\s]*&)?v=|\.be/)([\w\-]+)`)
	uriPattern     = regexp.MustCompile(`\w+:(/?/?)[^\s]+`)
	// Anything with a separator or a file extension is a path, not an id.
	pathPattern = regexp.MustCompile(`[\\/]|\.[A-Za-z0-9]{2,5}$`)
)

// YouTubeID extracts a video id from a YouTube link or a bare id. Other URIs
// and filesystem paths report false.
func YouTubeID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if m := youtubePattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if uriPattern.MatchString(s) || pathPattern.MatchString(s) {
		return "", false
	}
	return s, true
}
