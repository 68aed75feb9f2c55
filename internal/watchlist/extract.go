package watchlist

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`(?i)https?://(?:[-\w.]|%[\da-f]{2})+[^\s]*`)

// ExtractURLs returns every http(s) URL in free text, in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// MatchURLs returns the URLs in text whose host is on the watch list.
func MatchURLs(text string, domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	var out []string
	for _, raw := range ExtractURLs(text) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if HostMatches(strings.ToLower(u.Host), domains) {
			out = append(out, raw)
		}
	}
	return out
}
