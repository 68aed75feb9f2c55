package browser

import (
	"net/url"
	"strings"
)

// DefaultArchiveHosts are the archive.today mirrors a finished capture may land on.
var DefaultArchiveHosts = []string{
	"archive.today", "archive.ph", "archive.is", "archive.li",
	"archive.vn", "archive.fo", "archive.md",
}

var reservedSegments = map[string]bool{"wip": true, "submit": true, "newest": true}

// hostMatcher recognizes capture addresses on a set of archive hosts.
type hostMatcher map[string]bool

func newHostMatcher(hosts []string) hostMatcher {
	if len(hosts) == 0 {
		hosts = DefaultArchiveHosts
	}
	m := make(hostMatcher, len(hosts))
	for _, h := range hosts {
		m[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")] = true
	}
	return m
}

func (m hostMatcher) archiveHost(u *url.URL) bool {
	return m[strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")]
}

// IsInProgress reports whether loc is a work-in-progress page.
func IsInProgress(loc string) bool {
	return strings.Contains(loc, "/wip/")
}

// isCapture reports whether loc is a completed capture: an archive host whose path,
// ignoring the query and surrounding slashes, has at least five characters and is not a
// reserved page.
func (m hostMatcher) isCapture(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil || !m.archiveHost(u) {
		return false
	}
	path := strings.Trim(u.Path, "/")
	if len(path) < 5 {
		return false
	}
	first, _, _ := strings.Cut(path, "/")
	return !reservedSegments[first]
}
