package challenge

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Verdict is the outcome of inspecting a page.
type Verdict int

// Detection verdicts.
const (
	// VerdictNone means the page shows no sign of a challenge.
	VerdictNone Verdict = iota
	// VerdictSolvable means a widget and site key were located.
	VerdictSolvable
	// VerdictSuspected means the page reads like a challenge but no site key was found.
	VerdictSuspected
)

func (v Verdict) String() string {
	switch v {
	case VerdictSolvable:
		return "solvable"
	case VerdictSuspected:
		return "suspected"
	default:
		return "none"
	}
}

// Detection is what Detect found on a page.
type Detection struct {
	Verdict   Verdict
	Challenge Challenge
	// Strategy names the locator that produced the site key.
	Strategy string
}

type locator struct {
	name string
	find func(html string, doc *goquery.Document) (Challenge, bool)
}

// strategies run in order; the first to return a site key wins.
var strategies = []locator{
	{name: "markup_regex", find: fromMarkup},
	{name: "widget_element", find: fromWidget},
	{name: "sitekey_attribute", find: fromSiteKeyAttr},
	{name: "iframe_src", find: fromIframe},
}

var siteKeyPattern = regexp.MustCompile(
	`(?i)(?:data-(?:hcaptcha-)?sitekey|["']?sitekey["']?)\s*[=:]\s*["']([0-9A-Za-z_-]{8,})["']`)

// Detect inspects rendered page markup for a challenge widget.
func Detect(html, pageURL string) Detection {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc = nil
	}
	for _, s := range strategies {
		if doc == nil && s.name != "markup_regex" {
			continue
		}
		ch, ok := s.find(html, doc)
		if !ok || ch.SiteKey == "" {
			continue
		}
		ch.PageURL = pageURL
		return Detection{Verdict: VerdictSolvable, Challenge: ch, Strategy: s.name}
	}
	if LooksLikeChallenge([]byte(html)) {
		return Detection{Verdict: VerdictSuspected, Challenge: Challenge{PageURL: pageURL}}
	}
	return Detection{Verdict: VerdictNone}
}

func fromMarkup(html string, _ *goquery.Document) (Challenge, bool) {
	m := siteKeyPattern.FindStringSubmatchIndex(html)
	if m == nil {
		return Challenge{}, false
	}
	key := html[m[2]:m[3]]
	return Challenge{
		Kind:      inferKind(html),
		SiteKey:   key,
		Invisible: strings.Contains(strings.ToLower(html), `data-size="invisible"`),
	}, true
}

func fromWidget(_ string, doc *goquery.Document) (Challenge, bool) {
	if sel := doc.Find(".h-captcha, [data-hcaptcha-sitekey]").First(); sel.Length() > 0 {
		key := attrOf(sel, "data-sitekey", "data-hcaptcha-sitekey")
		return Challenge{Kind: KindHCaptcha, SiteKey: key, Invisible: isInvisible(sel)}, key != ""
	}
	if sel := doc.Find(".g-recaptcha").First(); sel.Length() > 0 {
		key := attrOf(sel, "data-sitekey")
		return Challenge{Kind: KindRecaptcha, SiteKey: key, Invisible: isInvisible(sel)}, key != ""
	}
	return Challenge{}, false
}

func fromSiteKeyAttr(_ string, doc *goquery.Document) (Challenge, bool) {
	sel := doc.Find("[data-sitekey]").First()
	if sel.Length() == 0 {
		return Challenge{}, false
	}
	key := attrOf(sel, "data-sitekey")
	outer, _ := goquery.OuterHtml(sel)
	kind := inferKind(outer)
	if !strings.Contains(strings.ToLower(outer), "captcha") {
		kind = inferKind(documentText(doc))
	}
	return Challenge{Kind: kind, SiteKey: key, Invisible: isInvisible(sel)}, key != ""
}

func fromIframe(_ string, doc *goquery.Document) (Challenge, bool) {
	var found Challenge
	doc.Find("iframe[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		u, err := url.Parse(src)
		if err != nil {
			return true
		}
		key := siteKeyFromURL(u)
		if key == "" {
			return true
		}
		found = Challenge{
			Kind:      inferKind(u.Host + u.Path),
			SiteKey:   key,
			Invisible: u.Query().Get("size") == "invisible",
		}
		return false
	})
	return found, found.SiteKey != ""
}

// siteKeyFromURL reads sitekey= or k= from the query or, for hCaptcha, the fragment.
func siteKeyFromURL(u *url.URL) string {
	for _, vals := range []url.Values{u.Query(), fragmentValues(u.Fragment)} {
		if key := vals.Get("sitekey"); key != "" {
			return key
		}
		if key := vals.Get("k"); key != "" {
			return key
		}
	}
	return ""
}

func fragmentValues(fragment string) url.Values {
	if fragment == "" {
		return url.Values{}
	}
	vals, err := url.ParseQuery(fragment)
	if err != nil {
		return url.Values{}
	}
	return vals
}

// inferKind prefers hCaptcha because its widget also emits a g-recaptcha-response field.
func inferKind(text string) Kind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "hcaptcha"), strings.Contains(lower, "h-captcha"):
		return KindHCaptcha
	case strings.Contains(lower, "recaptcha"):
		return KindRecaptcha
	default:
		return KindHCaptcha
	}
}

func attrOf(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func isInvisible(sel *goquery.Selection) bool {
	size, _ := sel.Attr("data-size")
	return strings.EqualFold(size, "invisible")
}

func documentText(doc *goquery.Document) string {
	html, err := doc.Html()
	if err != nil {
		return ""
	}
	return html
}
