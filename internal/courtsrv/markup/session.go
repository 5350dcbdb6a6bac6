package markup

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var csrfInlineRe = regexp.MustCompile(`name=\\?["']authenticity_token\\?["'][^>]*?value=\\?["']([^"'\\]+)`)

// CSRFToken returns the authenticity token embedded in a page, either in the
// csrf-token meta tag or in a hidden authenticity_token input. Falls back to
// a plain scan for pages that only carry the token inside a script string.
// Returns "" if none is found.
func CSRFToken(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		if token, ok := doc.Find(`meta[name="csrf-token"]`).First().Attr("content"); ok && token != "" {
			return token
		}
		if token, ok := doc.Find(`input[name="authenticity_token"]`).First().Attr("value"); ok && token != "" {
			return token
		}
	}
	if m := csrfInlineRe.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	return ""
}

// LoginRedirect recognises answers that bounce an expired session back to
// the login page. The patterns for its login paths are built once.
type LoginRedirect struct {
	paths   []string
	scripts []*regexp.Regexp
}

// NewLoginRedirect builds a LoginRedirect for the given login paths. Empty
// paths are ignored.
func NewLoginRedirect(loginPaths ...string) *LoginRedirect {
	l := &LoginRedirect{}
	for _, p := range loginPaths {
		if p == "" {
			continue
		}
		l.paths = append(l.paths, p)
		l.scripts = append(l.scripts, regexp.MustCompile(`location(?:\.href)?\s*=\s*["'][^"']*`+regexp.QuoteMeta(p)))
	}
	return l
}

// Location reports whether a redirect target points at a login path.
func (l *LoginRedirect) Location(loc string) bool {
	for _, p := range l.paths {
		if strings.Contains(loc, p) {
			return true
		}
	}
	return false
}

// Page reports whether an authenticated page was answered with a bounce to
// the login page instead: a "You are being redirected" stub, a script
// redirect, or the login form itself.
func (l *LoginRedirect) Page(page string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	for i, p := range l.paths {
		if err == nil {
			if doc.Find(`a[href*="`+p+`"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
				return strings.Contains(strings.ToLower(s.Text()), "redirected")
			}).Length() > 0 {
				return true
			}
			if doc.Find(`form[action*="`+p+`"]`).Length() > 0 {
				return true
			}
		}
		if l.scripts[i].MatchString(page) {
			return true
		}
	}
	return false
}
