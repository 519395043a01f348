package browser

import (
	"strings"
)

// PageClass is the anti-bot classification of a rendered page.
type PageClass int

const (
	PageNormal PageClass = iota
	// PageSoftBlock is a rate-limit or challenge page expected to clear
	// after backoff.
	PageSoftBlock
	// PageHardBlock is an access denial treated as non-transient for
	// the current run.
	PageHardBlock
)

func (c PageClass) String() string {
	switch c {
	case PageSoftBlock:
		return "soft_block"
	case PageHardBlock:
		return "hard_block"
	default:
		return "normal"
	}
}

var softBlockMarkers = []string{
	"please verify you are a human",
	"confirm you are not a robot",
	"are you a robot",
	"unusual activity from your network",
	"too many requests",
	"press and hold",
	"challenge-container",
	"px-captcha",
}

var hardBlockMarkers = []string{
	"access denied",
	"access to this page has been denied",
	"your ip has been blocked",
	"error 1020",
	"request blocked",
}

var blockRedirectPaths = []string{
	"/airlock",
	"/challenge",
}

var hardBlockPaths = []string{
	"/denied",
}

// ClassifyPage inspects observable page signals (title, marker text,
// final URL) and classifies the page. Hard-block signals are checked
// first so a denial page that also carries challenge text is never
// downgraded to retryable. Pure function so the detection rules are
// testable without a browser.
func ClassifyPage(finalURL, title, html string) PageClass {
	lurl := strings.ToLower(finalURL)
	ltitle := strings.ToLower(title)
	lhtml := strings.ToLower(html)

	for _, p := range hardBlockPaths {
		if strings.Contains(lurl, p) {
			return PageHardBlock
		}
	}
	for _, m := range hardBlockMarkers {
		if strings.Contains(ltitle, m) || strings.Contains(lhtml, m) {
			return PageHardBlock
		}
	}

	for _, p := range blockRedirectPaths {
		if strings.Contains(lurl, p) {
			return PageSoftBlock
		}
	}

	for _, m := range softBlockMarkers {
		if strings.Contains(ltitle, m) || strings.Contains(lhtml, m) {
			return PageSoftBlock
		}
	}

	return PageNormal
}
