package extract

import "strings"

// Fingerprint identifies the CMS/platform a page was generated by, used to
// pick a better-targeted recipe or DOM-selector set before falling further
// down the waterfall.
type Fingerprint string

const (
	FingerprintUnknown       Fingerprint = "unknown"
	FingerprintWordPressTEC  Fingerprint = "wordpress_the_events_calendar"
	FingerprintSquarespace   Fingerprint = "squarespace"
	FingerprintEventbrite    Fingerprint = "eventbrite"
	FingerprintDrupalViews   Fingerprint = "drupal_views"
	FingerprintWix           Fingerprint = "wix"
)

// markers maps a substring found in the raw HTML to the fingerprint it
// implies. Checked in order; first match wins.
var markers = []struct {
	needle string
	fp     Fingerprint
}{
	{"tribe-events", FingerprintWordPressTEC},
	{"the-events-calendar", FingerprintWordPressTEC},
	{"squarespace.com", FingerprintSquarespace},
	{"static1.squarespace.com", FingerprintSquarespace},
	{"eventbrite.com/static", FingerprintEventbrite},
	{"data-automation=\"event", FingerprintEventbrite},
	{"views-field-field-event", FingerprintDrupalViews},
	{"Drupal.settings", FingerprintDrupalViews},
	{"wix-warmup-data", FingerprintWix},
	{"static.wixstatic.com", FingerprintWix},
}

// Detect inspects raw HTML for known CMS fingerprints.
func Detect(html string) Fingerprint {
	lower := strings.ToLower(html)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m.needle)) {
			return m.fp
		}
	}
	return FingerprintUnknown
}
