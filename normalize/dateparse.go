package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedDate is the outcome of running the date-parsing ladder against a raw
// date_text/time_text pair. Known is false when nothing in the ladder could
// make sense of the input; callers store a date-only UTC value with
// Known=false rather than fabricating a time of day. TimeKnown is
// independent of Known: a date can be recognized with no time-of-day ever
// found, in which case When stays at midnight UTC and callers report the
// event's time as "TBD" rather than inventing a clock time.
type ParsedDate struct {
	When      time.Time
	Known     bool
	TimeKnown bool
}

var absoluteLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January, "januari": time.January, "januar": time.January,
	"feb": time.February, "february": time.February, "februari": time.February, "februar": time.February,
	"mar": time.March, "march": time.March, "maart": time.March, "märz": time.March, "marz": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May, "mei": time.May, "mai": time.May,
	"jun": time.June, "june": time.June, "juni": time.June,
	"jul": time.July, "july": time.July, "juli": time.July,
	"aug": time.August, "august": time.August, "augustus": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October, "okt": time.October, "oktober": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December, "dez": time.December, "dezember": time.December,
}

var dutchGermanPattern = regexp.MustCompile(`(?i)^(\d{1,2})\s+([a-zàäöü]+)\s+(\d{4})$`)
var timePattern = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(am|pm|AM|PM)?`)

// dateTimeLayouts marks which absoluteLayouts entries carry a time-of-day
// component, so a bare ISO datetime in the date field itself (as JSON-LD's
// startDate commonly is) is recognized as a known time even when the
// extraction strategy never separately populated a time_text.
var dateTimeLayouts = map[string]bool{
	"2006-01-02T15:04:05Z07:00": true,
	"2006-01-02T15:04:05":       true,
	"2006-01-02 15:04:05":       true,
	"2006-01-02T15:04":          true,
}

var relativeKeywords = map[string]int{
	"today":    0,
	"tomorrow": 1,
	"vandaag":  0,
	"morgen":   1,
}

// ParseDate runs the ladder: ISO/common absolute layouts, then European and
// Dutch/German "2 januari 2026" style day-month-name-year, then relative
// keywords (today/tomorrow), against a reference "now" so tests are
// deterministic. dateText and timeText are combined when both are present.
func ParseDate(dateText, timeText string, now time.Time) ParsedDate {
	dateText = strings.TrimSpace(dateText)
	timeText = strings.TrimSpace(timeText)
	if dateText == "" {
		return ParsedDate{}
	}

	if d, ok, hasTime := parseAbsolute(dateText); ok {
		parsed := combineWithTime(d, timeText, true)
		if hasTime {
			parsed.TimeKnown = true
		}
		return parsed
	}
	if d, ok := parseNamedMonth(dateText); ok {
		return combineWithTime(d, timeText, true)
	}
	if days, ok := relativeKeywords[strings.ToLower(dateText)]; ok {
		d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
		return combineWithTime(d, timeText, true)
	}
	// Nothing recognized: store the raw text's date only if it at least
	// contains a four digit year, otherwise give up entirely.
	if y, ok := extractYear(dateText); ok {
		return ParsedDate{When: time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), Known: false}
	}
	return ParsedDate{}
}

// parseAbsolute also reports whether the matched layout itself carries a
// time-of-day component (the 3rd return).
func parseAbsolute(s string) (time.Time, bool, bool) {
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, dateTimeLayouts[layout]
		}
	}
	return time.Time{}, false, false
}

// daysInMonth returns how many days month has in year, accounting for leap
// years.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// validDay reports whether day is a real day of month in year -- unlike
// time.Date, which silently rolls an out-of-range day into the following
// month (e.g. "31 februari 2026" would otherwise become March 3rd).
func validDay(year int, month time.Month, day int) bool {
	return day >= 1 && day <= daysInMonth(year, month)
}

// parseNamedMonth handles "5 January 2026", "January 5 2026", "5 januari 2026"
// and similar day/month-name/year orderings the absolute layout table misses
// because of locale-specific month names.
func parseNamedMonth(s string) (time.Time, bool) {
	if m := dutchGermanPattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthNames[strings.ToLower(m[2])]
		year, _ := strconv.Atoi(m[3])
		if ok && validDay(year, month, day) {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	var day, year int
	var month time.Month
	for _, f := range fields {
		low := strings.ToLower(f)
		if m, ok := monthNames[low]; ok {
			month = m
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(f, "st"), "nd"), "th")); err == nil {
			if n > 31 {
				year = n
			} else if n > 0 {
				day = n
			}
		}
	}
	if month != 0 && day > 0 && year > 0 && validDay(year, month, day) {
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func extractYear(s string) (int, bool) {
	re := regexp.MustCompile(`\b(19|20)\d{2}\b`)
	m := re.FindString(s)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	return y, err == nil
}

func combineWithTime(d time.Time, timeText string, known bool) ParsedDate {
	if timeText == "" {
		return ParsedDate{When: d, Known: known}
	}
	m := timePattern.FindStringSubmatch(timeText)
	if m == nil {
		return ParsedDate{When: d, Known: known}
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return ParsedDate{When: d, Known: known}
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return ParsedDate{
		When:      time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC),
		Known:     known,
		TimeKnown: true,
	}
}
