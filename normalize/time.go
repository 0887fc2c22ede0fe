package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timeLadder is the time-of-day extraction ladder: each pattern captures an
// hour, a minute (optional), and an am/pm marker (optional), in priority
// order. It runs over free text (a card's title and description) when a
// strategy never populated a dedicated time_text field, picking up the
// phrasing event listings use across English and Dutch/German sources:
// "doors open at 19:00", "aanvang 20u", "vanaf 21:30", "starts at 8pm",
// "om 20.00 uur", "19 Uhr", and simple HH:MM/HH.MM ranges.
var timeLadder = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:aanvang|vanaf|starts?\s+at|doors?\s+open(?:s)?(?:\s+at)?|om)\s+(\d{1,2})[:.hu]?(\d{2})?\s*(am|pm)?\s*(?:uur|u|uhr)?\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2})[:.](\d{2})\s*(am|pm)?\s*(?:uur|u|uhr)?\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:uur|u|uhr)\b`),
}

// ExtractTime scans text for the first recognizable time-of-day mention and
// returns it normalized as "HH:MM" (24-hour), suitable for feeding back into
// ParseDate's time_text parameter.
func ExtractTime(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, re := range timeLadder {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		hour, minute, meridiem := extractMatch(re, m)
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			continue
		}
		switch strings.ToLower(meridiem) {
		case "pm":
			if hour != 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 {
			continue
		}
		return formatHHMM(hour, minute), true
	}
	return "", false
}

// extractMatch pulls hour/minute/meridiem out of a timeLadder match, coping
// with the patterns that don't capture a minute or a meridiem group.
func extractMatch(re *regexp.Regexp, m []string) (hour, minute int, meridiem string) {
	hour = atoiOr(m[1], -1)
	minute = 0
	if len(m) > 2 && m[2] != "" {
		if n := atoiOr(m[2], -1); n >= 0 {
			minute = n
		} else {
			meridiem = m[2]
		}
	}
	if len(m) > 3 && m[3] != "" {
		meridiem = m[3]
	}
	return hour, minute, meridiem
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func formatHHMM(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
