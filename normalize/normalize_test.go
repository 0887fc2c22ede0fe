package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/models"
)

func fixedNow() time.Time {
	return time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)
}

func TestParseDateAbsoluteISO(t *testing.T) {
	pd := ParseDate("2026-08-01", "7:30pm", fixedNow())
	require.True(t, pd.Known)
	assert.Equal(t, 2026, pd.When.Year())
	assert.Equal(t, time.August, pd.When.Month())
	assert.Equal(t, 1, pd.When.Day())
	assert.Equal(t, 19, pd.When.Hour())
	assert.Equal(t, 30, pd.When.Minute())
}

func TestParseDateNamedMonthDutch(t *testing.T) {
	pd := ParseDate("5 januari 2026", "", fixedNow())
	require.True(t, pd.Known)
	assert.Equal(t, time.January, pd.When.Month())
	assert.Equal(t, 5, pd.When.Day())
}

func TestParseDateNamedMonthEnglishOrdinal(t *testing.T) {
	pd := ParseDate("August 1st, 2026", "", fixedNow())
	require.True(t, pd.Known)
	assert.Equal(t, time.August, pd.When.Month())
	assert.Equal(t, 1, pd.When.Day())
}

func TestParseDateRelativeKeyword(t *testing.T) {
	pd := ParseDate("tomorrow", "", fixedNow())
	require.True(t, pd.Known)
	assert.Equal(t, 1, pd.When.Day())
	assert.Equal(t, time.August, pd.When.Month())
}

func TestParseDateUnrecognizedFallsBackToYearOnly(t *testing.T) {
	pd := ParseDate("sometime in 2027", "", fixedNow())
	assert.False(t, pd.Known)
	assert.Equal(t, 2027, pd.When.Year())
}

func TestParseDateEmptyIsUnknown(t *testing.T) {
	pd := ParseDate("", "", fixedNow())
	assert.False(t, pd.Known)
	assert.True(t, pd.When.IsZero())
}

func TestParseDateRejectsDayPastEndOfMonth(t *testing.T) {
	pd := ParseDate("31 februari 2026", "", fixedNow())
	assert.False(t, pd.Known, "februari never has a 31st; must not silently roll over to March")
}

func TestParseDateNamedMonthEnglishRejectsDayPastEndOfMonth(t *testing.T) {
	pd := ParseDate("February 31, 2026", "", fixedNow())
	assert.False(t, pd.Known)
}

func TestParseDateLeapYearFebruary29IsValid(t *testing.T) {
	pd := ParseDate("29 februari 2028", "", fixedNow())
	require.True(t, pd.Known)
	assert.Equal(t, 29, pd.When.Day())
}

func TestParseDateISODatetimeMarksTimeKnown(t *testing.T) {
	pd := ParseDate("2026-08-01T20:00:00", "", fixedNow())
	require.True(t, pd.Known)
	assert.True(t, pd.TimeKnown)
	assert.Equal(t, 20, pd.When.Hour())
}

func TestParseDateWithoutTimeTextLeavesTimeUnknown(t *testing.T) {
	pd := ParseDate("2026-08-01", "", fixedNow())
	require.True(t, pd.Known)
	assert.False(t, pd.TimeKnown)
}

func TestExtractTimeRecognizesDutchAndGermanPhrasing(t *testing.T) {
	cases := map[string]string{
		"Doors open at 19:00, show starts later":        "19:00",
		"aanvang 20u, zaal open vanaf 19u":               "20:00",
		"Einlass 19 Uhr":                                 "19:00",
		"starts at 8pm sharp":                            "20:00",
		"om 20.00 uur begint het feest":                  "20:00",
	}
	for text, want := range cases {
		got, ok := ExtractTime(text)
		require.True(t, ok, "expected a time match in %q", text)
		assert.Equal(t, want, got, "text: %q", text)
	}
}

func TestExtractTimeNoMatchReturnsFalse(t *testing.T) {
	_, ok := ExtractTime("Join us for a night of music and dancing")
	assert.False(t, ok)
}

func TestClassifyPrefersExplicitCategoryText(t *testing.T) {
	assert.Equal(t, "MUSIC", Classify("Live Music", "Anything", ""))
}

func TestClassifyFallsBackToKeywordScan(t *testing.T) {
	assert.Equal(t, "NIGHTLIFE", Classify("", "Friday Night Stand-Up", ""))
	assert.Equal(t, CategoryDefault, Classify("", "Quarterly Board Meeting", ""))
}

func TestScoreCardPenalizesNoiseMarkers(t *testing.T) {
	res := ScoreCard("404 Error", "Page not found, please enable javascript")
	assert.False(t, res.IsProbable)
	assert.Less(t, res.Score, 0.5)
}

func TestNormalizeRejectsCardWithoutRecognizableDate(t *testing.T) {
	n := &Normalizer{Now: fixedNow}
	for _, dateText := range []string{"", "sometime soon", "31 februari 2026"} {
		card := &models.RawEventCard{
			Title:           "Jazz Night at The Blue Room",
			DateText:        dateText,
			DescriptionHTML: "<p>An evening of live jazz featuring local musicians and a full bar.</p>",
		}
		res, ok := n.Normalize(card, "src-1")
		assert.False(t, ok, "date %q must not normalize", dateText)
		assert.Contains(t, res.Quality.Issues, "no recognizable event date")
	}
}

func TestNormalizeAcceptsParseableDate(t *testing.T) {
	n := &Normalizer{Now: fixedNow}
	card := &models.RawEventCard{
		Title:           "Jazz Night at The Blue Room",
		DateText:        "12 april 2026",
		DescriptionHTML: "<p>An evening of live jazz featuring local musicians and a full bar.</p>",
	}
	res, ok := n.Normalize(card, "src-1")
	require.True(t, ok)
	assert.Equal(t, 2026, res.Event.EventDate.Year())
}

func TestIsProbableEventRejectsListingPageHeadings(t *testing.T) {
	assert.False(t, IsProbableEvent("Concerten in Amsterdam", ""))
	assert.False(t, IsProbableEvent("Events in Rotterdam", "All upcoming events in the city centre."))
	assert.False(t, IsProbableEvent("What's on in Leeds", ""))
	assert.True(t, IsProbableEvent("Concert: The Hague Philharmonic in Amsterdam", ""))
}

func TestScoreCardAcceptsRealisticListing(t *testing.T) {
	res := ScoreCard("Jazz Night at The Blue Room", "An evening of live jazz featuring local musicians and a full bar.")
	assert.True(t, res.IsProbable)
	assert.Equal(t, 1.0, res.Score)
}

func TestContentHashIgnoresTimeOfDay(t *testing.T) {
	d1 := time.Date(2026, time.August, 1, 19, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, time.August, 1, 20, 30, 0, 0, time.UTC)
	assert.Equal(t, ContentHash("Jazz Night", d1), ContentHash("jazz night", d2))
}

func TestContentHashIgnoresSourceButFingerprintDoesNot(t *testing.T) {
	d := time.Date(2026, time.August, 1, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, ContentHash("Jazz Night", d), ContentHash("Jazz Night", d))
	assert.NotEqual(t, EventFingerprint("Jazz Night", d, "source-a"), EventFingerprint("Jazz Night", d, "source-b"))
}

func TestEventFingerprintIsPureAndIdempotent(t *testing.T) {
	d := time.Date(2026, time.August, 1, 19, 0, 0, 0, time.UTC)
	a := EventFingerprint("Jazz Night", d, "src-1")
	b := EventFingerprint("Jazz Night", d, "src-1")
	assert.Equal(t, a, b)
}

func TestNormalizerRejectsNoiseCard(t *testing.T) {
	n := &Normalizer{Now: fixedNow}
	card := &models.RawEventCard{Title: "404 Error", SourceURL: "https://x.test/e/1"}
	_, ok := n.Normalize(card, "src-1")
	assert.False(t, ok)
}

func TestNormalizerProducesEventForGoodCard(t *testing.T) {
	n := &Normalizer{Now: fixedNow}
	card := &models.RawEventCard{
		Title:           "Jazz Night",
		DescriptionHTML: "<p>An evening of live jazz with the house quartet downtown.</p>",
		DateText:        "2026-08-01",
		TimeText:        "8:00pm",
		VenueName:       "The Blue Room",
		CategoryText:    "",
		SourceURL:       "https://x.test/e/1",
	}
	res, ok := n.Normalize(card, "src-1")
	require.True(t, ok)
	require.NotNil(t, res.Event)
	assert.Equal(t, "MUSIC", res.Event.Category)
	assert.True(t, res.Event.TimeKnown)
	assert.Equal(t, 20, res.Event.EventDate.Hour())
	assert.Equal(t, "20:00", res.Event.EventTime)
	assert.NotEmpty(t, res.Event.Fingerprint)
}

func TestNormalizerReportsTBDWhenNoTimeIsEverFound(t *testing.T) {
	n := &Normalizer{Now: fixedNow}
	card := &models.RawEventCard{
		Title:           "Jazz Night",
		DescriptionHTML: "<p>An evening of live jazz with the house quartet downtown.</p>",
		DateText:        "2026-08-01",
		SourceURL:       "https://x.test/e/1",
	}
	res, ok := n.Normalize(card, "src-1")
	require.True(t, ok)
	require.NotNil(t, res.Event)
	assert.False(t, res.Event.TimeKnown)
	assert.Equal(t, "TBD", res.Event.EventTime)
}

func TestNormalizerExtractsTimeFromDescriptionWhenTimeTextIsEmpty(t *testing.T) {
	n := &Normalizer{Now: fixedNow}
	card := &models.RawEventCard{
		Title:           "Jazz Night",
		DescriptionHTML: "<p>Doors open at 19:00, music starts shortly after downtown.</p>",
		DateText:        "2026-08-01",
		SourceURL:       "https://x.test/e/1",
	}
	res, ok := n.Normalize(card, "src-1")
	require.True(t, ok)
	require.NotNil(t, res.Event)
	assert.True(t, res.Event.TimeKnown)
	assert.Equal(t, "19:00", res.Event.EventTime)
}
