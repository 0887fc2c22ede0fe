package extract

import (
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/eventuary/pipeline/models"
)

// FeedStrategy parses an RSS/Atom syndication feed (many event calendars
// publish one even when the HTML itself is a client-rendered shell) and
// lifts every titled item (RSS items, or else Atom entries) as a card.
// It is handed pre-fetched feed XML rather than fetching it itself, keeping
// this package free of network I/O.
type FeedStrategy struct {
	// FeedXML is the pre-fetched feed document. When it is empty the
	// strategy yields no cards; the page HTML is not searched for a feed
	// link.
	FeedXML string
}

func (FeedStrategy) Name() string    { return "feed" }
func (FeedStrategy) TrustLevel() int { return 50 }

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Link        string `xml:"link"`
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
}

func (s FeedStrategy) Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool) {
	if s.FeedXML == "" {
		return nil, false
	}
	var rss rssFeed
	if err := xml.Unmarshal([]byte(s.FeedXML), &rss); err == nil && len(rss.Channel.Items) > 0 {
		var cards []models.RawEventCard
		for _, item := range rss.Channel.Items {
			if strings.TrimSpace(item.Title) == "" {
				continue
			}
			cards = append(cards, models.RawEventCard{
				Title:           item.Title,
				DescriptionHTML: item.Description,
				DateText:        item.PubDate,
			})
		}
		if len(cards) > 0 {
			return cards, true
		}
	}
	var atom atomFeed
	if err := xml.Unmarshal([]byte(s.FeedXML), &atom); err == nil && len(atom.Entries) > 0 {
		var cards []models.RawEventCard
		for _, entry := range atom.Entries {
			if strings.TrimSpace(entry.Title) == "" {
				continue
			}
			cards = append(cards, models.RawEventCard{
				Title:           entry.Title,
				DescriptionHTML: entry.Summary,
				DateText:        entry.Updated,
			})
		}
		if len(cards) > 0 {
			return cards, true
		}
	}
	return nil, false
}
