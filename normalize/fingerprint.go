package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ContentHash is the cross-source identity key: sha256(title|event_date).
// Two listings of the same show scraped from different sites' pages
// collide here even though they carry different source IDs, which is what
// lets the dedup/merger fold them into one golden record.
// Time-of-day is deliberately excluded -- two listings that disagree on
// showtime (a common drift between a venue's own site and an aggregator)
// still collide rather than duplicate.
func ContentHash(title string, eventDate time.Time) string {
	h := sha256.New()
	h.Write([]byte(normalizeKey(title)))
	h.Write([]byte("|"))
	h.Write([]byte(eventDate.Format("2006-01-02")))
	return hex.EncodeToString(h.Sum(nil))
}

// EventFingerprint is the within-source identity key:
// sha256(title|event_date|source_id). A re-run of the same source against
// the same listing collides on this even if ContentHash also collides with
// a different source's copy of the same event.
func EventFingerprint(title string, eventDate time.Time, sourceID string) string {
	h := sha256.New()
	h.Write([]byte(normalizeKey(title)))
	h.Write([]byte("|"))
	h.Write([]byte(eventDate.Format("2006-01-02")))
	h.Write([]byte("|"))
	h.Write([]byte(sourceID))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}
