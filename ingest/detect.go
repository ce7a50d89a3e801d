package ingest

import (
	"regexp"
	"strings"
)

// Detection is the heuristic classification of one chunk. Ambiguous or
// no-match text keeps the "unknown" tags instead of being dropped:
// information loss is worse than imprecise tagging.
type Detection struct {
	Country    string
	Topic      string
	Confidence float64
}

// DetectMetadata assigns the best-matching jurisdiction and topic from the
// controlled vocabularies, with a share-of-mentions confidence score.
func DetectMetadata(text string) Detection {
	lower := strings.ToLower(text)

	country, countryScore := bestMatch(lower, countryPatterns)
	topic, _ := bestMatch(lower, topicPatterns)

	return Detection{
		Country:    country,
		Topic:      topic,
		Confidence: countryScore,
	}
}

// bestMatch counts surface-form occurrences per tag and returns the tag
// with the most mentions plus its share of all mentions. Ties resolve to
// the lexically smaller tag so tagging stays deterministic.
func bestMatch(lower string, vocab map[string][]string) (string, float64) {
	best := Unknown
	bestCount := 0
	total := 0

	for tag, patterns := range vocab {
		count := 0
		for _, pat := range patterns {
			count += strings.Count(lower, pat)
		}
		total += count
		if count > bestCount || (count == bestCount && count > 0 && tag < best) {
			best = tag
			bestCount = count
		}
	}

	if bestCount == 0 {
		return Unknown, 0
	}
	return best, float64(bestCount) / float64(total)
}

// NormalizeCountry maps a filter value (ISO-2 code or a known name variant)
// to its canonical ISO-2 tag. Returns false for values outside the
// vocabulary.
func NormalizeCountry(v string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(v))
	if lower == "" {
		return "", false
	}
	if _, ok := countryPatterns[lower]; ok {
		return lower, true
	}
	if code, ok := countryAliases[lower]; ok {
		return code, true
	}
	return "", false
}

var (
	pageMarkerRe = regexp.MustCompile(`\[PAGE (\d+)\]`)
	headerRe     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	sectionNumRe = regexp.MustCompile(`(?m)^\d+\.\s+([A-ZÀ-Ü][^:\n]+)`)
)

// lastPageMarker returns the last [PAGE n] marker in the span, or 0.
func lastPageMarker(text string) int {
	matches := pageMarkerRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}
	last := matches[len(matches)-1][1]
	n := 0
	for i := 0; i < len(last); i++ {
		n = n*10 + int(last[i]-'0')
	}
	return n
}

// sectionOf extracts the first heading found in the span, if any.
func sectionOf(text string) string {
	if m := headerRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := sectionNumRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
