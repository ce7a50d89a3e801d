package ingest

import (
	"errors"
	"regexp"
	"strings"
)

// Span is one sliding-window slice of normalized text. Offsets are rune
// indices into the normalized text, so spans reconstruct it losslessly
// once the declared overlap is removed.
type Span struct {
	Start int
	End   int
	Text  string
}

var (
	crlfRe     = regexp.MustCompile(`\r\n?`)
	manyNlRe   = regexp.MustCompile(`\n{3,}`)
	trailWsRe  = regexp.MustCompile(`[ \t]+\n`)
	manySpcsRe = regexp.MustCompile(`[ \t]{2,}`)
)

// Normalize canonicalizes extracted text before chunking. Deterministic:
// the same input always yields the same normalized text, which keeps
// re-ingestion idempotent.
func Normalize(text string) string {
	text = crlfRe.ReplaceAllString(text, "\n")
	text = strings.ReplaceAll(text, "\t", " ")
	text = trailWsRe.ReplaceAllString(text, "\n")
	text = manySpcsRe.ReplaceAllString(text, " ")
	text = manyNlRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SlidingWindow slices text into windows of size runes advancing by
// (size - overlap), so consecutive spans share exactly overlap runes.
// The last span may be shorter.
func SlidingWindow(text string, size, overlap int) ([]Span, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be > 0")
	}
	if overlap < 0 || overlap >= size {
		return nil, errors.New("overlap must be >= 0 and < chunk size")
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	var spans []Span
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, Span{
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return spans, nil
}
