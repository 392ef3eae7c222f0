package graph

import "strings"

// splitContent splits content into chunks of at most maxSize runes, with
// consecutive chunks overlapping by overlap runes. When a paragraph break
// exists in the second half of a chunk the cut moves there, so chunks tend
// to end on "\n\n" instead of mid-sentence. Offsets are rune positions into
// the original content.
type chunk struct {
	Text  string
	Start int
}

func splitContent(content string, maxSize, overlap int) []chunk {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}
	if maxSize <= 0 {
		maxSize = 2000
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = maxSize / 10
	}
	if len(runes) <= maxSize {
		return []chunk{{Text: content, Start: 0}}
	}

	chunks := make([]chunk, 0, len(runes)/(maxSize-overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + maxSize
		if end >= len(runes) {
			chunks = append(chunks, chunk{Text: string(runes[start:]), Start: start})
			break
		}

		// Cut at the last paragraph break past the midpoint, if any.
		window := string(runes[start+maxSize/2 : end])
		if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
			end = start + maxSize/2 + len([]rune(window[:idx]))
		}

		chunks = append(chunks, chunk{Text: string(runes[start:end]), Start: start})
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// snippetAround returns a short excerpt of text centered on the first
// occurrence of name, for entity provenance. Falls back to the head of the
// text when the name is not found verbatim.
func snippetAround(text, name string, radius int) string {
	runes := []rune(text)
	idx := strings.Index(strings.ToLower(text), strings.ToLower(name))
	center := 0
	if idx >= 0 {
		center = len([]rune(text[:idx]))
	}

	from := center - radius
	if from < 0 {
		from = 0
	}
	to := center + len([]rune(name)) + radius
	if to > len(runes) {
		to = len(runes)
	}
	return strings.TrimSpace(string(runes[from:to]))
}
