// Package chunk splits long text into bounded segments suitable for a
// single speech-synthesis request, preferring paragraph boundaries, then
// sentences, then words, then raw character positions.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	// Threshold is the input length above which text is split into
	// multiple segments. Shorter input is synthesized in one request.
	Threshold = 4000

	// MaxSegmentLength is the hard per-segment ceiling, matching the
	// speech endpoint's input limit.
	MaxSegmentLength = 4096
)

// Split divides text into ordered segments, each at most maxLen bytes.
// Segments are trimmed and never empty. The concatenation of all segments
// preserves the non-whitespace content of the input in order.
func Split(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var segments []string
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			segments = append(segments, s)
		}
		buf.Reset()
	}

	for _, para := range splitParagraphs(text) {
		if len(para) > maxLen {
			flush()
			segments = append(segments, splitParagraph(para, maxLen)...)
			continue
		}
		// +2 accounts for the paragraph separator re-inserted below.
		if buf.Len() > 0 && buf.Len()+2+len(para) > maxLen {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()

	if len(segments) == 0 {
		segments = sliceFixed(text, maxLen)
	}
	return segments
}

// splitParagraphs breaks text on blank-line boundaries.
func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, block := range strings.Split(normalized, "\n\n") {
		if p := strings.TrimSpace(block); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitParagraph handles a single paragraph longer than maxLen by
// accumulating sentences, falling back to space-boundary slicing when the
// paragraph has no sentence delimiters.
func splitParagraph(para string, maxLen int) []string {
	sentences := splitSentences(para)
	if len(sentences) <= 1 {
		return sliceAtSpaces(para, maxLen)
	}

	var segments []string
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			segments = append(segments, s)
		}
		buf.Reset()
	}

	for _, sentence := range sentences {
		if len(sentence) > maxLen {
			flush()
			segments = append(segments, splitWords(sentence, maxLen)...)
			continue
		}
		if buf.Len() > 0 && buf.Len()+1+len(sentence) > maxLen {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(sentence)
	}
	flush()
	return segments
}

// splitSentences cuts text after '.', '!' or '?' followed by whitespace or
// end of input. The terminator stays attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || isSpace(text[i+1]) {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// splitWords accumulates whitespace-separated words, rejoined with single
// spaces, flushing whenever the next word would push past maxLen. A single
// word longer than maxLen is hard-sliced.
func splitWords(sentence string, maxLen int) []string {
	var segments []string
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			segments = append(segments, s)
		}
		buf.Reset()
	}

	for _, word := range strings.Fields(sentence) {
		if len(word) > maxLen {
			flush()
			segments = append(segments, sliceFixed(word, maxLen)...)
			continue
		}
		if buf.Len() > 0 && buf.Len()+1+len(word) > maxLen {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(word)
	}
	flush()
	return segments
}

// sliceAtSpaces repeatedly cuts at the last space at or before maxLen,
// falling back to an exact cut when no space is in range.
func sliceAtSpaces(text string, maxLen int) []string {
	var segments []string
	rest := text
	for len(rest) > maxLen {
		cut := strings.LastIndexByte(rest[:maxLen+1], ' ')
		if cut <= 0 {
			cut = runeBoundary(rest, maxLen)
		}
		if s := strings.TrimSpace(rest[:cut]); s != "" {
			segments = append(segments, s)
		}
		rest = strings.TrimSpace(rest[cut:])
	}
	if s := strings.TrimSpace(rest); s != "" {
		segments = append(segments, s)
	}
	return segments
}

// sliceFixed cuts text into maxLen-sized pieces with no boundary preference.
func sliceFixed(text string, maxLen int) []string {
	var segments []string
	rest := text
	for len(rest) > maxLen {
		cut := runeBoundary(rest, maxLen)
		segments = append(segments, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		segments = append(segments, rest)
	}
	return segments
}

// runeBoundary returns the largest index <= max that does not split a rune.
func runeBoundary(s string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
