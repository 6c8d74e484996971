package extract

import (
	"regexp"
	"strings"
)

// Paragraphs longer than this get re-split at sentence boundaries so a
// single wall of text cannot dominate downstream chunking.
const maxParagraphLength = 1000

var (
	blankLinePattern = regexp.MustCompile(`\n\s*\n`)
	emailPattern     = regexp.MustCompile(`[\w.\-]+@[\w.\-]+\.\w+`)
)

// Clean normalizes extracted article text: collapses runs of blank lines,
// redacts email addresses, and re-wraps oversized paragraphs.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = blankLinePattern.ReplaceAllString(text, "\n\n")
	text = emailPattern.ReplaceAllString(text, "[email removed]")

	paragraphs := strings.Split(text, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if len(p) > maxParagraphLength {
			out = append(out, rewrapParagraph(p)...)
			continue
		}
		out = append(out, p)
	}
	return strings.TrimSpace(strings.Join(out, "\n\n"))
}

// rewrapParagraph greedily packs sentences into sub-paragraphs of at most
// maxParagraphLength characters, never splitting mid-sentence.
func rewrapParagraph(p string) []string {
	sentences := splitSentences(p)
	var (
		out     []string
		current strings.Builder
	)
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxParagraphLength {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		out = append(out, strings.TrimSpace(current.String()))
	}
	return out
}

// splitSentences splits after terminal punctuation followed by whitespace.
// Go's RE2 has no lookbehind, so this is a hand-rolled scan.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Consume any run of terminators ("?!", "...").
		j := i
		for j+1 < len(runes) && (runes[j+1] == '.' || runes[j+1] == '!' || runes[j+1] == '?') {
			j++
		}
		if j+1 < len(runes) && !isSpace(runes[j+1]) {
			i = j
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : j+1]))
		if sentence != "" {
			out = append(out, sentence)
		}
		i = j
		start = j + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
