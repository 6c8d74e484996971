// Package textproc prepares extracted article text for speech synthesis
// and splits it into bounded, sentence-aligned chunks.
package textproc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// DefaultMaxChunkLength matches the input ceiling of the speech API.
const DefaultMaxChunkLength = 4096

// languageSampleRunes bounds how much text feeds language detection.
const languageSampleRunes = 1000

// Config controls normalization.
type Config struct {
	MaxChunkLength int
}

// Result is the outcome of normalization. Chunks are ordered; position i
// is synthesized as audio segment i.
type Result struct {
	Text      string
	Chunks    []string
	WordCount int
	Language  string
}

// Normalizer is a deterministic text-preparation pipeline. It holds no
// per-call state; Normalize is a pure function of its inputs.
type Normalizer struct {
	maxChunk  int
	tokenizer *sentences.DefaultSentenceTokenizer
}

// New builds a Normalizer with a punkt sentence tokenizer.
func New(cfg Config) (*Normalizer, error) {
	if cfg.MaxChunkLength <= 0 {
		cfg.MaxChunkLength = DefaultMaxChunkLength
	}
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("build sentence tokenizer: %w", err)
	}
	return &Normalizer{
		maxChunk:  cfg.MaxChunkLength,
		tokenizer: tokenizer,
	}, nil
}

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	spaceRunPattern   = regexp.MustCompile(`[ \t]+`)
	lineEdgePattern   = regexp.MustCompile(` *\n *`)
	blankRunPattern   = regexp.MustCompile(`\n{2,}`)
	punctSpacePattern = regexp.MustCompile(`([.!?]) +`)
	punctGluePattern  = regexp.MustCompile(`([.!?])([A-Za-z])`)
	datePattern       = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	timePattern       = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	paraBreakPattern  = regexp.MustCompile(`([^.!?\n])\n\n`)
)

// abbreviations expanded for natural speech, word-boundary anchored.
var abbreviations = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`\bDr\.`), "Doctor"},
	{regexp.MustCompile(`\bMr\.`), "Mister"},
	{regexp.MustCompile(`\bMrs\.`), "Misses"},
	{regexp.MustCompile(`\bMs\.`), "Miss"},
	{regexp.MustCompile(`\bProf\.`), "Professor"},
	{regexp.MustCompile(`\be\.g\.`), "for example"},
	{regexp.MustCompile(`\bi\.e\.`), "that is"},
	{regexp.MustCompile(`\betc\.`), "etcetera"},
	{regexp.MustCompile(`\bvs\.`), "versus"},
	{regexp.MustCompile(`\bapprox\.`), "approximately"},
}

// Normalize cleans text, formats it for speech, detects its language and
// splits it into ordered chunks no longer than the configured maximum.
func (n *Normalizer) Normalize(text, title string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Language: "en"}
	}

	text = stripMarkup(text)
	text = urlPattern.ReplaceAllString(text, "")
	text = collapseWhitespace(text)

	language := detectLanguage(text)

	text = formatForSpeech(text)

	if title = strings.TrimSpace(title); title != "" {
		if !strings.HasSuffix(title, ".") && !strings.HasSuffix(title, "!") && !strings.HasSuffix(title, "?") {
			title += "."
		}
		text = title + "\n\n" + text
	}

	return Result{
		Text:      text,
		Chunks:    n.chunk(text),
		WordCount: len(strings.Fields(text)),
		Language:  language,
	}
}

// stripMarkup converts any residual HTML to plain text, paragraph breaks
// becoming newlines. Plain text passes through untouched.
func stripMarkup(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				return
			}
			walk(c)
			switch goquery.NodeName(c) {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
				b.WriteString("\n")
			}
		})
	}
	walk(doc.Selection)
	return b.String()
}

// collapseWhitespace flattens space runs, trims line edges and reduces
// blank line runs to one blank line.
func collapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = lineEdgePattern.ReplaceAllString(text, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = punctSpacePattern.ReplaceAllString(text, "$1 ")
	return strings.TrimSpace(text)
}

// detectLanguage samples the leading text. Detection is best effort and
// never aborts the pipeline; anything inconclusive becomes "en".
func detectLanguage(text string) string {
	sample := text
	if runes := []rune(text); len(runes) > languageSampleRunes {
		sample = string(runes[:languageSampleRunes])
	}
	info := whatlanggo.Detect(sample)
	if !info.IsReliable() {
		return "en"
	}
	iso := info.Lang.Iso6391()
	if iso == "" {
		return "en"
	}
	return iso
}

// formatForSpeech expands abbreviations, flattens date and time patterns
// the voices stumble over, and forces a pause at each paragraph break.
func formatForSpeech(text string) string {
	for _, a := range abbreviations {
		text = a.pattern.ReplaceAllString(text, a.repl)
	}
	text = datePattern.ReplaceAllString(text, "$1 $2 $3")
	text = timePattern.ReplaceAllString(text, "$1 $2")
	// Space out glued sentence boundaries. This runs after abbreviation
	// expansion so dotted forms like "e.g." are still intact above.
	text = punctGluePattern.ReplaceAllString(text, "$1 $2")
	text = paraBreakPattern.ReplaceAllString(text, "$1.\n\n")
	return text
}

// chunk greedily packs sentences into chunks of at most maxChunk
// characters. Boundaries land only between sentences; a single sentence
// longer than the maximum is emitted as its own oversized chunk.
func (n *Normalizer) chunk(text string) []string {
	if len(text) <= n.maxChunk {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	for _, sentence := range n.tokenizer.Tokenize(text) {
		s := strings.TrimSpace(sentence.Text)
		if s == "" {
			continue
		}
		if len(s) > n.maxChunk {
			flush()
			chunks = append(chunks, s)
			continue
		}
		if current.Len() > 0 && current.Len()+len(s)+1 > n.maxChunk {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	flush()
	return chunks
}
