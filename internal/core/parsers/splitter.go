package parsers

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/prepdocs/internal/models"
)

const (
	DefaultTargetTokens    = 500
	DefaultOverlapTokens   = 50
	DefaultJSONObjectRunes = 1000
)

// fragment is a sentence (or a bounded piece of one) tagged with its page.
type fragment struct {
	text      string
	page      int
	lineStart bool
}

// SentenceSplitter groups sentence fragments into token-bounded chunks with
// optional overlap. A chunk never spans pages and overlap is not carried
// from one page into the next.
type SentenceSplitter struct {
	targetTokens  int
	overlapTokens int
}

func NewSentenceSplitter(targetTokens, overlapTokens int) *SentenceSplitter {
	if targetTokens <= 0 {
		targetTokens = DefaultTargetTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= targetTokens {
		overlapTokens = targetTokens / 10
	}
	return &SentenceSplitter{targetTokens: targetTokens, overlapTokens: overlapTokens}
}

func (s *SentenceSplitter) SplitPages(pages iter.Seq2[models.Page, error]) iter.Seq2[models.SplitPage, error] {
	return func(yield func(models.SplitPage, error) bool) {
		var (
			buf    []fragment
			tokSum int
			fresh  int // fragments in buf not yet emitted in any chunk
		)

		// flush emits the buffer as a chunk and seeds the next one with a tail
		// of at most overlapTokens.
		flush := func() bool {
			if fresh == 0 {
				return true
			}
			if !yield(models.SplitPage{PageNum: buf[0].page, Text: joinFragments(buf)}, nil) {
				return false
			}
			fresh = 0

			var keep []fragment
			if s.overlapTokens > 0 {
				remain := s.overlapTokens
				for j := len(buf) - 1; j >= 0; j-- {
					t := approxTokens(buf[j].text)
					if t > remain {
						break
					}
					keep = append([]fragment{buf[j]}, keep...)
					remain -= t
				}
			}
			buf = keep
			tokSum = 0
			for _, f := range buf {
				tokSum += approxTokens(f.text)
			}
			return true
		}

		maxRunes := s.targetTokens * 4
		for page, err := range pages {
			if err != nil {
				yield(models.SplitPage{}, err)
				return
			}
			if !flush() {
				return
			}
			buf, tokSum = nil, 0
			for _, frag := range splitFragments(page.Text, page.Index, maxRunes) {
				buf = append(buf, frag)
				tokSum += approxTokens(frag.text)
				fresh++
				if tokSum >= s.targetTokens {
					if !flush() {
						return
					}
				}
			}
		}
		flush()
	}
}

func joinFragments(frags []fragment) string {
	var b strings.Builder
	for i, f := range frags {
		if i > 0 {
			if f.lineStart {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(f.text)
	}
	return b.String()
}

// splitFragments cuts page text into lines, lines into sentences and
// sentences into word-bounded pieces of at most maxRunes runes.
func splitFragments(text string, page int, maxRunes int) []fragment {
	var out []fragment
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := true
		for _, sentence := range splitSentences(line) {
			for _, piece := range boundPiece(sentence, maxRunes) {
				out = append(out, fragment{text: piece, page: page, lineStart: first})
				first = false
			}
		}
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '。', '！', '？':
		return true
	}
	return false
}

func splitSentences(line string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		if isSentenceEnd(runes[i]) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boundPiece(s string, maxRunes int) []string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return []string{s}
	}
	var (
		out []string
		cur strings.Builder
		n   int
	)
	emit := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, word := range strings.Fields(s) {
		wn := utf8.RuneCountInString(word)
		for wn > maxRunes {
			emit()
			r := []rune(word)
			out = append(out, string(r[:maxRunes]))
			word = string(r[maxRunes:])
			wn -= maxRunes
		}
		if n > 0 && n+1+wn > maxRunes {
			emit()
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(word)
		n += wn
	}
	emit()
	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// SimpleSplitter cuts each page into consecutive pieces of at most
// maxObjectRunes runes. Used for structured documents such as JSON.
type SimpleSplitter struct {
	maxObjectRunes int
}

func NewSimpleSplitter(maxObjectRunes int) *SimpleSplitter {
	if maxObjectRunes <= 0 {
		maxObjectRunes = DefaultJSONObjectRunes
	}
	return &SimpleSplitter{maxObjectRunes: maxObjectRunes}
}

func (s *SimpleSplitter) SplitPages(pages iter.Seq2[models.Page, error]) iter.Seq2[models.SplitPage, error] {
	return func(yield func(models.SplitPage, error) bool) {
		for page, err := range pages {
			if err != nil {
				yield(models.SplitPage{}, err)
				return
			}
			runes := []rune(page.Text)
			for start := 0; start < len(runes); start += s.maxObjectRunes {
				end := min(start+s.maxObjectRunes, len(runes))
				if !yield(models.SplitPage{PageNum: page.Index, Text: string(runes[start:end])}, nil) {
					return
				}
			}
		}
	}
}
