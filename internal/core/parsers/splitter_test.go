package parsers

import (
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/prepdocs/internal/models"
)

func pagesOf(texts ...string) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		for i, t := range texts {
			if !yield(models.Page{Index: i, Text: t}, nil) {
				return
			}
		}
	}
}

func collectSplits(t *testing.T, seq iter.Seq2[models.SplitPage, error]) []models.SplitPage {
	t.Helper()
	var out []models.SplitPage
	for sp, err := range seq {
		require.NoError(t, err)
		out = append(out, sp)
	}
	return out
}

func TestNewSentenceSplitter_Defaults(t *testing.T) {
	s := NewSentenceSplitter(0, -1)
	assert.Equal(t, DefaultTargetTokens, s.targetTokens)
	assert.Equal(t, 0, s.overlapTokens)

	s = NewSentenceSplitter(100, 150)
	assert.Less(t, s.overlapTokens, s.targetTokens)
}

func TestSentenceSplitter_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	s := NewSentenceSplitter(30, 5)

	first := collectSplits(t, s.SplitPages(pagesOf(text, text)))
	second := collectSplits(t, s.SplitPages(pagesOf(text, text)))
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestSentenceSplitter_ChunksAreBounded(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma delta. ", 50)
	s := NewSentenceSplitter(20, 0)

	chunks := collectSplits(t, s.SplitPages(pagesOf(text)))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		// one sentence may push a chunk past the target, never far beyond it
		assert.LessOrEqual(t, approxTokens(c.Text), 20+approxTokens("Alpha beta gamma delta."))
	}

	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, c.Text)
	}
	assert.Equal(t, strings.TrimSpace(text), strings.Join(rebuilt, " "), "without overlap no text is lost or repeated")
}

func TestSentenceSplitter_Overlap(t *testing.T) {
	text := "One one one one. Two two two two. Three three three three. Four four four four."
	s := NewSentenceSplitter(8, 6)

	chunks := collectSplits(t, s.SplitPages(pagesOf(text)))
	require.Len(t, chunks, 3)
	assert.Equal(t, "One one one one. Two two two two.", chunks[0].Text)
	assert.Equal(t, "Two two two two. Three three three three.", chunks[1].Text)
	assert.Equal(t, "Three three three three. Four four four four.", chunks[2].Text)
}

func TestSentenceSplitter_PageNumbers(t *testing.T) {
	s := NewSentenceSplitter(10, 0)
	chunks := collectSplits(t, s.SplitPages(pagesOf(
		"First page sentence here.",
		"Second page sentence here.",
		"Third page sentence here.",
	)))
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.PageNum)
	}
	assert.Equal(t, "Second page sentence here.", chunks[1].Text)
}

func TestSentenceSplitter_ChunksStayOnTheirPage(t *testing.T) {
	t.Run("short pages", func(t *testing.T) {
		chunks := collectSplits(t, NewSentenceSplitter(0, 0).SplitPages(pagesOf(
			"Page zero intro.",
			"Page one body text.",
			"Page two more text.",
		)))
		require.Len(t, chunks, 3)
		assert.Equal(t, models.SplitPage{PageNum: 0, Text: "Page zero intro."}, chunks[0])
		assert.Equal(t, models.SplitPage{PageNum: 1, Text: "Page one body text."}, chunks[1])
		assert.Equal(t, models.SplitPage{PageNum: 2, Text: "Page two more text."}, chunks[2])
	})

	t.Run("no overlap across pages", func(t *testing.T) {
		chunks := collectSplits(t, NewSentenceSplitter(8, 6).SplitPages(pagesOf(
			"One one one one. Two two two two.",
			"Three three three three.",
		)))
		require.Len(t, chunks, 2)
		assert.Equal(t, models.SplitPage{PageNum: 0, Text: "One one one one. Two two two two."}, chunks[0])
		assert.Equal(t, models.SplitPage{PageNum: 1, Text: "Three three three three."}, chunks[1])
	})
}

func TestSentenceSplitter_LongWordsAreCut(t *testing.T) {
	s := NewSentenceSplitter(2, 0) // 8 runes per fragment
	chunks := collectSplits(t, s.SplitPages(pagesOf(strings.Repeat("x", 20))))
	require.Len(t, chunks, 3)
	assert.Equal(t, "xxxxxxxx", chunks[0].Text)
	assert.Equal(t, "xxxx", chunks[2].Text)
}

func TestSentenceSplitter_EmptyAndErrors(t *testing.T) {
	s := NewSentenceSplitter(10, 2)
	assert.Empty(t, collectSplits(t, s.SplitPages(pagesOf())))
	assert.Empty(t, collectSplits(t, s.SplitPages(pagesOf("  \n  "))))

	boom := errors.New("boom")
	failing := func(yield func(models.Page, error) bool) {
		if !yield(models.Page{Text: "A complete sentence."}, nil) {
			return
		}
		yield(models.Page{}, boom)
	}
	var gotErr error
	for _, err := range s.SplitPages(failing) {
		if err != nil {
			gotErr = err
		}
	}
	assert.ErrorIs(t, gotErr, boom)
}

func TestSimpleSplitter(t *testing.T) {
	s := NewSimpleSplitter(4)
	chunks := collectSplits(t, s.SplitPages(pagesOf("abcdefghij", "xy")))
	require.Len(t, chunks, 4)
	assert.Equal(t, models.SplitPage{PageNum: 0, Text: "abcd"}, chunks[0])
	assert.Equal(t, models.SplitPage{PageNum: 0, Text: "ij"}, chunks[2])
	assert.Equal(t, models.SplitPage{PageNum: 1, Text: "xy"}, chunks[3])

	assert.Equal(t, DefaultJSONObjectRunes, NewSimpleSplitter(0).maxObjectRunes)
}
