package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorTokenizer_CountTokens(t *testing.T) {
	tok := &EstimatorTokenizer{}

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single short word", "hi", 1},
		{"words dominate", "a b c d e f g h", 8},
		{"chars dominate", strings.Repeat("x", 40), 10},
		{"ceil division", strings.Repeat("x", 41), 11},
		{"whitespace only", "   ", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.CountTokens(tt.text))
		})
	}
}

func TestEstimatorTokenizer_SplitTokens_Reconstructs(t *testing.T) {
	tok := &EstimatorTokenizer{}
	text := "one two three four five six seven eight nine ten"

	pieces := tok.SplitTokens(text, 4, 1)
	assert.Greater(t, len(pieces), 1)

	// Stripping each piece's overlap prefix and concatenating the
	// remainder yields the original text.
	rebuilt := pieces[0]
	for i := 1; i < len(pieces); i++ {
		segs := wordSegments(pieces[i])
		rebuilt += strings.Join(segs[1:], "")
	}
	assert.Equal(t, text, rebuilt)
}

func TestEstimatorTokenizer_SplitTokens_ShortText(t *testing.T) {
	tok := &EstimatorTokenizer{}

	pieces := tok.SplitTokens("short text", 100, 10)
	assert.Equal(t, []string{"short text"}, pieces)
}

func TestEstimatorTokenizer_SplitTokens_BadOverlap(t *testing.T) {
	tok := &EstimatorTokenizer{}
	text := "a b c d e f"

	// overlap >= size falls back to no overlap
	pieces := tok.SplitTokens(text, 2, 5)
	assert.Equal(t, []string{"a b", " c d", " e f"}, pieces)
}

func TestWordSegments(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"single word", "hello", []string{"hello"}},
		{"leading space attaches to first word", "  hi there", []string{"  hi", " there"}},
		{"trailing space attaches to last word", "hi there  ", []string{"hi", " there  "}},
		{"newlines preserved", "a\nb", []string{"a", "\nb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wordSegments(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.text, strings.Join(got, ""))
		})
	}
}

func newTiktokenTokenizer(t *testing.T) *TiktokenTokenizer {
	t.Helper()
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}
	return &TiktokenTokenizer{enc: enc}
}

func TestTiktokenTokenizer_SplitTokens_RuneBoundaries(t *testing.T) {
	tok := newTiktokenTokenizer(t)

	// Emoji and CJK encode as multiple tokens each carrying partial
	// UTF-8 bytes, so naive window boundaries can tear a rune.
	text := strings.Repeat("😀 汉字 café ", 40)

	pieces := tok.SplitTokens(text, 7, 2)
	require.Greater(t, len(pieces), 1)
	for i, p := range pieces {
		assert.True(t, utf8.ValidString(p), "piece %d contains invalid UTF-8", i)
		assert.True(t, strings.Contains(text, p), "piece %d is not a slice of the input", i)
	}
	assert.True(t, strings.HasPrefix(text, pieces[0]))
	assert.True(t, strings.HasSuffix(text, pieces[len(pieces)-1]))
}

func TestTiktokenTokenizer_SplitTokens_NoOverlapReconstructs(t *testing.T) {
	tok := newTiktokenTokenizer(t)

	text := strings.Repeat("😀汉字🚀 ", 30)
	pieces := tok.SplitTokens(text, 5, 0)
	require.Greater(t, len(pieces), 1)

	rebuilt := strings.Join(pieces, "")
	assert.Equal(t, text, rebuilt)
	for i, p := range pieces {
		assert.True(t, utf8.ValidString(p), "piece %d contains invalid UTF-8", i)
	}
}

func TestNewTokenizer_Deterministic(t *testing.T) {
	tok := NewTokenizer()
	text := "The quick brown fox jumps over the lazy dog."

	a := tok.CountTokens(text)
	b := tok.CountTokens(text)
	assert.Equal(t, a, b)
	assert.Greater(t, a, 0)
}
