package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and windows tokens. Both implementations are
// deterministic: the same input always yields the same counts and
// the same windows.
type Tokenizer interface {
	CountTokens(text string) int
	// SplitTokens windows text into pieces of at most size tokens,
	// each overlapping the previous by overlap tokens. Concatenating
	// the non-overlapped portions reconstructs the input.
	SplitTokens(text string, size, overlap int) []string
}

// NewTokenizer returns the cl100k_base BPE tokenizer, falling back to
// the word estimator when the encoding cannot be loaded (offline hosts
// without a cached BPE file).
func NewTokenizer() Tokenizer {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &EstimatorTokenizer{}
	}
	return &TiktokenTokenizer{enc: enc}
}

// TiktokenTokenizer counts with the cl100k_base encoding.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenTokenizer) SplitTokens(text string, size, overlap int) []string {
	if size <= 0 {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= size {
		return []string{text}
	}

	// Byte offset of each token boundary in the original text. BPE
	// tokens can hold partial UTF-8 sequences, so a boundary may fall
	// inside a multi-byte rune.
	offsets := make([]int, len(ids)+1)
	for i, id := range ids {
		offsets[i+1] = offsets[i] + len(t.enc.Decode([]int{id}))
	}

	// snap backs a boundary off to the nearest rune start so no piece
	// begins or ends mid-rune.
	snap := func(i int) int {
		off := offsets[i]
		for off > 0 && off < len(text) && !utf8.RuneStart(text[off]) {
			off--
		}
		return off
	}

	step := size - overlap
	var pieces []string
	for start := 0; start < len(ids); start += step {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		pieces = append(pieces, text[snap(start):snap(end)])
		if end == len(ids) {
			break
		}
	}
	return pieces
}

// EstimatorTokenizer approximates token counts without a BPE table.
// The estimate is pinned at max(1, words, ceil(chars/4)) so dense
// unspaced text is not undercounted.
type EstimatorTokenizer struct{}

func (t *EstimatorTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := (len(text) + 3) / 4
	n := words
	if chars > n {
		n = chars
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (t *EstimatorTokenizer) SplitTokens(text string, size, overlap int) []string {
	if size <= 0 {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	segs := wordSegments(text)
	if len(segs) <= size {
		return []string{text}
	}

	step := size - overlap
	var pieces []string
	for start := 0; start < len(segs); start += step {
		end := start + size
		if end > len(segs) {
			end = len(segs)
		}
		pieces = append(pieces, strings.Join(segs[start:end], ""))
		if end == len(segs) {
			break
		}
	}
	return pieces
}

// wordSegments splits text into words with their leading whitespace
// attached, so joining segments reproduces the original text exactly.
func wordSegments(text string) []string {
	if text == "" {
		return nil
	}
	var segs []string
	start := 0
	seenWord := false
	prevSpace := false
	for i, r := range text {
		sp := unicode.IsSpace(r)
		if !sp && prevSpace && seenWord {
			segs = append(segs, text[start:i])
			start = i
		}
		if !sp {
			seenWord = true
		}
		prevSpace = sp
	}
	return append(segs, text[start:])
}
