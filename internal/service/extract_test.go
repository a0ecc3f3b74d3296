package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textmill/textmill/internal/domain"
)

func TestParserTypeFor(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"report.pdf", "pdf"},
		{"Report.PDF", "pdf"},
		{"notes.docx", "office"},
		{"notes.odt", "office"},
		{"notes.rtf", "office"},
		{"readme.md", "markdown"},
		{"readme.markdown", "markdown"},
		{"plain.txt", "text"},
		{"plain.text", "text"},
		{"image.png", ""},
		{"noextension", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ParserTypeFor(tt.filename))
		})
	}
}

func TestExtractSections_UnsupportedType(t *testing.T) {
	_, err := ExtractSections("image.png", []byte{0x89})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestExtractSections_PlainText(t *testing.T) {
	sections, err := ExtractSections("notes.txt", []byte("hello world"))
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "", sections[0].Heading)
	assert.Equal(t, "hello world", sections[0].Body)
	assert.Equal(t, 0, *sections[0].OffsetStart)
	assert.Equal(t, 11, *sections[0].OffsetEnd)
}

func TestExtractSections_EmptyText(t *testing.T) {
	sections, err := ExtractSections("notes.txt", []byte("  \n "))
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestSplitMarkdownSections(t *testing.T) {
	md := "preamble\n# Intro\nhello\n## Details\nmore text\n#### deep\nstill details\n"

	sections := splitMarkdownSections(md)
	require.Len(t, sections, 3)

	assert.Equal(t, "", sections[0].Heading)
	assert.Equal(t, "preamble\n", sections[0].Body)

	assert.Equal(t, "Intro", sections[1].Heading)
	assert.Equal(t, "hello\n", sections[1].Body)

	// #### is below the split depth and stays in the body
	assert.Equal(t, "Details", sections[2].Heading)
	assert.Equal(t, "more text\n#### deep\nstill details\n", sections[2].Body)
}

func TestSplitMarkdownSections_NoHeadings(t *testing.T) {
	sections := splitMarkdownSections("just text\nno headings\n")
	require.Len(t, sections, 1)
	assert.Equal(t, "", sections[0].Heading)
	assert.Equal(t, "just text\nno headings\n", sections[0].Body)
}

func TestSplitMarkdownSections_HeadingOffsets(t *testing.T) {
	md := "# A\nbody a\n# B\nbody b\n"

	sections := splitMarkdownSections(md)
	require.Len(t, sections, 2)
	assert.Equal(t, 0, *sections[0].OffsetStart)
	assert.Equal(t, 11, *sections[0].OffsetEnd)
	assert.Equal(t, 11, *sections[1].OffsetStart)
	assert.Equal(t, len(md), *sections[1].OffsetEnd)
}

func TestSplitMarkdownSections_EmptyHeadedSectionKept(t *testing.T) {
	sections := splitMarkdownSections("# Empty\n# Full\ncontent\n")
	require.Len(t, sections, 2)
	assert.Equal(t, "Empty", sections[0].Heading)
	assert.Equal(t, "", sections[0].Body)
	assert.Equal(t, "Full", sections[1].Heading)
}

func TestMarkdownHeading(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"# Title\n", "Title", true},
		{"## Sub  \n", "Sub", true},
		{"### Deep", "Deep", true},
		{"#### Too deep", "", false},
		{"#NoSpace", "", false},
		{"plain line", "", false},
	}

	for _, tt := range tests {
		got, ok := markdownHeading(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}
