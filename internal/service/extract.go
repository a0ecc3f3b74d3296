package service

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"

	"github.com/textmill/textmill/internal/domain"
)

// SupportedExtensions lists the file types the extractor accepts.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".docx":     true,
	".odt":      true,
	".rtf":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
	".text":     true,
}

// ParserTypeFor reports which parser handles a filename, or "" when
// the extension is unsupported.
func ParserTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".docx", ".odt", ".rtf":
		return "office"
	case ".md", ".markdown":
		return "markdown"
	case ".txt", ".text":
		return "text"
	default:
		return ""
	}
}

// ExtractSections parses a raw document into heading-delimited
// sections. PDFs yield one section per page, office formats one
// section for the whole body, markdown one section per #/##/###
// heading, and plain text a single untitled section.
func ExtractSections(filename string, data []byte) ([]Section, error) {
	switch ParserTypeFor(filename) {
	case "pdf":
		return extractPDF(data)
	case "office":
		return extractOffice(filename, data)
	case "markdown":
		return splitMarkdownSections(string(data)), nil
	case "text":
		return textSection(string(data)), nil
	default:
		return nil, domain.ErrUnsupportedFileType
	}
}

func extractPDF(data []byte) ([]Section, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeParse, "failed to open pdf", err)
	}

	var sections []Section
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// skip unreadable pages, keep the rest
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		pageNum := i
		sections = append(sections, Section{
			Body:      content,
			PageStart: &pageNum,
			PageEnd:   &pageNum,
		})
	}
	return sections, nil
}

// extractOffice shells the bytes through a temp file because the
// underlying parser only reads from paths.
func extractOffice(filename string, data []byte) ([]Section, error) {
	tmp, err := os.CreateTemp("", "textmill-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	text, err := cat.File(tmp.Name())
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeParse, "failed to extract document text", err)
	}
	return textSection(text), nil
}

func textSection(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	end := len(text)
	zero := 0
	return []Section{{Body: text, OffsetStart: &zero, OffsetEnd: &end}}
}

// splitMarkdownSections cuts markdown at #, ## and ### headings.
// Content before the first heading becomes an untitled section.
// Deeper headings stay inside their parent section's body.
func splitMarkdownSections(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var sections []Section
	heading := ""
	start := 0
	bodyStart := 0

	flush := func(end int) {
		body := text[bodyStart:end]
		if strings.TrimSpace(body) == "" && heading == "" {
			return
		}
		s, e := start, end
		sections = append(sections, Section{
			Heading:     heading,
			Body:        body,
			OffsetStart: &s,
			OffsetEnd:   &e,
		})
	}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if h, ok := markdownHeading(line); ok {
			flush(offset)
			heading = h
			start = offset
			bodyStart = offset + len(line)
		}
		offset += len(line)
	}
	flush(len(text))

	return sections
}

func markdownHeading(line string) (string, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	for _, prefix := range []string{"### ", "## ", "# "} {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)), true
		}
	}
	return "", false
}
