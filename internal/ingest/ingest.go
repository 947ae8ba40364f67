// Package ingest reads scenario documents from text files, PDFs and web
// pages into plain text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultMinWords is the shortest document worth extracting a scenario from.
const DefaultMinWords = 50

// ErrTooShort is returned when a document has fewer words than required.
var ErrTooShort = errors.New("document too short")

type SourceType string

const (
	SourceURL  SourceType = "url"
	SourcePDF  SourceType = "pdf"
	SourceText SourceType = "text"
	// SourceInline is text passed directly rather than read from a file.
	SourceInline SourceType = "inline"

	// maxInputSize is the maximum allowed size for input content (25 MB).
	maxInputSize = 25 * 1024 * 1024
)

func (s SourceType) String() string {
	return string(s)
}

type Content struct {
	Text      string
	Title     string
	Source    string
	WordCount int
}

type Ingester interface {
	Ingest(ctx context.Context, source string) (*Content, error)
}

func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	if strings.HasSuffix(strings.ToLower(input), ".pdf") {
		return SourcePDF
	}
	return SourceText
}

// Ingest reads input and rejects documents shorter than minWords. A
// minWords of zero or less disables the check.
func Ingest(ctx context.Context, input string, minWords int) (*Content, error) {
	c, err := NewIngester(input).Ingest(ctx, input)
	if err != nil {
		return nil, err
	}
	return c, checkLength(c, minWords)
}

// FromText wraps text supplied inline (an MCP argument, stdin) as Content.
func FromText(text string, minWords int) (*Content, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no scenario text provided")
	}
	if len(text) > maxInputSize {
		return nil, fmt.Errorf("scenario text is too large (max %d MB)", maxInputSize/(1024*1024))
	}
	c := &Content{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    string(SourceInline),
		WordCount: wordCount(text),
	}
	return c, checkLength(c, minWords)
}

func checkLength(c *Content, minWords int) error {
	if minWords > 0 && c.WordCount < minWords {
		return fmt.Errorf("%s has %d words, need at least %d: %w", c.Source, c.WordCount, minWords, ErrTooShort)
	}
	return nil
}

func NewIngester(input string) Ingester {
	switch DetectSource(input) {
	case SourceURL:
		return &URLIngester{}
	case SourcePDF:
		return &PDFIngester{}
	default:
		return &TextIngester{}
	}
}

func wordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}

func titleFromText(text string, maxLen int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxInputSize/(1024*1024))
	}
	return nil
}
