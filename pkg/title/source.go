package title

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Format identifies the layout of a title document.
type Format string

const (
	// FormatXML reads the text of every ArticleTitle element.
	FormatXML Format = "xml"

	// FormatLines reads one title per line.
	FormatLines Format = "lines"
)

// ElementName is the XML element holding an article title.
const ElementName = "ArticleTitle"

// ErrUnknownFormat is returned for unsupported source formats.
var ErrUnknownFormat = errors.New("unknown title format")

// FileSource produces the ordered titles of a document on disk.
type FileSource struct {
	Path   string
	Format Format
}

// NewFileSource creates a source for path. An empty format is inferred from
// the file extension: ".txt" means lines, anything else XML.
func NewFileSource(path string, format Format) *FileSource {
	if format == "" {
		format = FormatXML
		if strings.HasSuffix(strings.ToLower(path), ".txt") {
			format = FormatLines
		}
	}
	return &FileSource{Path: path, Format: format}
}

// Titles opens the file and returns its titles in document order.
func (s *FileSource) Titles(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open title source: %w", err)
	}
	defer f.Close()

	switch s.Format {
	case FormatXML:
		return ReadXML(f)
	case FormatLines:
		return ReadLines(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, s.Format)
	}
}

// ReadXML collects the trimmed text of each ArticleTitle element. Text inside
// nested inline markup (e.g. <i>) is included; empty titles are skipped.
func ReadXML(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var (
		titles []string
		buf    strings.Builder
		depth  int // nesting depth inside the current ArticleTitle, 0 when outside
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse title document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 {
				depth++
			} else if t.Name.Local == ElementName {
				depth = 1
				buf.Reset()
			}
		case xml.CharData:
			if depth > 0 {
				buf.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				if title := strings.TrimSpace(buf.String()); title != "" {
					titles = append(titles, title)
				}
			}
		}
	}

	return titles, nil
}

// ReadLines returns every non-blank line, trimmed.
func ReadLines(r io.Reader) ([]string, error) {
	var titles []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			titles = append(titles, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read title lines: %w", err)
	}
	return titles, nil
}
