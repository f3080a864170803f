package sink

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/Sternrassler/pmid-resolver/pkg/results"
)

type articleSet struct {
	XMLName  xml.Name  `xml:"PubmedArticleSet"`
	Articles []article `xml:"PubmedArticle"`
}

type article struct {
	PMIDs []string `xml:"PMID"`
	Title string   `xml:"ArticleTitle"`
}

// XML writes a PubmedArticleSet document: one PubmedArticle per title
// holding its PMID elements followed by the ArticleTitle.
type XML struct {
	w io.Writer
}

// NewXML creates an XML sink writing to w.
func NewXML(w io.Writer) Sink {
	return &XML{w: w}
}

// Write implements Sink.
func (s *XML) Write(ctx context.Context, entries []results.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := articleSet{Articles: make([]article, 0, len(entries))}
	for _, e := range entries {
		doc.Articles = append(doc.Articles, article{PMIDs: e.IDs, Title: e.Title})
	}

	if _, err := io.WriteString(s.w, xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(s.w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode xml: %w", err)
	}
	if _, err := io.WriteString(s.w, "\n"); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	return nil
}
