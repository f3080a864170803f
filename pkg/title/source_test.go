package title

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<PubmedArticleSet>
  <PubmedArticle>
    <ArticleTitle>Study of X</ArticleTitle>
  </PubmedArticle>
  <PubmedArticle>
    <ArticleTitle>Re: "Study of Y"</ArticleTitle>
  </PubmedArticle>
  <PubmedArticle>
    <ArticleTitle>   </ArticleTitle>
  </PubmedArticle>
  <PubmedArticle>
    <ArticleTitle>Effects of <i>E. coli</i> &amp; friends</ArticleTitle>
    <VernacularTitle>Not a title</VernacularTitle>
  </PubmedArticle>
  <PubmedArticle>
    <ArticleTitle>Study of X</ArticleTitle>
  </PubmedArticle>
</PubmedArticleSet>`

func TestReadXML(t *testing.T) {
	got, err := ReadXML(strings.NewReader(sampleDocument))
	if err != nil {
		t.Fatalf("ReadXML returned error: %v", err)
	}

	want := []string{
		"Study of X",
		`Re: "Study of Y"`,
		"Effects of E. coli & friends",
		"Study of X",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadXML() = %q, want %q", got, want)
	}
}

func TestReadXML_Malformed(t *testing.T) {
	_, err := ReadXML(strings.NewReader("<Set><ArticleTitle>broken</Set>"))
	if err == nil {
		t.Fatal("Expected error for malformed document, got nil")
	}
}

func TestReadXML_Empty(t *testing.T) {
	got, err := ReadXML(strings.NewReader("<PubmedArticleSet/>"))
	if err != nil {
		t.Fatalf("ReadXML returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadXML() = %q, want no titles", got)
	}
}

func TestReadLines(t *testing.T) {
	got, err := ReadLines(strings.NewReader("first\n\n  second  \r\nthird"))
	if err != nil {
		t.Fatalf("ReadLines returned error: %v", err)
	}

	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadLines() = %q, want %q", got, want)
	}
}

func TestNewFileSource_FormatInference(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		want   Format
	}{
		{path: "titles.xml", want: FormatXML},
		{path: "titles.TXT", want: FormatLines},
		{path: "titles", want: FormatXML},
		{path: "titles.txt", format: FormatXML, want: FormatXML},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := NewFileSource(tt.path, tt.format).Format; got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileSource_Titles(t *testing.T) {
	dir := t.TempDir()

	xmlPath := filepath.Join(dir, "in.xml")
	if err := os.WriteFile(xmlPath, []byte(sampleDocument), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	titles, err := NewFileSource(xmlPath, "").Titles(context.Background())
	if err != nil {
		t.Fatalf("Titles returned error: %v", err)
	}
	if len(titles) != 4 {
		t.Errorf("len(titles) = %d, want 4", len(titles))
	}

	_, err = NewFileSource(filepath.Join(dir, "missing.xml"), "").Titles(context.Background())
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}

	_, err = NewFileSource(xmlPath, "csv").Titles(context.Background())
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
}
