// Package query builds esearch request targets for article titles.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Defaults for the NCBI E-utilities esearch endpoint.
const (
	DefaultBaseURL   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	DefaultDatabase  = "pubmed"
	DefaultField     = "Title"
	DefaultProximity = 3
)

// CredentialParam is the query parameter carrying the API key.
const CredentialParam = "api_key"

// ErrInvalidTitle is returned for titles that cannot be embedded in a query.
var ErrInvalidTitle = errors.New("invalid title")

// Config describes the search endpoint and how titles are matched.
type Config struct {
	BaseURL  string
	Database string

	// Field restricts the phrase to a search field, e.g. "Title".
	Field string

	// Proximity is the fuzzy word distance (the "~N" modifier). 0 disables it.
	Proximity int

	APIKey string

	// RetMax caps the identifiers returned per query (0 keeps the server default).
	RetMax int

	// Tool and Email identify the caller to NCBI; both optional.
	Tool  string
	Email string
}

// DefaultConfig returns a fuzzy PubMed title search (Title:~3).
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Database:  DefaultDatabase,
		Field:     DefaultField,
		Proximity: DefaultProximity,
		APIKey:    apiKey,
	}
}

// Builder turns normalized titles into request targets.
type Builder struct {
	config Config
}

// NewBuilder validates the endpoint and fills unset fields with defaults.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Field == "" {
		cfg.Field = DefaultField
	}
	if cfg.Proximity < 0 {
		return nil, fmt.Errorf("proximity must be >= 0 (got %d)", cfg.Proximity)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s), got %q", cfg.BaseURL)
	}

	return &Builder{config: cfg}, nil
}

// Term renders the search term for a title: "<title>"[Field:~N].
func (b *Builder) Term(title string) string {
	qualifier := b.config.Field
	if b.config.Proximity > 0 {
		qualifier += ":~" + strconv.Itoa(b.config.Proximity)
	}
	return `"` + title + `"[` + qualifier + `]`
}

// Build returns the full, percent-encoded request URL for a normalized title.
func (b *Builder) Build(title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if !utf8.ValidString(title) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidTitle)
	}

	params := url.Values{}
	params.Set("db", b.config.Database)
	params.Set("term", b.Term(title))
	if b.config.RetMax > 0 {
		params.Set("retmax", strconv.Itoa(b.config.RetMax))
	}
	if b.config.Tool != "" {
		params.Set("tool", b.config.Tool)
	}
	if b.config.Email != "" {
		params.Set("email", b.config.Email)
	}
	if b.config.APIKey != "" {
		params.Set(CredentialParam, b.config.APIKey)
	}

	return b.config.BaseURL + "?" + params.Encode(), nil
}
