// Package extract pulls article identifiers out of esearch payloads.
package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Element names of the esearch result document.
const (
	IDElement    = "Id"
	ErrorElement = "ERROR"
)

var (
	// ErrUnreadablePayload means the payload is not a markup document at all.
	ErrUnreadablePayload = errors.New("unreadable payload")

	// ErrMalformedPayload means the payload is markup but not well-formed.
	ErrMalformedPayload = errors.New("malformed payload")
)

var parseFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pmid_payload_parse_failures_total",
	Help: "Search payloads that could not be parsed, by kind",
}, []string{"kind"})

// Result is the parsed content of one esearch payload.
type Result struct {
	// IDs holds identifiers in document order, duplicates preserved.
	IDs []string

	// Errors holds the text of any ERROR elements reported by the server.
	Errors []string
}

// Parse reads every Id element of payload in document order.
func Parse(payload []byte) (Result, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || !bytes.ContainsRune(trimmed, '<') {
		return Result{}, ErrUnreadablePayload
	}

	dec := xml.NewDecoder(bytes.NewReader(trimmed))

	var (
		res     Result
		buf     strings.Builder
		current string // element whose text is being collected, "" if none
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == IDElement || t.Name.Local == ErrorElement {
				current = t.Name.Local
				buf.Reset()
			}
		case xml.CharData:
			if current != "" {
				buf.Write(t)
			}
		case xml.EndElement:
			if current == "" || t.Name.Local != current {
				continue
			}
			text := strings.TrimSpace(buf.String())
			if text != "" {
				if current == IDElement {
					res.IDs = append(res.IDs, text)
				} else {
					res.Errors = append(res.Errors, text)
				}
			}
			current = ""
		}
	}
}

// Extractor turns payloads into identifier lists for the resolver.
type Extractor struct {
	logger zerolog.Logger
}

// New creates an extractor logging through logger.
func New(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract returns the identifiers found for title. A payload without matches
// yields an empty slice and no error. Malformed markup is reported in the log
// and also yields no identifiers; only a payload that is not markup at all
// is an error.
func (e *Extractor) Extract(payload []byte, title string) ([]string, error) {
	res, err := Parse(payload)
	switch {
	case errors.Is(err, ErrMalformedPayload):
		parseFailuresTotal.WithLabelValues("malformed").Inc()
		e.logger.Warn().
			Str("title", title).
			Err(err).
			Msg("Malformed search payload, treating as no matches")
		return nil, nil
	case err != nil:
		parseFailuresTotal.WithLabelValues("unreadable").Inc()
		return nil, fmt.Errorf("extract ids for %q: %w", title, err)
	}

	for _, msg := range res.Errors {
		e.logger.Warn().
			Str("title", title).
			Str("server_error", msg).
			Msg("Search API reported an error for query")
	}

	e.logger.Debug().
		Str("title", title).
		Int("ids", len(res.IDs)).
		Msg("Extracted identifiers")

	return res.IDs, nil
}
