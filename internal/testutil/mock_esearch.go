// Package testutil provides testing utilities for the resolver.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// MockResponse defines one scripted answer of the mock search endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockESearch is a configurable esearch stand-in. Responses are scripted per
// title phrase; each request for a phrase consumes the next scripted
// response, and the last one repeats.
type MockESearch struct {
	server *httptest.Server

	mu        sync.Mutex
	scripts   map[string][]MockResponse
	calls     map[string]int
	inFlight  int
	maxFlight int
	requests  []RecordedRequest
}

// RecordedRequest captures one request seen by the mock.
type RecordedRequest struct {
	Phrase string
	Query  string
	At     time.Time
}

var phraseExpr = regexp.MustCompile(`^"(.*)"\[[^\]]*\]$`)

// NewMockESearch creates a new mock search server.
func NewMockESearch() *MockESearch {
	m := &MockESearch{
		scripts: make(map[string][]MockResponse),
		calls:   make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock endpoint URL.
func (m *MockESearch) URL() string {
	return m.server.URL + "/entrez/eutils/esearch.fcgi"
}

// Close shuts down the mock server.
func (m *MockESearch) Close() {
	m.server.Close()
}

// Target returns a request URL searching for phrase in the title field.
func (m *MockESearch) Target(phrase string) string {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", `"`+phrase+`"[Title]`)
	return m.URL() + "?" + params.Encode()
}

// SetIDs answers the phrase with a successful payload listing ids.
func (m *MockESearch) SetIDs(phrase string, ids ...string) {
	m.Script(phrase, NewIDResponse(ids...))
}

// Script sets the sequence of responses for a phrase.
func (m *MockESearch) Script(phrase string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[phrase] = responses
}

// Calls returns how many requests were made for a phrase.
func (m *MockESearch) Calls(phrase string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[phrase]
}

// RequestCount returns the total number of requests.
func (m *MockESearch) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of all recorded requests.
func (m *MockESearch) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (m *MockESearch) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight
}

func (m *MockESearch) handle(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	phrase := term
	if match := phraseExpr.FindStringSubmatch(term); match != nil {
		phrase = match[1]
	}

	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxFlight {
		m.maxFlight = m.inFlight
	}
	idx := m.calls[phrase]
	m.calls[phrase]++
	m.requests = append(m.requests, RecordedRequest{Phrase: phrase, Query: r.URL.RawQuery, At: time.Now()})
	script := m.scripts[phrase]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	resp := NewIDResponse()
	if len(script) > 0 {
		if idx >= len(script) {
			idx = len(script) - 1
		}
		resp = script[idx]
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// ESearchPayload renders an esearch result document listing ids.
func ESearchPayload(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>` + "\n")
	b.WriteString(`<!DOCTYPE eSearchResult PUBLIC "-//NLM//DTD esearch 20060628//EN" "https://eutils.ncbi.nlm.nih.gov/eutils/dtd/20060628/esearch.dtd">` + "\n")
	fmt.Fprintf(&b, "<eSearchResult><Count>%d</Count><RetMax>%d</RetMax><RetStart>0</RetStart><IdList>\n", len(ids), len(ids))
	for _, id := range ids {
		fmt.Fprintf(&b, "<Id>%s</Id>\n", id)
	}
	b.WriteString("</IdList><TranslationSet/><QueryTranslation></QueryTranslation></eSearchResult>\n")
	return b.String()
}

// NewIDResponse creates a 200 OK esearch response listing ids.
func NewIDResponse(ids ...string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       ESearchPayload(ids...),
		Headers: map[string]string{
			"Content-Type":          "text/xml; charset=UTF-8",
			"X-RateLimit-Limit":     "10",
			"X-RateLimit-Remaining": "9",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"API rate limit exceeded","count":"11"}`,
		Headers: map[string]string{
			"Content-Type":          "application/json",
			"X-RateLimit-Limit":     "10",
			"X-RateLimit-Remaining": "0",
			"Retry-After":           "1",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal error",
	}
}
