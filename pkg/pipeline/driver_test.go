package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pmid-resolver/internal/testutil"
	"github.com/Sternrassler/pmid-resolver/pkg/batch"
	"github.com/Sternrassler/pmid-resolver/pkg/client"
	"github.com/Sternrassler/pmid-resolver/pkg/extract"
	"github.com/Sternrassler/pmid-resolver/pkg/query"
	"github.com/Sternrassler/pmid-resolver/pkg/ratelimit"
	"github.com/Sternrassler/pmid-resolver/pkg/results"
)

type staticSource struct {
	titles []string
	err    error
}

func (s staticSource) Titles(context.Context) ([]string, error) {
	return s.titles, s.err
}

type captureSink struct {
	mu      sync.Mutex
	writes  int
	entries []results.Entry
	err     error
}

func (s *captureSink) Write(_ context.Context, entries []results.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.entries = entries
	return s.err
}

type fetchFunc func(ctx context.Context, target string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, target string) ([]byte, error) {
	return f(ctx, target)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newScheduler(t *testing.T, cfg batch.Config) *batch.Scheduler {
	t.Helper()
	s, err := batch.NewScheduler(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.SetSleep(noSleep)
	return s
}

func newBuilder(t *testing.T, baseURL string) *query.Builder {
	t.Helper()
	cfg := query.DefaultConfig("")
	cfg.BaseURL = baseURL
	b, err := query.NewBuilder(cfg)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

func TestNew_MissingDeps(t *testing.T) {
	_, err := New(Deps{Source: staticSource{}})
	if err == nil {
		t.Fatal("New() with missing deps should fail")
	}
	for _, name := range []string{"sink", "builder", "fetcher", "extractor", "scheduler"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestRun_ResolvesAndSkipsUnmatched(t *testing.T) {
	builder := newBuilder(t, "https://example.test/esearch.fcgi")
	matches := map[string]string{
		builder.Term("Study of X"): testutil.ESearchPayload("111"),
		builder.Term("Re: Study of Y"): testutil.ESearchPayload(),
	}

	var mu sync.Mutex
	var queried []string
	fetcher := fetchFunc(func(ctx context.Context, target string) ([]byte, error) {
		u, err := url.Parse(target)
		if err != nil {
			return nil, err
		}
		term := u.Query().Get("term")
		payload, ok := matches[term]
		if !ok {
			return nil, fmt.Errorf("unexpected term %s", term)
		}
		mu.Lock()
		queried = append(queried, term)
		mu.Unlock()
		return []byte(payload), nil
	})

	out := &captureSink{}
	d, err := New(Deps{
		Source:    staticSource{titles: []string{"Study of X", `Re: "Study of Y"`}},
		Sink:      out,
		Builder:   builder,
		Fetcher:   fetcher,
		Extractor: extract.New(zerolog.Nop()),
		Scheduler: newScheduler(t, batch.DefaultConfig()),
		Logger:    zerolog.Nop(),
		RunID:     "run-1",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []results.Entry{{Title: "Study of X", IDs: []string{"111"}}}
	if !reflect.DeepEqual(out.entries, want) {
		t.Errorf("sink entries = %+v, want %+v", out.entries, want)
	}
	if len(queried) != 2 {
		t.Errorf("queried %v, want both titles (normalized)", queried)
	}
	if summary.RunID != "run-1" || summary.Titles != 2 || summary.Resolved != 1 || summary.Failed != 0 || summary.Batches != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_KeysByRawTitle(t *testing.T) {
	raw := "Re: “Curly”"
	var target string
	d, err := New(Deps{
		Source:  staticSource{titles: []string{raw}},
		Sink:    &captureSink{},
		Builder: newBuilder(t, "https://example.test/esearch.fcgi"),
		Fetcher: fetchFunc(func(_ context.Context, tgt string) ([]byte, error) {
			target = tgt
			return []byte(testutil.ESearchPayload("42")), nil
		}),
		Extractor: extract.New(zerolog.Nop()),
		Scheduler: newScheduler(t, batch.DefaultConfig()),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := d.deps.Sink.(*captureSink)
	if len(out.entries) != 1 || out.entries[0].Title != raw {
		t.Errorf("entries = %+v, want keyed by raw title %q", out.entries, raw)
	}
	if !strings.Contains(target, "%22Re%3A+Curly%22") {
		t.Errorf("target = %s, want normalized phrase", target)
	}
	if d.RunID() == "" {
		t.Error("RunID() should be generated")
	}
}

func TestRun_UnitFailuresDoNotAbort(t *testing.T) {
	titles := []string{"ok-1", "broken", "ok-2", ""}
	fetcher := fetchFunc(func(_ context.Context, target string) ([]byte, error) {
		switch {
		case strings.Contains(target, "broken"):
			return nil, &client.RequestError{StatusCode: 500, ErrorClass: client.ErrorClassServer, Message: "boom"}
		case strings.Contains(target, "ok-1"):
			return []byte(testutil.ESearchPayload("1")), nil
		default:
			return []byte(testutil.ESearchPayload("2")), nil
		}
	})

	out := &captureSink{}
	d, err := New(Deps{
		Source:    staticSource{titles: titles},
		Sink:      out,
		Builder:   newBuilder(t, "https://example.test/esearch.fcgi"),
		Fetcher:   fetcher,
		Extractor: extract.New(zerolog.Nop()),
		Scheduler: newScheduler(t, batch.Config{BatchSize: 2, Workers: 2, RequestsPerSecond: 10}),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// "broken" fails at fetch, "" fails at query building.
	if summary.Failed != 2 || summary.Resolved != 2 {
		t.Errorf("summary = %+v, want 2 failed and 2 resolved", summary)
	}
	want := []results.Entry{
		{Title: "ok-1", IDs: []string{"1"}},
		{Title: "ok-2", IDs: []string{"2"}},
	}
	if !reflect.DeepEqual(out.entries, want) {
		t.Errorf("entries = %+v, want %+v", out.entries, want)
	}
}

func TestRun_FatalErrors(t *testing.T) {
	okFetcher := fetchFunc(func(context.Context, string) ([]byte, error) {
		return []byte(testutil.ESearchPayload("1")), nil
	})

	t.Run("source", func(t *testing.T) {
		out := &captureSink{}
		d, _ := New(Deps{
			Source:    staticSource{err: errors.New("no such file")},
			Sink:      out,
			Builder:   newBuilder(t, "https://example.test/e"),
			Fetcher:   okFetcher,
			Extractor: extract.New(zerolog.Nop()),
			Scheduler: newScheduler(t, batch.DefaultConfig()),
		})
		_, err := d.Run(context.Background())
		if err == nil || !strings.Contains(err.Error(), "read titles") {
			t.Errorf("Run() error = %v, want read titles error", err)
		}
		if out.writes != 0 {
			t.Error("sink must not be written when the source fails")
		}
	})

	t.Run("sink", func(t *testing.T) {
		sinkErr := errors.New("disk full")
		d, _ := New(Deps{
			Source:    staticSource{titles: []string{"a"}},
			Sink:      &captureSink{err: sinkErr},
			Builder:   newBuilder(t, "https://example.test/e"),
			Fetcher:   okFetcher,
			Extractor: extract.New(zerolog.Nop()),
			Scheduler: newScheduler(t, batch.DefaultConfig()),
		})
		_, err := d.Run(context.Background())
		if !errors.Is(err, sinkErr) {
			t.Errorf("Run() error = %v, want %v", err, sinkErr)
		}
	})

	t.Run("interrupted", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := &captureSink{}
		d, _ := New(Deps{
			Source: staticSource{titles: []string{"a", "b", "c", "d"}},
			Sink:   out,
			Builder: newBuilder(t, "https://example.test/e"),
			Fetcher: fetchFunc(func(context.Context, string) ([]byte, error) {
				cancel()
				return []byte(testutil.ESearchPayload("1")), nil
			}),
			Extractor: extract.New(zerolog.Nop()),
			Scheduler: newScheduler(t, batch.Config{BatchSize: 1, Workers: 1, RequestsPerSecond: 10}),
		})
		summary, err := d.Run(ctx)
		if !IsInterrupted(err) {
			t.Fatalf("Run() error = %v, want interrupted", err)
		}
		if out.writes != 0 {
			t.Error("sink must not be written after interruption")
		}
		if summary.Batches != 1 || summary.Resolved != 1 {
			t.Errorf("summary = %+v, want 1 batch and 1 resolved", summary)
		}
	})
}

func TestRun_AgainstMockESearch(t *testing.T) {
	mock := testutil.NewMockESearch()
	defer mock.Close()

	titles := make([]string, 23)
	for i := range titles {
		titles[i] = fmt.Sprintf("Paper %02d", i)
		if i%3 == 0 {
			mock.SetIDs(titles[i], fmt.Sprint(1000+i))
		}
	}
	// Throttled twice, then answers.
	mock.Script("Paper 03",
		testutil.NewRateLimitResponse(),
		testutil.NewRateLimitResponse(),
		testutil.NewIDResponse("1003", "2003"),
	)
	// Never recovers within three attempts.
	mock.Script("Paper 06", testutil.NewRateLimitResponse())
	mock.Script("Paper 07", testutil.NewServerErrorResponse())

	tracker := ratelimit.NewTracker(zerolog.Nop())
	exec, err := client.New(client.DefaultConfig("pmid-resolver-test/1.0"), tracker)
	if err != nil {
		t.Fatal(err)
	}

	var retrySleeps atomic.Int32
	retrySleep := func(ctx context.Context, d time.Duration) error {
		retrySleeps.Add(1)
		return ctx.Err()
	}

	out := &captureSink{}
	d, err := New(Deps{
		Source:    staticSource{titles: titles},
		Sink:      out,
		Builder:   newBuilder(t, mock.URL()),
		Fetcher:   client.NewRetrier(exec, client.DefaultRetryConfig(), retrySleep),
		Extractor: extract.New(zerolog.Nop()),
		Scheduler: newScheduler(t, batch.DefaultConfig()),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Batches != 3 || summary.Titles != 23 {
		t.Errorf("summary = %+v, want 3 batches over 23 titles", summary)
	}
	// Paper 06 exhausts retries, Paper 07 is a hard failure.
	if summary.Failed != 2 {
		t.Errorf("summary.Failed = %d, want 2", summary.Failed)
	}
	if got := mock.Calls("Paper 03"); got != 3 {
		t.Errorf("Paper 03 calls = %d, want 3", got)
	}
	if got := mock.Calls("Paper 06"); got != 3 {
		t.Errorf("Paper 06 calls = %d, want 3", got)
	}
	if got := mock.Calls("Paper 07"); got != 1 {
		t.Errorf("Paper 07 calls = %d, want 1 (hard failures are not retried)", got)
	}
	if got := mock.MaxInFlight(); got > 5 {
		t.Errorf("max in flight = %d, want <= 5", got)
	}
	if got := retrySleeps.Load(); got != 4 {
		t.Errorf("retry sleeps = %d, want 4 (2 for Paper 03, 2 for Paper 06)", got)
	}
	if tracker.State().Throttles != 5 {
		t.Errorf("tracker throttles = %d, want 5", tracker.State().Throttles)
	}

	var gotTitles []string
	for _, e := range out.entries {
		gotTitles = append(gotTitles, e.Title)
	}
	wantTitles := []string{"Paper 00", "Paper 03", "Paper 09", "Paper 12", "Paper 15", "Paper 18", "Paper 21"}
	if !reflect.DeepEqual(gotTitles, wantTitles) {
		t.Errorf("entry titles = %v, want %v", gotTitles, wantTitles)
	}
	if ids := out.entries[1].IDs; !reflect.DeepEqual(ids, []string{"1003", "2003"}) {
		t.Errorf("Paper 03 ids = %v, want [1003 2003]", ids)
	}
	if summary.Resolved != len(wantTitles) {
		t.Errorf("summary.Resolved = %d, want %d", summary.Resolved, len(wantTitles))
	}
}
