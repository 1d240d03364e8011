package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"creatorfeed/internal/feed"
	"creatorfeed/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func vid(id, channel string, h int) model.Video {
	return model.Video{ID: id, ChannelID: channel, PublishedAt: base.Add(time.Duration(h) * time.Hour)}
}

func ids(videos []model.Video) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.ID)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// funcRunner counts cycles and delegates to fn.
type funcRunner struct {
	mu    sync.Mutex
	calls []feed.Request
	fn    func(ctx context.Context, req feed.Request) feed.Result
}

func (r *funcRunner) Cycle(ctx context.Context, req feed.Request) feed.Result {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	return r.fn(ctx, req)
}

func (r *funcRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *funcRunner) last() feed.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// pagedSource serves fixed pages keyed by channel and cursor.
type pagedSource struct {
	mu    sync.Mutex
	pages map[string]model.Page
	calls int
}

func (p *pagedSource) FetchChannelPage(_ context.Context, channelID, cursor string) (model.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	page, ok := p.pages[channelID+"|"+cursor]
	if !ok {
		return model.Page{}, errors.New("no such page")
	}
	return page, nil
}

func (p *pagedSource) CheckEmbeddable(context.Context, []string) (map[string]bool, error) {
	return nil, nil
}

func scenarioSource() *pagedSource {
	return &pagedSource{pages: map[string]model.Page{
		"A|":   {Videos: []model.Video{vid("v1", "A", 3), vid("v2", "A", 1)}, NextCursor: "cA"},
		"B|":   {Videos: []model.Video{vid("v3", "B", 2)}},
		"A|cA": {Videos: []model.Video{vid("v4", "A", 0)}},
	}}
}

func checkHasMore(t *testing.T, fs model.FeedState) {
	t.Helper()
	if fs.HasMore != (len(fs.Cursors) > 0) {
		t.Errorf("hasMore=%v with %d cursors", fs.HasMore, len(fs.Cursors))
	}
}

func TestSessionPagesThroughScenario(t *testing.T) {
	ctx := context.Background()
	src := scenarioSource()
	s := New(feed.NewAggregator(src, time.Second, discardLogger()), discardLogger())

	out, err := s.SetRoster(ctx, []string{"A", "B"})
	if err != nil {
		t.Fatalf("SetRoster: %v", err)
	}
	if diff := cmp.Diff([]string{"v1", "v3", "v2"}, ids(out.Feed.Videos)); diff != "" {
		t.Errorf("first page mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.Cursors{"A": "cA"}, out.Feed.Cursors); diff != "" {
		t.Errorf("cursors mismatch (-want +got):\n%s", diff)
	}
	if !out.Reset {
		t.Error("expected reset outcome")
	}
	checkHasMore(t, out.Feed)
	if got := s.State(); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}

	out, err = s.LoadMore(ctx)
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if diff := cmp.Diff([]string{"v1", "v3", "v2", "v4"}, ids(out.Feed.Videos)); diff != "" {
		t.Errorf("second page mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"v4"}, ids(out.Added)); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	checkHasMore(t, out.Feed)
	if got := s.State(); got != Exhausted {
		t.Errorf("state = %v, want exhausted", got)
	}
	if src.calls != 3 {
		t.Errorf("source calls = %d, want 3 (B must not be re-requested)", src.calls)
	}

	if _, err := s.LoadMore(ctx); !errors.Is(err, ErrExhausted) {
		t.Errorf("LoadMore on exhausted feed: err = %v, want ErrExhausted", err)
	}
	if src.calls != 3 {
		t.Errorf("exhausted LoadMore issued a fetch")
	}
}

func TestRosterChangeClearsCursorsBeforeFetch(t *testing.T) {
	var s *Session
	var seen []model.Cursors
	runner := &funcRunner{fn: func(_ context.Context, req feed.Request) feed.Result {
		seen = append(seen, s.Snapshot().Cursors)
		var results []feed.ChannelResult
		for _, id := range req.ChannelIDs {
			results = append(results, feed.ChannelResult{
				ChannelID:  id,
				Videos:     []model.Video{vid(id+"-1", id, 1)},
				NextCursor: id + "-next",
			})
		}
		return feed.Merge(req.Existing, results, nil, req.Reset)
	}}
	s = New(runner, discardLogger())
	ctx := context.Background()

	if _, err := s.SetRoster(ctx, []string{"A"}); err != nil {
		t.Fatalf("SetRoster A: %v", err)
	}
	out, err := s.SetRoster(ctx, []string{"B"})
	if err != nil {
		t.Fatalf("SetRoster B: %v", err)
	}

	if diff := cmp.Diff([]model.Cursors{{}, {}}, seen); diff != "" {
		t.Errorf("cursors at fetch start mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B-1"}, ids(out.Feed.Videos)); diff != "" {
		t.Errorf("reset feed mismatch (-want +got):\n%s", diff)
	}
	if !runner.last().Reset {
		t.Error("roster change must issue a reset cycle")
	}
}

func TestLoadMoreWhileFetchingIsIgnored(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	runner := &funcRunner{}
	runner.fn = func(_ context.Context, req feed.Request) feed.Result {
		id := "first"
		if !req.Reset {
			id = "second"
			close(entered)
			<-release
		}
		return feed.Merge(req.Existing, []feed.ChannelResult{
			{ChannelID: "A", Videos: []model.Video{vid(id, "A", 0)}, NextCursor: "next"},
		}, nil, req.Reset)
	}
	s := New(runner, discardLogger())
	ctx := context.Background()

	if _, err := s.SetRoster(ctx, []string{"A"}); err != nil {
		t.Fatalf("SetRoster: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadMore(ctx)
		done <- err
	}()
	<-entered

	if got := s.State(); got != Fetching {
		t.Errorf("state = %v, want fetching", got)
	}
	if !s.Snapshot().Loading {
		t.Error("expected loading while a cycle is in flight")
	}
	for range 3 {
		if _, err := s.LoadMore(ctx); !errors.Is(err, ErrInFlight) {
			t.Errorf("concurrent LoadMore: err = %v, want ErrInFlight", err)
		}
	}
	if got := runner.count(); got != 2 {
		t.Errorf("cycles = %d, want 2", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if got := runner.count(); got != 2 {
		t.Errorf("cycles after release = %d, want 2", got)
	}
	if s.Snapshot().Loading {
		t.Error("loading should be cleared after the cycle")
	}
}

func TestStaleCycleResultDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	runner := &funcRunner{fn: func(_ context.Context, req feed.Request) feed.Result {
		id := req.ChannelIDs[0]
		if id == "slow" {
			close(entered)
			<-release
		}
		return feed.Merge(nil, []feed.ChannelResult{
			{ChannelID: id, Videos: []model.Video{vid(id+"-video", id, 1)}, NextCursor: id + "-cur"},
		}, nil, true)
	}}
	s := New(runner, discardLogger())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.SetRoster(ctx, []string{"slow"})
		done <- err
	}()
	<-entered

	out, err := s.SetRoster(ctx, []string{"fast"})
	if err != nil {
		t.Fatalf("SetRoster fast: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("slow cycle err = %v, want ErrSuperseded", err)
	}

	want := model.FeedState{
		Videos:  []model.Video{vid("fast-video", "fast", 1)},
		Cursors: model.Cursors{"fast": "fast-cur"},
		HasMore: true,
	}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, out.Feed); diff != "" {
		t.Errorf("outcome feed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"fast"}, s.Roster()); diff != "" {
		t.Errorf("roster mismatch (-want +got):\n%s", diff)
	}
}

func TestSupersededCycleIsCancelled(t *testing.T) {
	entered := make(chan struct{})
	cancelled := make(chan struct{})

	runner := &funcRunner{fn: func(ctx context.Context, req feed.Request) feed.Result {
		if req.ChannelIDs[0] == "slow" {
			close(entered)
			<-ctx.Done()
			close(cancelled)
			return feed.Merge(nil, []feed.ChannelResult{{ChannelID: "slow", Err: ctx.Err()}}, nil, true)
		}
		return feed.Merge(nil, []feed.ChannelResult{{ChannelID: "fast"}}, nil, true)
	}}
	s := New(runner, discardLogger())

	go func() { _, _ = s.SetRoster(context.Background(), []string{"slow"}) }()
	<-entered

	if _, err := s.SetRoster(context.Background(), []string{"fast"}); err != nil {
		t.Fatalf("SetRoster: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded cycle was not cancelled")
	}
}

func TestTotalFailurePreservesFeed(t *testing.T) {
	fail := false
	runner := &funcRunner{}
	runner.fn = func(_ context.Context, req feed.Request) feed.Result {
		if fail {
			return feed.Merge(req.Existing, []feed.ChannelResult{
				{ChannelID: "A", Err: errors.New("down")},
				{ChannelID: "B", Err: errors.New("down")},
			}, nil, req.Reset)
		}
		return feed.Merge(req.Existing, []feed.ChannelResult{
			{ChannelID: "A", Videos: []model.Video{vid("a1", "A", 2)}, NextCursor: "cA"},
			{ChannelID: "B", Videos: []model.Video{vid("b1", "B", 1)}, NextCursor: "cB"},
		}, nil, req.Reset)
	}
	s := New(runner, discardLogger())
	ctx := context.Background()

	if _, err := s.SetRoster(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("SetRoster: %v", err)
	}
	before := s.Snapshot()

	fail = true
	out, err := s.LoadMore(ctx)
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("err = %v, want ErrFeedUnavailable", err)
	}
	if diff := cmp.Diff(before, out.Feed); diff != "" {
		t.Errorf("feed changed after total failure (-want +got):\n%s", diff)
	}
	if got := s.State(); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}

	fail = false
	if _, err := s.LoadMore(ctx); err != nil {
		t.Fatalf("retry LoadMore: %v", err)
	}
	retry := runner.last()
	if retry.Reset {
		t.Error("retry after a failed continuation should continue, not reset")
	}
	if diff := cmp.Diff(model.Cursors{"A": "cA", "B": "cB"}, retry.Cursors); diff != "" {
		t.Errorf("retry cursors mismatch (-want +got):\n%s", diff)
	}
}

func TestFailedResetRetriedByLoadMore(t *testing.T) {
	fail := true
	runner := &funcRunner{}
	runner.fn = func(_ context.Context, req feed.Request) feed.Result {
		if fail {
			return feed.Merge(req.Existing, []feed.ChannelResult{{ChannelID: "A", Err: errors.New("down")}}, nil, req.Reset)
		}
		return feed.Merge(req.Existing, []feed.ChannelResult{{ChannelID: "A", Videos: []model.Video{vid("a1", "A", 1)}}}, nil, req.Reset)
	}
	s := New(runner, discardLogger())
	ctx := context.Background()

	out, err := s.SetRoster(ctx, []string{"A"})
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("err = %v, want ErrFeedUnavailable", err)
	}
	checkHasMore(t, out.Feed)
	if out.Feed.HasMore || len(out.Feed.Cursors) != 0 {
		t.Errorf("failed reset kept continuation state: hasMore=%v cursors=%v", out.Feed.HasMore, out.Feed.Cursors)
	}
	if got := s.State(); got != Idle {
		t.Errorf("state = %v, want idle so the reset can be retried", got)
	}

	fail = false
	out, err = s.LoadMore(ctx)
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if !runner.last().Reset {
		t.Error("LoadMore after a failed reset should retry the reset")
	}
	if diff := cmp.Diff([]string{"a1"}, ids(out.Feed.Videos)); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	if got := s.State(); got != Exhausted {
		t.Errorf("state = %v, want exhausted", got)
	}
}

func TestEmptyRosterIsExhaustedWithoutFetch(t *testing.T) {
	runner := &funcRunner{fn: func(_ context.Context, req feed.Request) feed.Result {
		return feed.Merge(req.Existing, []feed.ChannelResult{
			{ChannelID: "A", Videos: []model.Video{vid("a1", "A", 1)}, NextCursor: "c"},
		}, nil, req.Reset)
	}}
	s := New(runner, discardLogger())
	ctx := context.Background()

	if _, err := s.SetRoster(ctx, []string{"A"}); err != nil {
		t.Fatalf("SetRoster: %v", err)
	}
	out, err := s.SetRoster(ctx, nil)
	if err != nil {
		t.Fatalf("SetRoster empty: %v", err)
	}

	if runner.count() != 1 {
		t.Errorf("cycles = %d, want 1", runner.count())
	}
	if diff := cmp.Diff(model.FeedState{Cursors: model.Cursors{}}, out.Feed); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	if got := s.State(); got != Exhausted {
		t.Errorf("state = %v, want exhausted", got)
	}
}

func TestSameRosterSetDoesNotReset(t *testing.T) {
	runner := &funcRunner{fn: func(_ context.Context, req feed.Request) feed.Result {
		return feed.Merge(req.Existing, nil, nil, req.Reset)
	}}
	s := New(runner, discardLogger())
	ctx := context.Background()

	if _, err := s.SetRoster(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("SetRoster: %v", err)
	}
	if _, err := s.SetRoster(ctx, []string{"B", "A"}); err != nil {
		t.Fatalf("SetRoster reordered: %v", err)
	}
	if got := runner.count(); got != 1 {
		t.Errorf("cycles = %d, want 1", got)
	}

	if _, err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := runner.count(); got != 2 {
		t.Errorf("cycles after refresh = %d, want 2", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Fetching, "fetching"},
		{Exhausted, "exhausted"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
