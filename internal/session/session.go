// Package session owns the paginated feed of one viewer: the roster it was
// built for, the merged videos, the per-channel cursors and the fetch state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"creatorfeed/internal/feed"
	"creatorfeed/internal/model"
)

var (
	// ErrFeedUnavailable is returned when every channel of a cycle failed.
	// The previous feed is kept.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrInFlight is returned by LoadMore while a cycle is running. The call is ignored.
	ErrInFlight = errors.New("fetch already in progress")
	// ErrExhausted is returned by LoadMore when no channel has further pages.
	ErrExhausted = errors.New("feed exhausted")
	// ErrSuperseded is returned when the roster changed while the cycle was
	// running; its result was discarded.
	ErrSuperseded = errors.New("fetch superseded")
)

// State is the load state of a session.
type State int

// Load states.
const (
	Idle State = iota
	Fetching
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Runner executes one fetch cycle. *feed.Aggregator implements it.
type Runner interface {
	Cycle(ctx context.Context, req feed.Request) feed.Result
}

// Outcome describes a committed cycle.
type Outcome struct {
	// Added holds the videos the cycle appended, in display order.
	Added []model.Video
	Feed  model.FeedState
	Reset bool
}

// Session is the sole owner of a FeedState. All mutation happens under mu
// and only at cycle boundaries; the fan-out itself runs unlocked.
type Session struct {
	run Runner
	log *slog.Logger

	mu         sync.Mutex
	roster     []string
	feed       model.FeedState
	state      State
	cycle      uint64
	cancel     context.CancelFunc
	needsReset bool
}

// New creates a session with an empty roster.
func New(run Runner, log *slog.Logger) *Session {
	return &Session{
		run:   run,
		log:   log,
		feed:  model.FeedState{Cursors: model.Cursors{}},
		state: Exhausted,
	}
}

// SetRoster replaces the followed channels and runs a reset cycle. Cursors
// are cleared and any in-flight cycle is superseded before the fetch starts.
// A roster with the same set of ids as the current one is a no-op, unless a
// previous reset failed.
func (s *Session) SetRoster(ctx context.Context, channelIDs []string) (Outcome, error) {
	s.mu.Lock()
	if sameSet(s.roster, channelIDs) && !s.needsReset {
		out := Outcome{Feed: s.snapshotLocked()}
		s.mu.Unlock()
		return out, nil
	}
	s.roster = slices.Clone(channelIDs)
	s.mu.Unlock()

	return s.reset(ctx)
}

// Refresh runs a reset cycle for the current roster.
func (s *Session) Refresh(ctx context.Context) (Outcome, error) {
	return s.reset(ctx)
}

// LoadMore runs a continuation cycle. It returns ErrInFlight while another
// cycle runs and ErrExhausted once no channel has a cursor; neither changes
// the session. After a failed reset it retries the reset instead.
func (s *Session) LoadMore(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	switch {
	case s.state == Fetching:
		s.mu.Unlock()
		return Outcome{}, ErrInFlight
	case s.needsReset:
		s.mu.Unlock()
		return s.reset(ctx)
	case s.state == Exhausted:
		out := Outcome{Feed: s.snapshotLocked()}
		s.mu.Unlock()
		return out, ErrExhausted
	}

	req := feed.Request{
		ChannelIDs: slices.Clone(s.roster),
		Cursors:    s.feed.Cursors.Clone(),
		Existing:   slices.Clone(s.feed.Videos),
	}
	id, cctx := s.beginLocked(ctx)
	s.mu.Unlock()

	return s.finish(id, req, s.run.Cycle(cctx, req))
}

func (s *Session) reset(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.feed.Cursors = model.Cursors{}
	s.feed.HasMore = false

	if len(s.roster) == 0 {
		s.cycle++
		s.feed = model.FeedState{Cursors: model.Cursors{}}
		s.state = Exhausted
		s.needsReset = false
		out := Outcome{Feed: s.snapshotLocked(), Reset: true}
		s.mu.Unlock()
		return out, nil
	}

	req := feed.Request{ChannelIDs: slices.Clone(s.roster), Reset: true}
	id, cctx := s.beginLocked(ctx)
	s.mu.Unlock()

	return s.finish(id, req, s.run.Cycle(cctx, req))
}

// beginLocked tags a new cycle and marks the session as fetching.
func (s *Session) beginLocked(ctx context.Context) (uint64, context.Context) {
	s.cycle++
	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = Fetching
	s.feed.Loading = true
	return s.cycle, cctx
}

func (s *Session) finish(id uint64, req feed.Request, res feed.Result) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.cycle {
		s.log.Debug("discard stale cycle", "cycle", id, "current", s.cycle)
		return Outcome{}, ErrSuperseded
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.feed.Loading = false

	if res.AllFailed() {
		if req.Reset {
			s.needsReset = true
		}
		s.state = Idle
		s.log.Warn("fetch cycle failed", "reset", req.Reset, "channels", res.Requested)
		return Outcome{Feed: s.snapshotLocked(), Reset: req.Reset}, ErrFeedUnavailable
	}

	s.feed.Videos = res.Videos
	s.feed.Cursors = res.Cursors
	s.feed.HasMore = res.HasMore
	s.needsReset = false
	if res.HasMore {
		s.state = Idle
	} else {
		s.state = Exhausted
	}

	return Outcome{
		Added: res.Added,
		Feed:  s.snapshotLocked(),
		Reset: req.Reset,
	}, nil
}

// Snapshot returns a copy of the current feed.
func (s *Session) Snapshot() model.FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current load state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Roster returns the channel ids the feed is built for.
func (s *Session) Roster() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.roster)
}

// Close cancels any in-flight cycle.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cycle++
}

func (s *Session) snapshotLocked() model.FeedState {
	return model.FeedState{
		Videos:  slices.Clone(s.feed.Videos),
		Cursors: s.feed.Cursors.Clone(),
		HasMore: s.feed.HasMore,
		Loading: s.feed.Loading,
	}
}

func sameSet(a, b []string) bool {
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(slices.Compact(as), slices.Compact(bs))
}
