package feed

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"creatorfeed/internal/model"
)

// DefaultTimeout bounds each upstream call of a cycle.
const DefaultTimeout = 12 * time.Second

const maxParallel = 8

// Source is an upstream video platform.
type Source interface {
	FetchChannelPage(ctx context.Context, channelID, cursor string) (model.Page, error)
	CheckEmbeddable(ctx context.Context, videoIDs []string) (map[string]bool, error)
}

// Request describes one fetch cycle.
type Request struct {
	ChannelIDs []string
	Cursors    model.Cursors
	Existing   []model.Video
	Reset      bool
}

// Aggregator runs fetch cycles against a Source.
type Aggregator struct {
	src     Source
	timeout time.Duration
	log     *slog.Logger
}

// NewAggregator creates an Aggregator. A non-positive timeout selects DefaultTimeout.
func NewAggregator(src Source, timeout time.Duration, log *slog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{src: src, timeout: timeout, log: log}
}

// Cycle fetches one page per channel concurrently, checks embeddability and
// merges the round into req.Existing. A reset cycle requests the first page of
// every channel; a continuation requests only channels holding a cursor.
// Per-channel failures are absorbed into the result, never returned.
func (a *Aggregator) Cycle(ctx context.Context, req Request) Result {
	targets := a.targets(req)
	results := make([]ChannelResult, len(targets))

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = a.fetchPage(ctx, t.channelID, t.cursor)
			return nil
		})
	}
	_ = g.Wait()

	var ids []string
	for _, r := range results {
		for _, v := range r.Videos {
			ids = append(ids, v.ID)
		}
	}

	var embeddable map[string]bool
	if len(ids) > 0 {
		embeddable = a.checkEmbeddable(ctx, ids)
	}

	res := Merge(req.Existing, results, embeddable, req.Reset)
	a.log.Debug("fetch cycle merged",
		"reset", req.Reset,
		"requested", res.Requested,
		"failed", res.Failed,
		"added", len(res.Added),
		"has_more", res.HasMore,
	)
	return res
}

type target struct {
	channelID string
	cursor    string
}

func (a *Aggregator) targets(req Request) []target {
	var out []target
	for _, id := range req.ChannelIDs {
		if req.Reset {
			out = append(out, target{channelID: id})
			continue
		}
		if cur, ok := req.Cursors[id]; ok && cur != "" {
			out = append(out, target{channelID: id, cursor: cur})
		}
	}
	return out
}

func (a *Aggregator) fetchPage(ctx context.Context, channelID, cursor string) ChannelResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	page, err := a.src.FetchChannelPage(ctx, channelID, cursor)
	if err != nil {
		a.log.Warn("fetch channel page", "channel_id", channelID, "error", err)
		return ChannelResult{ChannelID: channelID, Err: err}
	}
	return ChannelResult{
		ChannelID:  channelID,
		Videos:     page.Videos,
		NextCursor: page.NextCursor,
	}
}

// checkEmbeddable fails open: on error every id counts as embeddable.
func (a *Aggregator) checkEmbeddable(ctx context.Context, ids []string) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	m, err := a.src.CheckEmbeddable(ctx, ids)
	if err != nil {
		a.log.Warn("check embeddable, keeping all videos", "count", len(ids), "error", err)
		return nil
	}
	return m
}
