// Package feed merges independent per-channel video pages into one
// deduplicated, date-ordered feed.
package feed

import (
	"slices"

	"creatorfeed/internal/model"
)

// ChannelResult is the outcome of fetching one page for one channel.
// A failed fetch carries Err and contributes no videos and no cursor.
type ChannelResult struct {
	ChannelID  string
	Videos     []model.Video
	NextCursor string
	Err        error
}

// Result is the merged outcome of one fetch cycle.
type Result struct {
	// Videos is the full feed after this cycle.
	Videos []model.Video
	// Added holds the videos this cycle contributed, in display order.
	Added   []model.Video
	Cursors model.Cursors
	HasMore bool

	Requested int
	Failed    int
}

// AllFailed reports whether every requested channel failed.
func (r Result) AllFailed() bool {
	return r.Requested > 0 && r.Failed == r.Requested
}

// Merge combines the per-channel results of one round with the existing feed.
//
// Candidates whose id maps to false in embeddable are dropped; ids absent from
// the map, or a nil map, count as embeddable. Candidates already present in
// existing (ignored when reset is set) or earlier in the round are dropped.
// Survivors are stable-sorted by PublishedAt descending and appended after
// existing, or returned alone when reset is set.
func Merge(existing []model.Video, results []ChannelResult, embeddable map[string]bool, reset bool) Result {
	seen := make(map[string]struct{}, len(existing))
	if !reset {
		for _, v := range existing {
			seen[v.ID] = struct{}{}
		}
	}

	var added []model.Video
	cursors := make(model.Cursors)
	failed := 0

	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		if r.NextCursor != "" {
			cursors[r.ChannelID] = r.NextCursor
		}
		for _, v := range r.Videos {
			if ok, known := embeddable[v.ID]; known && !ok {
				continue
			}
			if _, dup := seen[v.ID]; dup {
				continue
			}
			seen[v.ID] = struct{}{}
			added = append(added, v)
		}
	}

	slices.SortStableFunc(added, func(a, b model.Video) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	var videos []model.Video
	if reset {
		videos = slices.Clone(added)
	} else {
		videos = make([]model.Video, 0, len(existing)+len(added))
		videos = append(videos, existing...)
		videos = append(videos, added...)
	}

	return Result{
		Videos:    videos,
		Added:     added,
		Cursors:   cursors,
		HasMore:   len(cursors) > 0,
		Requested: len(results),
		Failed:    failed,
	}
}
