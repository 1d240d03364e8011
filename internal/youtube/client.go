// Package youtube fetches channel pages, embeddability status and channel
// metadata from YouTube.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"creatorfeed/internal/model"
)

var (
	// ErrQuotaExceeded is returned when the Data API rejects a call for quota reasons.
	ErrQuotaExceeded = errors.New("youtube quota exceeded")
	// ErrChannelNotFound is returned when a channel lookup matches nothing.
	ErrChannelNotFound = errors.New("channel not found")
)

const (
	pageSize    = 10
	searchLimit = 10
	// videos.list and channels.list accept at most 50 ids per request.
	idBatch = 50
)

// Client talks to the YouTube Data API v3.
type Client struct {
	svc     *yt.Service
	limiter *rate.Limiter
}

// New creates a Client authenticated with apiKey. Outgoing calls are limited
// to rps requests per second; a non-positive rps disables the limit.
func New(ctx context.Context, apiKey string, rps float64, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &Client{svc: svc, limiter: rate.NewLimiter(limit, burst)}, nil
}

// FetchChannelPage returns one page of a channel's videos, newest first.
func (c *Client) FetchChannelPage(ctx context.Context, channelID, cursor string) (model.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Page{}, fmt.Errorf("wait for rate limit: %w", err)
	}

	call := c.svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Type("video").
		Order("date").
		MaxResults(pageSize).
		Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	resp, err := call.Do()
	if err != nil {
		return model.Page{}, fmt.Errorf("search channel %s: %w", channelID, classify(err))
	}

	videos := make([]model.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		if v, ok := videoFromSearch(item); ok {
			videos = append(videos, v)
		}
	}
	return model.Page{Videos: videos, NextCursor: resp.NextPageToken}, nil
}

// CheckEmbeddable reports the embeddable status of each id. Ids unknown to
// the upstream are absent from the result.
func (c *Client) CheckEmbeddable(ctx context.Context, videoIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(videoIDs))
	for start := 0; start < len(videoIDs); start += idBatch {
		batch := videoIDs[start:min(start+idBatch, len(videoIDs))]

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limit: %w", err)
		}
		resp, err := c.svc.Videos.List([]string{"status"}).
			Id(batch...).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("list video status: %w", classify(err))
		}
		for _, item := range resp.Items {
			if item.Id == "" || item.Status == nil {
				continue
			}
			out[item.Id] = item.Status.Embeddable
		}
	}
	return out, nil
}

// SearchChannels finds channels matching query. Subscriber counts come from
// a second lookup; if it fails the search results are returned with "N/A".
func (c *Client) SearchChannels(ctx context.Context, query string) ([]model.Channel, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	resp, err := c.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("channel").
		MaxResults(searchLimit).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search channels: %w", classify(err))
	}

	var (
		ids      []string
		fallback []model.Channel
	)
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.ChannelId == "" {
			continue
		}
		ids = append(ids, item.Snippet.ChannelId)
		fallback = append(fallback, model.Channel{
			ID:              item.Snippet.ChannelId,
			Title:           item.Snippet.Title,
			Thumbnail:       mediumThumbnail(item.Snippet.Thumbnails),
			SubscriberCount: "N/A",
			Description:     item.Snippet.Description,
		})
	}
	if len(ids) == 0 {
		return []model.Channel{}, nil
	}

	channels, err := c.listChannels(ctx, ids)
	if err != nil {
		return fallback, nil
	}
	return channels, nil
}

// LookupChannels returns metadata for the given channel ids.
func (c *Client) LookupChannels(ctx context.Context, ids []string) ([]model.Channel, error) {
	channels, err := c.listChannels(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, ErrChannelNotFound
	}
	return channels, nil
}

func (c *Client) listChannels(ctx context.Context, ids []string) ([]model.Channel, error) {
	var out []model.Channel
	for start := 0; start < len(ids); start += idBatch {
		batch := ids[start:min(start+idBatch, len(ids))]

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limit: %w", err)
		}
		resp, err := c.svc.Channels.List([]string{"snippet", "statistics"}).
			Id(batch...).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("list channels: %w", classify(err))
		}
		for _, item := range resp.Items {
			if item.Id == "" || item.Snippet == nil {
				continue
			}
			subs := "0"
			if item.Statistics != nil {
				subs = FormatSubscribers(item.Statistics.SubscriberCount)
			}
			out = append(out, model.Channel{
				ID:              item.Id,
				Title:           item.Snippet.Title,
				Thumbnail:       mediumThumbnail(item.Snippet.Thumbnails),
				SubscriberCount: subs,
				Description:     item.Snippet.Description,
			})
		}
	}
	return out, nil
}

// StatusCode returns the HTTP status of an upstream API error, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	}
	if apiErr.Code == http.StatusForbidden {
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded":
				return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
			}
		}
	}
	return err
}

// videoFromSearch drops results without a video id, a snippet or a valid
// publication time.
func videoFromSearch(item *yt.SearchResult) (model.Video, bool) {
	if item == nil || item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
		return model.Video{}, false
	}
	published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	if err != nil {
		return model.Video{}, false
	}
	return model.Video{
		ID:           item.Id.VideoId,
		Title:        item.Snippet.Title,
		Thumbnail:    highThumbnail(item.Snippet.Thumbnails),
		ChannelID:    item.Snippet.ChannelId,
		ChannelTitle: item.Snippet.ChannelTitle,
		PublishedAt:  published,
		Description:  item.Snippet.Description,
	}, true
}

func highThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	return firstURL(t.High, t.Medium, t.Default)
}

func mediumThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	return firstURL(t.Medium, t.High, t.Default)
}

func firstURL(thumbs ...*yt.Thumbnail) string {
	for _, th := range thumbs {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
