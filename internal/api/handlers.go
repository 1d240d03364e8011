package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"creatorfeed/internal/cache"
	"creatorfeed/internal/embed"
	"creatorfeed/internal/feed"
	"creatorfeed/internal/model"
	"creatorfeed/internal/youtube"
)

// ChannelSearcher finds channels by free-text query.
type ChannelSearcher interface {
	SearchChannels(ctx context.Context, query string) ([]model.Channel, error)
}

// CycleRunner runs one multi-channel fetch cycle.
type CycleRunner interface {
	Cycle(ctx context.Context, req feed.Request) feed.Result
}

// OEmbedLooker resolves Instagram oEmbed data.
type OEmbedLooker interface {
	Lookup(ctx context.Context, postURL string) (model.OEmbed, error)
}

// Handler serves the proxy routes. Search and Videos are nil when no
// YouTube API key is configured.
type Handler struct {
	Search ChannelSearcher
	Videos CycleRunner
	OEmbed OEmbedLooker
	Cache  *cache.Tiered
	Log    *slog.Logger
}

type searchRequest struct {
	Query string `json:"query"`
}

type videosRequest struct {
	ChannelIDs []string          `json:"channelIds"`
	PageTokens map[string]string `json:"pageTokens"`
}

type videosResponse struct {
	Videos     []model.Video `json:"videos"`
	PageTokens model.Cursors `json:"pageTokens"`
	HasMore    bool          `json:"hasMore"`
}

type oembedRequest struct {
	URL string `json:"url"`
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// upstreamErrorJSON is errorJSON with the upstream error attached as details.
func upstreamErrorJSON(c *gin.Context, status int, msg string, err error) {
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}

// SearchChannels handles POST /youtube-search-channels.
func (h *Handler) SearchChannels(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		errorJSON(c, http.StatusBadRequest, "Query parameter is required")
		return
	}
	if h.Search == nil {
		errorJSON(c, http.StatusInternalServerError, "YouTube API key not configured")
		return
	}

	ctx := c.Request.Context()
	key := cache.Key("search", strings.ToLower(strings.TrimSpace(req.Query)))
	var channels []model.Channel
	if h.Cache.Get(ctx, key, &channels) {
		c.JSON(http.StatusOK, channels)
		return
	}

	channels, err := h.Search.SearchChannels(ctx, req.Query)
	if err != nil {
		h.Log.Error("search channels", "query", req.Query, "error", err)
		status := youtube.StatusCode(err)
		if status == 0 {
			status = http.StatusBadGateway
		}
		upstreamErrorJSON(c, status, "Failed to search channels", err)
		return
	}
	if channels == nil {
		channels = []model.Channel{}
	}

	h.Cache.Set(ctx, key, channels, cache.SearchTTL)
	c.JSON(http.StatusOK, channels)
}

// GetVideos handles POST /youtube-get-videos. An empty pageTokens map asks
// for the first page of every channel; otherwise only channels holding a
// token are fetched.
func (h *Handler) GetVideos(c *gin.Context) {
	var req videosRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.ChannelIDs) == 0 {
		errorJSON(c, http.StatusBadRequest, "Channel IDs array is required")
		return
	}
	if h.Videos == nil {
		errorJSON(c, http.StatusInternalServerError, "YouTube API key not configured")
		return
	}

	ctx := c.Request.Context()
	key := videosKey(req)
	var resp videosResponse
	if h.Cache.Get(ctx, key, &resp) {
		c.JSON(http.StatusOK, resp)
		return
	}

	res := h.Videos.Cycle(ctx, feed.Request{
		ChannelIDs: req.ChannelIDs,
		Cursors:    req.PageTokens,
		Reset:      len(req.PageTokens) == 0,
	})
	if res.AllFailed() {
		h.Log.Warn("get videos: every channel failed", "channels", res.Requested)
		errorJSON(c, http.StatusBadGateway, "Failed to fetch videos")
		return
	}

	resp = videosResponse{
		Videos:     res.Added,
		PageTokens: res.Cursors,
		HasMore:    res.HasMore,
	}
	if resp.Videos == nil {
		resp.Videos = []model.Video{}
	}

	if res.Failed == 0 {
		h.Cache.Set(ctx, key, resp, cache.VideosTTL)
	}
	c.JSON(http.StatusOK, resp)
}

// InstagramOEmbed handles POST /instagram-oembed.
func (h *Handler) InstagramOEmbed(c *gin.Context) {
	var req oembedRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		errorJSON(c, http.StatusBadRequest, "Valid Instagram URL is required")
		return
	}
	if !embed.ValidInstagramURL(req.URL) {
		errorJSON(c, http.StatusBadRequest, "Invalid Instagram URL. Must be a post or reel.")
		return
	}

	ctx := c.Request.Context()
	key := cache.Key("oembed", req.URL)
	var out model.OEmbed
	if h.Cache.Get(ctx, key, &out) {
		c.JSON(http.StatusOK, out)
		return
	}

	out, err := h.OEmbed.Lookup(ctx, req.URL)
	switch {
	case errors.Is(err, embed.ErrNotConfigured):
		errorJSON(c, http.StatusInternalServerError, "Instagram access token not configured")
		return
	case errors.Is(err, embed.ErrRateLimited):
		errorJSON(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		return
	case errors.Is(err, embed.ErrInvalidURL):
		errorJSON(c, http.StatusBadRequest, "Invalid Instagram URL. Must be a post or reel.")
		return
	case err != nil:
		h.Log.Error("instagram oembed", "url", req.URL, "error", err)
		c.JSON(http.StatusOK, embed.Fallback(req.URL))
		return
	}

	if out.Embeddable {
		h.Cache.Set(ctx, key, out, cache.OEmbedTTL)
	}
	c.JSON(http.StatusOK, out)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	hits, misses := h.Cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"youtube": h.Search != nil,
		"cache": gin.H{
			"hits":    hits,
			"misses":  misses,
			"entries": h.Cache.Len(),
		},
	})
}

func videosKey(req videosRequest) string {
	ids := slices.Clone(req.ChannelIDs)
	slices.Sort(ids)
	parts := append([]string{"ids"}, ids...)

	tokens := make([]string, 0, len(req.PageTokens))
	for id, tok := range req.PageTokens {
		tokens = append(tokens, id+"="+tok)
	}
	slices.Sort(tokens)
	parts = append(parts, "tokens")
	parts = append(parts, tokens...)
	return cache.Key("videos", parts...)
}
