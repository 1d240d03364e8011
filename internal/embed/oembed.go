package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"creatorfeed/internal/model"
)

// DefaultOEmbedEndpoint is the Instagram Graph oEmbed endpoint.
const DefaultOEmbedEndpoint = "https://graph.facebook.com/v16.0/instagram_oembed"

var (
	// ErrInvalidURL is returned for links that are not an Instagram post or reel.
	ErrInvalidURL = errors.New("invalid instagram url")
	// ErrRateLimited is returned when the upstream answers 429.
	ErrRateLimited = errors.New("oembed rate limited")
	// ErrNotConfigured is returned when no access token is set.
	ErrNotConfigured = errors.New("oembed access token not configured")
)

var instagramPost = regexp.MustCompile(`^https?://(www\.)?instagram\.com/(p|reel|reels)/[A-Za-z0-9_-]+/?`)

// ValidInstagramURL reports whether raw points at an Instagram post or reel.
func ValidInstagramURL(raw string) bool {
	return instagramPost.MatchString(raw)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OEmbedClient looks up Instagram oEmbed data.
type OEmbedClient struct {
	client   HTTPClient
	token    string
	endpoint string
}

// NewOEmbedClient creates a client for DefaultOEmbedEndpoint.
func NewOEmbedClient(client HTTPClient, token string) *OEmbedClient {
	return &OEmbedClient{client: client, token: token, endpoint: DefaultOEmbedEndpoint}
}

// WithEndpoint returns a copy of c that calls endpoint instead.
func (c *OEmbedClient) WithEndpoint(endpoint string) *OEmbedClient {
	cp := *c
	cp.endpoint = endpoint
	return &cp
}

type oembedResponse struct {
	HTML         string `json:"html"`
	ThumbnailURL string `json:"thumbnail_url"`
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
}

// Lookup fetches oEmbed data for an Instagram post. Upstream failures other
// than rate limiting yield a non-embeddable result, not an error.
func (c *OEmbedClient) Lookup(ctx context.Context, postURL string) (model.OEmbed, error) {
	if !ValidInstagramURL(postURL) {
		return model.OEmbed{}, ErrInvalidURL
	}
	if c.token == "" {
		return model.OEmbed{}, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("url", postURL)
	q.Set("access_token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return model.OEmbed{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.OEmbed{}, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.OEmbed{}, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return Fallback(postURL), nil
	}

	var data oembedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&data); err != nil {
		return model.OEmbed{}, fmt.Errorf("decode oembed: %w", err)
	}
	return model.OEmbed{
		Embeddable:  true,
		HTML:        data.HTML,
		Thumbnail:   data.ThumbnailURL,
		Title:       data.Title,
		AuthorName:  data.AuthorName,
		OriginalURL: postURL,
	}, nil
}

// Fallback is the result shown for a post that cannot be embedded.
func Fallback(postURL string) model.OEmbed {
	return model.OEmbed{Embeddable: false, Title: "Instagram Post", OriginalURL: postURL}
}
