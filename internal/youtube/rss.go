package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"creatorfeed/internal/model"
)

// FeedBaseURL is the public per-channel Atom feed endpoint.
const FeedBaseURL = "https://www.youtube.com/feeds/videos.xml"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RSS reads channel uploads from the keyless Atom feed. The feed has a
// single page and no embeddability information.
type RSS struct {
	client  HTTPClient
	baseURL string
}

// NewRSS creates an RSS source reading from FeedBaseURL.
func NewRSS(client HTTPClient) *RSS {
	return &RSS{client: client, baseURL: FeedBaseURL}
}

// FetchChannelPage returns the channel's recent uploads, newest first,
// with no continuation cursor.
func (r *RSS) FetchChannelPage(ctx context.Context, channelID, _ string) (model.Page, error) {
	u := r.baseURL + "?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CreatorFeed/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Page{}, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.Page{}, fmt.Errorf("channel %s: %w", channelID, ErrChannelNotFound)
	case resp.StatusCode != http.StatusOK:
		return model.Page{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return model.Page{}, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return model.Page{}, fmt.Errorf("parse feed: %w", err)
	}

	videos := make([]model.Video, 0, len(feed.Items))
	for _, item := range feed.Items {
		if v, ok := videoFromItem(item, channelID, feed.Title); ok {
			videos = append(videos, v)
		}
	}
	return model.Page{Videos: videos}, nil
}

// CheckEmbeddable always returns a nil map: every video counts as embeddable.
func (r *RSS) CheckEmbeddable(context.Context, []string) (map[string]bool, error) {
	return nil, nil
}

func videoFromItem(item *gofeed.Item, channelID, channelTitle string) (model.Video, bool) {
	if item == nil || item.PublishedParsed == nil {
		return model.Video{}, false
	}
	id := extValue(item, "yt", "videoId")
	if id == "" {
		id = strings.TrimPrefix(item.GUID, "yt:video:")
	}
	if id == "" || strings.Contains(id, ":") {
		return model.Video{}, false
	}

	v := model.Video{
		ID:           id,
		Title:        item.Title,
		ChannelID:    channelID,
		ChannelTitle: channelTitle,
		PublishedAt:  item.PublishedParsed.UTC(),
		Description:  item.Description,
	}
	if cid := extValue(item, "yt", "channelId"); cid != "" {
		v.ChannelID = cid
	}
	if item.Author != nil && item.Author.Name != "" {
		v.ChannelTitle = item.Author.Name
	}
	if item.Image != nil {
		v.Thumbnail = item.Image.URL
	}

	if groups := item.Extensions["media"]["group"]; len(groups) > 0 {
		g := groups[0]
		if d := g.Children["description"]; len(d) > 0 && v.Description == "" {
			v.Description = d[0].Value
		}
		if th := g.Children["thumbnail"]; len(th) > 0 && v.Thumbnail == "" {
			v.Thumbnail = th[0].Attrs["url"]
		}
	}
	return v, true
}

func extValue(item *gofeed.Item, ns, name string) string {
	if exts := item.Extensions[ns][name]; len(exts) > 0 {
		return exts[0].Value
	}
	return ""
}
