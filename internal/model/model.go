// Package model defines the domain types used across the application.
package model

import "time"

// Channel is a followed creator channel. Only ID matters to the feed engine;
// the rest is display metadata kept alongside it in the roster.
type Channel struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Thumbnail       string `json:"thumbnail"`
	SubscriberCount string `json:"subscriberCount"`
	Description     string `json:"description"`
}

// Video is a single upstream video. ID is the deduplication key within a feed session.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Thumbnail    string    `json:"thumbnail"`
	ChannelID    string    `json:"channelId"`
	ChannelTitle string    `json:"channelTitle"`
	PublishedAt  time.Time `json:"publishedAt"`
	Description  string    `json:"description"`
}

// WatchURL returns the platform URL of the video.
func (v Video) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Cursors maps a channel ID to the opaque upstream token for its next page.
// A channel without an entry has no further pages.
type Cursors map[string]string

// Clone returns an independent copy of c.
func (c Cursors) Clone() Cursors {
	out := make(Cursors, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Page is one page of a channel's videos, newest first.
// An empty NextCursor means the channel has no further pages.
type Page struct {
	Videos     []Video
	NextCursor string
}

// FeedState is the merged, ever-growing feed of a session.
// HasMore is true iff Cursors is non-empty after the most recent cycle.
type FeedState struct {
	Videos  []Video
	Cursors Cursors
	HasMore bool
	Loading bool
}

// ChannelIDs returns the IDs of the given channels in order.
func ChannelIDs(channels []Channel) []string {
	ids := make([]string, len(channels))
	for i, c := range channels {
		ids[i] = c.ID
	}
	return ids
}

// Platform identifies the origin of an embeddable link.
type Platform string

// Supported platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformPinterest Platform = "pinterest"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformVimeo     Platform = "vimeo"
	PlatformUnknown   Platform = "unknown"
)

// EmbedLink is a collected link from another platform prepared for inline display.
type EmbedLink struct {
	Platform    Platform `json:"platform"`
	EmbedURL    string   `json:"embedUrl"`
	OriginalURL string   `json:"originalUrl"`
}

// OEmbed is the normalized oEmbed lookup result for a link.
type OEmbed struct {
	Embeddable  bool   `json:"embeddable"`
	HTML        string `json:"html,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Title       string `json:"title,omitempty"`
	AuthorName  string `json:"author_name,omitempty"`
	OriginalURL string `json:"original_url"`
}
