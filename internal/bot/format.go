package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"creatorfeed/internal/model"
	"creatorfeed/internal/niche"
)

// RelativeDate describes t relative to now in elapsed whole days.
func RelativeDate(t, now time.Time) string {
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}
	days := int(diff / (24 * time.Hour))

	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return plural(days/7, "week")
	case days < 365:
		return plural(days/30, "month")
	default:
		return plural(days/365, "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatVideos formats a page of the feed. offset is the position of the
// first video in the feed and is used for numbering.
func FormatVideos(videos []model.Video, offset int, now time.Time) string {
	var b strings.Builder
	for i, v := range videos {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n", offset+i+1, v.Title)
		fmt.Fprintf(&b, "   %s · %s\n", v.ChannelTitle, RelativeDate(v.PublishedAt, now))
		b.WriteString("   ")
		b.WriteString(v.WatchURL())
	}
	return b.String()
}

func formatFeedReady(n int) string {
	return fmt.Sprintf("Feed updated: %d videos. Use /feed to browse.", n)
}

// FormatSearchResults formats channel search results.
func FormatSearchResults(channels []model.Channel) string {
	var b strings.Builder
	b.WriteString("Channels found:\n")
	for _, ch := range channels {
		fmt.Fprintf(&b, "\n%s (%s subscribers)\n", ch.Title, orNA(ch.SubscriberCount))
		fmt.Fprintf(&b, "   id: %s\n", ch.ID)
		if ch.Description != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(ch.Description, 100))
		}
	}
	return b.String()
}

// FormatChannelList formats the followed channels.
func FormatChannelList(channels []model.Channel) string {
	if len(channels) == 0 {
		return msgNoChannels
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your channels (%d):\n", len(channels))
	for i, ch := range channels {
		fmt.Fprintf(&b, "\n%d. %s", i+1, ch.Title)
		if ch.SubscriberCount != "" {
			fmt.Fprintf(&b, " (%s)", ch.SubscriberCount)
		}
		fmt.Fprintf(&b, "\n   id: %s", ch.ID)
	}
	return b.String()
}

// FormatNiches formats the preset niches.
func FormatNiches(niches []niche.Niche) string {
	var b strings.Builder
	b.WriteString("Popular niches:\n")
	for _, n := range niches {
		fmt.Fprintf(&b, "\n%s (%d channels)", n.Name, len(n.Channels))
	}
	b.WriteString("\n\nTap a niche to add its channels.")
	return b.String()
}

// FormatEmbeds formats the saved links, newest first.
func FormatEmbeds(links []model.EmbedLink) string {
	var b strings.Builder
	b.WriteString("Saved links:\n")
	for i, l := range links {
		fmt.Fprintf(&b, "\n#%d [%s] %s", i+1, platformLabel(l.Platform), l.EmbedURL)
	}
	return b.String()
}

// FormatOEmbed formats an Instagram preview.
func FormatOEmbed(o model.OEmbed) string {
	var b strings.Builder
	b.WriteString(o.Title)
	if o.AuthorName != "" {
		fmt.Fprintf(&b, "\nby %s", o.AuthorName)
	}
	if !o.Embeddable {
		b.WriteString("\nThis post cannot be embedded.")
	}
	if o.Thumbnail != "" {
		fmt.Fprintf(&b, "\n%s", o.Thumbnail)
	}
	fmt.Fprintf(&b, "\nOpen on Instagram: %s", o.OriginalURL)
	return b.String()
}

func platformLabel(p model.Platform) string {
	switch p {
	case model.PlatformInstagram:
		return "Instagram"
	case model.PlatformPinterest:
		return "Pinterest"
	case model.PlatformTikTok:
		return "TikTok"
	case model.PlatformTwitter:
		return "Twitter"
	case model.PlatformYouTube:
		return "YouTube"
	case model.PlatformVimeo:
		return "Vimeo"
	default:
		return "Link"
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
