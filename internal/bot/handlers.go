package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"creatorfeed/internal/embed"
	"creatorfeed/internal/model"
	"creatorfeed/internal/niche"
	"creatorfeed/internal/session"
	"creatorfeed/internal/storage"
	"creatorfeed/internal/youtube"
)

const (
	msgNoChannels   = "You are not following any channels yet. Use /search <query>, /add <channel_id> or /niches to add some."
	msgEndOfFeed    = "You've reached the end of the feed."
	msgStillLoading = "Still loading…"
)

func isSuperseded(err error) bool {
	return errors.Is(err, session.ErrSuperseded)
}

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Creator Feed!

Follow your favourite YouTube creators and browse their latest videos in one feed.

Quick start:
1. /search <query> — find a channel
2. /niches — follow a preset group of creators
3. /feed — browse the merged feed

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Channels:
/search <query> — search YouTube channels
/add <channel_id> — follow a channel
/channels — show followed channels
/remove <channel_id|n> — unfollow a channel
/niches — follow a preset niche

Feed:
/feed — show the feed from the top
/more — load more videos
/refresh — fetch the feed again

Embeds:
/embed <url> — save a link from Instagram, Pinterest, TikTok, Twitter, YouTube or Vimeo
/embeds — show saved links
/rmembed <n> — remove a saved link
/instagram <url> — preview an Instagram post or reel`)
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /search <query>")
		return
	}
	if b.svc.Directory == nil {
		b.reply(chatID, "Channel search needs a YouTube API key. Use /add <channel_id> or /niches instead.")
		return
	}

	channels, err := b.svc.Directory.SearchChannels(ctx, args)
	if err != nil {
		b.log.Warn("search channels", "chat_id", chatID, "query", args, "error", err)
		if errors.Is(err, youtube.ErrQuotaExceeded) {
			b.reply(chatID, "YouTube quota exceeded. Please try again later.")
			return
		}
		b.reply(chatID, "Failed to search channels.")
		return
	}
	if len(channels) == 0 {
		b.reply(chatID, fmt.Sprintf("No channels found for %q.", args))
		return
	}

	c := b.chatFor(chatID)
	c.remember(channels)
	b.send(chatID, FormatSearchResults(channels), addKeyboard(channels))
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	id, err := ParseChannelID(args)
	if err != nil {
		b.reply(chatID, "Usage: /add <channel_id>")
		return
	}

	roster, err := b.loadRoster(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if slices.ContainsFunc(roster, func(ch model.Channel) bool { return ch.ID == id }) {
		b.reply(chatID, fmt.Sprintf("Channel %s is already in your feed.", id))
		return
	}

	ch, err := b.resolveChannel(ctx, chatID, id)
	if errors.Is(err, youtube.ErrChannelNotFound) {
		b.reply(chatID, fmt.Sprintf("Channel %s not found.", id))
		return
	}
	if err != nil {
		b.log.Warn("lookup channel", "chat_id", chatID, "channel_id", id, "error", err)
		b.reply(chatID, "Failed to look up channel.")
		return
	}

	roster = append(roster, ch)
	if err := b.saveRoster(ctx, chatID, roster); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save channels: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Added %s. Loading videos…", ch.Title))
	b.applyRoster(ctx, chatID, roster)
}

// resolveChannel returns display metadata for id, from the last search if
// possible. Without a directory the id doubles as the title.
func (b *Bot) resolveChannel(ctx context.Context, chatID int64, id string) (model.Channel, error) {
	c := b.chatFor(chatID)
	if ch, ok := c.recalled(id); ok {
		return ch, nil
	}
	if b.svc.Directory == nil {
		return model.Channel{ID: id, Title: id}, nil
	}
	found, err := b.svc.Directory.LookupChannels(ctx, []string{id})
	if err != nil {
		return model.Channel{}, err
	}
	return found[0], nil
}

func (b *Bot) handleChannels(ctx context.Context, chatID int64) {
	roster, err := b.loadRoster(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatChannelList(roster))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /remove <channel_id|n>")
		return
	}

	roster, err := b.loadRoster(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	i := FindChannel(roster, args)
	if i < 0 {
		b.reply(chatID, fmt.Sprintf("Channel %s is not in your feed.", args))
		return
	}
	removed := roster[i]
	roster = slices.Delete(roster, i, i+1)

	if err := b.saveRoster(ctx, chatID, roster); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save channels: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed %s.", removed.Title))
	b.applyRoster(ctx, chatID, roster)
}

func (b *Bot) handleNiches(chatID int64) {
	niches, err := niche.All()
	if err != nil {
		b.log.Error("load niches", "error", err)
		b.reply(chatID, "Niches are unavailable.")
		return
	}
	b.send(chatID, FormatNiches(niches), nicheKeyboard(niches))
}

func (b *Bot) handleAddNiche(ctx context.Context, chatID int64, id string) {
	n, ok := niche.Get(id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Niche %q not found.", id))
		return
	}

	roster, err := b.loadRoster(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	updated, added := niche.AddTo(roster, n)
	if added == 0 {
		b.reply(chatID, "All channels from this niche are already added.")
		return
	}
	if err := b.saveRoster(ctx, chatID, updated); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save channels: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Added %d channels from %s.", added, n.Name))
	b.applyRoster(ctx, chatID, updated)
}

func (b *Bot) handleFeed(ctx context.Context, chatID int64) {
	c := b.chatFor(chatID)
	if !c.isMounted() {
		b.mount(ctx, chatID, c)
		return
	}

	feed := c.sess.Snapshot()
	if len(feed.Videos) == 0 {
		switch {
		case c.sess.State() == session.Fetching:
			b.reply(chatID, msgStillLoading)
		case len(c.sess.Roster()) == 0:
			b.reply(chatID, msgNoChannels)
		default:
			b.reply(chatID, "No videos found. Use /refresh to try again.")
		}
		return
	}

	c.resetShown()
	b.showNext(chatID, c, feed)
}

// handleMore is the scroll-proximity signal: it shows fetched videos the
// user has not seen yet and only then asks the session for the next round.
func (b *Bot) handleMore(ctx context.Context, chatID int64) {
	c := b.chatFor(chatID)
	if !c.isMounted() {
		b.mount(ctx, chatID, c)
		return
	}

	feed := c.sess.Snapshot()
	if c.pending(feed) {
		b.showNext(chatID, c, feed)
		return
	}

	switch c.sess.State() {
	case session.Fetching:
		b.reply(chatID, msgStillLoading)
		return
	case session.Exhausted:
		b.reply(chatID, msgEndOfFeed)
		return
	}

	b.async(func() {
		out, err := c.sess.LoadMore(ctx)
		switch {
		case errors.Is(err, session.ErrInFlight):
			b.reply(chatID, msgStillLoading)
		case errors.Is(err, session.ErrExhausted):
			b.reply(chatID, msgEndOfFeed)
		case isSuperseded(err):
		case err != nil:
			b.log.Warn("load more", "chat_id", chatID, "error", err)
			b.send(chatID, "Failed to load videos.", moreKeyboard())
		default:
			if out.Reset {
				c.resetShown()
			}
			b.showNext(chatID, c, out.Feed)
		}
	})
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	c := b.chatFor(chatID)
	if !c.isMounted() {
		b.mount(ctx, chatID, c)
		return
	}
	if len(c.sess.Roster()) == 0 {
		b.reply(chatID, msgNoChannels)
		return
	}

	b.reply(chatID, "Refreshing…")
	b.async(func() {
		out, err := c.sess.Refresh(ctx)
		if b.resetFailed(chatID, err) {
			return
		}
		c.resetShown()
		b.showNext(chatID, c, out.Feed)
	})
}

func (b *Bot) handleEmbed(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /embed <url>")
		return
	}
	if u, err := url.Parse(args); err != nil || u.Scheme == "" || u.Host == "" {
		b.reply(chatID, "Please enter a valid URL.")
		return
	}

	links, err := storage.LoadEmbeds(ctx, b.store, scope(chatID))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	link := embed.Parse(args)
	links = append([]model.EmbedLink{link}, links...)
	if err := storage.SaveEmbeds(ctx, b.store, scope(chatID), links); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save link: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Content added! (%s)\n%s", platformLabel(link.Platform), link.EmbedURL))
}

func (b *Bot) handleEmbeds(ctx context.Context, chatID int64) {
	links, err := storage.LoadEmbeds(ctx, b.store, scope(chatID))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(links) == 0 {
		b.reply(chatID, "No saved links yet. Use /embed <url> to add one.")
		return
	}
	b.send(chatID, FormatEmbeds(links), rmEmbedKeyboard(len(links)))
}

func (b *Bot) handleRmEmbed(ctx context.Context, chatID int64, args string) {
	n, err := ParseIndexArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmembed <n>")
		return
	}

	links, err := storage.LoadEmbeds(ctx, b.store, scope(chatID))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if n > len(links) {
		b.reply(chatID, fmt.Sprintf("Link #%d not found.", n))
		return
	}

	removed := links[n-1]
	links = slices.Delete(links, n-1, n)
	if err := storage.SaveEmbeds(ctx, b.store, scope(chatID), links); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save links: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed link #%d: %s", n, removed.OriginalURL))
}

func (b *Bot) handleInstagram(ctx context.Context, chatID int64, args string) {
	postURL := strings.TrimSpace(args)
	if !embed.ValidInstagramURL(postURL) {
		b.reply(chatID, "Please enter a valid Instagram URL (a post or reel).")
		return
	}

	out, err := b.svc.OEmbed.Lookup(ctx, postURL)
	switch {
	case errors.Is(err, embed.ErrNotConfigured):
		b.reply(chatID, "Instagram previews are not configured.")
		return
	case errors.Is(err, embed.ErrRateLimited):
		b.reply(chatID, "Rate limit exceeded. Please try again later.")
		return
	case err != nil:
		b.log.Warn("instagram oembed", "chat_id", chatID, "url", postURL, "error", err)
		out = embed.Fallback(postURL)
	}
	b.reply(chatID, FormatOEmbed(out))
}
