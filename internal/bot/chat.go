package bot

import (
	"context"
	"strconv"
	"sync"
	"time"

	"creatorfeed/internal/model"
	"creatorfeed/internal/session"
	"creatorfeed/internal/storage"
)

// pageSize is the number of videos shown per message.
const pageSize = 10

// chat is the in-memory state of one conversation.
type chat struct {
	sess *session.Session

	mu       sync.Mutex
	shown    int
	mounted  bool // the stored roster has been handed to sess
	lastUsed time.Time
	found    map[string]model.Channel // last search results by id
}

func scope(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

// chatFor returns the chat state, creating it on first use.
func (b *Bot) chatFor(chatID int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.chats[chatID]
	if !ok {
		c = &chat{sess: session.New(b.svc.Runner, b.log.With("chat_id", chatID))}
		b.chats[chatID] = c
	}
	c.touch(b.now())
	return c
}

func (c *chat) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

// markMounted records that the session has a roster and reports whether it
// already had one.
func (c *chat) markMounted() (was bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	was, c.mounted = c.mounted, true
	return was
}

func (c *chat) isMounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}

// SweepIdle closes and forgets the sessions not used for longer than maxIdle.
// It returns the number of sessions removed.
func (b *Bot) SweepIdle(maxIdle time.Duration) int {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, c := range b.chats {
		c.mu.Lock()
		idle := now.Sub(c.lastUsed)
		c.mu.Unlock()
		if idle <= maxIdle {
			continue
		}
		c.sess.Close()
		delete(b.chats, id)
		removed++
	}
	return removed
}

func (b *Bot) loadRoster(ctx context.Context, chatID int64) ([]model.Channel, error) {
	return storage.LoadChannels(ctx, b.store, scope(chatID))
}

func (b *Bot) saveRoster(ctx context.Context, chatID int64, roster []model.Channel) error {
	return storage.SaveChannels(ctx, b.store, scope(chatID), roster)
}

// applyRoster starts the reset fetch for an edited roster.
func (b *Bot) applyRoster(ctx context.Context, chatID int64, roster []model.Channel) {
	c := b.chatFor(chatID)
	c.markMounted()
	b.async(func() {
		out, err := c.sess.SetRoster(ctx, model.ChannelIDs(roster))
		b.reportReset(chatID, c, out, err)
	})
}

// mount loads the stored roster into a session that has none yet and shows
// the first page once the reset fetch completes.
func (b *Bot) mount(ctx context.Context, chatID int64, c *chat) {
	roster, err := b.loadRoster(ctx, chatID)
	if err != nil {
		b.log.Error("load roster", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to load your channels.")
		return
	}
	if len(roster) == 0 {
		b.reply(chatID, msgNoChannels)
		return
	}

	if c.markMounted() {
		b.reply(chatID, msgStillLoading)
		return
	}
	b.reply(chatID, "Loading videos…")
	b.async(func() {
		out, err := c.sess.SetRoster(ctx, model.ChannelIDs(roster))
		if b.resetFailed(chatID, err) {
			return
		}
		c.resetShown()
		b.showNext(chatID, c, out.Feed)
	})
}

// reportReset tells the user the outcome of a background roster reset.
func (b *Bot) reportReset(chatID int64, c *chat, out session.Outcome, err error) {
	if b.resetFailed(chatID, err) {
		return
	}
	c.resetShown()
	if len(out.Feed.Videos) == 0 {
		return
	}
	b.reply(chatID, formatFeedReady(len(out.Feed.Videos)))
}

func (b *Bot) resetFailed(chatID int64, err error) bool {
	switch {
	case err == nil:
		return false
	case isSuperseded(err):
		return true
	default:
		b.log.Warn("reset feed", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to load videos. Use /refresh to try again.")
		return true
	}
}

func (c *chat) resetShown() {
	c.mu.Lock()
	c.shown = 0
	c.mu.Unlock()
}

// showNext sends the next unseen page of the feed.
func (b *Bot) showNext(chatID int64, c *chat, feed model.FeedState) {
	c.mu.Lock()
	start := min(c.shown, len(feed.Videos))
	end := min(start+pageSize, len(feed.Videos))
	c.shown = end
	c.mu.Unlock()

	if start == end {
		if !feed.HasMore {
			b.reply(chatID, msgEndOfFeed)
		}
		return
	}

	text := FormatVideos(feed.Videos[start:end], start, b.now())
	if end < len(feed.Videos) || feed.HasMore {
		b.send(chatID, text, moreKeyboard())
	} else {
		b.send(chatID, text+"\n\n"+msgEndOfFeed, nil)
	}
}

// pending reports whether videos already fetched are still unseen.
func (c *chat) pending(feed model.FeedState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shown < len(feed.Videos)
}

func (c *chat) remember(channels []model.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.found = make(map[string]model.Channel, len(channels))
	for _, ch := range channels {
		c.found[ch.ID] = ch
	}
}

func (c *chat) recalled(id string) (model.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.found[id]
	return ch, ok
}
