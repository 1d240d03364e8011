// Package storage persists client-local state: the followed channels and the
// collected embed links of each chat. Feed contents are never stored.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"creatorfeed/internal/model"
)

// Keys of the persisted values.
const (
	KeySelectedChannels = "selectedChannels"
	KeyEmbeddedContent  = "embeddedContent"
)

// Storage is a key/value store partitioned by scope.
type Storage interface {
	// Get returns the value stored under key; ok is false if there is none.
	Get(ctx context.Context, scope, key string) (value string, ok bool, err error)
	Put(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error
	Close() error
}

// LoadChannels returns the roster saved for scope, or nil.
func LoadChannels(ctx context.Context, s Storage, scope string) ([]model.Channel, error) {
	var channels []model.Channel
	if err := load(ctx, s, scope, KeySelectedChannels, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// SaveChannels replaces the roster saved for scope.
func SaveChannels(ctx context.Context, s Storage, scope string, channels []model.Channel) error {
	return save(ctx, s, scope, KeySelectedChannels, channels)
}

// LoadEmbeds returns the embed links saved for scope, newest first.
func LoadEmbeds(ctx context.Context, s Storage, scope string) ([]model.EmbedLink, error) {
	var links []model.EmbedLink
	if err := load(ctx, s, scope, KeyEmbeddedContent, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// SaveEmbeds replaces the embed links saved for scope.
func SaveEmbeds(ctx context.Context, s Storage, scope string, links []model.EmbedLink) error {
	return save(ctx, s, scope, KeyEmbeddedContent, links)
}

func load(ctx context.Context, s Storage, scope, key string, dst any) error {
	raw, ok, err := s.Get(ctx, scope, key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func save(ctx context.Context, s Storage, scope, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, scope, key, string(data))
}
