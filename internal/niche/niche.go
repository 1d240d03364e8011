// Package niche provides preset groups of creator channels.
package niche

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"creatorfeed/internal/model"
)

//go:embed niches.yaml
var presets []byte

// Niche is a named group of channels that can be followed at once.
type Niche struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Channels []model.Channel `yaml:"channels"`
}

var load = sync.OnceValues(func() ([]Niche, error) {
	return Parse(presets)
})

// Parse decodes a YAML list of niches.
func Parse(data []byte) ([]Niche, error) {
	var niches []Niche
	if err := yaml.Unmarshal(data, &niches); err != nil {
		return nil, fmt.Errorf("parse niches: %w", err)
	}
	for i, n := range niches {
		if n.ID == "" {
			return nil, fmt.Errorf("niche %d: missing id", i)
		}
		for _, c := range n.Channels {
			if c.ID == "" {
				return nil, fmt.Errorf("niche %s: channel %q without id", n.ID, c.Title)
			}
		}
	}
	return niches, nil
}

// All returns the built-in niches.
func All() ([]Niche, error) {
	return load()
}

// Get returns the built-in niche with the given id.
func Get(id string) (Niche, bool) {
	niches, err := load()
	if err != nil {
		return Niche{}, false
	}
	for _, n := range niches {
		if n.ID == id {
			return n, true
		}
	}
	return Niche{}, false
}

// AddTo appends the niche channels missing from roster and reports how many
// were added.
func AddTo(roster []model.Channel, n Niche) ([]model.Channel, int) {
	have := make(map[string]struct{}, len(roster))
	for _, c := range roster {
		have[c.ID] = struct{}{}
	}

	out := append([]model.Channel(nil), roster...)
	added := 0
	for _, c := range n.Channels {
		if _, ok := have[c.ID]; ok {
			continue
		}
		have[c.ID] = struct{}{}
		out = append(out, c)
		added++
	}
	return out, added
}
