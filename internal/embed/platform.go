// Package embed turns links from other platforms into embeddable links and
// looks up Instagram oEmbed data.
package embed

import (
	"net/url"
	"path"
	"strings"

	"creatorfeed/internal/model"
)

var platformHosts = []struct {
	platform model.Platform
	hosts    []string
}{
	{model.PlatformInstagram, []string{"instagram.com"}},
	{model.PlatformPinterest, []string{"pinterest.com", "pin.it"}},
	{model.PlatformTikTok, []string{"tiktok.com"}},
	{model.PlatformTwitter, []string{"twitter.com", "x.com"}},
	{model.PlatformYouTube, []string{"youtube.com", "youtu.be"}},
	{model.PlatformVimeo, []string{"vimeo.com"}},
}

// DetectPlatform returns the platform a link belongs to, matching the host
// and its subdomains case-insensitively.
func DetectPlatform(raw string) model.Platform {
	u, err := parse(raw)
	if err != nil {
		return model.PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range platformHosts {
		for _, h := range p.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p.platform
			}
		}
	}
	return model.PlatformUnknown
}

// Parse prepares a link for inline display.
func Parse(raw string) model.EmbedLink {
	raw = strings.TrimSpace(raw)
	link := model.EmbedLink{
		Platform:    DetectPlatform(raw),
		EmbedURL:    raw,
		OriginalURL: raw,
	}

	u, err := parse(raw)
	if err != nil {
		return link
	}

	switch link.Platform {
	case model.PlatformInstagram:
		p := u.Path
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		link.EmbedURL = u.Scheme + "://" + u.Host + p + "embed/"
	case model.PlatformYouTube:
		if id := youTubeID(u); id != "" {
			link.EmbedURL = "https://www.youtube.com/embed/" + id
		}
	case model.PlatformVimeo:
		if id := path.Base(strings.TrimSuffix(u.Path, "/")); id != "" && id != "/" && id != "." {
			link.EmbedURL = "https://player.vimeo.com/video/" + id
		}
	}
	return link
}

func youTubeID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host == "youtu.be" {
		return firstSegment(u.Path)
	}
	if v := u.Query().Get("v"); v != "" && strings.HasPrefix(u.Path, "/watch") {
		return v
	}
	for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			return firstSegment(rest)
		}
	}
	return ""
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

func parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return url.Parse(raw)
}
