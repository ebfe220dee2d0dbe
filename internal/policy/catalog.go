// Package policy holds the pure decision functions of the enforcement path:
// the monitored-app catalog, the blackout scheduler and the punishment selector.
package policy

import (
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
)

// MonitoredApp describes one flaggable application.
type MonitoredApp struct {
	ID       string
	Name     string
	Category string

	// ProcessPatterns are desktop process names, matched case-insensitively as substrings.
	ProcessPatterns []string

	// Packages are mobile package identifiers reported by push observers.
	Packages []string
}

// Catalog holds known applications keyed by ID.
type Catalog struct {
	apps map[string]MonitoredApp
}

// NewCatalog creates a catalog with the default blacklist.
func NewCatalog() *Catalog {
	return NewCatalogWithApps(DefaultApps()...)
}

// NewCatalogWithApps creates a catalog with custom apps (for testing).
func NewCatalogWithApps(apps ...MonitoredApp) *Catalog {
	c := &Catalog{apps: make(map[string]MonitoredApp)}
	for _, a := range apps {
		c.Register(a)
	}
	return c
}

// Register adds or replaces an app.
func (c *Catalog) Register(a MonitoredApp) {
	c.apps[a.ID] = a
}

// Get returns an app by ID.
func (c *Catalog) Get(id string) (MonitoredApp, bool) {
	a, ok := c.apps[id]
	return a, ok
}

// GetAll returns all apps ordered by ID.
func (c *Catalog) GetAll() []MonitoredApp {
	result := make([]MonitoredApp, 0, len(c.apps))
	for _, a := range c.apps {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// List returns all app IDs in order.
func (c *Catalog) List() []string {
	ids := make([]string, 0, len(c.apps))
	for id := range c.apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Canonical maps a reported identifier (app ID, package or process name) to a catalog ID.
// Unknown identifiers are returned unchanged.
func (c *Catalog) Canonical(raw string) string {
	if _, ok := c.apps[raw]; ok {
		return raw
	}
	for _, a := range c.GetAll() {
		for _, pkg := range a.Packages {
			if strings.EqualFold(pkg, raw) {
				return a.ID
			}
		}
	}
	if id, ok := c.MatchProcess(raw); ok {
		return id
	}
	return raw
}

// MatchProcess returns the app whose process pattern matches name.
func (c *Catalog) MatchProcess(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, a := range c.GetAll() {
		for _, pattern := range a.ProcessPatterns {
			p := strings.ToLower(pattern)
			if lower == p || strings.Contains(lower, p) {
				return a.ID, true
			}
		}
	}
	return "", false
}

// MonitoredSet returns the app IDs under watch: the configured list, else the whole catalog.
func (c *Catalog) MonitoredSet(s config.Settings) map[string]bool {
	set := make(map[string]bool)
	if len(s.MonitoredApps) == 0 {
		for _, id := range c.List() {
			set[id] = true
		}
		return set
	}
	for _, raw := range s.MonitoredApps {
		set[c.Canonical(raw)] = true
	}
	return set
}

// DefaultApps is the factory blacklist: social media, video and games.
func DefaultApps() []MonitoredApp {
	return []MonitoredApp{
		{ID: "instagram", Name: "Instagram", Category: "social", ProcessPatterns: []string{"Instagram"}, Packages: []string{"com.instagram.android"}},
		{ID: "facebook", Name: "Facebook", Category: "social", ProcessPatterns: []string{"Facebook"}, Packages: []string{"com.facebook.katana"}},
		{ID: "twitter", Name: "Twitter", Category: "social", ProcessPatterns: []string{"Twitter"}, Packages: []string{"com.twitter.android"}},
		{ID: "snapchat", Name: "Snapchat", Category: "social", ProcessPatterns: []string{"Snapchat"}, Packages: []string{"com.snapchat.android"}},
		{ID: "tiktok", Name: "TikTok", Category: "social", ProcessPatterns: []string{"TikTok"}, Packages: []string{"com.tiktok.android", "com.zhiliaoapp.musically"}},
		{ID: "reddit", Name: "Reddit", Category: "social", ProcessPatterns: []string{"Reddit"}, Packages: []string{"com.reddit.frontpage"}},
		{ID: "discord", Name: "Discord", Category: "social", ProcessPatterns: []string{"Discord"}, Packages: []string{"com.discord"}},
		{ID: "youtube", Name: "YouTube", Category: "video", ProcessPatterns: []string{"YouTube"}, Packages: []string{"com.google.android.youtube"}},
		{ID: "netflix", Name: "Netflix", Category: "video", ProcessPatterns: []string{"Netflix"}, Packages: []string{"com.netflix.mediaclient"}},
		{ID: "twitch", Name: "Twitch", Category: "video", ProcessPatterns: []string{"Twitch"}, Packages: []string{"tv.twitch.android.app"}},
		{ID: "steam", Name: "Steam", Category: "gaming", ProcessPatterns: []string{"Steam", "steam_osx", "steamwebhelper", "Steam Helper"}},
		{ID: "dota2", Name: "Dota 2", Category: "gaming", ProcessPatterns: []string{"dota2", "dota"}},
		{ID: "roblox", Name: "Roblox", Category: "gaming", ProcessPatterns: []string{"Roblox", "RobloxPlayer"}, Packages: []string{"com.roblox.client"}},
	}
}
