package sources

import (
	"context"
	"sort"
	"sync"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/models"
)

// Source is the uniform search capability of an external platform. Search
// returns an empty slice, not an error, when nothing matches.
type Source interface {
	Name() string
	IsEnabled() bool
	Search(ctx context.Context, keywords []string, filters models.Filters) ([]models.Mention, error)
}

// RetryClassifier is implemented by sources that know which of their errors
// are worth retrying
type RetryClassifier interface {
	IsRetryable(err error) bool
}

// Registry maps platform names to sources
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry holding the given sources
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the source for its platform
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns the source registered for platform
func (r *Registry) Get(platform string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[platform]
	return s, ok
}

// Names returns every registered platform, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns the configured sources, sorted by name
func (r *Registry) Enabled() []Source {
	var enabled []Source
	for _, name := range r.Names() {
		if s, ok := r.Get(name); ok && s.IsEnabled() {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// NewRegistryFromConfig registers every supported platform. Sources without
// credentials stay registered but disabled.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	return NewRegistry(
		NewFacebookSource(cfg.FacebookAppID, cfg.FacebookAppSecret),
		NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent),
		NewYouTubeSource(cfg.YouTubeAPIKey),
		NewHackerNewsSource(),
		NewNewsAPISource(cfg.NewsAPIKey),
		NewMastodonSource(cfg.MastodonInstanceURL),
		NewTelegramSource(cfg.TelegramBotToken),
		NewDiscordSource(cfg.DiscordBotToken, cfg.DiscordChannelIDs),
		NewStackOverflowSource(),
	)
}
