package engine

import (
	"sort"
	"sync"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// Registry maps scraper types to the capability that executes them.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[scraping.ScraperType]scraping.Scraper
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[scraping.ScraperType]scraping.Scraper)}
}

// Register binds a capability to a scraper type, replacing any previous
// binding.
func (r *Registry) Register(t scraping.ScraperType, s scraping.Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[t] = s
}

// Get resolves the capability for a scraper type.
func (r *Registry) Get(t scraping.ScraperType) (scraping.Scraper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[t]
	return s, ok
}

// Types lists the registered scraper types in stable order.
func (r *Registry) Types() []scraping.ScraperType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]scraping.ScraperType, 0, len(r.scrapers))
	for t := range r.scrapers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
