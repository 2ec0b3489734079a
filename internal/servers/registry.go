package servers

import (
	"context"
	"log"
	"sort"

	"github.com/denislee/exptracker/internal/config"
	"github.com/denislee/exptracker/internal/scrape"
)

// constructors is the closed set of supported servers.
var constructors = map[string]func(config.Server, scrape.PageGetter) scrape.Adapter{
	"rubinot": func(c config.Server, g scrape.PageGetter) scrape.Adapter { return NewRubinot(c, g) },
	"mystian": func(c config.Server, g scrape.PageGetter) scrape.Adapter { return NewMystian(c, g) },
}

// Supported lists the server ids this build can scrape.
func Supported() []string {
	ids := make([]string, 0, len(constructors))
	for id := range constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registry is the adapter registry plus the browsers it had to start.
type Registry struct {
	*scrape.Registry
	browsers []*scrape.BrowserGetter
}

// NewRegistry builds one adapter per configured server that has a
// constructor. Servers in fetch_mode "browser" share ctx's lifetime.
func NewRegistry(ctx context.Context, servers map[string]config.Server) *Registry {
	r := &Registry{}
	var adapters []scrape.Adapter
	for _, id := range sortedKeys(servers) {
		build, ok := constructors[id]
		if !ok {
			log.Printf("[W] [Servers] No adapter for configured server '%s', ignoring.", id)
			continue
		}
		cfg := servers[id]
		var getter scrape.PageGetter
		if cfg.FetchMode == config.FetchBrowser {
			b := scrape.NewBrowserGetter(ctx, cfg.Timeout.D(), cfg.Headers["User-Agent"], cfg.WaitFor)
			r.browsers = append(r.browsers, b)
			getter = b
		}
		adapters = append(adapters, build(cfg, getter))
	}
	r.Registry = scrape.NewRegistry(adapters...)
	log.Printf("[I] [Servers] Registered %d server adapter(s): %v", len(adapters), r.IDs())
	return r
}

// Close stops any headless browsers.
func (r *Registry) Close() {
	for _, b := range r.browsers {
		b.Close()
	}
}

func sortedKeys(m map[string]config.Server) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
