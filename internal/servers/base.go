// Package servers implements one scrape.Adapter per supported game server.
// Adding a server means adding one adapter type and one entry in
// NewRegistry.
package servers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/denislee/exptracker/internal/config"
	"github.com/denislee/exptracker/internal/scrape"
)

// pageParser extracts a profile from one server's HTML layout.
type pageParser interface {
	notFound(doc *goquery.Document) bool
	parse(doc *goquery.Document, fetchedAt time.Time) *scrape.Profile
}

// adapter carries everything servers have in common; concrete adapters
// supply the URL scheme and the page parser.
type adapter struct {
	id        string
	cfg       config.Server
	loc       *time.Location
	minDelay  time.Duration
	fetcher   *scrape.Fetcher
	buildURL  func(base, world, name string) string
	parser    pageParser
	now       func() time.Time
	logPrefix string
}

func newAdapter(id string, cfg config.Server, getter scrape.PageGetter) *adapter {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Printf("[W] [Servers/%s] Unknown timezone %q, using UTC: %v", id, cfg.Timezone, err)
		}
	}
	if getter == nil {
		getter = scrape.NewHTTPGetter(cfg.Timeout.D(), cfg.Headers)
	}
	minDelay := cfg.MinDelay.D()
	if minDelay <= 0 {
		minDelay = 2 * time.Second
	}
	retryDelay := cfg.RetryDelay.D()
	if retryDelay <= 0 {
		retryDelay = scrape.DefaultRetryDelay
	}
	prefix := fmt.Sprintf("[Scraper/%s]", id)
	return &adapter{
		id:       id,
		cfg:      cfg,
		loc:      loc,
		minDelay: minDelay,
		fetcher: &scrape.Fetcher{
			Getter:     getter,
			Pacer:      scrape.NewRatePacer(minDelay),
			MaxRetries: cfg.Retries(),
			RetryDelay: retryDelay,
			LogPrefix:  prefix,
		},
		now:       time.Now,
		logPrefix: prefix,
	}
}

func (a *adapter) ID() string               { return a.id }
func (a *adapter) Worlds() []string         { return append([]string(nil), a.cfg.Worlds...) }
func (a *adapter) Location() *time.Location { return a.loc }

func (a *adapter) Pacing() scrape.Pacing {
	headers := make(map[string]string, len(a.cfg.Headers))
	for k, v := range a.cfg.Headers {
		headers[k] = v
	}
	return scrape.Pacing{MinDelay: a.minDelay, Headers: headers}
}

func (a *adapter) ProfileURL(world, name string) (string, error) {
	canonical, err := scrape.CanonicalWorld(a, world)
	if err != nil {
		return "", err
	}
	return a.buildURL(strings.TrimRight(a.cfg.BaseURL, "/"), canonical, strings.TrimSpace(name)), nil
}

func (a *adapter) FetchProfile(ctx context.Context, world, name string) (*scrape.Profile, error) {
	link, err := a.ProfileURL(world, name)
	if err != nil {
		return nil, err
	}

	page, err := a.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	fetchedAt := a.now()

	profile, err := a.parsePage(page, fetchedAt)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(profile.Name, strings.TrimSpace(name)) {
		log.Printf("[W] %s Requested '%s' but page shows '%s'.", a.logPrefix, name, profile.Name)
	}
	if profile.World == "" {
		profile.World, _ = scrape.CanonicalWorld(a, world)
	}
	profile.ProfileURL = link
	return profile, nil
}

// parsePage turns a fetched page into a profile, classifying not-found and
// unusable pages.
func (a *adapter) parsePage(page scrape.Page, fetchedAt time.Time) (*scrape.Profile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, scrape.Wrap(scrape.KindInsufficientData, err, "could not parse profile HTML")
	}
	if a.parser.notFound(doc) || page.Status == http.StatusNotFound {
		return nil, scrape.Errorf(scrape.KindNotFound, "character not found on %s", a.id)
	}

	profile := a.parser.parse(doc, fetchedAt)
	if profile.Name == "" {
		return nil, scrape.Errorf(scrape.KindInsufficientData, "profile page on %s has no character name", a.id)
	}
	profile.FetchedAt = fetchedAt
	profile.Today = scrape.DateOf(fetchedAt, a.loc)
	return profile, nil
}

var guildMembershipRegex = regexp.MustCompile(`^\s*(.+?)\s+of\s+the\s+(.+?)\s*$`)

// parseGuildMembership splits "Leader of the Red Rose" into rank and guild.
func parseGuildMembership(s string) (guild, rank string) {
	s = strings.Join(strings.Fields(s), " ")
	if m := guildMembershipRegex.FindStringSubmatch(s); len(m) == 3 {
		return m[2], m[1]
	}
	return s, ""
}

const serverTimeLayout = "Jan 02 2006, 15:04:05"

// parseServerTime reads "Jan 09 2025, 14:03:11 CET" in loc. The trailing
// zone abbreviation is ignored because abbreviations are ambiguous.
func parseServerTime(s string, loc *time.Location) *time.Time {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	if last := fields[len(fields)-1]; isLetters(last) {
		fields = fields[:len(fields)-1]
	}
	t, err := time.ParseInLocation(serverTimeLayout, strings.Join(fields, " "), loc)
	if err != nil {
		return nil
	}
	return &t
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return s != ""
}

func cleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
