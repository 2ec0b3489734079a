package servers

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/denislee/exptracker/internal/config"
	"github.com/denislee/exptracker/internal/scrape"
)

const enableRubinotDebugLogs = false

// Rubinot serves classic table-layout character pages:
// label/value rows inside "TableContainer" boxes titled
// "Character Information", "Experience History" and "Character Deaths".
type Rubinot struct {
	*adapter
}

func NewRubinot(cfg config.Server, getter scrape.PageGetter) *Rubinot {
	a := newAdapter("rubinot", cfg, getter)
	a.buildURL = func(base, world, name string) string {
		q := url.Values{}
		q.Set("subtopic", "characters")
		q.Set("name", name)
		q.Set("world", world)
		return fmt.Sprintf("%s/?%s", base, q.Encode())
	}
	a.parser = &rubinotParser{loc: a.loc, baseURL: cfg.BaseURL, logPrefix: a.logPrefix}
	return &Rubinot{adapter: a}
}

type rubinotParser struct {
	loc       *time.Location
	baseURL   string
	logPrefix string
}

func (p *rubinotParser) notFound(doc *goquery.Document) bool {
	found := false
	doc.Find("div.TableContainer, div.Text, td, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "Could not find character") {
			found = true
		}
		return !found
	})
	return found
}

// boxes maps each TableContainer title to its table.
func (p *rubinotParser) boxes(doc *goquery.Document) map[string]*goquery.Selection {
	out := make(map[string]*goquery.Selection)
	doc.Find("div.TableContainer").Each(func(_ int, box *goquery.Selection) {
		title := strings.ToLower(cleanText(box.Find("div.Text").First()))
		if title == "" {
			return
		}
		if _, seen := out[title]; !seen {
			out[title] = box.Find("table").First()
		}
	})
	return out
}

func (p *rubinotParser) parse(doc *goquery.Document, fetchedAt time.Time) *scrape.Profile {
	profile := &scrape.Profile{}
	boxes := p.boxes(doc)

	if info, ok := boxes["character information"]; ok {
		info.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			label := strings.TrimSuffix(cleanText(cells.Eq(0)), ":")
			value := cleanText(cells.Eq(1))
			p.applyField(profile, label, value)
		})
	} else {
		log.Printf("[W] %s Character Information box not found.", p.logPrefix)
	}

	if outfit, ok := doc.Find("img.outfit").Attr("src"); ok {
		profile.OutfitURL = resolveURL(p.baseURL, outfit)
	}

	if history, ok := boxes["experience history"]; ok {
		var rows []scrape.HistoryRow
		history.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			label := cleanText(cells.Eq(0))
			if strings.EqualFold(label, "date") {
				return
			}
			rows = append(rows, scrape.HistoryRow{Label: label, Value: cleanText(cells.Eq(1))})
		})
		profile.History = scrape.BuildHistory(rows, fetchedAt, p.loc, p.logPrefix)
	}

	if deaths, ok := boxes["character deaths"]; ok {
		today := scrape.DateOf(fetchedAt, p.loc)
		deaths.Find("tr").Each(func(_ int, row *goquery.Selection) {
			at := parseServerTime(cleanText(row.Find("td").First()), p.loc)
			if at != nil && scrape.DateOf(*at, p.loc).Equal(today) {
				profile.DeathsToday++
			}
		})
	}

	if enableRubinotDebugLogs {
		log.Printf("[D] %s Parsed '%s' level %d with %d history rows.", p.logPrefix, profile.Name, profile.Level, len(profile.History))
	}
	return profile
}

func (p *rubinotParser) applyField(profile *scrape.Profile, label, value string) {
	switch strings.ToLower(label) {
	case "name":
		profile.Name = strings.TrimSpace(strings.TrimSuffix(value, "(traded)"))
	case "sex":
		profile.Sex = value
	case "vocation":
		profile.Vocation = value
	case "level":
		profile.Level = scrape.ParseInt(value)
	case "achievement points":
		profile.AchievementPoints = scrape.ParseInt(value)
	case "loyalty points":
		profile.LoyaltyPoints = scrape.ParseInt(value)
	case "world":
		profile.World = value
	case "residence":
		profile.Residence = value
	case "house":
		if i := strings.Index(value, " is paid until"); i > 0 {
			value = value[:i]
		}
		profile.House = value
	case "guild membership", "guild":
		profile.Guild, profile.GuildRank = parseGuildMembership(value)
	case "last login":
		profile.LastLogin = parseServerTime(value, p.loc)
	case "status", "online status":
		profile.Online = strings.EqualFold(value, "online")
	}
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
