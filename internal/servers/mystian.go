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

// Mystian serves a modern div-based layout: a definition list of
// attributes under section#character and a table#exp-history.
type Mystian struct {
	*adapter
}

func NewMystian(cfg config.Server, getter scrape.PageGetter) *Mystian {
	a := newAdapter("mystian", cfg, getter)
	a.buildURL = func(base, world, name string) string {
		return fmt.Sprintf("%s/character/%s/%s", base, url.PathEscape(world), url.PathEscape(name))
	}
	a.parser = &mystianParser{loc: a.loc, baseURL: cfg.BaseURL, logPrefix: a.logPrefix}
	return &Mystian{adapter: a}
}

type mystianParser struct {
	loc       *time.Location
	baseURL   string
	logPrefix string
}

func (p *mystianParser) notFound(doc *goquery.Document) bool {
	return strings.Contains(doc.Find("div.alert").Text(), "Character does not exist")
}

func (p *mystianParser) parse(doc *goquery.Document, fetchedAt time.Time) *scrape.Profile {
	section := doc.Find("section#character")
	if section.Length() == 0 {
		log.Printf("[W] %s Character section not found.", p.logPrefix)
		return &scrape.Profile{}
	}

	profile := &scrape.Profile{
		Name:   cleanText(section.Find("h1.char-name").First()),
		Online: section.Find("span.status-online").Length() > 0,
	}

	section.Find("dl.char-info dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.ToLower(strings.TrimSuffix(cleanText(dt), ":"))
		value := cleanText(dt.NextFiltered("dd"))
		switch label {
		case "level":
			profile.Level = scrape.ParseInt(value)
		case "vocation":
			profile.Vocation = value
		case "sex", "gender":
			profile.Sex = value
		case "world":
			profile.World = value
		case "residence", "city":
			profile.Residence = value
		case "house":
			profile.House = value
		case "guild":
			profile.Guild = value
		case "rank":
			profile.GuildRank = value
		case "achievements", "achievement points":
			profile.AchievementPoints = scrape.ParseInt(value)
		case "loyalty", "loyalty points":
			profile.LoyaltyPoints = scrape.ParseInt(value)
		case "last login":
			if t, ok := dt.NextFiltered("dd").Find("time").Attr("datetime"); ok {
				profile.LastLogin = parseISOTime(t)
			} else {
				profile.LastLogin = parseServerTime(value, p.loc)
			}
		}
	})

	if src, ok := section.Find("img.char-outfit").Attr("src"); ok {
		profile.OutfitURL = resolveURL(p.baseURL, src)
	}

	var rows []scrape.HistoryRow
	doc.Find("table#exp-history tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		rows = append(rows, scrape.HistoryRow{Label: cleanText(cells.Eq(0)), Value: cleanText(cells.Eq(1))})
	})
	profile.History = scrape.BuildHistory(rows, fetchedAt, p.loc, p.logPrefix)

	today := scrape.DateOf(fetchedAt, p.loc)
	doc.Find("ul.deaths li time").Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("datetime")
		if at := parseISOTime(raw); at != nil && scrape.DateOf(*at, p.loc).Equal(today) {
			profile.DeathsToday++
		}
	})
	return profile
}

func parseISOTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}
