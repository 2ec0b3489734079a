package servers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denislee/exptracker/internal/config"
	"github.com/denislee/exptracker/internal/scrape"
)

const rubinotGatesPage = `<html><body>
<div class="TableContainer">
  <div class="CaptionContainer"><div class="Text">Character Information</div></div>
  <table>
    <tr><td>Name:</td><td>Gates</td></tr>
    <tr><td>Sex:</td><td>male</td></tr>
    <tr><td>Vocation:</td><td>Elite Knight</td></tr>
    <tr><td>Level:</td><td>542</td></tr>
    <tr><td>Achievement Points:</td><td>1,024</td></tr>
    <tr><td>World:</td><td>Elysian</td></tr>
    <tr><td>Residence:</td><td>Thais</td></tr>
    <tr><td>House:</td><td>Lighthouse (Thais) is paid until Feb 01 2025</td></tr>
    <tr><td>Guild&nbsp;Membership:</td><td>Leader of the Red Rose</td></tr>
    <tr><td>Last Login:</td><td>Jan&nbsp;09&nbsp;2025, 14:03:11&nbsp;BRT</td></tr>
    <tr><td>Loyalty Points:</td><td>360</td></tr>
    <tr><td>Status:</td><td>Online</td></tr>
  </table>
  <img class="outfit" src="/images/outfits/131.gif">
</div>
<div class="TableContainer">
  <div class="CaptionContainer"><div class="Text">Experience History</div></div>
  <table>
    <tr><td>Date</td><td>Experience</td></tr>
    <tr><td>Today</td><td>1,500,000</td></tr>
    <tr><td>Yesterday</td><td>800,000</td></tr>
    <tr><td>08/01/2025</td><td>1,200,000</td></tr>
    <tr><td>07/01/2025</td><td>0</td></tr>
    <tr><td>06/01/2025</td><td>2,100,000</td></tr>
    <tr><td>Last week</td><td>9</td></tr>
  </table>
</div>
<div class="TableContainer">
  <div class="CaptionContainer"><div class="Text">Character Deaths</div></div>
  <table>
    <tr><td>Jan&nbsp;09&nbsp;2025, 10:12:00&nbsp;BRT</td><td>Died at Level 541 by a dragon lord.</td></tr>
    <tr><td>Jan&nbsp;07&nbsp;2025, 22:40:00&nbsp;BRT</td><td>Died at Level 538 by a hydra.</td></tr>
  </table>
</div>
</body></html>`

const rubinotMissingPage = `<html><body>
<div class="TableContainer"><table><tr><td>Could not find character</td></tr></table></div>
</body></html>`

const mystianPage = `<html><body>
<section id="character">
  <h1 class="char-name">Lady Mira</h1>
  <span class="status-online">online</span>
  <img class="char-outfit" src="/outfits/mira.png">
  <dl class="char-info">
    <dt>Level</dt><dd>310</dd>
    <dt>Vocation</dt><dd>Master Sorcerer</dd>
    <dt>Gender</dt><dd>female</dd>
    <dt>World</dt><dd>Aurea</dd>
    <dt>City</dt><dd>Edron</dd>
    <dt>Guild</dt><dd>Night Owls</dd>
    <dt>Rank</dt><dd>Vice</dd>
    <dt>Achievements</dt><dd>512</dd>
    <dt>Loyalty</dt><dd>90</dd>
    <dt>Last Login</dt><dd><time datetime="2025-01-09T09:30:00+01:00">today</time></dd>
  </dl>
</section>
<table id="exp-history">
  <thead><tr><th>Day</th><th>Gained</th></tr></thead>
  <tbody>
    <tr><td>Today</td><td>+1,500,000</td></tr>
    <tr><td>Yesterday</td><td>-2.000</td></tr>
    <tr><td>07/01/2025</td><td></td></tr>
  </tbody>
</table>
<ul class="deaths">
  <li><time datetime="2025-01-09T08:00:00+01:00"></time> killed by a demon</li>
  <li><time datetime="2025-01-08T23:30:00+01:00"></time> killed by a dragon</li>
</ul>
</body></html>`

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testServer(baseURL string, worlds []string, tz string) config.Server {
	retries := 0
	return config.Server{
		BaseURL:    baseURL,
		Worlds:     worlds,
		MaxRetries: &retries,
		MinDelay:   config.Duration(time.Millisecond),
		RetryDelay: config.Duration(time.Millisecond),
		Timezone:   tz,
	}
}

func serve(t *testing.T, status int, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRubinotProfileURL(t *testing.T) {
	r := NewRubinot(config.DefaultServers()["rubinot"], nil)

	link, err := r.ProfileURL("elysian", "Gates Jr")
	require.NoError(t, err)
	require.Equal(t, "https://rubinot.com.br/?name=Gates+Jr&subtopic=characters&world=Elysian", link)

	_, err = r.ProfileURL("Atlantis", "Gates")
	require.Equal(t, scrape.KindInvalidWorld, scrape.KindOf(err))
}

func TestRubinotParsesGatesProfile(t *testing.T) {
	ts := serve(t, http.StatusOK, rubinotGatesPage, func(r *http.Request) {
		assert.Equal(t, "Gates", r.URL.Query().Get("name"))
		assert.Equal(t, "Elysian", r.URL.Query().Get("world"))
	})
	sp, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	r := NewRubinot(testServer(ts.URL, []string{"Elysian"}, "America/Sao_Paulo"), nil)
	fetchedAt := time.Date(2025, 1, 9, 15, 0, 0, 0, sp)
	r.now = func() time.Time { return fetchedAt }

	p, err := r.FetchProfile(context.Background(), "elysian", "Gates")
	require.NoError(t, err)

	require.Equal(t, "Gates", p.Name)
	require.Equal(t, 542, p.Level)
	require.Equal(t, "Elite Knight", p.Vocation)
	require.Equal(t, "male", p.Sex)
	require.Equal(t, "Elysian", p.World)
	require.Equal(t, "Thais", p.Residence)
	require.Equal(t, "Lighthouse (Thais)", p.House)
	require.Equal(t, "Red Rose", p.Guild)
	require.Equal(t, "Leader", p.GuildRank)
	require.Equal(t, 1024, p.AchievementPoints)
	require.Equal(t, 360, p.LoyaltyPoints)
	require.True(t, p.Online)
	require.NotNil(t, p.LastLogin)
	require.True(t, p.LastLogin.Equal(time.Date(2025, 1, 9, 14, 3, 11, 0, sp)))
	require.Equal(t, 1, p.DeathsToday)
	require.Equal(t, ts.URL+"/images/outfits/131.gif", p.OutfitURL)
	require.Contains(t, p.ProfileURL, ts.URL)
	require.Equal(t, fetchedAt, p.FetchedAt)
	require.Equal(t, day(2025, 1, 9), p.Today)

	require.Equal(t, []scrape.HistoryEntry{
		{Date: day(2025, 1, 9), Experience: 1500000},
		{Date: day(2025, 1, 8), Experience: 800000},
		{Date: day(2025, 1, 8), Experience: 1200000},
		{Date: day(2025, 1, 7), Experience: 0},
		{Date: day(2025, 1, 6), Experience: 2100000},
	}, p.History)
}

func TestRubinotNotFound(t *testing.T) {
	ts := serve(t, http.StatusOK, rubinotMissingPage, nil)
	r := NewRubinot(testServer(ts.URL, []string{"Elysian"}, ""), nil)

	_, err := r.FetchProfile(context.Background(), "Elysian", "Nobody")
	require.Equal(t, scrape.KindNotFound, scrape.KindOf(err))
}

func TestNotFoundStatusWithoutSignature(t *testing.T) {
	ts := serve(t, http.StatusNotFound, "<html><body>gone</body></html>", nil)
	r := NewRubinot(testServer(ts.URL, []string{"Elysian"}, ""), nil)

	_, err := r.FetchProfile(context.Background(), "Elysian", "Nobody")
	require.Equal(t, scrape.KindNotFound, scrape.KindOf(err))
}

func TestMissingNameIsInsufficientData(t *testing.T) {
	ts := serve(t, http.StatusOK, "<html><body><p>maintenance</p></body></html>", nil)
	r := NewRubinot(testServer(ts.URL, []string{"Elysian"}, ""), nil)

	_, err := r.FetchProfile(context.Background(), "Elysian", "Gates")
	require.Equal(t, scrape.KindInsufficientData, scrape.KindOf(err))
}

func TestServerErrorIsNetworkError(t *testing.T) {
	ts := serve(t, http.StatusBadGateway, "", nil)
	r := NewRubinot(testServer(ts.URL, []string{"Elysian"}, ""), nil)

	_, err := r.FetchProfile(context.Background(), "Elysian", "Gates")
	require.Equal(t, scrape.KindNetwork, scrape.KindOf(err))
}

func TestMystianParsesProfile(t *testing.T) {
	ts := serve(t, http.StatusOK, mystianPage, func(r *http.Request) {
		assert.Equal(t, "/character/Aurea/Lady%20Mira", r.URL.EscapedPath())
	})
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	m := NewMystian(testServer(ts.URL, []string{"Aurea"}, "Europe/Berlin"), nil)
	m.now = func() time.Time { return time.Date(2025, 1, 9, 12, 0, 0, 0, berlin) }

	p, err := m.FetchProfile(context.Background(), "aurea", "Lady Mira")
	require.NoError(t, err)

	require.Equal(t, "Lady Mira", p.Name)
	require.Equal(t, 310, p.Level)
	require.Equal(t, "Master Sorcerer", p.Vocation)
	require.Equal(t, "female", p.Sex)
	require.Equal(t, "Edron", p.Residence)
	require.Equal(t, "Night Owls", p.Guild)
	require.Equal(t, "Vice", p.GuildRank)
	require.Equal(t, 512, p.AchievementPoints)
	require.Equal(t, 90, p.LoyaltyPoints)
	require.True(t, p.Online)
	require.NotNil(t, p.LastLogin)
	require.Equal(t, 1, p.DeathsToday)
	require.Equal(t, ts.URL+"/outfits/mira.png", p.OutfitURL)
	require.Equal(t, []scrape.HistoryEntry{
		{Date: day(2025, 1, 9), Experience: 1500000},
		{Date: day(2025, 1, 8), Experience: -2000},
		{Date: day(2025, 1, 7), Experience: 0},
	}, p.History)
}

func TestMystianNotFound(t *testing.T) {
	ts := serve(t, http.StatusOK, `<div class="alert">Character does not exist.</div>`, nil)
	m := NewMystian(testServer(ts.URL, []string{"Aurea"}, ""), nil)

	_, err := m.FetchProfile(context.Background(), "Aurea", "Ghost")
	require.Equal(t, scrape.KindNotFound, scrape.KindOf(err))
}

func TestNewRegistry(t *testing.T) {
	servers := config.DefaultServers()
	servers["unknown"] = config.Server{BaseURL: "https://example.org", Worlds: []string{"X"}}

	r := NewRegistry(context.Background(), servers)
	defer r.Close()

	require.Equal(t, []string{"mystian", "rubinot"}, r.IDs())
	require.Equal(t, Supported(), r.IDs())

	a, world, err := r.Resolve("RUBINOT", "elysian")
	require.NoError(t, err)
	require.Equal(t, "rubinot", a.ID())
	require.Equal(t, "Elysian", world)

	pacing, err := r.Pacing("mystian")
	require.NoError(t, err)
	require.Equal(t, 2500*time.Millisecond, pacing.MinDelay)

	_, err = r.Get("unknown")
	require.Equal(t, scrape.KindInvalidServer, scrape.KindOf(err))
}

func TestParseGuildMembership(t *testing.T) {
	guild, rank := parseGuildMembership("Member of the Knights of the Round")
	require.Equal(t, "Knights of the Round", guild)
	require.Equal(t, "Member", rank)

	guild, rank = parseGuildMembership("Solo Guild")
	require.Equal(t, "Solo Guild", guild)
	require.Empty(t, rank)
}
