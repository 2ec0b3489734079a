package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/denislee/exptracker/internal/recovery"
	"github.com/denislee/exptracker/internal/scrape"
)

// ErrNotFound is returned when no character matches a lookup.
var ErrNotFound = errors.New("character not found")

// Character is one tracked character and its denormalized current state.
type Character struct {
	ID                int64
	Server            string
	World             string
	Name              string
	Level             int
	Vocation          string
	Sex               string
	Guild             string
	GuildRank         string
	Residence         string
	House             string
	Online            bool
	LastLogin         *time.Time
	AchievementPoints int
	LoyaltyPoints     int
	OutfitURL         string
	ProfileURL        string
	Recovery          recovery.State
}

// ApplyProfile copies the scraped current state onto c. The stored name
// only follows the page when they differ by case.
func (c *Character) ApplyProfile(p *scrape.Profile) {
	if c.Name == "" || strings.EqualFold(c.Name, p.Name) {
		c.Name = p.Name
	}
	c.Level = p.Level
	c.Vocation = p.Vocation
	c.Sex = p.Sex
	c.Guild = p.Guild
	c.GuildRank = p.GuildRank
	c.Residence = p.Residence
	c.House = p.House
	c.Online = p.Online
	c.LastLogin = p.LastLogin
	c.AchievementPoints = p.AchievementPoints
	c.LoyaltyPoints = p.LoyaltyPoints
	c.OutfitURL = p.OutfitURL
	c.ProfileURL = p.ProfileURL
}

const characterColumns = `id, server, world, name, level, vocation, sex, guild, guild_rank,
	residence, house, online, last_login, achievement_points, loyalty_points, outfit_url,
	profile_url, last_scrape_at, last_snapshot_at, error_count, last_error, last_error_kind,
	next_scrape_at, recovery_active, suspend_reason, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(r rowScanner) (*Character, error) {
	var (
		c                                           Character
		lastLogin, lastScrape, lastSnapshot, nextAt sql.NullString
		createdAt, lastErrorKind, reason            string
	)
	err := r.Scan(&c.ID, &c.Server, &c.World, &c.Name, &c.Level, &c.Vocation, &c.Sex, &c.Guild, &c.GuildRank,
		&c.Residence, &c.House, &c.Online, &lastLogin, &c.AchievementPoints, &c.LoyaltyPoints, &c.OutfitURL,
		&c.ProfileURL, &lastScrape, &lastSnapshot, &c.Recovery.ErrorCount, &c.Recovery.LastError, &lastErrorKind,
		&nextAt, &c.Recovery.Active, &reason, &createdAt)
	if err != nil {
		return nil, err
	}
	if t := fromNullTime(lastLogin); !t.IsZero() {
		c.LastLogin = &t
	}
	c.Recovery.LastScrapeAt = fromNullTime(lastScrape)
	c.Recovery.LastSnapshotAt = fromNullTime(lastSnapshot)
	c.Recovery.NextScrapeAt = fromNullTime(nextAt)
	c.Recovery.CreatedAt = parseTime(createdAt)
	c.Recovery.LastErrorKind = scrape.ErrorKind(lastErrorKind)
	c.Recovery.Reason = recovery.Reason(reason)
	return &c, nil
}

// Register adds a character in its initial recovery state. Registering an
// existing character returns it unchanged with created=false.
func (s *Store) Register(ctx context.Context, server, world, name string, now time.Time) (c *Character, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, errors.New("character name is required")
	}
	st := recovery.Initial(now)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO characters (server, world, name, next_scrape_at, recovery_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(server, world, name) DO NOTHING`,
		server, world, name, formatTime(st.NextScrapeAt), st.Active, formatTime(st.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("could not register %s/%s/%s: %w", server, world, name, err)
	}
	n, _ := res.RowsAffected()
	c, err = s.Lookup(ctx, server, world, name)
	return c, n > 0, err
}

// Lookup finds a character by identity; the name is matched
// case-insensitively.
func (s *Store) Lookup(ctx context.Context, server, world, name string) (*Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE server = ? AND world = ? AND name = ? COLLATE NOCASE`,
		server, world, strings.TrimSpace(name))
	c, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) Get(ctx context.Context, id int64) (*Character, error) {
	c, err := scanCharacter(s.db.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Server     string
	ActiveOnly bool
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Character, error) {
	var (
		where []string
		args  []any
	)
	if f.Server != "" {
		where = append(where, "server = ?")
		args = append(args, f.Server)
	}
	if f.ActiveOnly {
		where = append(where, "recovery_active = 1")
	}
	query := `SELECT ` + characterColumns + ` FROM characters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY server, world, name"
	return s.queryCharacters(ctx, query, args...)
}

// Due returns every active character whose next_scrape_at is not after
// now, grouped by server.
func (s *Store) Due(ctx context.Context, now time.Time) (map[string][]*Character, error) {
	chars, err := s.queryCharacters(ctx, `
		SELECT `+characterColumns+` FROM characters
		WHERE recovery_active = 1 AND (next_scrape_at IS NULL OR next_scrape_at <= ?)
		ORDER BY server, next_scrape_at, id`, formatTime(now))
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]*Character)
	for _, c := range chars {
		grouped[c.Server] = append(grouped[c.Server], c)
	}
	return grouped, nil
}

func (s *Store) queryCharacters(ctx context.Context, query string, args ...any) ([]*Character, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query characters: %w", err)
	}
	defer rows.Close()

	var out []*Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveState persists only the recovery fields of a character.
func (s *Store) SaveState(ctx context.Context, id int64, st recovery.State) error {
	return saveState(ctx, s.db, id, st)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveState(ctx context.Context, db execer, id int64, st recovery.State) error {
	res, err := db.ExecContext(ctx, `
		UPDATE characters SET
			last_scrape_at = ?, last_snapshot_at = ?, error_count = ?, last_error = ?,
			last_error_kind = ?, next_scrape_at = ?, recovery_active = ?, suspend_reason = ?
		WHERE id = ?`,
		toNullTime(st.LastScrapeAt), toNullTime(st.LastSnapshotAt), st.ErrorCount, st.LastError,
		string(st.LastErrorKind), toNullTime(st.NextScrapeAt), st.Active, string(st.Reason), id)
	if err != nil {
		return fmt.Errorf("could not save recovery state of character %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LastScrapeTime returns the most recent successful scrape across all
// characters, formatted for display, or "Never".
func (s *Store) LastScrapeTime(ctx context.Context) string {
	return s.lastUpdateTime(ctx, "last_scrape_at", "characters")
}

// LastRunTime returns when the latest scheduled run finished, or "Never".
func (s *Store) LastRunTime(ctx context.Context) string {
	return s.lastUpdateTime(ctx, "finished_at", "scrape_runs")
}

func (s *Store) lastUpdateTime(ctx context.Context, column, table string) string {
	var last sql.NullString
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", column, table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&last); err != nil {
		return "Never"
	}
	if t := fromNullTime(last); !t.IsZero() {
		return t.Format("2006-01-02 15:04:05")
	}
	return "Never"
}

// Fixed-width so stored timestamps sort and compare as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toNullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func fromNullTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return parseTime(ns.String)
}
