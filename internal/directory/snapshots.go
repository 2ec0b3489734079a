package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/denislee/exptracker/internal/recovery"
	"github.com/denislee/exptracker/internal/scrape"
	"github.com/denislee/exptracker/internal/snapshot"
)

const snapshotColumns = `id, character_id, exp_date, level, experience, deaths, vocation, world,
	guild, guild_rank, achievement_points, loyalty_points, online, outfit_url, scraped_at, scrape_source`

func scanSnapshot(r rowScanner) (snapshot.Snapshot, error) {
	var (
		s                       snapshot.Snapshot
		date, scrapedAt, source string
	)
	err := r.Scan(&s.ID, &s.CharacterID, &date, &s.Level, &s.Experience, &s.Deaths, &s.Vocation, &s.World,
		&s.Guild, &s.GuildRank, &s.AchievementPoints, &s.LoyaltyPoints, &s.Online, &s.OutfitURL, &scrapedAt, &source)
	if err != nil {
		return s, err
	}
	s.Date, err = time.Parse("2006-01-02", date)
	if err != nil {
		return s, fmt.Errorf("bad exp_date %q on snapshot %d: %w", date, s.ID, err)
	}
	s.ScrapedAt = parseTime(scrapedAt)
	s.Source = snapshot.Source(source)
	return s, nil
}

// SnapshotsOn returns the stored rows of a character for the given dates,
// keyed by date.
func (s *Store) SnapshotsOn(ctx context.Context, characterID int64, dates []time.Time) (map[time.Time]snapshot.Snapshot, error) {
	out := make(map[time.Time]snapshot.Snapshot, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(dates)+1)
	args = append(args, characterID)
	for _, d := range dates {
		args = append(args, snapshot.DateKey(d))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(dates)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM character_snapshots WHERE character_id = ? AND exp_date IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, scrape.Wrap(scrape.KindStorage, err, "could not load existing snapshots")
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, scrape.Wrap(scrape.KindStorage, err, "could not read snapshot")
		}
		out[snap.Date] = snap
	}
	return out, rows.Err()
}

// Snapshots lists a character's rows newest first. limit <= 0 means all.
func (s *Store) Snapshots(ctx context.Context, characterID int64, limit int) ([]snapshot.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM character_snapshots WHERE character_id = ? ORDER BY exp_date DESC`
	args := []any{characterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query snapshots of character %d: %w", characterID, err)
	}
	defer rows.Close()

	var out []snapshot.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Commit writes one scrape's result: the snapshot plan, the character's
// current state and its recovery state, all in one transaction. On error
// nothing is written and the error is a storage error.
func (s *Store) Commit(ctx context.Context, c *Character, plan snapshot.Plan, st recovery.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scrape.Wrap(scrape.KindStorage, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO character_snapshots (character_id, exp_date, level, experience, deaths, vocation, world,
			guild, guild_rank, achievement_points, loyalty_points, online, outfit_url, scraped_at, scrape_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return scrape.Wrap(scrape.KindStorage, err, "failed to prepare snapshot insert")
	}
	defer insertStmt.Close()

	for _, r := range plan.Inserts {
		if _, err := insertStmt.ExecContext(ctx, c.ID, snapshot.DateKey(r.Date), r.Level, r.Experience, r.Deaths,
			r.Vocation, r.World, r.Guild, r.GuildRank, r.AchievementPoints, r.LoyaltyPoints, r.Online, r.OutfitURL,
			formatTime(r.ScrapedAt), string(r.Source)); err != nil {
			return scrape.Wrap(scrape.KindStorage, err, fmt.Sprintf("failed to insert snapshot for %s", snapshot.DateKey(r.Date)))
		}
	}

	for _, r := range plan.Updates {
		res, err := tx.ExecContext(ctx, `
			UPDATE character_snapshots SET
				level = ?, experience = ?, deaths = ?, vocation = ?, world = ?, guild = ?, guild_rank = ?,
				achievement_points = ?, loyalty_points = ?, online = ?, outfit_url = ?, scraped_at = ?, scrape_source = ?
			WHERE character_id = ? AND exp_date = ?`,
			r.Level, r.Experience, r.Deaths, r.Vocation, r.World, r.Guild, r.GuildRank,
			r.AchievementPoints, r.LoyaltyPoints, r.Online, r.OutfitURL, formatTime(r.ScrapedAt), string(r.Source),
			c.ID, snapshot.DateKey(r.Date))
		if err != nil {
			return scrape.Wrap(scrape.KindStorage, err, fmt.Sprintf("failed to update snapshot for %s", snapshot.DateKey(r.Date)))
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return scrape.Errorf(scrape.KindStorage, "snapshot for %s vanished before update", snapshot.DateKey(r.Date))
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE characters SET
			name = ?, level = ?, vocation = ?, sex = ?, guild = ?, guild_rank = ?, residence = ?, house = ?,
			online = ?, last_login = ?, achievement_points = ?, loyalty_points = ?, outfit_url = ?, profile_url = ?
		WHERE id = ?`,
		c.Name, c.Level, c.Vocation, c.Sex, c.Guild, c.GuildRank, c.Residence, c.House,
		c.Online, toNullTimePtr(c.LastLogin), c.AchievementPoints, c.LoyaltyPoints, c.OutfitURL, c.ProfileURL, c.ID)
	if err != nil {
		return scrape.Wrap(scrape.KindStorage, err, "failed to update character")
	}
	if err := saveState(ctx, tx, c.ID, st); err != nil {
		return scrape.Wrap(scrape.KindStorage, err, "failed to update recovery state")
	}

	if err := tx.Commit(); err != nil {
		return scrape.Wrap(scrape.KindStorage, err, "failed to commit transaction")
	}
	return nil
}

func toNullTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return toNullTime(*t)
}
