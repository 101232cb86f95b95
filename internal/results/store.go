// Package results persists finished-match summaries to SQLite. Nothing on
// the hot path waits for it: rooms hand summaries over after their loop has
// already stopped.
package results

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"partyline/server/internal/room"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store writes match summaries to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the results database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}

	// WAL keeps the HTTP read surface from blocking behind match writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordMatch stores one finished match and its per-player rankings.
func (s *Store) RecordMatch(ctx context.Context, summary room.MatchSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin match insert: %w", err)
	}
	defer tx.Rollback()

	var startedAt any
	if !summary.StartedAt.IsZero() {
		startedAt = summary.StartedAt.UTC()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO matches (room_id, game_type, outcome, final_tick, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		summary.RoomID, string(summary.GameType), string(summary.Outcome),
		summary.FinalTick, startedAt, summary.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	matchID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("match id: %w", err)
	}

	for _, player := range summary.Players {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_players (match_id, player_id, name, score, rank)
			VALUES (?, ?, ?, ?, ?)`,
			matchID, player.PlayerID, player.Name, player.Score, player.Rank,
		); err != nil {
			return fmt.Errorf("insert match player: %w", err)
		}
	}

	return tx.Commit()
}

// MatchRow is one stored match for the HTTP read surface.
type MatchRow struct {
	ID         int64     `json:"id"`
	RoomID     string    `json:"roomId"`
	GameType   string    `json:"gameType"`
	Outcome    string    `json:"outcome"`
	FinalTick  uint64    `json:"finalTick"`
	FinishedAt time.Time `json:"finishedAt"`
	Winner     string    `json:"winner,omitempty"`
}

// RecentMatches lists the most recently finished matches, newest first.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]MatchRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.room_id, m.game_type, m.outcome, m.final_tick, m.finished_at,
		       COALESCE((SELECT p.name FROM match_players p WHERE p.match_id = m.id AND p.rank = 1 LIMIT 1), '')
		FROM matches m
		ORDER BY m.finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []MatchRow
	for rows.Next() {
		var row MatchRow
		if err := rows.Scan(&row.ID, &row.RoomID, &row.GameType, &row.Outcome, &row.FinalTick, &row.FinishedAt, &row.Winner); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, row)
	}
	return matches, rows.Err()
}

// NopRecorder satisfies the room's result sink when persistence is disabled.
type NopRecorder struct{}

// RecordMatch discards the summary.
func (NopRecorder) RecordMatch(context.Context, room.MatchSummary) error {
	return nil
}
