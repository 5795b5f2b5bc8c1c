// Package sqlite persists room metadata in a single-file SQLite database.
// Live game state is deliberately not stored; a process restart forfeits
// in-flight matches but keeps the room ledger.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dln/unorooms/internal/room"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	host_id        TEXT NOT NULL,
	mode           TEXT NOT NULL DEFAULT '',
	max_players    INTEGER NOT NULL,
	seats          TEXT NOT NULL,
	settings       TEXT NOT NULL,
	finished_order TEXT NOT NULL DEFAULT '[]',
	winner         TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms (status);
`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides SQLite-backed persistence for room records.
type Store struct {
	sqlDB *sql.DB
}

var _ room.Store = (*Store)(nil)

// Open opens a SQLite store at the provided path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRoom upserts a room record.
func (s *Store) SaveRoom(ctx context.Context, rec *room.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("room id is required")
	}

	seatsJSON, err := json.Marshal(rec.Seats)
	if err != nil {
		return fmt.Errorf("marshal seats: %w", err)
	}
	settingsJSON, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	order := rec.FinishedOrder
	if order == nil {
		order = []string{}
	}
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal finished order: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO rooms (
	id, status, host_id, mode, max_players, seats, settings, finished_order, winner, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	host_id = excluded.host_id,
	mode = excluded.mode,
	max_players = excluded.max_players,
	seats = excluded.seats,
	settings = excluded.settings,
	finished_order = excluded.finished_order,
	winner = excluded.winner,
	updated_at = excluded.updated_at
`,
		rec.ID,
		string(rec.Status),
		rec.HostID,
		rec.Mode,
		rec.MaxPlayers,
		string(seatsJSON),
		string(settingsJSON),
		string(orderJSON),
		rec.Winner,
		toMillis(rec.CreatedAt),
		toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

// GetRoom loads a room record by id.
func (s *Store) GetRoom(ctx context.Context, id string) (*room.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, status, host_id, mode, max_players, seats, settings, finished_order, winner, created_at, updated_at
FROM rooms WHERE id = ?
`, id)
	rec, err := scanRoomRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, room.ErrRoomNotFound
	}
	return rec, err
}

// DeleteRoom removes a room record. Deleting an unknown id is not an
// error.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// ListRooms returns records matching the given status, or every record
// when status is empty. Results are newest-first.
func (s *Store) ListRooms(ctx context.Context, status room.Status) ([]*room.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `
SELECT id, status, host_id, mode, max_players, seats, settings, finished_order, winner, created_at, updated_at
FROM rooms`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var records []*room.Record
	for rows.Next() {
		rec, err := scanRoomRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return records, nil
}

func scanRoomRow(scan func(dest ...any) error) (*room.Record, error) {
	var (
		rec          room.Record
		status       string
		seatsRaw     string
		settingsRaw  string
		orderRaw     string
		createdAt    int64
		updatedAt    int64
	)
	if err := scan(
		&rec.ID,
		&status,
		&rec.HostID,
		&rec.Mode,
		&rec.MaxPlayers,
		&seatsRaw,
		&settingsRaw,
		&orderRaw,
		&rec.Winner,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = room.Status(status)
	if err := json.Unmarshal([]byte(seatsRaw), &rec.Seats); err != nil {
		return nil, fmt.Errorf("unmarshal seats: %w", err)
	}
	if err := json.Unmarshal([]byte(settingsRaw), &rec.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := json.Unmarshal([]byte(orderRaw), &rec.FinishedOrder); err != nil {
		return nil, fmt.Errorf("unmarshal finished order: %w", err)
	}
	if len(rec.FinishedOrder) == 0 {
		rec.FinishedOrder = nil
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}
