// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL driver
	_ "github.com/lib/pq"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/rules"
)

// SQLArchive stores rounds with database/sql and lib/pq.
type SQLArchive struct {
	db *sql.DB
}

func NewSQLArchive(host string, port int, user, password, dbname string) (*SQLArchive, error) {
	db, err := sql.Open("postgres", DSN(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLArchive{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS rounds (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(255) NOT NULL,
            round_number INTEGER NOT NULL,
            player_a VARCHAR(255) NOT NULL,
            player_b VARCHAR(255) NOT NULL,
            choice_a VARCHAR(16) NOT NULL,
            choice_b VARCHAR(16) NOT NULL,
            result_a VARCHAR(16) NOT NULL,
            result_b VARCHAR(16) NOT NULL,
            resolved_at TIMESTAMP NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (room_id, round_number)
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_rounds_player_a ON rounds(player_a);
        CREATE INDEX IF NOT EXISTS idx_rounds_player_b ON rounds(player_b);
        CREATE INDEX IF NOT EXISTS idx_rounds_resolved_at ON rounds(resolved_at);
    `)
	return err
}

func (a *SQLArchive) SaveRound(ctx context.Context, r *models.RoundRecord) error {
	query := `
        INSERT INTO rounds (room_id, round_number, player_a, player_b, choice_a, choice_b, result_a, result_b, resolved_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (room_id, round_number) DO NOTHING
    `
	_, err := a.db.ExecContext(ctx, query,
		r.RoomID, r.RoundNumber,
		r.Players[0], r.Players[1],
		string(r.Choices[0]), string(r.Choices[1]),
		string(r.Results[0]), string(r.Results[1]),
		r.ResolvedAt.UTC())
	if err != nil {
		return fmt.Errorf("save round %s/%d: %w", r.RoomID, r.RoundNumber, err)
	}
	return nil
}

func (a *SQLArchive) RecentRounds(ctx context.Context, username string, limit int) ([]models.RoundRecord, error) {
	query := `
        SELECT room_id, round_number, player_a, player_b, choice_a, choice_b, result_a, result_b, resolved_at
        FROM rounds
        WHERE player_a = $1 OR player_b = $1
        ORDER BY resolved_at DESC
        LIMIT $2
    `
	rows, err := a.db.QueryContext(ctx, query, username, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoundRecord
	for rows.Next() {
		rec, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *SQLArchive) Round(ctx context.Context, roomID string, number int) (*models.RoundRecord, error) {
	query := `
        SELECT room_id, round_number, player_a, player_b, choice_a, choice_b, result_a, result_b, resolved_at
        FROM rounds
        WHERE room_id = $1 AND round_number = $2
    `
	rec, err := scanRound(a.db.QueryRowContext(ctx, query, roomID, number))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(s scanner) (models.RoundRecord, error) {
	var (
		rec              models.RoundRecord
		choiceA, choiceB string
		resultA, resultB string
	)
	err := s.Scan(&rec.RoomID, &rec.RoundNumber, &rec.Players[0], &rec.Players[1],
		&choiceA, &choiceB, &resultA, &resultB, &rec.ResolvedAt)
	if err != nil {
		return rec, err
	}
	rec.Choices = [2]rules.Choice{rules.Choice(choiceA), rules.Choice(choiceB)}
	rec.Results = [2]rules.Result{rules.Result(resultA), rules.Result(resultB)}
	return rec, nil
}

func (a *SQLArchive) Close() error {
	return a.db.Close()
}
