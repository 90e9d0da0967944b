package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/tvguide/guide"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// UpsertChannels inserts or updates channels in one batch.
func (p *Postgres) UpsertChannels(ctx context.Context, channels []guide.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ch := range channels {
		batch.Queue(
			`INSERT INTO channels (id, title, icon, logo, svg_logo, sort, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 ON CONFLICT (id) DO UPDATE SET
			   title = EXCLUDED.title, icon = EXCLUDED.icon, logo = EXCLUDED.logo,
			   svg_logo = EXCLUDED.svg_logo, sort = EXCLUDED.sort, updated_at = NOW()`,
			ch.ID(), ch.Title(), ch.Icon(), ch.Logo(), ch.SVGLogo(), int64(ch.Sort()),
		)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("UpsertChannels: %w", err)
	}
	return nil
}

var programColumns = []string{
	"channel_id", "broadcast_date", "position", "program_id", "title", "categories",
	"available_as_vod", "rerun", "premiere", "live", "starts_at_ns", "ends_at_ns",
}

// ReplaceSchedule deletes the archived programs of the schedule's channel
// and date and copies the new ones in, inside one transaction.
func (p *Postgres) ReplaceSchedule(ctx context.Context, s *guide.Schedule) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ReplaceSchedule: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM programs WHERE channel_id = $1 AND broadcast_date = $2`,
		s.ChannelID(), s.Date(),
	); err != nil {
		return 0, fmt.Errorf("ReplaceSchedule: delete: %w", err)
	}

	programs := s.Programs()
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"programs"}, programColumns,
		pgx.CopyFromSlice(len(programs), func(i int) ([]any, error) {
			pr := programs[i]
			return []any{
				s.ChannelID(), s.Date(), i, pr.ID(), pr.Title(), pr.Categories(),
				pr.AvailableAsVOD(), pr.Rerun(), pr.Premiere(), pr.Live(),
				pr.StartsAt().UnixNano(), pr.EndsAt().UnixNano(),
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("ReplaceSchedule: copy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ReplaceSchedule: commit: %w", err)
	}
	return int(n), nil
}

// RecordSyncRun inserts a sync_runs row.
func (p *Postgres) RecordSyncRun(ctx context.Context, run SyncRun) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sync_runs (broadcast_date, channels, schedules, programs, missing, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.Date, run.Channels, run.Schedules, run.Programs, run.Missing, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("RecordSyncRun: %w", err)
	}
	return nil
}

// LastSyncRun returns the latest finished run for date.
func (p *Postgres) LastSyncRun(ctx context.Context, date time.Time) (*SyncRun, error) {
	var run SyncRun
	err := p.pool.QueryRow(ctx,
		`SELECT broadcast_date, channels, schedules, programs, missing, started_at, finished_at
		 FROM sync_runs WHERE broadcast_date = $1
		 ORDER BY finished_at DESC LIMIT 1`,
		date,
	).Scan(&run.Date, &run.Channels, &run.Schedules, &run.Programs, &run.Missing, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("LastSyncRun: %w", err)
	}
	return &run, nil
}
