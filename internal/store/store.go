package store

import (
	"context"
	"errors"
	"time"

	"github.com/voyagen/tvguide/guide"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store archives guide listings. It is write-mostly: the guide client never
// reads from it.
type Store interface {
	// UpsertChannels inserts or updates channels by provider id.
	UpsertChannels(ctx context.Context, channels []guide.Channel) error
	// ReplaceSchedule replaces every archived program of the schedule's
	// channel and date; returns the number of programs written.
	ReplaceSchedule(ctx context.Context, s *guide.Schedule) (int, error)
	// RecordSyncRun stores the outcome of one sync.
	RecordSyncRun(ctx context.Context, run SyncRun) error
	// LastSyncRun returns the most recent run for date, or ErrNotFound.
	LastSyncRun(ctx context.Context, date time.Time) (*SyncRun, error)
}

// SyncRun summarises one archive pass over a broadcast date.
type SyncRun struct {
	Date       time.Time `json:"date"`
	Channels   int       `json:"channels"`
	Schedules  int       `json:"schedules"`
	Programs   int       `json:"programs"`
	Missing    int       `json:"missing"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
