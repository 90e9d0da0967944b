package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/voyagen/tvguide/guide"
)

// openTestStore connects to TVGUIDE_TEST_DATABASE_URL, migrating it first.
// The test is skipped when the variable is unset.
func openTestStore(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TVGUIDE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TVGUIDE_TEST_DATABASE_URL not set")
	}
	if _, err := RunMigrations(dsn, "file://../../migrations"); err != nil {
		t.Fatalf("migrations: %s", err)
	}
	pg, err := NewPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %s", err)
	}
	t.Cleanup(pg.Close)
	return pg
}

func TestPostgresArchive(t *testing.T) {
	pg := openTestStore(t)
	ctx := context.Background()

	var channels []guide.Channel
	err := json.Unmarshal([]byte(`[{"id":"test-1","title":"DR1","icon":"i","logo":"l","svgLogo":"s","sort":1}]`), &channels)
	if err != nil {
		t.Fatal(err)
	}
	if err := pg.UpsertChannels(ctx, channels); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	date := time.Date(2020, time.March, 29, 0, 0, 0, 0, time.UTC)
	run := SyncRun{Date: date, Channels: 1, Schedules: 0, StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()}
	if err := pg.RecordSyncRun(ctx, run); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	got, err := pg.LastSyncRun(ctx, date)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if got.Channels != 1 {
		t.Errorf("Expecting 1 channel, got %d", got.Channels)
	}

	if _, err := pg.LastSyncRun(ctx, date.AddDate(-30, 0, 0)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expecting ErrNotFound, got %v", err)
	}
}
