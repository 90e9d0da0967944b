package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voyagen/tvguide/guide"
	"github.com/voyagen/tvguide/internal/store"
)

// Source is the part of *guide.Client used to build the archive.
type Source interface {
	GetChannels(ctx context.Context) ([]guide.Channel, error)
	GetSchedules(ctx context.Context, chs []guide.ChannelRef, date time.Time) (map[string]*guide.Schedule, error)
}

// Result reports what one Sync archived.
type Result struct {
	Date      time.Time
	Channels  int // channels archived
	Schedules int // schedules written
	Programs  int // programs written
	Missing   int // requested channels without programs for the date
}

// ParseDate parses a YYYY-MM-DD broadcast date in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(guide.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// Sync fetches the channel list and the schedules of date, and archives
// them in st. When ids is empty every channel is synced; otherwise only the
// listed channels, and an id unknown to the provider is an error.
// Schedules are fetched in a single batch request.
func Sync(ctx context.Context, src Source, st store.Store, date time.Time, ids []string) (Result, error) {
	started := time.Now().UTC()
	res := Result{Date: date}
	tag := date.Format(guide.DateLayout)

	channels, err := src.GetChannels(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch channels: %w", err)
	}
	channels, err = selectChannels(channels, ids)
	if err != nil {
		return res, err
	}

	if err := st.UpsertChannels(ctx, channels); err != nil {
		return res, fmt.Errorf("UpsertChannels: %w", err)
	}
	res.Channels = len(channels)

	schedules, err := src.GetSchedules(ctx, guide.Refs(channels), date)
	if err != nil {
		return res, fmt.Errorf("fetch schedules: %w", err)
	}

	// Walk channels rather than the map so writes follow provider order.
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("sync cancelled: %w", err)
		}
		s, ok := schedules[ch.ID()]
		if !ok {
			res.Missing++
			continue
		}
		n, err := st.ReplaceSchedule(ctx, s)
		if err != nil {
			return res, fmt.Errorf("ReplaceSchedule %s: %w", ch.ID(), err)
		}
		res.Schedules++
		res.Programs += n
	}
	log.Printf("sync[%s]: %d channels, %d schedules, %d programs, %d without data",
		tag, res.Channels, res.Schedules, res.Programs, res.Missing)

	run := store.SyncRun{
		Date:       date,
		Channels:   res.Channels,
		Schedules:  res.Schedules,
		Programs:   res.Programs,
		Missing:    res.Missing,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if err := st.RecordSyncRun(ctx, run); err != nil {
		return res, fmt.Errorf("RecordSyncRun: %w", err)
	}
	return res, nil
}

// selectChannels keeps the channels named by ids, in provider order.
func selectChannels(all []guide.Channel, ids []string) ([]guide.Channel, error) {
	if len(ids) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []guide.Channel
	for _, ch := range all {
		if want[ch.ID()] {
			out = append(out, ch)
			delete(want, ch.ID())
		}
	}
	if len(want) > 0 {
		for _, id := range ids {
			if want[id] {
				return nil, fmt.Errorf("unknown channel %q", id)
			}
		}
	}
	return out, nil
}
