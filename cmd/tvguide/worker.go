package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/voyagen/tvguide/internal/cache"
	"github.com/voyagen/tvguide/internal/config"
	"github.com/voyagen/tvguide/internal/service"
	"github.com/voyagen/tvguide/internal/store"
)

func runWorker(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	lockTTL := fs.Duration("lock-ttl", 10*time.Minute, "How long a date stays locked while syncing")
	fs.Parse(args)

	rds, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rds.Close()

	pg, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	runSyncWorker(ctx, rds, newGuide(cfg), pg, *lockTTL)
	return nil
}

// runSyncWorker continuously dequeues sync jobs from Redis and runs them.
// It stops when ctx is cancelled.
func runSyncWorker(ctx context.Context, rds *cache.Redis, src service.Source, st store.Store, lockTTL time.Duration) {
	log.Println("sync worker started")
	for {
		select {
		case <-ctx.Done():
			log.Println("sync worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, rds, cache.DefaultQueue, 5*time.Second)
		if err != nil {
			log.Printf("sync worker: dequeue error: %v", err)
			if !sleepCtx(ctx, 2*time.Second) {
				log.Println("sync worker stopping")
				return
			}
			continue
		}
		if job == nil {
			continue // timeout, loop back to check ctx
		}
		runJob(ctx, rds, src, st, *job, lockTTL)
	}
}

func runJob(ctx context.Context, rds *cache.Redis, src service.Source, st store.Store, job cache.SyncJob, lockTTL time.Duration) {
	date, err := service.ParseDate(job.Date)
	if err != nil {
		log.Printf("sync worker: dropping job: %v", err)
		return
	}

	unlock, err := cache.TryLock(ctx, rds, cache.SyncLockKey(job.Date), lockTTL)
	if errors.Is(err, cache.ErrLocked) {
		log.Printf("sync worker: %s is already being synced, skipping", job.Date)
		return
	}
	if err != nil {
		log.Printf("sync worker: %v", err)
		return
	}
	defer unlock()

	log.Printf("sync worker: processing job date=%s channels=%v", job.Date, job.ChannelIDs)
	if _, err := service.Sync(ctx, src, st, date, job.ChannelIDs); err != nil {
		log.Printf("sync worker: Sync error: %v", err)
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
