package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/voyagen/tvguide/guide"
	"github.com/voyagen/tvguide/internal/cache"
	"github.com/voyagen/tvguide/internal/config"
	"github.com/voyagen/tvguide/internal/server"
	"github.com/voyagen/tvguide/internal/service"
	"github.com/voyagen/tvguide/internal/store"
)

const usage = `usage: tvguide [-config file.yaml] <command> [flags]

commands:
  channels                           list channels
  schedule -date YYYY-MM-DD [-ch ids] print schedules
  sync     -date YYYY-MM-DD [-ch ids] archive listings in Postgres
  enqueue  -date YYYY-MM-DD [-ch ids] queue a sync job in Redis
  worker                             run queued sync jobs
  serve                              run the local HTTP API
`

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "channels":
		err = runChannels(ctx, cfg, args)
	case "schedule":
		err = runSchedule(ctx, cfg, args)
	case "sync":
		err = runSync(ctx, cfg, args)
	case "enqueue":
		err = runEnqueue(ctx, cfg, args)
	case "worker":
		err = runWorker(ctx, cfg, args)
	case "serve":
		err = runServe(ctx, cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// newGuide builds the provider client from config.
func newGuide(cfg *config.Config) *guide.Client {
	opts := []guide.Option{
		guide.WithUserAgent(cfg.UserAgent),
		guide.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		guide.WithLogger(log.Default()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, guide.WithBaseURL(cfg.BaseURL))
	}
	return guide.New(opts...)
}

// openStore runs migrations and connects to the archive.
func openStore(ctx context.Context, cfg *config.Config) (*store.Postgres, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	version, err := store.RunMigrations(cfg.DatabaseURL, "file://"+migrationsDir())
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("store: schema version %d", version)

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return pg, nil
}

// migrationsDir prefers ./migrations, falling back to the directory next
// to the executable.
func migrationsDir() string {
	abs, err := filepath.Abs("migrations")
	if err != nil {
		abs = "migrations"
	}
	if _, err := os.Stat(abs); err != nil {
		if exe, e := os.Executable(); e == nil {
			abs = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	return abs
}

// openRedis connects to the job queue.
func openRedis(ctx context.Context, cfg *config.Config) (*cache.Redis, error) {
	if err := cfg.RequireRedis(); err != nil {
		return nil, err
	}
	rds, err := cache.New(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if err := rds.Ping(ctx); err != nil {
		rds.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rds, nil
}

// dateFlags registers the -date and -ch flags shared by several commands.
type dateFlags struct {
	date string
	ch   string
}

func (d *dateFlags) register(fs *flag.FlagSet) {
	today := time.Now().UTC().Format(guide.DateLayout)
	fs.StringVar(&d.date, "date", today, "Broadcast date (YYYY-MM-DD, UTC)")
	fs.StringVar(&d.ch, "ch", "", "Comma separated channel ids; empty means all")
}

func (d *dateFlags) parse() (time.Time, []string, error) {
	date, err := service.ParseDate(d.date)
	if err != nil {
		return time.Time{}, nil, err
	}
	var ids []string
	for _, id := range strings.Split(d.ch, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return date, ids, nil
}

func runChannels(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("channels", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	fs.Parse(args)

	channels, err := newGuide(cfg).GetChannels(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(channels)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSORT\tTITLE")
	for _, ch := range channels {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", ch.ID(), ch.Sort(), ch.Title())
	}
	return tw.Flush()
}

func runSchedule(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	var df dateFlags
	df.register(fs)
	fs.Parse(args)

	date, ids, err := df.parse()
	if err != nil {
		return err
	}
	g := newGuide(cfg)

	var refs []guide.ChannelRef
	if len(ids) == 0 {
		channels, err := g.GetChannels(ctx)
		if err != nil {
			return err
		}
		refs = guide.Refs(channels)
	} else {
		refs = guide.Refs(toIDs(ids))
	}

	schedules, err := g.GetSchedules(ctx, refs, date)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		s, ok := schedules[ref.ChannelID()]
		if !ok {
			continue
		}
		delete(schedules, ref.ChannelID())
		printSchedule(s)
	}
	return nil
}

func toIDs(ids []string) []guide.ID {
	out := make([]guide.ID, len(ids))
	for i, id := range ids {
		out[i] = guide.ID(id)
	}
	return out
}

func printSchedule(s *guide.Schedule) {
	fmt.Printf("# channel %s, %s\n", s.ChannelID(), s.Date().Format(guide.DateLayout))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, p := range s.Programs() {
		var flags []string
		if p.Live() {
			flags = append(flags, "live")
		}
		if p.Premiere() {
			flags = append(flags, "premiere")
		}
		if p.Rerun() {
			flags = append(flags, "rerun")
		}
		if p.AvailableAsVOD() {
			flags = append(flags, "vod")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.StartsAt().Local().Format("15:04"), p.EndsAt().Local().Format("15:04"),
			p.Title(), strings.Join(flags, ","))
	}
	tw.Flush()
}

func runSync(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var df dateFlags
	df.register(fs)
	fs.Parse(args)

	date, ids, err := df.parse()
	if err != nil {
		return err
	}
	pg, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	res, err := service.Sync(ctx, newGuide(cfg), pg, date, ids)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d channels, %d schedules, %d programs, %d without data\n",
		res.Date.Format(guide.DateLayout), res.Channels, res.Schedules, res.Programs, res.Missing)
	return nil
}

func runEnqueue(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	var df dateFlags
	df.register(fs)
	fs.Parse(args)

	date, ids, err := df.parse()
	if err != nil {
		return err
	}
	rds, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rds.Close()

	job := cache.SyncJob{Date: date.Format(guide.DateLayout), ChannelIDs: ids}
	if err := cache.Enqueue(ctx, rds, cache.DefaultQueue, job); err != nil {
		return err
	}
	log.Printf("enqueue: sync job for %s queued on %s", job.Date, cache.DefaultQueue)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&cfg.ServerPort, "port", cfg.ServerPort, "Listen port")
	fs.Parse(args)

	// The archive is optional for serving; only /api/syncs needs it.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer pg.Close()
		st = pg
	} else {
		fmt.Fprintln(os.Stderr, "archive disabled (DATABASE_URL not set)")
	}

	// Redis only adds the in-progress flag to sync status.
	var locks server.SyncLocks
	if cfg.RedisURL != "" {
		rds, err := openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rds.Close()
		locks = rds
	} else {
		fmt.Fprintln(os.Stderr, "sync locks disabled (REDIS_URL not set)")
	}

	return server.New(newGuide(cfg), st, locks, cfg).ListenAndServe(ctx)
}
