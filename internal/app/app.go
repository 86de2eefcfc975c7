// Package app wires the browser session, authentication, harvest loop
// and exporters into runnable commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"xharvest/internal/auth"
	"xharvest/internal/browser"
	"xharvest/internal/config"
	"xharvest/internal/dom/static"
	"xharvest/internal/export"
	"xharvest/internal/extract"
	"xharvest/internal/harvest"
	"xharvest/internal/media"
	"xharvest/internal/progress"
	"xharvest/internal/scheduler"
	"xharvest/internal/store"
	"xharvest/internal/types"
)

// App holds the application state.
type App struct {
	cfg   *config.Config
	creds auth.Credentials
	log   *slog.Logger
}

// New creates a new App instance.
func New(cfg *config.Config, creds auth.Credentials, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	return &App{cfg: cfg, creds: creds, log: log}
}

// harvestConfig maps the persisted scrape settings onto loop bounds.
func (a *App) harvestConfig(noLimit bool) harvest.Config {
	sc := a.cfg.Scrape
	return harvest.Config{
		MaxPosts:     sc.MaxPosts,
		NoLimit:      noLimit,
		Window:       sc.Window,
		RetryWait:    time.Duration(sc.RetryWaitSecs) * time.Second,
		MaxRetries:   sc.MaxRetries,
		MaxEmptyRuns: sc.MaxEmptyRuns,
		MaxRefreshes: sc.MaxRefreshes,
		SettleDelay:  time.Duration(sc.SettleSecs) * time.Second,
	}
}

// Run performs one full harvest against the target: launch a browser,
// authenticate, scroll and extract, then export the records.
func (a *App) Run(ctx context.Context, target harvest.Target, noLimit bool) (*harvest.Result, error) {
	format, err := export.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()

	session, err := browser.NewSession(ctx, browser.Options{
		Headless:  a.cfg.Browser.Headless,
		Proxy:     a.cfg.Browser.Proxy,
		UserAgent: a.cfg.Browser.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	cookiePath, err := auth.DefaultCookieStorePath()
	if err != nil {
		session.Close()
		return nil, err
	}
	manager := auth.NewManager(auth.NewCookieStore(cookiePath), a.log)
	if err := manager.Authenticate(session, a.creds); err != nil {
		session.Close()
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	page := session.Page()
	resolver := media.NewResolver(time.Duration(a.cfg.Scrape.ResolveTimeout)*time.Second, a.log)
	x := extract.New(page, resolver, a.log)
	x.Details = a.cfg.Scrape.AuthorDetails

	reporter := progress.NewReporter(os.Stdout, a.cfg.Scrape.MaxPosts, noLimit)
	h := harvest.New(page, x, reporter, a.harvestConfig(noLimit), a.log)

	result, err := h.Run(ctx, target)
	reporter.Done()

	// An interrupt means the user wants out now. Skip the browser
	// teardown, which can block on a wedged renderer, and let the
	// process exit reclaim it.
	if result == nil || result.Outcome != harvest.OutcomeInterrupted {
		session.Close()
	}
	if err != nil {
		return result, err
	}

	a.log.Info("harvest finished",
		"target", target.String(),
		"outcome", string(result.Outcome),
		"posts", len(result.Posts))

	if len(result.Posts) == 0 {
		a.log.Warn("no records collected, nothing to save")
		return result, nil
	}

	if err := a.save(result, format, startedAt); err != nil {
		return result, err
	}
	return result, nil
}

func (a *App) save(result *harvest.Result, format export.Format, startedAt time.Time) error {
	writer := export.NewWriter(a.cfg.Output.Dir)
	path, err := writer.Save(result.Posts, format)
	if err != nil {
		return fmt.Errorf("saving output: %w", err)
	}
	a.log.Info("saved output", "path", path, "posts", len(result.Posts))

	if a.cfg.Archive.Enabled {
		if err := a.archive(result, startedAt); err != nil {
			a.log.Error("archiving failed", "error", err)
		}
	}
	return nil
}

func (a *App) archive(result *harvest.Result, startedAt time.Time) error {
	path := a.cfg.Archive.Path
	if path == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "archive.db")
	}

	db, err := store.New(path)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.RecordHarvest(result.Target.String(), string(result.Outcome), startedAt, result.Posts)
	if err != nil {
		return err
	}
	a.log.Info("archived harvest", "id", id, "path", path)
	return nil
}

// RunScheduled repeats the harvest on the configured cron schedule
// until the context is canceled.
func (a *App) RunScheduled(ctx context.Context, target harvest.Target, noLimit bool) error {
	if a.cfg.Schedule.Cron == "" {
		return fmt.Errorf("no cron schedule configured")
	}

	sched, err := scheduler.New(a.cfg.Schedule.Timezone, a.log)
	if err != nil {
		return err
	}
	err = sched.AddHarvestJob(a.cfg.Schedule.Cron, func(jobCtx context.Context) error {
		_, err := a.Run(jobCtx, target, noLimit)
		return err
	})
	if err != nil {
		return err
	}

	sched.Start()
	<-ctx.Done()
	<-sched.Stop().Done()
	return nil
}

// ExtractFile parses a saved feed page from disk and exports whatever
// records it contains. No browser is involved.
func (a *App) ExtractFile(path string) (int, error) {
	format, err := export.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return 0, err
	}

	page, err := static.ParseFile(path)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	resolver := media.NewResolver(time.Duration(a.cfg.Scrape.ResolveTimeout)*time.Second, a.log)
	x := extract.New(page, resolver, a.log)

	cards, err := page.FindAll(harvest.CardSelector)
	if err != nil {
		return 0, err
	}

	var posts []types.Post
	for _, card := range cards {
		p, err := x.Extract(card)
		if err != nil {
			a.log.Warn("skipping card", "error", err)
			continue
		}
		if p.Error || p.IsAd {
			continue
		}
		posts = append(posts, *p)
	}

	if len(posts) == 0 {
		a.log.Warn("no records found in file")
		return 0, nil
	}
	out, err := export.NewWriter(a.cfg.Output.Dir).Save(posts, format)
	if err != nil {
		return len(posts), fmt.Errorf("saving output: %w", err)
	}
	a.log.Info("saved output", "path", out, "posts", len(posts))
	return len(posts), nil
}
