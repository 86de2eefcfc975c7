package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/lmittmann/tint"
	webbrowser "github.com/pkg/browser"

	"xharvest/internal/app"
	"xharvest/internal/auth"
	"xharvest/internal/config"
	"xharvest/internal/harvest"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	cfg := loadConfig(log)

	// Subcommands that never touch a browser.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "extract":
			return runExtract(cfg, log, os.Args[2:])
		case "open":
			return runOpen(cfg, log, os.Args[2:])
		}
	}

	var (
		tweets   = flag.Int("tweets", cfg.Scrape.MaxPosts, "number of posts to scrape")
		username = flag.String("username", "", "scrape a user profile")
		hashtag  = flag.String("hashtag", "", "scrape a hashtag feed")
		query    = flag.String("query", "", "scrape search results")
		listID   = flag.String("list", "", "scrape a list by ID")
		bookmark = flag.Bool("bookmarks", false, "scrape the bookmarks page")
		convURL  = flag.String("url", "", "scrape a conversation permalink")
		noLimit  = flag.Bool("no-limit", false, "scrape until the feed is exhausted")
		latest   = flag.Bool("latest", false, "use the Latest tab (hashtag/search)")
		top      = flag.Bool("top", false, "use the Top tab (hashtag/search)")
		details  = flag.Bool("details", false, "collect author follower stats (slower)")
		saveMode = flag.String("save-mode", cfg.Output.Format, "output format: csv or jsonl")
		outDir   = flag.String("output", cfg.Output.Dir, "output directory")
		headless = flag.Bool("headless", cfg.Browser.Headless, "run the browser headless")
		schedule = flag.Bool("schedule", false, "run on the configured cron schedule")
	)
	flag.IntVar(tweets, "t", *tweets, "shorthand for -tweets")
	flag.StringVar(username, "u", "", "shorthand for -username")
	flag.StringVar(hashtag, "ht", "", "shorthand for -hashtag")
	flag.StringVar(query, "q", "", "shorthand for -query")
	flag.StringVar(listID, "l", "", "shorthand for -list")
	flag.Parse()

	target, err := buildTarget(*username, *hashtag, *query, *listID, *bookmark, *convURL, *latest, *top)
	if err != nil {
		log.Error("invalid arguments", "error", err)
		return exitUsage
	}

	cfg.Scrape.MaxPosts = *tweets
	cfg.Scrape.AuthorDetails = cfg.Scrape.AuthorDetails || *details
	cfg.Output.Format = *saveMode
	cfg.Output.Dir = *outDir
	cfg.Browser.Headless = *headless

	env := config.LoadEnv()
	if env.Headless != nil {
		cfg.Browser.Headless = *env.Headless
	}
	creds := auth.Credentials{Username: env.Username, Password: env.Password}
	if err := env.Validate(); err != nil && !storedCookiesValid() {
		log.Error("cannot authenticate", "error", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := app.New(cfg, creds, log)

	if *schedule {
		if err := a.RunScheduled(ctx, target, *noLimit); err != nil {
			log.Error("scheduled run failed", "error", err)
			return exitRuntime
		}
		return exitOK
	}

	result, err := a.Run(ctx, target, *noLimit)
	if err != nil {
		log.Error("harvest failed", "error", err)
		return exitRuntime
	}
	if !result.Complete() {
		// Partial results were still saved; report success but note it.
		log.Warn("harvest ended early", "outcome", string(result.Outcome))
	}
	return exitOK
}

// buildTarget maps the mutually exclusive selector flags onto a
// Target.
func buildTarget(username, hashtag, query, listID string, bookmarks bool, convURL string, latest, top bool) (harvest.Target, error) {
	if latest && top {
		return harvest.Target{}, fmt.Errorf("-latest and -top are mutually exclusive")
	}

	var t harvest.Target
	selectors := 0
	if username != "" {
		selectors++
		t = harvest.Target{Kind: harvest.KindProfile, Handle: username}
	}
	if hashtag != "" {
		selectors++
		t = harvest.Target{Kind: harvest.KindHashtag, Hashtag: hashtag}
	}
	if query != "" {
		selectors++
		t = harvest.Target{Kind: harvest.KindSearch, Query: query}
	}
	if listID != "" {
		selectors++
		t = harvest.Target{Kind: harvest.KindList, ListID: listID}
	}
	if bookmarks {
		selectors++
		t = harvest.Target{Kind: harvest.KindBookmarks}
	}
	if convURL != "" {
		selectors++
		t = harvest.Target{Kind: harvest.KindConversation, URL: convURL}
	}
	if selectors > 1 {
		return harvest.Target{}, fmt.Errorf("only one of -username, -hashtag, -query, -list, -bookmarks, -url may be given")
	}
	if selectors == 0 {
		t = harvest.Target{Kind: harvest.KindTimeline}
	}

	if latest {
		t.Tab = harvest.TabLatest
	}
	if t.Tab == harvest.TabLatest && t.Kind != harvest.KindHashtag && t.Kind != harvest.KindSearch {
		return harvest.Target{}, fmt.Errorf("-latest only applies to hashtag and search targets")
	}
	return t, t.Validate()
}

func runExtract(cfg *config.Config, log *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	saveMode := fs.String("save-mode", cfg.Output.Format, "output format: csv or jsonl")
	outDir := fs.String("output", cfg.Output.Dir, "output directory")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Error("usage: xharvest extract <file.html>")
		return exitUsage
	}
	cfg.Output.Format = *saveMode
	cfg.Output.Dir = *outDir

	n, err := app.New(cfg, auth.Credentials{}, log).ExtractFile(fs.Arg(0))
	if err != nil {
		log.Error("extract failed", "error", err)
		return exitRuntime
	}
	log.Info("extracted records", "posts", n)
	return exitOK
}

func runOpen(cfg *config.Config, log *slog.Logger, args []string) int {
	what := "output"
	if len(args) > 0 {
		what = args[0]
	}

	var dir string
	switch what {
	case "config":
		d, err := config.ConfigDir()
		if err != nil {
			log.Error("locating config dir", "error", err)
			return exitRuntime
		}
		dir = d
	case "output":
		dir = cfg.Output.Dir
	default:
		log.Error("usage: xharvest open [config|output]")
		return exitUsage
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error("creating directory", "path", dir, "error", err)
		return exitRuntime
	}
	if err := webbrowser.OpenFile(dir); err != nil {
		log.Error("opening directory", "path", dir, "error", err)
		return exitRuntime
	}
	return exitOK
}

func loadConfig(log *slog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Warn("could not load config, using defaults", "error", err)
		cfg = config.Default()
	}
	return cfg
}

func storedCookiesValid() bool {
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return false
	}
	return auth.NewCookieStore(path).IsValid()
}
