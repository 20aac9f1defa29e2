package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bryan-buckman/ideaboard/internal/auth"
	"github.com/bryan-buckman/ideaboard/internal/config"
	"github.com/bryan-buckman/ideaboard/internal/database"
	"github.com/bryan-buckman/ideaboard/internal/feed"
	"github.com/bryan-buckman/ideaboard/internal/ideas"
	"github.com/bryan-buckman/ideaboard/internal/rating"
	"github.com/bryan-buckman/ideaboard/internal/server"
)

var errUsage = errors.New("usage: ideaboard [flags] [serve|submit|list|vote|votes|leaderboard|export|import|token] [args]")

// app bundles the components every subcommand works against.
type app struct {
	cfg      config.Config
	db       database.Store
	store    *ideas.Store
	svc      *ideas.Service
	importer *feed.Importer
	out      io.Writer
	now      func() time.Time
}

func run(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	// token needs no storage.
	if cmd == "token" {
		return runToken(cfg, args, out, time.Now())
	}

	db, err := database.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store := ideas.New(db, ideas.WithReadErrorPolicy(cfg.ReadErrorPolicy))
	a := &app{
		cfg:      cfg,
		db:       db,
		store:    store,
		svc:      ideas.NewService(store, rating.Random{}),
		importer: feed.NewImporter(store, rating.Random{}),
		out:      out,
		now:      time.Now,
	}

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "submit":
		return a.submit(ctx, args)
	case "list":
		return a.list(ctx, args)
	case "vote":
		return a.vote(ctx, args)
	case "votes":
		return a.votes(ctx)
	case "leaderboard":
		return a.leaderboard(ctx, args)
	case "export":
		return a.export(ctx, args)
	case "import":
		return a.importFeed(ctx, args)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (a *app) serve(ctx context.Context) error {
	srv, err := server.New(a.db, a.store, a.svc, a.importer, server.Options{
		AuthSecret:      []byte(a.cfg.AuthSecret),
		LeaderboardSize: a.cfg.LeaderboardSize,
	})
	if err != nil {
		return err
	}
	if !a.cfg.AuthEnabled() {
		slog.Warn("AUTH_SECRET not set, write endpoints are open")
	}
	return srv.Start(ctx, a.cfg.Addr)
}

func (a *app) submit(ctx context.Context, args []string) error {
	var sub ideas.Submission
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.StringVar(&sub.Name, "name", "", "Idea name")
	fs.StringVar(&sub.Tagline, "tagline", "", "Category or one-line pitch")
	fs.StringVar(&sub.Description, "description", "", "What the idea is")
	if err := fs.Parse(args); err != nil {
		return err
	}

	idea, err := a.svc.Submit(ctx, sub)
	if err != nil {
		return fmt.Errorf("submit idea: %w", err)
	}
	fmt.Fprintf(a.out, "Idea submitted! %s rated %d/100 (id %s)\n", idea.Name, idea.Rating, idea.ID)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	sortBy := fs.String("sort", "", "Order by rating, votes or recent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := ideas.ParseSortKey(*sortBy)
	if err != nil {
		return err
	}

	list, err := a.store.ListIdeas(ctx)
	if err != nil {
		return err
	}
	voted, err := a.store.ListUserVotes(ctx)
	if err != nil {
		return err
	}
	mine := make(map[string]bool, len(voted))
	for _, id := range voted {
		mine[id] = true
	}

	if len(list) == 0 {
		fmt.Fprintln(a.out, "No ideas yet.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTAGLINE\tRATING\tVOTES\tCREATED\t")
	for _, idea := range ideas.SortIdeas(list, key) {
		votes := humanize.Comma(int64(idea.Votes))
		if mine[idea.ID] {
			votes += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t\n",
			idea.ID, idea.Name, idea.Tagline, idea.Rating, votes, humanize.RelTime(idea.CreatedAt, a.now(), "ago", "from now"))
	}
	return tw.Flush()
}

func (a *app) vote(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("vote takes one idea id: %w", errUsage)
	}
	recorded, err := a.store.Vote(ctx, args[0])
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}
	if recorded {
		fmt.Fprintln(a.out, "Vote recorded!")
	} else {
		fmt.Fprintln(a.out, "Already voted")
	}
	return nil
}

func (a *app) votes(ctx context.Context) error {
	voted, err := a.store.ListUserVotes(ctx)
	if err != nil {
		return err
	}
	for _, id := range voted {
		fmt.Fprintln(a.out, id)
	}
	return nil
}

func (a *app) leaderboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	n := fs.Int("n", a.cfg.LeaderboardSize, "Entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := a.store.ListIdeas(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, entry := range ideas.Leaderboard(list, *n) {
		fmt.Fprintf(tw, "%s\t%s\t%s votes\t%d/5 stars\t\n",
			humanize.Ordinal(entry.Rank), entry.Name, humanize.Comma(int64(entry.Votes)), ideas.Stars(entry.Rating))
	}
	return tw.Flush()
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	path := fs.String("o", "", "Write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := a.store.ListIdeas(ctx)
	if err != nil {
		return err
	}
	data, err := feed.Export("Ideaboard", "", list, a.now())
	if err != nil {
		return err
	}
	if *path == "" {
		_, err = a.out.Write(data)
		return err
	}
	if err := os.WriteFile(*path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *path, err)
	}
	fmt.Fprintf(a.out, "Exported %d ideas (%s) to %s\n", len(list), humanize.Bytes(uint64(len(data))), *path)
	return nil
}

func (a *app) importFeed(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("import takes one file or URL: %w", errUsage)
	}
	src := args[0]

	var (
		res feed.Result
		err error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		res, err = a.importer.ImportURL(ctx, src)
	} else {
		f, ferr := os.Open(src)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		res, err = a.importer.ImportReader(ctx, f)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Imported %d of %d ideas (%d skipped)\n", res.Imported, res.Total, res.Skipped)
	return nil
}

func runToken(cfg config.Config, args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	device := fs.String("device", "cli", "Name recorded in the token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !cfg.AuthEnabled() {
		return errors.New("AUTH_SECRET required to issue tokens")
	}

	token, err := auth.Issue([]byte(cfg.AuthSecret), *device, cfg.TokenTTL, now)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
