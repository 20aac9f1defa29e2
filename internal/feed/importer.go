package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/bryan-buckman/ideaboard/internal/ideas"
	"github.com/bryan-buckman/ideaboard/internal/model"
	"github.com/bryan-buckman/ideaboard/internal/rating"
)

// FetchTimeout bounds ImportURL when ctx has no deadline.
const FetchTimeout = 30 * time.Second

// Result summarises an import.
type Result struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// Importer turns RSS/Atom/JSON feed items into stored ideas.
type Importer struct {
	store  *ideas.Store
	scorer rating.Scorer
	parser *gofeed.Parser
	now    func() time.Time
}

// NewImporter creates an importer. scorer rates items that carry no rating.
func NewImporter(store *ideas.Store, scorer rating.Scorer) *Importer {
	return &Importer{
		store:  store,
		scorer: scorer,
		parser: gofeed.NewParser(),
		now:    time.Now,
	}
}

// ImportReader parses a feed document and stores its items.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader) (Result, error) {
	parsed, err := im.parser.Parse(r)
	if err != nil {
		return Result{}, fmt.Errorf("parse feed: %w", err)
	}
	return im.importFeed(ctx, parsed)
}

// ImportURL fetches a feed over HTTP and stores its items.
func (im *Importer) ImportURL(ctx context.Context, feedURL string) (Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, FetchTimeout)
		defer cancel()
	}
	parsed, err := im.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return Result{}, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return im.importFeed(ctx, parsed)
}

// importFeed stores each usable item. Items whose id already exists are
// skipped; a storage failure stops the import.
func (im *Importer) importFeed(ctx context.Context, parsed *gofeed.Feed) (Result, error) {
	res := Result{Total: len(parsed.Items)}
	for _, item := range parsed.Items {
		idea, ok := im.toIdea(parsed, item)
		if !ok {
			res.Skipped++
			continue
		}
		if r, ok := extensionInt(item, "rating"); ok {
			idea.Rating = rating.Clamp(r)
		} else {
			r, err := im.scorer.Score(ctx, idea)
			if err != nil {
				return res, fmt.Errorf("score %s: %w", idea.ID, err)
			}
			idea.Rating = rating.Clamp(r)
		}

		err := im.store.CreateIdea(ctx, idea)
		if errors.Is(err, ideas.ErrDuplicateIdea) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Imported++
	}
	slog.Info("feed imported", "title", parsed.Title, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

// toIdea maps a feed item to an idea with zero votes. Items without an
// identifier or a title are unusable. The guid, or the link when there is
// none, becomes a path-safe id.
func (im *Importer) toIdea(parsed *gofeed.Feed, item *gofeed.Item) (model.Idea, bool) {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	name := strings.TrimSpace(item.Title)
	if id == "" || name == "" {
		return model.Idea{}, false
	}
	id = pathSafeID(id)

	tagline := ""
	if len(item.Categories) > 0 {
		tagline = strings.TrimSpace(item.Categories[0])
	}
	if tagline == "" {
		tagline = "Imported from " + strings.TrimSpace(parsed.Title)
	}

	description := strings.TrimSpace(item.Description)
	if description == "" {
		description = strings.TrimSpace(item.Content)
	}
	if description == "" {
		description = name
	}

	createdAt := im.now().UTC()
	if item.PublishedParsed != nil {
		createdAt = item.PublishedParsed.UTC()
	}

	return model.Idea{
		ID:          id,
		Name:        name,
		Tagline:     tagline,
		Description: description,
		CreatedAt:   createdAt,
	}, true
}

// pathSafeID keeps ids made of URL-unreserved characters and replaces any
// other id (typically a URL) with a name-based UUID, so the same item always
// maps to the same idea.
func pathSafeID(id string) string {
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
		}
	}
	return id
}

func extensionInt(item *gofeed.Item, name string) (int, bool) {
	ext, ok := item.Extensions[Prefix][name]
	if !ok || len(ext) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(ext[0].Value))
	if err != nil {
		return 0, false
	}
	return n, true
}
