package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contentgate/backend/internal/domain/model"
)

type catalogStub struct {
	items []model.ContentItem
	calls int
}

func (c *catalogStub) List(_ context.Context) ([]model.ContentItem, error) {
	c.calls++
	return c.items, nil
}

func newCatalog(items ...model.ContentItem) *catalogStub {
	return &catalogStub{items: items}
}

func item(id, name string, aliases ...string) model.ContentItem {
	return model.ContentItem{ID: id, Name: name, Aliases: aliases}
}

func TestFindBestMatchesExactNameWins(t *testing.T) {
	catalog := newCatalog(
		item("1", "Trading Course"),
		item("2", "Trading Course Advanced"),
	)
	svc := NewService(catalog, Config{})

	matches, err := svc.FindBestMatches(context.Background(), "Trading Course", 0)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) == 0 || matches[0].Item.ID != "1" {
		t.Fatalf("expected exact match first, got %+v", matches)
	}
	if matches[0].Score != 1.0 {
		t.Fatalf("exact match must score 1.0, got %v", matches[0].Score)
	}
}

func TestFindBestMatchesIgnoresCaseAndPunctuation(t *testing.T) {
	catalog := newCatalog(item("1", "Python: от нуля до героя!"))
	svc := NewService(catalog, Config{})

	matches, err := svc.FindBestMatches(context.Background(), "python от нуля до героя", 0)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) != 1 || matches[0].Score != 1.0 {
		t.Fatalf("normalized query must match exactly, got %+v", matches)
	}
}

func TestFindBestMatchesAliasCounts(t *testing.T) {
	catalog := newCatalog(item("1", "Complete SQL Bootcamp", "sql курс"))
	svc := NewService(catalog, Config{})

	matches, err := svc.FindBestMatches(context.Background(), "sql курс", 0)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) != 1 || matches[0].Score != 1.0 {
		t.Fatalf("alias must score like a name, got %+v", matches)
	}
}

func TestFindBestMatchesBelowThresholdDropped(t *testing.T) {
	catalog := newCatalog(item("1", "Advanced Machine Learning Specialization"))
	svc := NewService(catalog, Config{MinScore: 0.4})

	matches, err := svc.FindBestMatches(context.Background(), "cooking recipes", 0)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("unrelated query must match nothing, got %+v", matches)
	}
}

func TestFindBestMatchesRecencyBreaksTies(t *testing.T) {
	// The catalog source returns newest first; equal scores must keep that
	// order.
	catalog := newCatalog(
		item("new", "Guide Volume One"),
		item("old", "Guide Volume Two"),
	)
	svc := NewService(catalog, Config{})

	matches, err := svc.FindBestMatches(context.Background(), "guide volume", 0)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected two matches, got %d", len(matches))
	}
	if matches[0].Score != matches[1].Score {
		t.Fatalf("scores must tie, got %v and %v", matches[0].Score, matches[1].Score)
	}
	if matches[0].Item.ID != "new" {
		t.Fatalf("newest item must win the tie, got %s", matches[0].Item.ID)
	}
}

func TestFindBestMatchesLimitApplies(t *testing.T) {
	catalog := newCatalog(
		item("1", "Guide One"),
		item("2", "Guide Two"),
		item("3", "Guide Three"),
	)
	svc := NewService(catalog, Config{MaxCandidates: 2})

	matches, err := svc.FindBestMatches(context.Background(), "guide", 0)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) > 2 {
		t.Fatalf("limit must cap candidates, got %d", len(matches))
	}
}

func TestConfidentRequiresScoreAndMargin(t *testing.T) {
	single := []Match{{Item: item("1", "a"), Score: 0.9}}
	if _, ok := Confident(single); !ok {
		t.Fatalf("single high-score match must be confident")
	}

	lowSingle := []Match{{Item: item("1", "a"), Score: 0.6}}
	if _, ok := Confident(lowSingle); ok {
		t.Fatalf("single low-score match must not be confident")
	}

	clearWinner := []Match{
		{Item: item("1", "a"), Score: 1.0},
		{Item: item("2", "b"), Score: 0.6},
	}
	if best, ok := Confident(clearWinner); !ok || best.Item.ID != "1" {
		t.Fatalf("clear winner must be confident, got ok=%v best=%+v", ok, best)
	}

	closeRace := []Match{
		{Item: item("1", "a"), Score: 0.9},
		{Item: item("2", "b"), Score: 0.8},
	}
	if _, ok := Confident(closeRace); ok {
		t.Fatalf("close race must require a user pick")
	}
}

type cacheStub struct {
	snapshot []model.ContentItem
	hasValue bool
	sets     int
}

func (c *cacheStub) GetCatalogSnapshot(_ context.Context, target any) error {
	if !c.hasValue {
		return errors.New("cache miss")
	}
	*(target.(*[]model.ContentItem)) = c.snapshot
	return nil
}

func (c *cacheStub) SetCatalogSnapshot(_ context.Context, value any, _ time.Duration) error {
	c.snapshot = value.([]model.ContentItem)
	c.hasValue = true
	c.sets++
	return nil
}

func TestFindBestMatchesUsesSnapshotCache(t *testing.T) {
	catalog := newCatalog(item("1", "Guide One"))
	svc := NewService(catalog, Config{CacheTTL: time.Minute})
	cache := &cacheStub{}
	svc.AttachCache(cache)

	if _, err := svc.FindBestMatches(context.Background(), "guide", 0); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if _, err := svc.FindBestMatches(context.Background(), "guide", 0); err != nil {
		t.Fatalf("second lookup: %v", err)
	}

	if catalog.calls != 1 {
		t.Fatalf("second lookup must hit the cache, catalog calls=%d", catalog.calls)
	}
	if cache.sets != 1 {
		t.Fatalf("snapshot must be stored once, sets=%d", cache.sets)
	}
}
