package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

type catalogStoreStub struct {
	nextID int
	byName map[string]model.ContentItem
}

func newCatalogStoreStub() *catalogStoreStub {
	return &catalogStoreStub{nextID: 1, byName: make(map[string]model.ContentItem)}
}

func (s *catalogStoreStub) Upsert(_ context.Context, name string, aliases []string, storageRef string, kind enums.FileKind) (model.ContentItem, error) {
	item, ok := s.byName[name]
	if !ok {
		item = model.ContentItem{ID: "item-" + strconv.Itoa(s.nextID), Name: name}
		s.nextID++
	}
	item.Aliases = aliases
	item.StorageRef = storageRef
	item.Kind = kind
	s.byName[name] = item
	return item, nil
}

func (s *catalogStoreStub) Get(_ context.Context, contentID string) (model.ContentItem, error) {
	for _, item := range s.byName {
		if item.ID == contentID {
			return item, nil
		}
	}
	return model.ContentItem{}, errors.New("not found")
}

func (s *catalogStoreStub) List(_ context.Context) ([]model.ContentItem, error) {
	items := make([]model.ContentItem, 0, len(s.byName))
	for _, item := range s.byName {
		items = append(items, item)
	}
	return items, nil
}

type invalidatorStub struct {
	calls int
}

func (s *invalidatorStub) InvalidateCatalogSnapshot(_ context.Context) error {
	s.calls++
	return nil
}

func TestUpsertValidatesAndInvalidatesCache(t *testing.T) {
	store := newCatalogStoreStub()
	svc := NewService(store)
	cache := &invalidatorStub{}
	svc.AttachCache(cache)

	if _, err := svc.Upsert(context.Background(), UpsertInput{Name: " ", StorageRef: "drive:abc"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}

	item, err := svc.Upsert(context.Background(), UpsertInput{
		Name:       "Trading Course",
		Aliases:    []string{"курс", " курс ", "trading", ""},
		StorageRef: "drive:abc",
		Kind:       "video",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if item.Kind != enums.FileKindVideo {
		t.Fatalf("unexpected kind: %s", item.Kind)
	}
	if len(item.Aliases) != 2 {
		t.Fatalf("aliases must be trimmed and deduplicated, got %v", item.Aliases)
	}
	if cache.calls != 1 {
		t.Fatalf("catalog change must invalidate the snapshot, calls=%d", cache.calls)
	}
}

func TestImportCSVContinuesPastBadRows(t *testing.T) {
	store := newCatalogStoreStub()
	svc := NewService(store)

	csvBody := strings.Join([]string{
		"name,ref,type,aliases",
		"Trading Course,drive:abc,video,курс;trading",
		",drive:missing-name,document,",
		"SQL Bootcamp,s3:sql.pdf,document,sql",
	}, "\n")

	report, err := svc.ImportCSV(context.Background(), strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("import csv: %v", err)
	}

	if report.Imported != 2 {
		t.Fatalf("expected 2 imported rows, got %d", report.Imported)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failed row, got %d", report.Failed)
	}
	if len(store.byName) != 2 {
		t.Fatalf("expected 2 catalog entries, got %d", len(store.byName))
	}

	var badLine int
	for _, row := range report.Rows {
		if row.Error != "" {
			badLine = row.Line
		}
	}
	if badLine != 3 {
		t.Fatalf("bad row must be reported on line 3, got %d", badLine)
	}
}

func TestImportCSVRejectsMissingHeaderColumns(t *testing.T) {
	svc := NewService(newCatalogStoreStub())

	_, err := svc.ImportCSV(context.Background(), strings.NewReader("title,url\nfoo,bar"))
	if err == nil {
		t.Fatalf("expected header validation error")
	}
}
